// Package metrics counts studio activity and serves it in the Prometheus
// text format.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Studio holds the studio metrics. A nil *Studio records nothing, so
// components can carry one unconditionally.
type Studio struct {
	StudiosOpen  *Gauge
	Loads        *CounterVec // by outcome
	Saves        *CounterVec // by outcome
	SaveDuration *Histogram
	Edits        *CounterVec // by editor action
	Warnings     *Counter
}

// New creates the metric set. Names are prefixed with namespace.
func New(namespace string) *Studio {
	name := func(s string) string { return namespace + "_" + s }
	return &Studio{
		StudiosOpen:  NewGauge(name("studios_open"), "Studio sessions currently mounted"),
		Loads:        NewCounterVec(name("loads_total"), "Page loads", "outcome"),
		Saves:        NewCounterVec(name("saves_total"), "Page saves", "outcome"),
		SaveDuration: NewHistogram(name("save_duration_seconds"), "Time spent writing a page"),
		Edits:        NewCounterVec(name("edits_total"), "Editor actions applied to a draft", "action"),
		Warnings:     NewCounter(name("warnings_total"), "Editor warnings shown"),
	}
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// StudioOpened records a mounted studio.
func (s *Studio) StudioOpened() {
	if s != nil {
		s.StudiosOpen.Inc()
	}
}

// StudioClosed records a terminated studio.
func (s *Studio) StudioClosed() {
	if s != nil {
		s.StudiosOpen.Dec()
	}
}

// Loaded records a page load.
func (s *Studio) Loaded(err error) {
	if s != nil {
		s.Loads.Inc(outcome(err))
	}
}

// Saved records a finished save and its duration.
func (s *Studio) Saved(d time.Duration, err error) {
	if s != nil {
		s.Saves.Inc(outcome(err))
		s.SaveDuration.ObserveDuration(d)
	}
}

// Edited records an applied editor action.
func (s *Studio) Edited(action string, warned bool) {
	if s == nil {
		return
	}
	s.Edits.Inc(action)
	if warned {
		s.Warnings.Inc()
	}
}

// Handler serves the metrics.
func (s *Studio) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		s.WriteTo(w)
	})
}

// WriteTo writes every metric in the Prometheus text format.
func (s *Studio) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	s.StudiosOpen.write(cw)
	s.Loads.write(cw)
	s.Saves.write(cw)
	s.SaveDuration.write(cw)
	s.Edits.write(cw)
	s.Warnings.write(cw)
	return cw.n, cw.err
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) printf(format string, args ...any) {
	if c.err != nil {
		return
	}
	n, err := fmt.Fprintf(c.w, format, args...)
	c.n += int64(n)
	c.err = err
}

func (c *countingWriter) header(name, help, kind string) {
	c.printf("# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

// NewCounter creates a counter.
func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

// Inc adds one.
func (c *Counter) Inc() { c.value.Add(1) }

// Value returns the current count.
func (c *Counter) Value() float64 { return float64(c.value.Load()) }

func (c *Counter) write(w *countingWriter) {
	w.header(c.name, c.help, "counter")
	w.printf("%s %g\n", c.name, c.Value())
}

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

// NewGauge creates a gauge.
func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Inc() { g.value.Add(1) }
func (g *Gauge) Dec() { g.value.Add(-1) }

// Value returns the current value.
func (g *Gauge) Value() float64 { return float64(g.value.Load()) }

func (g *Gauge) write(w *countingWriter) {
	w.header(g.name, g.help, "gauge")
	w.printf("%s %g\n", g.name, g.Value())
}

// CounterVec is a counter partitioned by one label.
type CounterVec struct {
	name   string
	help   string
	label  string
	mu     sync.RWMutex
	values map[string]*Counter
}

// NewCounterVec creates a counter vector keyed by label.
func NewCounterVec(name, help, label string) *CounterVec {
	return &CounterVec{name: name, help: help, label: label, values: make(map[string]*Counter)}
}

// WithLabel returns the counter for value, creating it on first use.
func (cv *CounterVec) WithLabel(value string) *Counter {
	cv.mu.RLock()
	c, ok := cv.values[value]
	cv.mu.RUnlock()
	if ok {
		return c
	}

	cv.mu.Lock()
	defer cv.mu.Unlock()
	if c, ok := cv.values[value]; ok {
		return c
	}
	c = NewCounter(cv.name, cv.help)
	cv.values[value] = c
	return c
}

// Inc increments the counter for value.
func (cv *CounterVec) Inc(value string) { cv.WithLabel(value).Inc() }

// Values returns the counts per label value.
func (cv *CounterVec) Values() map[string]float64 {
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	out := make(map[string]float64, len(cv.values))
	for label, c := range cv.values {
		out[label] = c.Value()
	}
	return out
}

func (cv *CounterVec) write(w *countingWriter) {
	values := cv.Values()
	labels := make([]string, 0, len(values))
	for l := range values {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	w.header(cv.name, cv.help, "counter")
	for _, l := range labels {
		w.printf("%s{%s=%q} %g\n", cv.name, cv.label, l, values[l])
	}
}

// saveBuckets are upper bounds in seconds.
var saveBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Histogram counts observations into fixed buckets.
type Histogram struct {
	name    string
	help    string
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

// NewHistogram creates a histogram with the save latency buckets.
func NewHistogram(name, help string) *Histogram {
	return &Histogram{name: name, help: help, buckets: saveBuckets, counts: make([]uint64, len(saveBuckets))}
}

// Observe records a value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, le := range h.buckets {
		if v <= le {
			h.counts[i]++
		}
	}
	h.sum += v
	h.count++
}

// ObserveDuration records d in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) { h.Observe(d.Seconds()) }

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *Histogram) write(w *countingWriter) {
	h.mu.Lock()
	counts := append([]uint64(nil), h.counts...)
	sum, count := h.sum, h.count
	h.mu.Unlock()

	w.header(h.name, h.help, "histogram")
	for i, le := range h.buckets {
		w.printf("%s_bucket{le=\"%g\"} %d\n", h.name, le, counts[i])
	}
	w.printf("%s_bucket{le=\"+Inf\"} %d\n", h.name, count)
	w.printf("%s_sum %g\n%s_count %d\n", h.name, sum, h.name, count)
}

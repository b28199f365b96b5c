// Package health runs readiness probes against the studio's backends.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gabrielmiguelok/pagestudio/pkg/catalog"
	"github.com/gabrielmiguelok/pagestudio/pkg/logging"
	"github.com/gabrielmiguelok/pagestudio/pkg/store"
)

// Status of a probe or of the whole service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const defaultTimeout = 2 * time.Second

// Probe is a single named check.
type Probe struct {
	Name     string
	Run      func(ctx context.Context) error
	Timeout  time.Duration
	Critical bool // failure makes the service unhealthy, not just degraded
}

// Result of one probe.
type Result struct {
	Status     Status `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Report is the outcome of a full run.
type Report struct {
	Status    Status            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Checks    map[string]Result `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

// Checker holds the registered probes.
type Checker struct {
	version string
	logger  logging.Logger

	mu     sync.RWMutex
	probes []Probe
}

// NewChecker creates a checker reporting version.
func NewChecker(version string, logger logging.Logger) *Checker {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Checker{version: version, logger: logger}
}

// Add registers a probe.
func (c *Checker) Add(p Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes = append(c.probes, p)
}

// Names lists the registered probes in name order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.probes))
	for i, p := range c.probes {
		names[i] = p.Name
	}
	sort.Strings(names)
	return names
}

// Run executes every probe concurrently.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	probes := make([]Probe, len(c.probes))
	copy(probes, c.probes)
	c.mu.RUnlock()

	results := make([]Result, len(probes))
	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			results[i] = c.runProbe(ctx, p)
			return nil
		})
	}
	g.Wait()

	report := Report{
		Status:    StatusHealthy,
		Version:   c.version,
		Checks:    make(map[string]Result, len(probes)),
		Timestamp: time.Now().UTC(),
	}
	for i, p := range probes {
		r := results[i]
		report.Checks[p.Name] = r
		if r.Status == StatusHealthy {
			continue
		}
		if p.Critical {
			report.Status = StatusUnhealthy
		} else if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}
	return report
}

func (c *Checker) runProbe(ctx context.Context, p Probe) Result {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := p.Run(pctx)
	res := Result{Status: StatusHealthy, DurationMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status, res.Error = StatusUnhealthy, err.Error()
		c.logger.Warn("health probe failed", logging.String("probe", p.Name), logging.Err(err))
	}
	return res
}

// LiveHandler answers as long as the process serves requests.
func (c *Checker) LiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n"))
	})
}

// ReadyHandler runs the probes. It answers 503 when a critical probe fails.
func (c *Checker) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	})
}

// RepositoryProbe reads page. A page that was never saved still proves the
// backend answers.
func RepositoryProbe(repo store.Repository, page string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := repo.Get(ctx, page)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	}
}

// CatalogProbe lists one kind.
func CatalogProbe(src catalog.Source, kind catalog.Kind) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := src.List(ctx, kind)
		return err
	}
}

// CapacityProbe fails once count reaches max. A max of zero disables it.
func CapacityProbe(count func() int, max int) func(context.Context) error {
	return func(ctx context.Context) error {
		if max <= 0 {
			return nil
		}
		if n := count(); n >= max {
			return fmt.Errorf("%d of %d live sessions in use", n, max)
		}
		return nil
	}
}

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/pagestudio/pkg/catalog"
	"github.com/gabrielmiguelok/pagestudio/pkg/store"
)

func ok(context.Context) error { return nil }

func TestRun_Statuses(t *testing.T) {
	tests := []struct {
		name   string
		probes []Probe
		want   Status
	}{
		{"no probes", nil, StatusHealthy},
		{"all pass", []Probe{{Name: "a", Run: ok}, {Name: "b", Run: ok, Critical: true}}, StatusHealthy},
		{"optional fails", []Probe{
			{Name: "a", Run: ok, Critical: true},
			{Name: "b", Run: func(context.Context) error { return errors.New("slow") }},
		}, StatusDegraded},
		{"critical fails", []Probe{
			{Name: "a", Run: func(context.Context) error { return errors.New("down") }, Critical: true},
			{Name: "b", Run: func(context.Context) error { return errors.New("slow") }},
		}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker("1.2.3", nil)
			for _, p := range tt.probes {
				c.Add(p)
			}
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Checks, len(tt.probes))
			assert.Equal(t, "1.2.3", report.Version)
		})
	}
}

func TestRun_Timeout(t *testing.T) {
	c := NewChecker("", nil)
	c.Add(Probe{Name: "stuck", Timeout: 10 * time.Millisecond, Critical: true, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	report := c.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Contains(t, report.Checks["stuck"].Error, "deadline")
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker("", nil)
	c.Add(Probe{Name: "storage", Run: RepositoryProbe(store.NewMemoryRepository(), "home"), Critical: true})
	c.Add(Probe{Name: "catalog", Run: CatalogProbe(catalog.NewMemorySource(nil), catalog.KindProducts)})

	rec := httptest.NewRecorder()
	c.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, []string{"catalog", "storage"}, c.Names())

	c.Add(Probe{Name: "sessions", Run: CapacityProbe(func() int { return 5 }, 5), Critical: true})
	rec = httptest.NewRecorder()
	c.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "5 of 5 live sessions")
}

func TestCapacityProbe_Disabled(t *testing.T) {
	assert.NoError(t, CapacityProbe(func() int { return 100 }, 0)(context.Background()))
	assert.NoError(t, CapacityProbe(func() int { return 1 }, 2)(context.Background()))
}

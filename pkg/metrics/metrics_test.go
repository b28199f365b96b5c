package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNilStudioIsNoop(t *testing.T) {
	var s *Studio
	assert.NotPanics(t, func() {
		s.StudioOpened()
		s.StudioClosed()
		s.Loaded(nil)
		s.Saved(time.Second, errors.New("x"))
		s.Edited("field", true)
	})
}

func TestStudio_Handler(t *testing.T) {
	s := New("studio")
	s.StudioOpened()
	s.StudioOpened()
	s.StudioClosed()
	s.Loaded(nil)
	s.Loaded(errors.New("down"))
	s.Saved(200*time.Millisecond, nil)
	s.Edited("toggle", false)
	s.Edited("remove-slide", true)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, line := range []string{
		"# TYPE studio_studios_open gauge",
		"studio_studios_open 1",
		`studio_loads_total{outcome="error"} 1`,
		`studio_loads_total{outcome="ok"} 1`,
		`studio_saves_total{outcome="ok"} 1`,
		`studio_save_duration_seconds_bucket{le="0.1"} 0`,
		`studio_save_duration_seconds_bucket{le="0.25"} 1`,
		`studio_save_duration_seconds_bucket{le="+Inf"} 1`,
		"studio_save_duration_seconds_count 1",
		`studio_edits_total{action="remove-slide"} 1`,
		"studio_warnings_total 1",
	} {
		assert.Contains(t, body, line+"\n")
	}

	// Labels are written in sorted order.
	assert.Less(t, strings.Index(body, `outcome="error"`), strings.Index(body, `outcome="ok"`))
}

package client

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedScript(t *testing.T) {
	assert.Contains(t, FileNames(), "studio.js")

	data, err := GetFile("studio.js")
	require.NoError(t, err)
	assert.Contains(t, string(data), "data-lv-root")

	_, err = GetFile("missing.js")
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	h := http.StripPrefix("/assets/", Handler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/studio.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/nope.js", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

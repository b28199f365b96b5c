package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/gabrielmiguelok/pagestudio/internal/config"
	"github.com/gabrielmiguelok/pagestudio/pkg/logging"
	"github.com/gabrielmiguelok/pagestudio/pkg/section"
)

func testConfig() *config.Config {
	c := config.Development()
	c.Storage.Driver = config.DriverMemory
	c.Catalog.Driver = ""
	c.Limits.RequestsPerSecond = 0
	return c
}

func startServer(t *testing.T, c *config.Config) (*httptest.Server, *backends) {
	t.Helper()
	b, err := openBackends(context.Background(), c, logging.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	r, err := newServer(c, b, logging.NopLogger{})
	require.NoError(t, err)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		r.Shutdown(context.Background())
	})
	return srv, b
}

func get(t *testing.T, client *http.Client, url string) (*http.Response, string) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.String()
}

func TestServer_RendersStudios(t *testing.T) {
	srv, _ := startServer(t, testConfig())

	for name, tmpl := range section.Templates() {
		t.Run(name, func(t *testing.T) {
			resp, body := get(t, srv.Client(), srv.URL+"/studio/"+name)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
			assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "'nonce-")
			assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
			assert.Contains(t, body, "<title>"+tmpl.Title+"</title>")
			assert.Contains(t, body, `class="studio studio-`+name+`"`)
			assert.Contains(t, body, `src="/assets/studio.js"`)
		})
	}
}

func TestServer_StudioShowsSavedPage(t *testing.T) {
	srv, _ := startServer(t, testConfig())

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/pages/home",
		strings.NewReader(`{"about":{"title":"About the shop","body":"Since **1999**."}}`))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body := get(t, srv.Client(), srv.URL+"/studio/home")
	assert.Contains(t, body, "About the shop")
	assert.Contains(t, body, "<strong>1999</strong>")
}

func TestServer_Routes(t *testing.T) {
	srv, _ := startServer(t, testConfig())

	resp, body := get(t, srv.Client(), srv.URL+"/assets/studio.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "LiveSocket")

	resp, body = get(t, srv.Client(), srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", body)

	resp, body = get(t, srv.Client(), srv.URL+"/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"healthy"`)

	_, body = get(t, srv.Client(), srv.URL+"/metrics")
	assert.Contains(t, body, "studio_studios_open")

	resp, _ = get(t, srv.Client(), srv.URL+"/api/pages/offers")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, srv.Client(), srv.URL+"/api/catalog/products")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	noRedirect := *srv.Client()
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, _ = get(t, &noRedirect, srv.URL+"/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/studio/home", resp.Header.Get("Location"))
}

func TestServer_CORSOnlyForConfiguredOrigins(t *testing.T) {
	c := testConfig()
	c.Server.DevMode = false
	c.Server.AllowedOrigins = []string{"https://shop.example"}
	srv, _ := startServer(t, c)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/catalog/products", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://shop.example")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://shop.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestApplySeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
catalog:
  products:
    - id: "1"
      name: Sunscreen SPF50
pages:
  home:
    about: {title: Seeded, body: hello}
`), 0o644))

	b, err := openBackends(context.Background(), testConfig(), logging.NopLogger{})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, applySeed(context.Background(), b, path, logging.NopLogger{}))

	items, err := b.catalog.List(context.Background(), "products")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Sunscreen SPF50", items[0].Name)

	doc, err := b.repo.Get(context.Background(), "home")
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"Seeded"`)
}

func TestWriteExport(t *testing.T) {
	page, err := section.Home().Decode([]byte(`{"about":{"title":"Hi","body":""},"legacy":1}`))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeExport(&buf, page, "json"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, map[string]any{"title": "Hi", "body": ""}, decoded["about"])
	assert.Contains(t, decoded, "legacy")
	assert.Contains(t, decoded, "hero")
	assert.Contains(t, buf.String(), "\n  ")

	buf.Reset()
	require.NoError(t, writeExport(&buf, page, "msgpack"))
	var packed map[string]any
	require.NoError(t, msgpack.Unmarshal(buf.Bytes(), &packed))
	assert.Equal(t, map[string]any{"title": "Hi", "body": ""}, packed["about"])

	assert.Error(t, writeExport(&buf, page, "xml"))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "studio v"+version+"\n", out.String())
}

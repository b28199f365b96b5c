package layout

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/pagestudio/pkg/router"
)

func TestRenderDocument(t *testing.T) {
	cfg := DefaultPageConfig()
	cfg.Title = `Home <Studio>`
	cfg.Codec = "json"

	doc := RenderDocument(cfg, "abc123", ".x{}", `<div class="studio">body</div>`)

	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
	assert.Contains(t, doc, `<html lang="en">`)
	assert.Contains(t, doc, "<title>Home &lt;Studio&gt;</title>")
	assert.Contains(t, doc, `<style nonce="abc123">`)
	assert.Contains(t, doc, `<script defer src="/assets/studio.js" nonce="abc123"></script>`)
	assert.Contains(t, doc, `data-lv-root data-lv-codec="json"`)
	assert.Contains(t, doc, ".x{}")
	assert.Contains(t, doc, `<div class="studio">body</div>`)
}

func TestRenderHead_NoNonce(t *testing.T) {
	head := RenderHead(PageConfig{Title: "T"}, "", "")
	assert.NotContains(t, head, "nonce")
	assert.Contains(t, head, ScriptPath)
	assert.Contains(t, head, "noindex")
}

func TestRenderStyles(t *testing.T) {
	css := RenderStyles(WithCustomColors(map[string]string{"primary": "#123456"}), WithReset(false))

	assert.Contains(t, css, "--color-primary:#123456")
	assert.NotContains(t, css, "box-sizing")
	assert.Contains(t, css, ".section-content{pointer-events:none}")

	// Variables are emitted in a stable order.
	assert.Equal(t, RenderStyles(), RenderStyles())
}

func TestLayout_UsesRouteTitleAndNonce(t *testing.T) {
	layout := New(DefaultPageConfig(), "")

	var nonce string
	handler := router.SecureHeaders()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce = router.GetCSPNonce(r.Context())
		var buf bytes.Buffer
		require.NoError(t, layout(r.Context(), &buf, &router.LiveRoute{Title: "Offers Studio"}, []byte("<p>hi</p>")))
		w.Write(buf.Bytes())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/studio/offers", nil))

	require.NotEmpty(t, nonce)
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Offers Studio</title>")
	assert.Contains(t, body, `nonce="`+nonce+`"`)
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "'nonce-"+nonce+"'")

	var buf bytes.Buffer
	require.NoError(t, layout(context.Background(), &buf, nil, nil))
	assert.Contains(t, buf.String(), "<title>Page Studio</title>")
}

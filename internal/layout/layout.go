// Package layout wraps the first HTTP render of a studio in a complete HTML
// document: head, inline styles and the client script. Inline tags carry the
// request's CSP nonce.
package layout

import (
	"context"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/gabrielmiguelok/pagestudio/pkg/router"
)

// ScriptPath is where the client script is served.
const ScriptPath = "/assets/studio.js"

// PageConfig describes the document around a studio.
type PageConfig struct {
	// Title is shown in the browser tab. Route titles take precedence.
	Title string
	// Description is the meta description.
	Description string
	// Language is the document language (default: "en").
	Language string
	// ThemeColor is the mobile browser theme color.
	ThemeColor string
	// Favicon is the path to the favicon.
	Favicon string
	// Script is the client script URL (default: ScriptPath).
	Script string
	// Codec is handed to the client as the WebSocket codec.
	Codec string
}

// DefaultPageConfig returns a PageConfig with sensible defaults.
func DefaultPageConfig() PageConfig {
	return PageConfig{
		Title:      "Page Studio",
		Language:   "en",
		ThemeColor: Colors["primary"],
		Script:     ScriptPath,
	}
}

// RenderHead generates the <head> section. nonce may be empty.
func RenderHead(cfg PageConfig, nonce, customCSS string) string {
	var sb strings.Builder

	themeColor := cfg.ThemeColor
	if themeColor == "" {
		themeColor = Colors["primary"]
	}

	sb.WriteString("<head>\n")
	sb.WriteString(`<meta charset="UTF-8">` + "\n")
	sb.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1.0">` + "\n")
	sb.WriteString(fmt.Sprintf("<title>%s</title>\n", html.EscapeString(cfg.Title)))
	if cfg.Description != "" {
		sb.WriteString(fmt.Sprintf(`<meta name="description" content="%s">`+"\n", html.EscapeString(cfg.Description)))
	}
	sb.WriteString(fmt.Sprintf(`<meta name="theme-color" content="%s">`+"\n", html.EscapeString(themeColor)))
	// Editing tools must not be indexed.
	sb.WriteString(`<meta name="robots" content="noindex, nofollow">` + "\n")

	if cfg.Favicon != "" {
		sb.WriteString(fmt.Sprintf(`<link rel="icon" href="%s">`+"\n", html.EscapeString(cfg.Favicon)))
	}

	sb.WriteString("<style" + nonceAttr(nonce) + ">\n")
	sb.WriteString(RenderStyles())
	if customCSS != "" {
		sb.WriteString("\n")
		sb.WriteString(customCSS)
	}
	sb.WriteString("\n</style>\n")

	script := cfg.Script
	if script == "" {
		script = ScriptPath
	}
	sb.WriteString(fmt.Sprintf(`<script defer src="%s"%s></script>`+"\n", html.EscapeString(script), nonceAttr(nonce)))
	sb.WriteString("</head>\n")

	return sb.String()
}

func nonceAttr(nonce string) string {
	if nonce == "" {
		return ""
	}
	return ` nonce="` + html.EscapeString(nonce) + `"`
}

// RenderDocument wraps body in a complete HTML document. The body root
// carries data-lv-root, which the client uses to find the live container.
func RenderDocument(cfg PageConfig, nonce, customCSS, body string) string {
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}

	codec := ""
	if cfg.Codec != "" {
		codec = fmt.Sprintf(` data-lv-codec="%s"`, html.EscapeString(cfg.Codec))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="%s">
%s<body>
<div id="lv-root" data-lv-root%s>
%s
</div>
</body>
</html>`, html.EscapeString(lang), RenderHead(cfg, nonce, customCSS), codec, body)
}

// New returns a router.Layout that renders the document with cfg. The route
// title, when set, replaces cfg.Title.
func New(cfg PageConfig, customCSS string) router.Layout {
	return func(ctx context.Context, w io.Writer, route *router.LiveRoute, body []byte) error {
		page := cfg
		if route != nil && route.Title != "" {
			page.Title = route.Title
		}
		_, err := io.WriteString(w, RenderDocument(page, router.GetCSPNonce(ctx), customCSS, string(body)))
		return err
	}
}

package layout

import (
	"fmt"
	"sort"
	"strings"
)

// Colors is the studio palette (WCAG 2.1 AA on the light backgrounds).
var Colors = map[string]string{
	// Backgrounds
	"bg":      "#F8FAFC",
	"bgAlt":   "#FFFFFF",
	"bgHover": "#F1F5F9",
	"bgPanel": "#E2E8F0",

	// Text
	"text":      "#0F172A",
	"textMuted": "#475569",

	// Brand
	"primary":     "#0E7490",
	"primaryDark": "#155E75",
	"accent":      "#F59E0B",

	// Status
	"success": "#047857",
	"warning": "#B45309",
	"danger":  "#B91C1C",
	"info":    "#1D4ED8",

	// Borders
	"border":      "#CBD5E1",
	"borderFocus": "#0E7490",
}

// FontFamily uses the system font stack.
var FontFamily = `system-ui, -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif`

// StyleOption customizes the generated CSS.
type StyleOption func(*styleConfig)

type styleConfig struct {
	customColors map[string]string
	includeReset bool
}

// WithCustomColors overrides palette entries.
func WithCustomColors(colors map[string]string) StyleOption {
	return func(cfg *styleConfig) {
		for k, v := range colors {
			cfg.customColors[k] = v
		}
	}
}

// WithReset toggles the CSS reset.
func WithReset(include bool) StyleOption {
	return func(cfg *styleConfig) {
		cfg.includeReset = include
	}
}

// RenderStyles generates the studio stylesheet.
func RenderStyles(opts ...StyleOption) string {
	cfg := &styleConfig{
		customColors: make(map[string]string),
		includeReset: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	colors := make(map[string]string, len(Colors))
	for k, v := range Colors {
		colors[k] = v
	}
	for k, v := range cfg.customColors {
		colors[k] = v
	}

	var sb strings.Builder
	if cfg.includeReset {
		sb.WriteString(cssReset())
	}
	sb.WriteString(cssVariables(colors))
	sb.WriteString(cssShell())
	sb.WriteString(cssCanvas())
	sb.WriteString(cssEditor())
	sb.WriteString(cssSections())
	sb.WriteString(cssAccessibility())
	sb.WriteString(cssResponsive())
	return sb.String()
}

func cssReset() string {
	return `
*,*::before,*::after{box-sizing:border-box;margin:0;padding:0}
body{line-height:1.5;-webkit-font-smoothing:antialiased}
img,picture,svg{display:block;max-width:100%}
input,button,textarea,select{font:inherit}
ul,ol{list-style:none}
`
}

func cssVariables(colors map[string]string) string {
	names := make([]string, 0, len(colors))
	for name := range colors {
		names = append(names, name)
	}
	sort.Strings(names)

	vars := make([]string, 0, len(names))
	for _, name := range names {
		vars = append(vars, fmt.Sprintf("--color-%s:%s", name, colors[name]))
	}
	return fmt.Sprintf(":root{%s;--font-sans:%s}\n", strings.Join(vars, ";"), FontFamily)
}

func cssShell() string {
	return `
body{font-family:var(--font-sans);background:var(--color-bg);color:var(--color-text);min-height:100vh}
button{cursor:pointer;border:1px solid var(--color-border);background:var(--color-bgAlt);border-radius:6px;padding:.35rem .75rem}
button:hover{background:var(--color-bgHover)}
button:disabled{opacity:.5;cursor:not-allowed}
button.primary{background:var(--color-primary);border-color:var(--color-primaryDark);color:#fff}
button.danger{color:var(--color-danger)}
.studio{display:flex;flex-direction:column;min-height:100vh}
.toolbar{display:flex;align-items:center;gap:1rem;padding:.75rem 1.25rem;background:var(--color-bgAlt);border-bottom:1px solid var(--color-border);position:sticky;top:0;z-index:10}
.toolbar h1{font-size:1.125rem;flex:1}
.toolbar .status{color:var(--color-textMuted);font-size:.875rem}
.notices{position:fixed;right:1rem;bottom:1rem;display:flex;flex-direction:column;gap:.5rem;z-index:20}
.notice{padding:.6rem .9rem;border-radius:6px;background:var(--color-bgAlt);border-left:4px solid var(--color-info);box-shadow:0 2px 8px rgba(15,23,42,.15)}
.notice-success{border-color:var(--color-success)}
.notice-warning{border-color:var(--color-warning)}
.notice-error{border-color:var(--color-danger)}
.notice .dismiss{border:0;background:none;margin-left:.5rem}
.studio-error,.studio-loading{margin:3rem auto;max-width:40rem;text-align:center}
.studio-error pre{white-space:pre-wrap;color:var(--color-danger);margin:1rem 0}
.studio-body{display:grid;grid-template-columns:14rem 1fr 22rem;flex:1;min-height:0}
.sidebar{background:var(--color-bgAlt);border-right:1px solid var(--color-border);padding:.75rem}
.sidebar button{width:100%;text-align:left;border:0;background:none}
.sidebar li.active button{background:var(--color-bgPanel);font-weight:600}
.sidebar .modified{color:var(--color-accent)}
.editor-panel{background:var(--color-bgAlt);border-left:1px solid var(--color-border);padding:1rem;overflow-y:auto}
.studio-preview{flex:1;background:var(--color-bgAlt)}
`
}

func cssCanvas() string {
	return `
.canvas{overflow-y:auto;padding:1.5rem}
.canvas-section{position:relative;margin-bottom:1rem;border:2px dashed transparent;border-radius:8px;cursor:pointer}
.canvas-section:hover{border-color:var(--color-border)}
.canvas-section.active{border-color:var(--color-primary);border-style:solid}
.canvas-label{position:absolute;top:-.75rem;left:.75rem;background:var(--color-primary);color:#fff;font-size:.75rem;padding:0 .4rem;border-radius:4px;opacity:0}
.canvas-section:hover .canvas-label,.canvas-section.active .canvas-label{opacity:1}
.section-content{pointer-events:none}
`
}

func cssEditor() string {
	return `
.editor h2{font-size:1rem;margin-bottom:.75rem}
.field{display:flex;flex-direction:column;gap:.25rem;margin-bottom:.75rem}
.field input,.field textarea{border:1px solid var(--color-border);border-radius:6px;padding:.4rem .5rem}
.field input:focus,.field textarea:focus{outline:2px solid var(--color-borderFocus)}
.field.invalid input,.field.invalid textarea{border-color:var(--color-danger)}
.error{color:var(--color-danger);font-size:.8rem}
.tabs{display:flex;flex-wrap:wrap;gap:.25rem;margin-bottom:.75rem}
.tab.active{background:var(--color-primary);color:#fff}
.actions{display:flex;gap:.5rem;margin-top:.5rem}
.picked,.results{display:flex;flex-direction:column;gap:.25rem;margin:.5rem 0}
.item{display:flex;align-items:center;justify-content:space-between;gap:.5rem}
.item .price{color:var(--color-textMuted)}
.empty{color:var(--color-textMuted);font-style:italic}
.count{color:var(--color-textMuted);font-size:.8rem}
.editor-placeholder{color:var(--color-textMuted)}
`
}

func cssSections() string {
	return `
.s-carousel .slide{display:none;padding:2.5rem;background:var(--color-bgPanel);border-radius:8px}
.s-carousel .slide.current{display:block}
.s-banner{padding:2rem;background:var(--color-primary);color:#fff;border-radius:8px}
.s-badges{display:flex;justify-content:space-around;gap:1rem;padding:1rem}
.s-text .prose p{margin:.5rem 0}
.s-grid .cards{display:grid;grid-template-columns:repeat(auto-fill,minmax(10rem,1fr));gap:1rem}
.card{background:var(--color-bgAlt);border:1px solid var(--color-border);border-radius:8px;padding:.75rem}
.card.missing{opacity:.6;border-style:dashed}
.s-unsupported{padding:1rem;border:1px dashed var(--color-warning);color:var(--color-warning);border-radius:8px}
`
}

func cssAccessibility() string {
	return `
:focus-visible{outline:2px solid var(--color-borderFocus);outline-offset:2px}
@media (prefers-reduced-motion:reduce){*{transition:none!important;animation:none!important}}
`
}

func cssResponsive() string {
	return `
@media (max-width:1024px){.studio-body{grid-template-columns:12rem 1fr}.editor-panel{grid-column:1/-1;border-left:0;border-top:1px solid var(--color-border)}}
@media (max-width:768px){.studio-body{grid-template-columns:1fr}.sidebar{border-right:0}}
`
}

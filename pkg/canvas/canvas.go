// Package canvas renders a page configuration either as the interactive
// builder canvas or as a clean preview. Both modes share RenderSection, so
// the section markup is identical and only the surrounding chrome differs.
package canvas

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/gabrielmiguelok/pagestudio/pkg/catalog"
	"github.com/gabrielmiguelok/pagestudio/pkg/section"
)

// Mode selects the chrome around each section.
type Mode int

const (
	// ModeInteractive wraps sections in selectable overlays.
	ModeInteractive Mode = iota
	// ModePreview renders sections only.
	ModePreview
)

func (m Mode) String() string {
	if m == ModePreview {
		return "preview"
	}
	return "interactive"
}

// Options configures one render.
type Options struct {
	Mode Mode

	// Active is the highlighted section in interactive mode.
	Active string
}

// Lookup resolves catalog references. *catalog.Snapshot implements it.
type Lookup interface {
	Get(kind catalog.Kind, id string) (catalog.Item, bool)
	Expand(packID string) ([]string, error)
}

// Renderer renders the sections of one template.
type Renderer struct {
	tmpl   *section.Template
	lookup Lookup
	md     goldmark.Markdown
}

// New creates a renderer. lookup may be nil; selections then show
// unresolved identifiers.
func New(tmpl *section.Template, lookup Lookup) *Renderer {
	return &Renderer{
		tmpl:   tmpl,
		lookup: lookup,
		md:     goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough)),
	}
}

// SetLookup replaces the catalog lookup.
func (r *Renderer) SetLookup(l Lookup) {
	r.lookup = l
}

type frameView struct {
	Key     string
	Label   string
	Active  bool
	Content template.HTML
}

type pageView struct {
	Page     string
	Mode     string
	Sections []frameView
}

// Render writes every section of cfg in order.
func (r *Renderer) Render(w io.Writer, cfg *section.Config, opts Options) error {
	view := pageView{Page: r.tmpl.Name, Mode: opts.Mode.String()}

	var buf bytes.Buffer
	for _, key := range cfg.Keys() {
		data, _ := cfg.Get(key)
		buf.Reset()
		if err := r.RenderSection(&buf, key, data); err != nil {
			return fmt.Errorf("render %s: %w", key, err)
		}
		label := key
		if desc, ok := r.tmpl.Lookup(key); ok {
			label = desc.Label
		}
		view.Sections = append(view.Sections, frameView{
			Key:     key,
			Label:   label,
			Active:  key == opts.Active,
			Content: template.HTML(buf.String()),
		})
	}

	name := "interactive"
	if opts.Mode == ModePreview {
		name = "preview"
	}
	return pageTemplates.ExecuteTemplate(w, name, view)
}

var pageTemplates = template.Must(template.New("canvas").Parse(`
{{define "interactive"}}<main class="page page-{{.Page}} mode-interactive">
{{range .Sections}}<div class="canvas-section{{if .Active}} active{{end}}" data-section="{{.Key}}" lv-click="select" lv-value-section="{{.Key}}">
  <span class="canvas-label">{{.Label}}</span>
  <div class="section-content" inert style="pointer-events:none">{{.Content}}</div>
</div>
{{end}}</main>{{end}}

{{define "preview"}}<main class="page page-{{.Page}} mode-preview">
{{range .Sections}}<div class="preview-section" data-section="{{.Key}}">
  <div class="section-content" inert style="pointer-events:none">{{.Content}}</div>
</div>
{{end}}</main>{{end}}
`))

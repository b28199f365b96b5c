package canvas

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/gabrielmiguelok/pagestudio/pkg/catalog"
	"github.com/gabrielmiguelok/pagestudio/pkg/section"
)

type cardView struct {
	ID       string
	Name     string
	ImageURL string
	Price    float64
	Count    int
	Pack     bool
	Missing  bool
}

type selectionView struct {
	Title string
	Cards []cardView
}

type textView struct {
	Title string
	Body  template.HTML
}

type unknownView struct {
	Key string
}

// RenderSection writes the content of one section. Data whose shape does
// not match the registry, and keys the registry does not know, render as an
// inert placeholder.
func (r *Renderer) RenderSection(w io.Writer, key string, data section.Data) error {
	desc, known := r.tmpl.Lookup(key)
	if !known || data == nil || data.Shape() != desc.Shape {
		return sectionTemplates.ExecuteTemplate(w, "unknown", unknownView{Key: key})
	}

	switch data := data.(type) {
	case section.Slides:
		return sectionTemplates.ExecuteTemplate(w, "slides", data)
	case section.Banner:
		return sectionTemplates.ExecuteTemplate(w, "banner", data)
	case section.Badges:
		return sectionTemplates.ExecuteTemplate(w, "badges", data)
	case section.TextBlock:
		var body bytes.Buffer
		if err := r.md.Convert([]byte(data.Body), &body); err != nil {
			return fmt.Errorf("markdown: %w", err)
		}
		return sectionTemplates.ExecuteTemplate(w, "text", textView{
			Title: data.Title,
			// goldmark omits raw HTML and dangerous links unless WithUnsafe is set.
			Body: template.HTML(body.String()),
		})
	case section.Selection:
		return sectionTemplates.ExecuteTemplate(w, "selection", r.selection(desc, data))
	default:
		return sectionTemplates.ExecuteTemplate(w, "unknown", unknownView{Key: key})
	}
}

func (r *Renderer) selection(desc section.Descriptor, sel section.Selection) selectionView {
	kind := catalog.KindProducts
	if desc.Catalog == section.CatalogPacks {
		kind = catalog.KindPacks
	}

	view := selectionView{Title: sel.Title}
	for _, id := range sel.IDs {
		card := cardView{ID: id, Pack: kind == catalog.KindPacks, Missing: true}
		if r.lookup != nil {
			if it, ok := r.lookup.Get(kind, id); ok {
				card.Name, card.ImageURL, card.Price, card.Missing = it.Name, it.ImageURL, it.Price, false
				if card.Pack {
					if ids, err := r.lookup.Expand(id); err == nil {
						card.Count = len(ids)
					}
				}
			}
		}
		view.Cards = append(view.Cards, card)
	}
	return view
}

var sectionTemplates = template.Must(template.New("sections").Funcs(template.FuncMap{
	"price": func(p float64) string { return fmt.Sprintf("%.2f €", p) },
}).Parse(`
{{define "slides"}}<section class="s-carousel">
  {{range $i, $s := .}}<article class="slide{{if eq $i 0}} current{{end}}">
    {{with .Image}}<img src="{{.}}" alt="">{{end}}
    <div class="slide-copy">
      <h2>{{.Title}}</h2>
      {{with .Subtitle}}<p>{{.}}</p>{{end}}
      {{with .ButtonText}}<a class="button" href="{{$s.Link}}">{{.}}</a>{{end}}
    </div>
  </article>{{end}}
</section>{{end}}

{{define "banner"}}<section class="s-banner">
  {{with .Image}}<img src="{{.}}" alt="">{{end}}
  <div class="banner-copy">
    {{with .Title}}<h2>{{.}}</h2>{{end}}
    {{with .Subtitle}}<p>{{.}}</p>{{end}}
    {{if .ButtonText}}<a class="button" href="{{.Link}}">{{.ButtonText}}</a>{{end}}
  </div>
</section>{{end}}

{{define "badges"}}<section class="s-badges">
  <ul>{{range .}}<li><span class="icon icon-{{.Icon}}" aria-hidden="true"></span>{{.Text}}</li>{{end}}</ul>
</section>{{end}}

{{define "text"}}<section class="s-text">
  {{with .Title}}<h2>{{.}}</h2>{{end}}
  <div class="prose">{{.Body}}</div>
</section>{{end}}

{{define "selection"}}<section class="s-grid">
  {{with .Title}}<h2>{{.}}</h2>{{end}}
  {{if .Cards}}<ul class="cards">
    {{range .Cards}}{{if .Missing}}<li class="card missing" data-id="{{.ID}}">Unavailable item #{{.ID}}</li>
    {{else}}<li class="card" data-id="{{.ID}}">
      {{with .ImageURL}}<img src="{{.}}" alt="">{{end}}
      <span class="name">{{.Name}}</span>
      {{if .Pack}}<span class="count">{{.Count}} products</span>{{end}}
      {{if gt .Price 0.0}}<span class="price">{{price .Price}}</span>{{end}}
      <a class="button" href="#">Add to cart</a>
    </li>{{end}}{{end}}
  </ul>{{else}}<p class="empty">No items selected.</p>{{end}}
</section>{{end}}

{{define "unknown"}}<section class="s-unsupported" data-section="{{.Key}}">
  <p>Unsupported section "{{.Key}}". It is shown as a placeholder and saved unchanged.</p>
</section>{{end}}
`))

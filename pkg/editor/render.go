package editor

import (
	"fmt"
	"html/template"
	"io"

	"github.com/gabrielmiguelok/pagestudio/pkg/forms"
	"github.com/gabrielmiguelok/pagestudio/pkg/section"
)

type fieldView struct {
	Section string
	Index   int
	Name    string
	Label   string
	Multi   bool
	Value   string
	Error   string
}

type tabView struct {
	Index  int
	Label  string
	Active bool
}

type itemView struct {
	Index  int
	Fields []fieldView
}

type pickView struct {
	ID       string
	Name     string
	ImageURL string
	Missing  bool
	Selected bool
	First    bool
	Last     bool
}

type formView struct {
	Key     string
	Label   string
	Shape   string
	Fields  []fieldView
	Tabs    []tabView
	Active  int
	Items   []itemView
	Query   string
	Picked  []pickView
	Results []pickView
	Limit   int
	Count   int
}

func fields(schema forms.Schema, key string, i int, values map[string]any, st *State) []fieldView {
	out := make([]fieldView, len(schema))
	for n, r := range schema {
		p := r.Field
		if i >= 0 {
			p = path(i, r.Field)
		}
		value, _ := values[r.Field].(string)
		if pending, ok := st.Pending[p]; ok {
			value = pending
		}
		out[n] = fieldView{
			Section: key,
			Index:   i,
			Name:    r.Field,
			Label:   r.Label,
			Multi:   r.Multi,
			Value:   value,
			Error:   st.Errors[p],
		}
	}
	return out
}

// Render writes the form for data. A nil st renders with empty UI state.
func (d *Dispatcher) Render(w io.Writer, desc section.Descriptor, data section.Data, st *State) error {
	if st == nil {
		st = NewState()
	}
	v := formView{Key: desc.Key, Label: desc.Label, Shape: desc.Shape.String(), Limit: desc.Limit}

	if data == nil || data.Shape() != desc.Shape {
		data = section.Unknown{}
	}

	name := "placeholder"
	switch data := data.(type) {
	case section.Slides:
		name = "slides"
		active := st.ActiveSlide
		if active >= len(data) {
			active = len(data) - 1
		}
		if active < 0 {
			active = 0
		}
		v.Active, v.Count = active, len(data)
		for i, s := range data {
			label := s.Title
			if label == "" {
				label = fmt.Sprintf("Slide %d", i+1)
			}
			v.Tabs = append(v.Tabs, tabView{Index: i, Label: label, Active: i == active})
		}
		if len(data) > 0 {
			v.Fields = fields(heroFields, desc.Key, active, slideValues(data[active]), st)
		}
	case section.Banner:
		name = "banner"
		v.Fields = fields(heroFields, desc.Key, -1, slideValues(section.Slide(data)), st)
	case section.Badges:
		name = "badges"
		for i, b := range data {
			v.Items = append(v.Items, itemView{
				Index:  i,
				Fields: fields(badgeFields, desc.Key, i, map[string]any{"icon": b.Icon, "text": b.Text}, st),
			})
		}
	case section.TextBlock:
		name = "text"
		v.Fields = fields(textFields, desc.Key, -1, map[string]any{"title": data.Title, "body": data.Body}, st)
	case section.Selection:
		name = "selection"
		v.Fields = fields(selectionFields, desc.Key, -1, map[string]any{"title": data.Title}, st)
		v.Query, v.Count = st.Query, len(data.IDs)
		v.Picked, v.Results = d.picks(desc, data, st.Query)
	}

	return formTemplates.ExecuteTemplate(w, name, v)
}

func (d *Dispatcher) picks(desc section.Descriptor, sel section.Selection, query string) (picked, results []pickView) {
	kind := catalogKind(desc)
	for i, id := range sel.IDs {
		p := pickView{ID: id, Name: "#" + id, Missing: true, Selected: true, First: i == 0, Last: i == len(sel.IDs)-1}
		if d.picker != nil {
			if it, ok := d.picker.Get(kind, id); ok {
				p.Name, p.ImageURL, p.Missing = it.Name, it.ImageURL, false
			}
		}
		picked = append(picked, p)
	}
	if d.picker == nil {
		return picked, nil
	}
	for _, it := range d.picker.Search(kind, query, pickerResults) {
		results = append(results, pickView{ID: it.ID, Name: it.Name, ImageURL: it.ImageURL, Selected: sel.Contains(it.ID)})
	}
	return picked, results
}

var formTemplates = template.Must(template.New("editor").Parse(`
{{define "field"}}<label class="field{{if .Error}} invalid{{end}}">
  <span>{{.Label}}</span>
  {{if .Multi}}<textarea name="{{.Name}}" rows="8" lv-change="editor" lv-debounce="400" lv-value-section="{{.Section}}" lv-value-action="field" lv-value-field="{{.Name}}"{{if ge .Index 0}} lv-value-index="{{.Index}}"{{end}}>{{.Value}}</textarea>
  {{else}}<input type="text" name="{{.Name}}" value="{{.Value}}" lv-change="editor" lv-debounce="400" lv-value-section="{{.Section}}" lv-value-action="field" lv-value-field="{{.Name}}"{{if ge .Index 0}} lv-value-index="{{.Index}}"{{end}}>{{end}}
  {{with .Error}}<small class="error">{{.}}</small>{{end}}
</label>{{end}}

{{define "slides"}}<div class="editor" data-shape="{{.Shape}}" data-section="{{.Key}}">
  <h3>{{.Label}}</h3>
  <nav class="tabs">
    {{range .Tabs}}<button class="tab{{if .Active}} active{{end}}" lv-click="editor" lv-value-section="{{$.Key}}" lv-value-action="select-slide" lv-value-index="{{.Index}}">{{.Label}}</button>{{end}}
    <button class="tab add" lv-click="editor" lv-value-section="{{.Key}}" lv-value-action="add-slide">+ Slide</button>
  </nav>
  {{range .Fields}}{{template "field" .}}{{end}}
  <div class="actions">
    <button lv-click="editor" lv-value-section="{{.Key}}" lv-value-action="move-slide" lv-value-index="{{.Active}}" lv-value-dir="up"{{if eq .Active 0}} disabled{{end}}>Move left</button>
    <button lv-click="editor" lv-value-section="{{.Key}}" lv-value-action="move-slide" lv-value-index="{{.Active}}" lv-value-dir="down">Move right</button>
    <button class="danger" lv-click="editor" lv-value-section="{{.Key}}" lv-value-action="remove-slide" lv-value-index="{{.Active}}"{{if le .Count 1}} disabled{{end}}>Remove slide</button>
  </div>
</div>{{end}}

{{define "banner"}}<div class="editor" data-shape="{{.Shape}}" data-section="{{.Key}}">
  <h3>{{.Label}}</h3>
  {{range .Fields}}{{template "field" .}}{{end}}
</div>{{end}}

{{define "badges"}}<div class="editor" data-shape="{{.Shape}}" data-section="{{.Key}}">
  <h3>{{.Label}}</h3>
  {{range .Items}}<fieldset class="item">
    {{range .Fields}}{{template "field" .}}{{end}}
    <button class="danger" lv-click="editor" lv-value-section="{{$.Key}}" lv-value-action="remove-badge" lv-value-index="{{.Index}}">Remove</button>
  </fieldset>{{else}}<p class="empty">No badges yet.</p>{{end}}
  <button lv-click="editor" lv-value-section="{{.Key}}" lv-value-action="add-badge">+ Badge</button>
</div>{{end}}

{{define "text"}}<div class="editor" data-shape="{{.Shape}}" data-section="{{.Key}}">
  <h3>{{.Label}}</h3>
  {{range .Fields}}{{template "field" .}}{{end}}
</div>{{end}}

{{define "selection"}}<div class="editor" data-shape="{{.Shape}}" data-section="{{.Key}}">
  <h3>{{.Label}}</h3>
  {{range .Fields}}{{template "field" .}}{{end}}
  <p class="count">{{.Count}}{{if gt .Limit 0}} / {{.Limit}}{{end}} selected</p>
  <ol class="picked">
    {{range .Picked}}<li class="{{if .Missing}}missing{{end}}">
      <span>{{.Name}}</span>
      <button lv-click="editor" lv-value-section="{{$.Key}}" lv-value-action="move" lv-value-id="{{.ID}}" lv-value-dir="up"{{if .First}} disabled{{end}}>↑</button>
      <button lv-click="editor" lv-value-section="{{$.Key}}" lv-value-action="move" lv-value-id="{{.ID}}" lv-value-dir="down"{{if .Last}} disabled{{end}}>↓</button>
      <button class="danger" lv-click="editor" lv-value-section="{{$.Key}}" lv-value-action="toggle" lv-value-id="{{.ID}}">×</button>
    </li>{{end}}
  </ol>
  {{if .Picked}}<button lv-click="editor" lv-value-section="{{.Key}}" lv-value-action="clear">Clear selection</button>{{end}}
  <input type="search" name="q" value="{{.Query}}" placeholder="Search the catalog" lv-change="editor" lv-debounce="250" lv-value-section="{{.Key}}" lv-value-action="search">
  <ul class="results">
    {{range .Results}}<li><label>
      <input type="checkbox"{{if .Selected}} checked{{end}} lv-click="editor" lv-value-section="{{$.Key}}" lv-value-action="toggle" lv-value-id="{{.ID}}">
      {{.Name}}
    </label></li>{{else}}<li class="empty">No matches.</li>{{end}}
  </ul>
</div>{{end}}

{{define "placeholder"}}<div class="editor editor-placeholder" data-section="{{.Key}}">
  <h3>{{.Label}}</h3>
  <p>This section cannot be edited here. Its content is kept unchanged when the page is saved.</p>
</div>{{end}}
`))

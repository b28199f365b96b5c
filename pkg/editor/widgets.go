package editor

import (
	"fmt"

	"github.com/gabrielmiguelok/pagestudio/pkg/catalog"
	"github.com/gabrielmiguelok/pagestudio/pkg/forms"
	"github.com/gabrielmiguelok/pagestudio/pkg/section"
)

// Field rules per payload type.
var (
	heroFields = forms.Schema{
		{Field: "title", Label: "Title", Required: true, Max: 80},
		{Field: "subtitle", Label: "Subtitle", Max: 160},
		{Field: "buttonText", Label: "Button text", Max: 30},
		{Field: "image", Label: "Image URL", Max: 500, Link: true},
		{Field: "link", Label: "Link", Max: 500, Link: true},
	}
	badgeFields = forms.Schema{
		{Field: "icon", Label: "Icon", Required: true, Max: 40},
		{Field: "text", Label: "Text", Required: true, Max: 60},
	}
	textFields = forms.Schema{
		{Field: "title", Label: "Title", Required: true, Max: 80},
		{Field: "body", Label: "Body (Markdown)", Max: 5000, Multi: true},
	}
	selectionFields = forms.Schema{
		{Field: "title", Label: "Title", Max: 80},
	}
)

// setField validates one field edit. It returns the merged values, or nil
// when the edit is rejected or changes nothing. Only the edited field is
// validated so an item with other blank fields can still be filled in.
func setField(schema forms.Schema, current map[string]any, key func(string) string, st *State, payload map[string]any) (map[string]any, error) {
	field := str(payload, "field")
	rule, ok := schema.Rule(field)
	if !ok {
		return nil, fmt.Errorf("%w: field %q", ErrUnknownAction, field)
	}
	value := str(payload, "value")

	cs := forms.Schema{rule}.Validate(forms.Cast(current, map[string]any{field: value}, schema.Fields()))
	p := key(field)
	if !cs.Valid {
		st.Errors[p] = cs.FirstError(field)
		st.Pending[p] = value
		return nil, nil
	}
	st.clearField(p)
	if !cs.HasChanges() {
		return nil, nil
	}
	return cs.Apply()
}

func plain(field string) string { return field }

func itemKey(i int) func(string) string {
	return func(field string) string { return path(i, field) }
}

func slideValues(s section.Slide) map[string]any {
	return map[string]any{
		"title":      s.Title,
		"subtitle":   s.Subtitle,
		"buttonText": s.ButtonText,
		"image":      s.Image,
		"link":       s.Link,
	}
}

func slideFrom(m map[string]any) section.Slide {
	return section.Slide{
		Title:      m["title"].(string),
		Subtitle:   m["subtitle"].(string),
		ButtonText: m["buttonText"].(string),
		Image:      m["image"].(string),
		Link:       m["link"].(string),
	}
}

func applySlides(v section.Slides, st *State, action string, payload map[string]any) Result {
	next := section.Clone(v).(section.Slides)

	switch action {
	case ActionSelectSlide:
		i, ok := index(payload)
		if !ok || i < 0 || i >= len(v) {
			return Result{Err: ErrBadIndex}
		}
		st.ActiveSlide = i
		return Result{}

	case ActionAddSlide:
		next = append(next, section.Slide{})
		st.ActiveSlide = len(next) - 1
		return Result{Data: next}

	case ActionRemoveSlide:
		i, ok := index(payload)
		if !ok {
			i = st.ActiveSlide
		}
		if i < 0 || i >= len(v) {
			return Result{Err: ErrBadIndex}
		}
		if len(v) <= 1 {
			return Result{Warning: "A carousel needs at least one slide."}
		}
		next = append(next[:i], next[i+1:]...)
		st.reset()
		if st.ActiveSlide >= len(next) {
			st.ActiveSlide = len(next) - 1
		}
		return Result{Data: next}

	case ActionMoveSlide:
		i, ok := index(payload)
		if !ok || i < 0 || i >= len(v) {
			return Result{Err: ErrBadIndex}
		}
		j := i + step(payload)
		if j == i || j < 0 || j >= len(v) {
			return Result{}
		}
		next[i], next[j] = next[j], next[i]
		st.reset()
		st.ActiveSlide = j
		return Result{Data: next}

	case ActionField:
		i, ok := index(payload)
		if !ok {
			i = st.ActiveSlide
		}
		if i < 0 || i >= len(v) {
			return Result{Err: ErrBadIndex}
		}
		merged, err := setField(heroFields, slideValues(v[i]), itemKey(i), st, payload)
		if err != nil || merged == nil {
			return Result{Err: err}
		}
		next[i] = slideFrom(merged)
		return Result{Data: next}
	}
	return unknownAction(section.ShapeSlideArray, action)
}

func applyBanner(v section.Banner, st *State, action string, payload map[string]any) Result {
	if action != ActionField {
		return unknownAction(section.ShapeSingleBanner, action)
	}
	merged, err := setField(heroFields, slideValues(section.Slide(v)), plain, st, payload)
	if err != nil || merged == nil {
		return Result{Err: err}
	}
	return Result{Data: section.Banner(slideFrom(merged))}
}

func applyBadges(v section.Badges, st *State, action string, payload map[string]any) Result {
	next := section.Clone(v).(section.Badges)

	switch action {
	case ActionAddBadge:
		return Result{Data: append(next, section.Badge{Icon: "star"})}

	case ActionRemoveBadge:
		i, ok := index(payload)
		if !ok || i < 0 || i >= len(v) {
			return Result{Err: ErrBadIndex}
		}
		st.reset()
		return Result{Data: append(next[:i], next[i+1:]...)}

	case ActionField:
		i, ok := index(payload)
		if !ok || i < 0 || i >= len(v) {
			return Result{Err: ErrBadIndex}
		}
		merged, err := setField(badgeFields, map[string]any{"icon": v[i].Icon, "text": v[i].Text}, itemKey(i), st, payload)
		if err != nil || merged == nil {
			return Result{Err: err}
		}
		next[i] = section.Badge{Icon: merged["icon"].(string), Text: merged["text"].(string)}
		return Result{Data: next}
	}
	return unknownAction(section.ShapeBadgeArray, action)
}

func applyText(v section.TextBlock, st *State, action string, payload map[string]any) Result {
	if action != ActionField {
		return unknownAction(section.ShapeTextBlock, action)
	}
	merged, err := setField(textFields, map[string]any{"title": v.Title, "body": v.Body}, plain, st, payload)
	if err != nil || merged == nil {
		return Result{Err: err}
	}
	return Result{Data: section.TextBlock{Title: merged["title"].(string), Body: merged["body"].(string)}}
}

func catalogKind(desc section.Descriptor) catalog.Kind {
	if desc.Catalog == section.CatalogPacks {
		return catalog.KindPacks
	}
	return catalog.KindProducts
}

func (d *Dispatcher) applySelection(desc section.Descriptor, v section.Selection, st *State, action string, payload map[string]any) Result {
	next := section.Clone(v).(section.Selection)

	switch action {
	case ActionSearch:
		st.Query = str(payload, "value")
		return Result{}

	case ActionToggle:
		id := str(payload, "id")
		if i := v.Index(id); i >= 0 {
			next.IDs = append(next.IDs[:i], next.IDs[i+1:]...)
			return Result{Data: next}
		}
		if d.picker == nil {
			return Result{Warning: "The catalog is not available."}
		}
		if _, ok := d.picker.Get(catalogKind(desc), id); !ok {
			return Result{Warning: fmt.Sprintf("Item %q is not in the catalog.", id)}
		}
		if desc.Limit > 0 && len(v.IDs) >= desc.Limit {
			return Result{Warning: fmt.Sprintf("%s can show at most %d items.", desc.Label, desc.Limit)}
		}
		next.IDs = append(next.IDs, id)
		return Result{Data: next}

	case ActionMove:
		i := v.Index(str(payload, "id"))
		if i < 0 {
			return Result{Err: ErrBadIndex}
		}
		j := i + step(payload)
		if j == i || j < 0 || j >= len(v.IDs) {
			return Result{}
		}
		next.IDs[i], next.IDs[j] = next.IDs[j], next.IDs[i]
		return Result{Data: next}

	case ActionClear:
		if len(v.IDs) == 0 {
			return Result{}
		}
		next.IDs = []string{}
		return Result{Data: next}

	case ActionField:
		merged, err := setField(selectionFields, map[string]any{"title": v.Title}, plain, st, payload)
		if err != nil || merged == nil {
			return Result{Err: err}
		}
		next.Title = merged["title"].(string)
		return Result{Data: next}
	}
	return unknownAction(section.ShapeProductSelection, action)
}

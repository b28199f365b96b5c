// Package editor maps each section shape to its form widget. A widget turns
// an editor action into the complete next payload of the section, or into
// inline errors and warnings when the input is rejected.
package editor

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gabrielmiguelok/pagestudio/pkg/catalog"
	"github.com/gabrielmiguelok/pagestudio/pkg/section"
)

// Editor errors. They report calls the widgets never emit and are logged,
// not shown.
var (
	ErrUnknownAction = errors.New("unknown editor action")
	ErrShapeMismatch = errors.New("payload does not match section shape")
	ErrBadIndex      = errors.New("item index out of range")
)

// Actions understood by the widgets.
const (
	ActionField       = "field"
	ActionSelectSlide = "select-slide"
	ActionAddSlide    = "add-slide"
	ActionRemoveSlide = "remove-slide"
	ActionMoveSlide   = "move-slide"
	ActionAddBadge    = "add-badge"
	ActionRemoveBadge = "remove-badge"
	ActionSearch      = "search"
	ActionToggle      = "toggle"
	ActionMove        = "move"
	ActionClear       = "clear"
)

// pickerResults caps the search results listed by the product picker.
const pickerResults = 20

// Picker resolves catalog references for product selections.
// *catalog.Snapshot implements it.
type Picker interface {
	Get(kind catalog.Kind, id string) (catalog.Item, bool)
	Search(kind catalog.Kind, query string, limit int) []catalog.Item
}

// State is the per-section UI state that does not belong in the page
// document.
type State struct {
	// ActiveSlide is the slide tab shown by slide-array widgets.
	ActiveSlide int

	// Query is the product picker search text.
	Query string

	// Errors holds inline validation errors keyed by field path
	// ("title", or "2.link" for the third item).
	Errors map[string]string

	// Pending keeps rejected input so the form shows what was typed.
	Pending map[string]string
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Errors:  make(map[string]string),
		Pending: make(map[string]string),
	}
}

func (s *State) clearField(path string) {
	delete(s.Errors, path)
	delete(s.Pending, path)
}

// reset drops inline errors after a structural change such as removing an
// item, since item indexes no longer line up.
func (s *State) reset() {
	s.Errors = make(map[string]string)
	s.Pending = make(map[string]string)
}

// Result is the outcome of one editor action.
type Result struct {
	// Data is the complete next payload. Nil means nothing to apply.
	Data section.Data

	// Warning is a user-facing notice, e.g. a selection limit.
	Warning string

	// Err reports an action the widget does not understand.
	Err error
}

// Changed reports whether the action produced a new payload.
func (r Result) Changed() bool { return r.Data != nil }

// Dispatcher routes editor actions and rendering by section shape.
type Dispatcher struct {
	picker Picker
}

// New creates a dispatcher. picker may be nil when no section uses a
// catalog.
func New(picker Picker) *Dispatcher {
	return &Dispatcher{picker: picker}
}

// SetPicker replaces the catalog used by product selections.
func (d *Dispatcher) SetPicker(p Picker) {
	d.picker = p
}

// Apply runs action against current. current is never modified. Field
// errors are recorded in st and produce no payload.
func (d *Dispatcher) Apply(desc section.Descriptor, current section.Data, st *State, action string, payload map[string]any) Result {
	if st.Errors == nil || st.Pending == nil {
		st.reset()
	}

	switch desc.Shape {
	case section.ShapeSlideArray:
		v, ok := current.(section.Slides)
		if !ok {
			return mismatch(desc, current)
		}
		return applySlides(v, st, action, payload)
	case section.ShapeSingleBanner:
		v, ok := current.(section.Banner)
		if !ok {
			return mismatch(desc, current)
		}
		return applyBanner(v, st, action, payload)
	case section.ShapeBadgeArray:
		v, ok := current.(section.Badges)
		if !ok {
			return mismatch(desc, current)
		}
		return applyBadges(v, st, action, payload)
	case section.ShapeTextBlock:
		v, ok := current.(section.TextBlock)
		if !ok {
			return mismatch(desc, current)
		}
		return applyText(v, st, action, payload)
	case section.ShapeProductSelection:
		v, ok := current.(section.Selection)
		if !ok {
			return mismatch(desc, current)
		}
		return d.applySelection(desc, v, st, action, payload)
	default:
		// Unrecognized sections are read-only.
		return Result{Err: fmt.Errorf("%w: %q on %s section %q", ErrUnknownAction, action, desc.Shape, desc.Key)}
	}
}

func mismatch(desc section.Descriptor, current section.Data) Result {
	got := section.ShapeUnknown
	if current != nil {
		got = current.Shape()
	}
	return Result{Err: fmt.Errorf("%w: section %q wants %s, got %s", ErrShapeMismatch, desc.Key, desc.Shape, got)}
}

func unknownAction(shape section.Shape, action string) Result {
	return Result{Err: fmt.Errorf("%w: %q for %s", ErrUnknownAction, action, shape)}
}

// Payload helpers. lv-value-* attributes arrive as strings, JSON numbers as
// float64 and MessagePack numbers as the smallest integer type that fits.

func str(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func index(payload map[string]any) (int, bool) {
	switch v := payload["index"].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

func path(i int, field string) string {
	return strconv.Itoa(i) + "." + field
}

// step converts a move direction to an offset.
func step(payload map[string]any) int {
	switch str(payload, "dir") {
	case "up", "left":
		return -1
	case "down", "right":
		return 1
	default:
		return 0
	}
}

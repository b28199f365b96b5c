package section

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Data is the payload of one section. The set of implementations is closed:
// Slides, Banner, Badges, TextBlock, Selection and Unknown.
type Data interface {
	// Shape reports the tag of the concrete payload.
	Shape() Shape

	clone() Data
}

// Slide is one entry of a carousel.
type Slide struct {
	Title      string `json:"title"`
	Subtitle   string `json:"subtitle"`
	ButtonText string `json:"buttonText"`
	Image      string `json:"image"`
	Link       string `json:"link"`
}

// Slides is the slide-array payload.
type Slides []Slide

func (Slides) Shape() Shape { return ShapeSlideArray }

func (s Slides) clone() Data {
	out := make(Slides, len(s))
	copy(out, s)
	return out
}

// Banner is the single-banner payload.
type Banner struct {
	Title      string `json:"title"`
	Subtitle   string `json:"subtitle"`
	ButtonText string `json:"buttonText"`
	Image      string `json:"image"`
	Link       string `json:"link"`
}

func (Banner) Shape() Shape { return ShapeSingleBanner }

func (b Banner) clone() Data { return b }

// Badge is an icon/text pair, e.g. a trust badge ("truck", "Free delivery").
type Badge struct {
	Icon string `json:"icon"`
	Text string `json:"text"`
}

// Badges is the badge-array payload.
type Badges []Badge

func (Badges) Shape() Shape { return ShapeBadgeArray }

func (b Badges) clone() Data {
	out := make(Badges, len(b))
	copy(out, b)
	return out
}

// TextBlock is a title plus a Markdown body.
type TextBlock struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (TextBlock) Shape() Shape { return ShapeTextBlock }

func (t TextBlock) clone() Data { return t }

// Selection is an ordered list of catalog identifiers. Order drives display
// order on the live page.
type Selection struct {
	Title string   `json:"title"`
	IDs   []string `json:"ids"`
}

func (Selection) Shape() Shape { return ShapeProductSelection }

func (s Selection) clone() Data {
	ids := make([]string, len(s.IDs))
	copy(ids, s.IDs)
	return Selection{Title: s.Title, IDs: ids}
}

// Contains reports whether id is selected.
func (s Selection) Contains(id string) bool {
	return s.Index(id) >= 0
}

// Index returns the position of id or -1.
func (s Selection) Index(id string) int {
	for i, v := range s.IDs {
		if v == id {
			return i
		}
	}
	return -1
}

// UnmarshalJSON accepts numeric or string identifiers, and a bare array of
// identifiers as a shorthand for a selection without a title.
func (s *Selection) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		ids, err := decodeIDs(data)
		if err != nil {
			return err
		}
		*s = Selection{IDs: ids}
		return nil
	}

	var raw struct {
		Title string          `json:"title"`
		IDs   json.RawMessage `json:"ids"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ids, err := decodeIDs(raw.IDs)
	if err != nil {
		return err
	}
	*s = Selection{Title: raw.Title, IDs: ids}
	return nil
}

// MarshalJSON always emits a non-null ids array.
func (s Selection) MarshalJSON() ([]byte, error) {
	ids := s.IDs
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(struct {
		Title string   `json:"title"`
		IDs   []string `json:"ids"`
	}{s.Title, ids})
}

func decodeIDs(data []byte) ([]string, error) {
	if len(data) == 0 || string(data) == "null" {
		return []string{}, nil
	}
	var values []any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("decode ids: %w", err)
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		switch id := v.(type) {
		case string:
			ids = append(ids, id)
		case json.Number:
			ids = append(ids, id.String())
		case float64:
			ids = append(ids, strconv.FormatFloat(id, 'f', -1, 64))
		default:
			return nil, fmt.Errorf("decode ids: unsupported id %v", v)
		}
	}
	return ids, nil
}

// Unknown keeps the raw JSON of a section this build cannot interpret, so it
// survives a load/save round trip untouched.
type Unknown struct {
	Raw json.RawMessage
}

func (Unknown) Shape() Shape { return ShapeUnknown }

func (u Unknown) clone() Data {
	raw := make(json.RawMessage, len(u.Raw))
	copy(raw, u.Raw)
	return Unknown{Raw: raw}
}

// MarshalJSON emits the raw document unchanged.
func (u Unknown) MarshalJSON() ([]byte, error) {
	if len(u.Raw) == 0 {
		return []byte("null"), nil
	}
	return u.Raw, nil
}

// Clone returns a structural copy of d. Clone(nil) is nil.
func Clone(d Data) Data {
	if d == nil {
		return nil
	}
	return d.clone()
}

// Decode parses raw JSON into the payload type of shape.
func Decode(shape Shape, raw []byte) (Data, error) {
	switch shape {
	case ShapeSlideArray:
		var v Slides
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		if v == nil {
			v = Slides{}
		}
		return v, nil
	case ShapeSingleBanner:
		var v Banner
		err := json.Unmarshal(raw, &v)
		return v, err
	case ShapeBadgeArray:
		var v Badges
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		if v == nil {
			v = Badges{}
		}
		return v, nil
	case ShapeTextBlock:
		var v TextBlock
		err := json.Unmarshal(raw, &v)
		return v, err
	case ShapeProductSelection:
		var v Selection
		err := json.Unmarshal(raw, &v)
		return v, err
	default:
		return Unknown{Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

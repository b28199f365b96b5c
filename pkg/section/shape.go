// Package section declares the editable sections of a page template and the
// typed data each of them carries.
package section

import "fmt"

// Shape tags the kind of data a section holds and, through it, which editor
// widget and which renderer a section gets.
type Shape uint8

const (
	// ShapeUnknown is produced for tags this build does not recognize.
	ShapeUnknown Shape = iota
	// ShapeSlideArray is a carousel: an ordered list of slides.
	ShapeSlideArray
	// ShapeSingleBanner is one promotional banner.
	ShapeSingleBanner
	// ShapeBadgeArray is a list of icon/text pairs.
	ShapeBadgeArray
	// ShapeTextBlock is a titled block of Markdown text.
	ShapeTextBlock
	// ShapeProductSelection is an ordered list of catalog identifiers.
	ShapeProductSelection
)

var shapeNames = map[Shape]string{
	ShapeUnknown:          "unknown",
	ShapeSlideArray:       "slide-array",
	ShapeSingleBanner:     "single-banner",
	ShapeBadgeArray:       "badge-array",
	ShapeTextBlock:        "text-block",
	ShapeProductSelection: "product-selection",
}

// String returns the wire name of the shape.
func (s Shape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("shape(%d)", uint8(s))
}

// ParseShape maps a wire name back to a Shape. Unrecognized names yield
// ShapeUnknown rather than an error.
func ParseShape(name string) Shape {
	for shape, n := range shapeNames {
		if n == name {
			return shape
		}
	}
	return ShapeUnknown
}

// MarshalText implements encoding.TextMarshaler.
func (s Shape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Shape) UnmarshalText(text []byte) error {
	*s = ParseShape(string(text))
	return nil
}

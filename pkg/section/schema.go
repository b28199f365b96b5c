package section

// Schema returns a JSON Schema (draft-07) describing a page document of the
// template. Keys outside the registry are allowed so that documents written
// by newer templates are not rejected.
func (t *Template) Schema() map[string]any {
	props := make(map[string]any, len(t.Sections))
	for _, d := range t.Sections {
		props[d.Key] = shapeSchema(d)
	}
	return map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"title":                t.Name + " page",
		"type":                 "object",
		"properties":           props,
		"additionalProperties": true,
	}
}

func stringProps(names ...string) map[string]any {
	props := make(map[string]any, len(names))
	for _, n := range names {
		props[n] = map[string]any{"type": "string"}
	}
	return props
}

func shapeSchema(d Descriptor) map[string]any {
	switch d.Shape {
	case ShapeSlideArray:
		return map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":       "object",
				"properties": stringProps("title", "subtitle", "buttonText", "image", "link"),
			},
		}
	case ShapeSingleBanner:
		return map[string]any{
			"type":       "object",
			"properties": stringProps("title", "subtitle", "buttonText", "image", "link"),
		}
	case ShapeBadgeArray:
		return map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":       "object",
				"properties": stringProps("icon", "text"),
			},
		}
	case ShapeTextBlock:
		return map[string]any{
			"type":       "object",
			"properties": stringProps("title", "body"),
		}
	case ShapeProductSelection:
		ids := map[string]any{
			"type":        "array",
			"uniqueItems": true,
			"items":       map[string]any{"type": []string{"string", "integer"}},
		}
		if d.Limit > 0 {
			ids["maxItems"] = d.Limit
		}
		return map[string]any{
			"oneOf": []any{
				map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title": map[string]any{"type": "string"},
						"ids":   ids,
					},
				},
				ids,
			},
		}
	default:
		return map[string]any{}
	}
}

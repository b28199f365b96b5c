package section

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplate_DecodeSubstitutesDefaults(t *testing.T) {
	tmpl := Home()

	cfg, err := tmpl.Decode([]byte(`{"promoBanner1":{"title":"Sun care -20%"}}`))
	require.NoError(t, err)

	assert.Equal(t, tmpl.Keys(), cfg.Keys())

	banner, ok := cfg.Get("promoBanner1")
	require.True(t, ok)
	assert.Equal(t, Banner{Title: "Sun care -20%"}, banner)

	hero, ok := cfg.Get("hero")
	require.True(t, ok)
	assert.Len(t, hero.(Slides), 1)
}

func TestTemplate_DecodeEmptyDocument(t *testing.T) {
	cfg, err := Offers().Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, Offers().Keys(), cfg.Keys())
}

func TestTemplate_DecodeRejectsNonObject(t *testing.T) {
	_, err := Home().Decode([]byte(`[1,2,3]`))
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestTemplate_DecodeKeepsUnknownSections(t *testing.T) {
	doc := `{"zeta":{"a":1},"alpha":[true],"hero":[{"title":"A"}]}`

	cfg, err := Home().Decode([]byte(doc))
	require.NoError(t, err)

	keys := cfg.Keys()
	assert.Equal(t, []string{"alpha", "zeta"}, keys[len(keys)-2:])

	zeta, _ := cfg.Get("zeta")
	assert.Equal(t, ShapeUnknown, zeta.Shape())

	out, err := json.Marshal(cfg)
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, map[string]any{"a": float64(1)}, back["zeta"])
}

func TestSelection_AcceptsNumericIDs(t *testing.T) {
	cfg, err := Home().Decode([]byte(`{"featuredProducts":{"title":"Top","ids":[7,"12",3]}}`))
	require.NoError(t, err)

	sel, _ := cfg.Get("featuredProducts")
	assert.Equal(t, Selection{Title: "Top", IDs: []string{"7", "12", "3"}}, sel)
}

func TestSelection_AcceptsBareArray(t *testing.T) {
	cfg, err := Home().Decode([]byte(`{"bestSellers":[1,2]}`))
	require.NoError(t, err)

	sel, _ := cfg.Get("bestSellers")
	assert.Equal(t, []string{"1", "2"}, sel.(Selection).IDs)
}

func TestConfig_CloneIsIndependent(t *testing.T) {
	cfg := Home().Defaults()
	clone := cfg.Clone()

	hero, _ := clone.Get("hero")
	slides := hero.(Slides)
	slides[0].Title = "changed"

	orig, _ := cfg.Get("hero")
	assert.NotEqual(t, "changed", orig.(Slides)[0].Title)
	assert.True(t, cfg.Equal(Home().Defaults()))
}

func TestShape_RoundTrip(t *testing.T) {
	for shape := range shapeNames {
		assert.Equal(t, shape, ParseShape(shape.String()))
	}
	assert.Equal(t, ShapeUnknown, ParseShape("carousel-3d"))
}

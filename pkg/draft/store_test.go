package draft

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/pagestudio/pkg/section"
)

func loaded(t *testing.T) (*Store, *section.Config) {
	t.Helper()
	tmpl := section.Home()
	cfg, err := tmpl.Decode([]byte(`{"hero":[{"title":"Spring"},{"title":"Summer"}],"promoBanner1":{"title":"Vitamins"}}`))
	require.NoError(t, err)

	s := New(tmpl)
	s.Load(cfg)
	return s, cfg
}

func TestStore_LoadIsIdempotent(t *testing.T) {
	s, cfg := loaded(t)
	first := s.Draft()
	assert.False(t, s.IsDirty())

	s.Load(cfg)
	if diff := cmp.Diff(first, s.Draft()); diff != "" {
		t.Errorf("draft changed after second load (-first +second):\n%s", diff)
	}
	assert.False(t, s.IsDirty())
}

func TestStore_LoadCopiesInput(t *testing.T) {
	s, cfg := loaded(t)

	cfg.Set("promoBanner1", section.Banner{Title: "mutated outside"})
	assert.Equal(t, section.Banner{Title: "Vitamins"}, s.Section("promoBanner1"))
}

func TestStore_DirtyIsMonotonic(t *testing.T) {
	s, _ := loaded(t)

	require.NoError(t, s.UpdateSection("promoBanner1", section.Banner{Title: "A"}))
	assert.True(t, s.IsDirty())

	// Writing the original value back does not clear the flag.
	require.NoError(t, s.UpdateSection("promoBanner1", section.Banner{Title: "Vitamins"}))
	assert.True(t, s.IsDirty())
	assert.False(t, s.Modified("promoBanner1"))

	_ = s.UpdateSection("nope", section.Banner{})
	assert.True(t, s.IsDirty())
}

func TestStore_UpdateReplacesWholePayload(t *testing.T) {
	s, _ := loaded(t)

	a := section.Banner{Title: "A", Subtitle: "only in A", Link: "/a"}
	b := section.Banner{Title: "B"}
	require.NoError(t, s.UpdateSection("promoBanner1", a))
	require.NoError(t, s.UpdateSection("promoBanner1", b))

	assert.Equal(t, b, s.Section("promoBanner1"))
}

func TestStore_UpdateRejectsUnknownKeyAndShape(t *testing.T) {
	s, _ := loaded(t)
	before := s.Draft()

	assert.ErrorIs(t, s.UpdateSection("footer", section.Banner{}), ErrUnknownSection)
	assert.ErrorIs(t, s.UpdateSection("hero", section.Banner{}), ErrShapeMismatch)
	assert.ErrorIs(t, s.UpdateSection("hero", nil), ErrShapeMismatch)

	assert.False(t, s.IsDirty())
	assert.True(t, before.Equal(s.Draft()))
}

func TestStore_SectionFallsBackToDefault(t *testing.T) {
	s := New(section.Home())
	s.Load(section.NewConfig())

	got := s.Section("trustBadges")
	def, _ := section.Home().Lookup("trustBadges")
	assert.Equal(t, def.Fallback(), got)
	assert.Nil(t, s.Section("missing"))
}

func TestStore_SectionReturnsCopy(t *testing.T) {
	s, _ := loaded(t)

	slides := s.Section("hero").(section.Slides)
	slides[0].Title = "edited in place"

	assert.Equal(t, "Spring", s.Section("hero").(section.Slides)[0].Title)
	assert.False(t, s.IsDirty())
}

func TestStore_Reconcile(t *testing.T) {
	s, _ := loaded(t)
	require.NoError(t, s.UpdateSection("promoBanner1", section.Banner{Title: "Saved"}))

	snap, rev := s.Snapshot()
	assert.True(t, s.Reconcile(rev, snap))
	assert.False(t, s.IsDirty())

	require.NoError(t, s.UpdateSection("promoBanner1", section.Banner{Title: "First"}))
	snap, rev = s.Snapshot()
	require.NoError(t, s.UpdateSection("promoBanner1", section.Banner{Title: "During save"}))

	assert.False(t, s.Reconcile(rev, snap))
	assert.True(t, s.IsDirty())
	assert.Equal(t, section.Banner{Title: "During save"}, s.Section("promoBanner1"))
	assert.True(t, s.Modified("promoBanner1"))
}

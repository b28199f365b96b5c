package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/pagestudio/pkg/draft"
	"github.com/gabrielmiguelok/pagestudio/pkg/section"
	"github.com/gabrielmiguelok/pagestudio/pkg/store"
)

// flakyRepository fails Put while failPut is set and can run a hook before
// answering, to simulate edits during an in-flight save.
type flakyRepository struct {
	*store.MemoryRepository
	failPut   error
	failGet   error
	beforePut func()
	puts      int
}

func (r *flakyRepository) Get(ctx context.Context, page string) ([]byte, error) {
	if r.failGet != nil {
		return nil, r.failGet
	}
	return r.MemoryRepository.Get(ctx, page)
}

func (r *flakyRepository) Put(ctx context.Context, page string, doc []byte) ([]byte, error) {
	r.puts++
	if r.beforePut != nil {
		r.beforePut()
	}
	if r.failPut != nil {
		return nil, r.failPut
	}
	return r.MemoryRepository.Put(ctx, page, doc)
}

func newRepo() *flakyRepository {
	return &flakyRepository{MemoryRepository: store.NewMemoryRepository()}
}

func TestLoad_MissingPageUsesDefaults(t *testing.T) {
	g := New(section.Home(), newRepo(), nil)

	cfg, err := g.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.Equal(section.Home().Defaults()))
}

func TestLoad_FailureIsNotMaskedByDefaults(t *testing.T) {
	repo := newRepo()
	repo.failGet = errors.New("connection refused")
	g := New(section.Home(), repo, nil)

	cfg, err := g.Load(context.Background())
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrLoad)

	repo.failGet = nil
	_, err = repo.MemoryRepository.Put(context.Background(), "home", []byte(`[1,2]`))
	require.NoError(t, err)
	_, err = g.Load(context.Background())
	assert.ErrorIs(t, err, section.ErrInvalidDocument)
}

func TestSave_FailurePreservesDraftThenRetrySucceeds(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	g := New(section.Home(), repo, nil)

	initial, err := section.Home().Decode([]byte(`{"hero":[{"title":"Old"}]}`))
	require.NoError(t, err)
	st := draft.New(section.Home())
	st.Load(initial)

	newSlides := section.Slides{{Title: "New"}, {Title: "Second"}}
	require.NoError(t, st.UpdateSection("hero", newSlides))
	require.True(t, st.IsDirty())
	before := st.Draft()

	repo.failPut = errors.New("503 service unavailable")
	err = g.Save(ctx, st)
	assert.ErrorIs(t, err, ErrSave)
	assert.True(t, st.IsDirty())
	assert.Empty(t, cmp.Diff(before, st.Draft()))
	assert.Equal(t, newSlides, st.Section("hero"))

	repo.failPut = nil
	require.NoError(t, g.Save(ctx, st))
	assert.False(t, st.IsDirty())
	assert.False(t, st.Modified("hero"))

	loaded, err := g.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(st.Draft(), loaded))
}

func TestSave_EditDuringSaveKeepsDirty(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	g := New(section.Home(), repo, nil)
	st := draft.New(section.Home())

	require.NoError(t, st.UpdateSection("about", section.TextBlock{Title: "v1"}))
	repo.beforePut = func() {
		require.NoError(t, st.UpdateSection("about", section.TextBlock{Title: "v2"}))
	}

	require.NoError(t, g.Save(ctx, st))
	assert.True(t, st.IsDirty(), "the edit made while saving is not yet stored")
	assert.Equal(t, section.TextBlock{Title: "v2"}, st.Section("about"))
	assert.True(t, st.Modified("about"))
	assert.False(t, st.Modified("hero"))
}

func TestSave_WholeDocumentReplaceKeepsUnknownSections(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	_, err := repo.MemoryRepository.Put(ctx, "home", []byte(`{"countdown":{"ends":"2026-12-31"},"about":{"title":"A","body":""}}`))
	require.NoError(t, err)

	g := New(section.Home(), repo, nil)
	cfg, err := g.Load(ctx)
	require.NoError(t, err)
	st := draft.New(section.Home())
	st.Load(cfg)
	require.NoError(t, st.UpdateSection("about", section.TextBlock{Title: "B"}))
	require.NoError(t, g.Save(ctx, st))

	doc, err := repo.MemoryRepository.Get(ctx, "home")
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"countdown":{"ends":"2026-12-31"}`)
	assert.Contains(t, string(doc), `"title":"B"`)
	assert.Contains(t, string(doc), `"hero"`, "every registry key is written")
}

package store

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/pagestudio/pkg/catalog"
	"github.com/gabrielmiguelok/pagestudio/pkg/retry"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "studio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.Get(ctx, "home")
	assert.ErrorIs(t, err, ErrNotFound)

	doc := []byte(`{"about":{"title":"A","body":"B"}}`)
	stored, err := repo.Put(ctx, "home", doc)
	require.NoError(t, err)
	assert.JSONEq(t, string(doc), string(stored))

	doc[0] = 'x'
	got, err := repo.Get(ctx, "home")
	require.NoError(t, err)
	assert.JSONEq(t, `{"about":{"title":"A","body":"B"}}`, string(got))
}

func TestSQLRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLRepository(openTestDB(t))

	_, err := repo.Get(ctx, "offers")
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := repo.Put(ctx, "offers", []byte(`{"terms":{"title":"T","body":"v1"}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"terms":{"title":"T","body":"v1"}}`, string(first))

	// Whole-document replace: the second write wins.
	_, err = repo.Put(ctx, "offers", []byte(`{"perks":[]}`))
	require.NoError(t, err)
	got, err := repo.Get(ctx, "offers")
	require.NoError(t, err)
	assert.JSONEq(t, `{"perks":[]}`, string(got))
}

func TestSQLCatalog_ReplaceAndList(t *testing.T) {
	ctx := context.Background()
	cat := NewSQLCatalog(openTestDB(t))

	items := []catalog.Item{
		{ID: "2", Name: "Serum", Price: 12.5, Brand: "Avene"},
		{ID: "1", Name: "Cream", Category: "face"},
	}
	require.NoError(t, cat.Replace(ctx, catalog.KindProducts, items))
	require.NoError(t, cat.Replace(ctx, catalog.KindPacks, []catalog.Item{
		{ID: "p1", Name: "Summer", Products: []string{"1", "2"}, Packs: []string{"p2"}},
	}))

	got, err := cat.List(ctx, catalog.KindProducts)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID, "stored order is kept")
	assert.Equal(t, 12.5, got[0].Price)
	assert.Equal(t, "face", got[1].Category)
	assert.Empty(t, got[1].Products)

	packs, err := cat.List(ctx, catalog.KindPacks)
	require.NoError(t, err)
	require.Len(t, packs, 1)
	assert.Equal(t, []string{"1", "2"}, packs[0].Products)
	assert.Equal(t, []string{"p2"}, packs[0].Packs)

	require.NoError(t, cat.Replace(ctx, catalog.KindProducts, nil))
	got, err = cat.List(ctx, catalog.KindProducts)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: DialectPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &DB{dialect: DialectSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func fastRetry() *retry.Config {
	c := retry.DefaultConfig()
	c.InitialDelay = time.Millisecond
	c.MaxDelay = 2 * time.Millisecond
	return c
}

func TestHTTPRepository(t *testing.T) {
	var fails atomic.Int32
	fails.Store(2)
	var stored []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/pages/missing":
			http.NotFound(w, r)
		case r.URL.Path == "/api/pages/bad":
			http.Error(w, "invalid document", http.StatusUnprocessableEntity)
		case r.Method == http.MethodPut:
			if fails.Add(-1) >= 0 {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
			stored, _ = io.ReadAll(r.Body)
			w.Write(stored)
		default:
			w.Write(stored)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	repo := NewHTTPRepository(srv.URL, WithRetry(fastRetry()))

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Put(ctx, "bad", []byte(`{}`))
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnprocessableEntity, se.Status)
	assert.Equal(t, "invalid document", se.Body)

	got, err := repo.Put(ctx, "home", []byte(`{"about":{"title":"x","body":""}}`))
	require.NoError(t, err, "5xx responses are retried")
	assert.JSONEq(t, `{"about":{"title":"x","body":""}}`, string(got))

	got, err = repo.Get(ctx, "home")
	require.NoError(t, err)
	assert.JSONEq(t, `{"about":{"title":"x","body":""}}`, string(got))
}

func TestHTTPRepository_BreakerFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	cb := retry.NewCircuitBreaker(&retry.BreakerConfig{MaxErrors: 2, ResetTimeout: time.Minute, SuccessThreshold: 1})
	repo := NewHTTPRepository(srv.URL, WithRetry(fastRetry()), WithBreaker(cb))

	_, err := repo.Get(context.Background(), "home")
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load(), "the open circuit stops the retries")

	_, err = repo.Get(context.Background(), "home")
	assert.ErrorIs(t, err, retry.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/catalog/products", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":"1","name":"Cream","price":3}]`)
	}))
	defer srv.Close()

	items, err := NewHTTPCatalog(srv.URL).List(context.Background(), catalog.KindProducts)
	require.NoError(t, err)
	assert.Equal(t, []catalog.Item{{ID: "1", Name: "Cream", Price: 3}}, items)
}

const seedYAML = `
catalog:
  products:
    - id: "1"
      name: Cream
      price: 9.9
    - id: "2"
      name: Serum
  packs:
    - id: p1
      name: Duo
      products: ["1", "2"]
pages:
  home:
    about:
      title: About
      body: Since 1990
`

func TestSeed_Apply(t *testing.T) {
	ctx := context.Background()
	seed, err := ParseSeed([]byte(seedYAML))
	require.NoError(t, err)

	db := openTestDB(t)
	cat := NewSQLCatalog(db)
	repo := NewSQLRepository(db)
	require.NoError(t, seed.Apply(ctx, cat, repo))

	products, err := cat.List(ctx, catalog.KindProducts)
	require.NoError(t, err)
	assert.Len(t, products, 2)

	doc, err := repo.Get(ctx, "home")
	require.NoError(t, err)
	assert.JSONEq(t, `{"about":{"title":"About","body":"Since 1990"}}`, string(doc))

	mem, err := seed.MemoryCatalog().List(ctx, catalog.KindPacks)
	require.NoError(t, err)
	require.Len(t, mem, 1)
	assert.Equal(t, []string{"1", "2"}, mem[0].Products)
}

func TestParseSeed_UnknownKind(t *testing.T) {
	_, err := ParseSeed([]byte("catalog:\n  widgets: []\n"))
	assert.ErrorIs(t, err, catalog.ErrUnknownKind)
}

// Package catalog provides read-only access to the storefront catalog
// (products, packs, categories, brands) used by the studio pickers.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Catalog errors.
var (
	ErrNotFound    = errors.New("catalog item not found")
	ErrPackCycle   = errors.New("pack includes itself")
	ErrUnknownKind = errors.New("unknown catalog kind")
)

// Kind names one catalog list.
type Kind string

const (
	KindProducts   Kind = "products"
	KindPacks      Kind = "packs"
	KindCategories Kind = "categories"
	KindBrands     Kind = "brands"
)

// Kinds lists every catalog kind.
var Kinds = []Kind{KindProducts, KindPacks, KindCategories, KindBrands}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Item is one catalog record. Only packs use Products and Packs.
type Item struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	ImageURL string   `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty"`
	Price    float64  `json:"price,omitempty" yaml:"price,omitempty"`
	Brand    string   `json:"brand,omitempty" yaml:"brand,omitempty"`
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
	Products []string `json:"products,omitempty" yaml:"products,omitempty"`
	Packs    []string `json:"packs,omitempty" yaml:"packs,omitempty"`
}

// Source lists catalog items.
type Source interface {
	List(ctx context.Context, kind Kind) ([]Item, error)
}

// MemorySource serves a fixed set of items.
type MemorySource struct {
	items map[Kind][]Item
	mu    sync.RWMutex
}

// NewMemorySource creates a source over items.
func NewMemorySource(items map[Kind][]Item) *MemorySource {
	if items == nil {
		items = make(map[Kind][]Item)
	}
	return &MemorySource{items: items}
}

// List returns a copy of the items of kind.
func (m *MemorySource) List(ctx context.Context, kind Kind) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Item, len(m.items[kind]))
	copy(out, m.items[kind])
	return out, nil
}

// Put replaces the items of kind.
func (m *MemorySource) Put(kind Kind, items []Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[kind] = items
}

// Snapshot is an indexed, immutable copy of the catalog taken at mount time.
type Snapshot struct {
	items map[Kind][]Item
	index map[Kind]map[string]Item
}

// NewSnapshot indexes items.
func NewSnapshot(items map[Kind][]Item) *Snapshot {
	s := &Snapshot{
		items: make(map[Kind][]Item, len(items)),
		index: make(map[Kind]map[string]Item, len(items)),
	}
	for kind, list := range items {
		s.items[kind] = list
		idx := make(map[string]Item, len(list))
		for _, it := range list {
			idx[it.ID] = it
		}
		s.index[kind] = idx
	}
	return s
}

// Load fetches the given kinds concurrently and indexes them. Any failure
// fails the whole load.
func Load(ctx context.Context, src Source, kinds ...Kind) (*Snapshot, error) {
	if len(kinds) == 0 {
		kinds = Kinds
	}

	results := make([][]Item, len(kinds))
	g, ctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			items, err := src.List(ctx, kind)
			if err != nil {
				return fmt.Errorf("load %s: %w", kind, err)
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make(map[Kind][]Item, len(kinds))
	for i, kind := range kinds {
		items[kind] = results[i]
	}
	return NewSnapshot(items), nil
}

// Get looks up one item.
func (s *Snapshot) Get(kind Kind, id string) (Item, bool) {
	it, ok := s.index[kind][id]
	return it, ok
}

// List returns the items of kind in source order.
func (s *Snapshot) List(kind Kind) []Item {
	return s.items[kind]
}

// Search returns up to limit items whose name, brand or category contains
// query, case-insensitively. An empty query matches everything.
func (s *Snapshot) Search(kind Kind, query string, limit int) []Item {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Item, 0)
	for _, it := range s.items[kind] {
		if limit > 0 && len(out) >= limit {
			break
		}
		if q == "" ||
			strings.Contains(strings.ToLower(it.Name), q) ||
			strings.Contains(strings.ToLower(it.Brand), q) ||
			strings.Contains(strings.ToLower(it.Category), q) {
			out = append(out, it)
		}
	}
	return out
}

// Expand returns the product ids a pack contains, following nested packs.
// Ids appear once, in first-seen order. A pack reachable from itself yields
// ErrPackCycle.
func (s *Snapshot) Expand(packID string) ([]string, error) {
	var (
		out     []string
		seen    = make(map[string]bool)
		onStack = make(map[string]bool)
	)

	var walk func(id string) error
	walk = func(id string) error {
		pack, ok := s.Get(KindPacks, id)
		if !ok {
			return fmt.Errorf("%w: pack %q", ErrNotFound, id)
		}
		if onStack[id] {
			return fmt.Errorf("%w: %q", ErrPackCycle, id)
		}
		onStack[id] = true
		defer delete(onStack, id)

		for _, pid := range pack.Products {
			if !seen[pid] {
				seen[pid] = true
				out = append(out, pid)
			}
		}
		for _, nested := range pack.Packs {
			if err := walk(nested); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(packID); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

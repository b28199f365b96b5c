package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/gabrielmiguelok/pagestudio/pkg/catalog"
)

// Seed is the content of a seed file: catalog items per kind and optional
// initial page documents.
//
//	catalog:
//	  products:
//	    - id: "1"
//	      name: Sunscreen SPF50
//	pages:
//	  home:
//	    about: {title: About us, body: "..."}
type Seed struct {
	Catalog map[catalog.Kind][]catalog.Item `yaml:"catalog"`
	Pages   map[string]map[string]any       `yaml:"pages"`
}

// CatalogReplacer is implemented by catalog sources that can be rewritten.
type CatalogReplacer interface {
	Replace(ctx context.Context, kind catalog.Kind, items []catalog.Item) error
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes YAML seed content.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for kind := range s.Catalog {
		if _, err := catalog.ParseKind(string(kind)); err != nil {
			return nil, fmt.Errorf("parse seed: %w", err)
		}
	}
	return &s, nil
}

// Apply writes the catalog through cat and the pages through repo. Either may
// be nil to skip that half. Pages are written in name order.
func (s *Seed) Apply(ctx context.Context, cat CatalogReplacer, repo Repository) error {
	if cat != nil {
		for _, kind := range catalog.Kinds {
			items, ok := s.Catalog[kind]
			if !ok {
				continue
			}
			if err := cat.Replace(ctx, kind, items); err != nil {
				return fmt.Errorf("seed %s: %w", kind, err)
			}
		}
	}

	if repo != nil {
		names := make([]string, 0, len(s.Pages))
		for name := range s.Pages {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			doc, err := json.Marshal(s.Pages[name])
			if err != nil {
				return fmt.Errorf("seed page %q: %w", name, err)
			}
			if _, err := repo.Put(ctx, name, doc); err != nil {
				return fmt.Errorf("seed page %q: %w", name, err)
			}
		}
	}
	return nil
}

// MemoryCatalog builds an in-memory catalog source from the seed.
func (s *Seed) MemoryCatalog() *catalog.MemorySource {
	items := make(map[catalog.Kind][]catalog.Item, len(s.Catalog))
	for kind, list := range s.Catalog {
		items[kind] = list
	}
	return catalog.NewMemorySource(items)
}

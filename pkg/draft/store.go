// Package draft holds the editable copy of a page configuration for the
// duration of a studio session.
package draft

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/gabrielmiguelok/pagestudio/pkg/section"
)

// Store errors. Both indicate a bug in the caller, not a user mistake.
var (
	ErrUnknownSection = errors.New("unknown section")
	ErrShapeMismatch  = errors.New("section data does not match its shape")
)

// Store is the in-memory draft of one page. Updates replace whole section
// payloads; the store never merges.
//
// Values go in and out as structural copies, so nothing outside the store
// can alias the draft.
type Store struct {
	tmpl     *section.Template
	draft    *section.Config
	dirty    bool
	revision uint64

	// Content hash of each section as last loaded or saved.
	baseline map[string]uint64

	mu sync.RWMutex
}

// New creates a store holding the template defaults.
func New(tmpl *section.Template) *Store {
	s := &Store{tmpl: tmpl}
	s.load(tmpl.Defaults())
	return s
}

// Template returns the registry the store validates against.
func (s *Store) Template() *section.Template {
	return s.tmpl
}

// Load replaces the draft with a deep copy of cfg and clears the dirty flag.
// Registry keys absent from cfg receive their default payload.
func (s *Store) Load(cfg *section.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(cfg)
}

func (s *Store) load(cfg *section.Config) {
	next := section.NewConfig()
	if cfg == nil {
		cfg = section.NewConfig()
	}
	for _, d := range s.tmpl.Sections {
		if v, ok := cfg.Get(d.Key); ok && v != nil {
			next.Set(d.Key, section.Clone(v))
		} else {
			next.Set(d.Key, d.Fallback())
		}
	}
	for _, key := range cfg.Keys() {
		if _, ok := s.tmpl.Lookup(key); ok {
			continue
		}
		v, _ := cfg.Get(key)
		next.Set(key, section.Clone(v))
	}

	s.draft = next
	s.dirty = false
	s.baseline = make(map[string]uint64, next.Len())
	for _, key := range next.Keys() {
		v, _ := next.Get(key)
		s.baseline[key] = hashData(v)
	}
}

// UpdateSection replaces the payload stored under key and marks the draft
// dirty. Keys outside the registry and payloads of the wrong shape leave the
// draft untouched.
func (s *Store) UpdateSection(key string, data section.Data) error {
	desc, ok := s.tmpl.Lookup(key)
	if !ok {
		return ErrUnknownSection
	}
	if data == nil || data.Shape() != desc.Shape {
		return ErrShapeMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.draft.Set(key, section.Clone(data))
	s.dirty = true
	s.revision++
	return nil
}

// Section returns a copy of the draft payload for key. A registry key with no
// value yields its default; any other missing key yields nil.
func (s *Store) Section(key string) section.Data {
	s.mu.RLock()
	v, ok := s.draft.Get(key)
	s.mu.RUnlock()

	if ok && v != nil {
		return section.Clone(v)
	}
	if desc, ok := s.tmpl.Lookup(key); ok {
		return desc.Fallback()
	}
	return nil
}

// Draft returns a deep copy of the whole draft.
func (s *Store) Draft() *section.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft.Clone()
}

// Snapshot returns a copy of the draft together with the revision it
// corresponds to.
func (s *Store) Snapshot() (*section.Config, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft.Clone(), s.revision
}

// IsDirty reports whether an update happened since the last load or save.
func (s *Store) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Revision counts applied updates over the life of the store.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Modified reports whether the section content differs from what was last
// loaded or saved. Unlike IsDirty, editing a value back to its original
// clears it.
func (s *Store) Modified(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.draft.Get(key)
	if !ok {
		return false
	}
	return s.baseline[key] != hashData(v)
}

// Reconcile installs saved as the new draft if no update was applied since
// revision was taken. It returns false, leaving the draft dirty, when edits
// arrived while the save was in flight.
func (s *Store) Reconcile(revision uint64, saved *section.Config) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.revision != revision {
		// The server copy is still the new baseline for Modified.
		for _, key := range saved.Keys() {
			v, _ := saved.Get(key)
			s.baseline[key] = hashData(v)
		}
		return false
	}
	s.load(saved)
	return true
}

// hashData computes an FNV-1a hash of the JSON encoding of d.
func hashData(d section.Data) uint64 {
	h := fnv.New64a()
	data, err := json.Marshal(d)
	if err != nil {
		h.Write([]byte{0})
		return h.Sum64()
	}
	h.Write(data)
	return h.Sum64()
}

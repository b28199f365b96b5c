// Package store persists page documents and serves the catalog from SQL
// databases (SQLite, PostgreSQL), a remote HTTP backend, or memory.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when a page has never been saved.
var ErrNotFound = errors.New("page not found")

// Repository stores whole page documents. Put replaces the stored document
// and returns it as stored. There is no version check: the last writer wins.
type Repository interface {
	Get(ctx context.Context, page string) ([]byte, error)
	Put(ctx context.Context, page string, doc []byte) ([]byte, error)
}

// StatusError reports an unexpected HTTP status from a remote backend.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}

// MemoryRepository keeps documents in a map. It backs tests and the
// "memory" storage driver.
type MemoryRepository struct {
	docs map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string][]byte)}
}

// Get returns a copy of the stored document.
func (m *MemoryRepository) Get(ctx context.Context, page string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[page]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

// Put stores a copy of doc.
func (m *MemoryRepository) Put(ctx context.Context, page string, doc []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[page] = append([]byte(nil), doc...)
	return append([]byte(nil), doc...), nil
}

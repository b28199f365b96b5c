// Package gateway loads and saves whole page documents. There is no partial
// patching and no version check: a save replaces the stored document and the
// last writer wins.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gabrielmiguelok/pagestudio/pkg/draft"
	"github.com/gabrielmiguelok/pagestudio/pkg/logging"
	"github.com/gabrielmiguelok/pagestudio/pkg/section"
	"github.com/gabrielmiguelok/pagestudio/pkg/store"
)

// Gateway errors.
var (
	ErrLoad = errors.New("load page")
	ErrSave = errors.New("save page")
)

// Gateway connects one page template to a repository.
type Gateway struct {
	tmpl   *section.Template
	repo   store.Repository
	logger logging.Logger
}

// New creates a gateway for tmpl.
func New(tmpl *section.Template, repo store.Repository, logger logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Gateway{
		tmpl:   tmpl,
		repo:   repo,
		logger: logger.With(logging.String("page", tmpl.Name)),
	}
}

// Template returns the page template.
func (g *Gateway) Template() *section.Template {
	return g.tmpl
}

// Load fetches and decodes the page. A page that was never saved yields the
// registry defaults; every other failure is returned wrapped in ErrLoad so
// the caller never edits an empty stand-in for real content.
func (g *Gateway) Load(ctx context.Context) (*section.Config, error) {
	start := time.Now()

	doc, err := g.repo.Get(ctx, g.tmpl.Name)
	if errors.Is(err, store.ErrNotFound) {
		g.logger.Info("page not saved yet, using defaults")
		return g.tmpl.Defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrLoad, g.tmpl.Name, err)
	}

	cfg, err := g.tmpl.Decode(doc)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrLoad, g.tmpl.Name, err)
	}
	g.logger.Debug("page loaded",
		logging.Int("sections", cfg.Len()),
		logging.Duration("duration", time.Since(start)),
	)
	return cfg, nil
}

// Save replaces the stored page with the draft of st. On success the stored
// copy is reconciled into st, which clears the dirty flag unless edits
// arrived while the request was in flight. On failure st is left untouched.
func (g *Gateway) Save(ctx context.Context, st *draft.Store) error {
	cfg, revision := st.Snapshot()

	saved, err := g.Put(ctx, cfg)
	if err != nil {
		return err
	}

	if !st.Reconcile(revision, saved) {
		g.logger.Info("page saved, newer edits kept in draft", logging.Int64("revision", int64(revision)))
		return nil
	}
	g.logger.Info("page saved", logging.Int64("revision", int64(revision)))
	return nil
}

// Put writes cfg and decodes the document the repository returns.
func (g *Gateway) Put(ctx context.Context, cfg *section.Config) (*section.Config, error) {
	doc, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w %q: encode: %w", ErrSave, g.tmpl.Name, err)
	}

	stored, err := g.repo.Put(ctx, g.tmpl.Name, doc)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrSave, g.tmpl.Name, err)
	}

	saved, err := g.tmpl.Decode(stored)
	if err != nil {
		return nil, fmt.Errorf("%w %q: decode response: %w", ErrSave, g.tmpl.Name, err)
	}
	return saved, nil
}

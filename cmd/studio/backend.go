package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabrielmiguelok/pagestudio/internal/config"
	"github.com/gabrielmiguelok/pagestudio/pkg/catalog"
	"github.com/gabrielmiguelok/pagestudio/pkg/logging"
	"github.com/gabrielmiguelok/pagestudio/pkg/pubsub"
	"github.com/gabrielmiguelok/pagestudio/pkg/retry"
	"github.com/gabrielmiguelok/pagestudio/pkg/store"
)

// backends holds the opened page repository, the catalog source and the
// hub carrying page events between studios.
type backends struct {
	repo    store.Repository
	catalog catalog.Source
	events  *pubsub.Hub
	// replacer is set when the catalog can be rewritten by a seed.
	replacer store.CatalogReplacer
	closers  []func() error
}

func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// openBackends opens storage and catalog as configured. SQL databases are
// shared when both use the same driver and DSN.
func openBackends(ctx context.Context, cfg *config.Config, logger logging.Logger) (*backends, error) {
	b := &backends{events: pubsub.NewHub()}
	b.closers = append(b.closers, b.events.Close)
	dbs := make(map[string]*store.DB)

	openDB := func(driver, dsn string) (*store.DB, error) {
		key := driver + "|" + dsn
		if db, ok := dbs[key]; ok {
			return db, nil
		}
		db, err := store.Open(ctx, driver, dsn)
		if err != nil {
			return nil, err
		}
		dbs[key] = db
		b.closers = append(b.closers, db.Close)
		return db, nil
	}

	httpOpts := func(name string) []store.HTTPOption {
		rc := retry.DefaultConfig()
		rc.OnRetry = func(attempt int, err error, delay time.Duration) {
			logger.Warn("backend call failed, retrying",
				logging.String("backend", name),
				logging.Int("attempt", attempt),
				logging.Duration("delay", delay),
				logging.Err(err),
			)
		}
		return []store.HTTPOption{store.WithRetry(rc)}
	}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		b.repo = store.NewMemoryRepository()
	case config.DriverSQLite, config.DriverPostgres:
		db, err := openDB(cfg.Storage.Driver, cfg.Storage.DSN)
		if err != nil {
			return nil, errors.Join(err, b.Close())
		}
		b.repo = store.NewSQLRepository(db)
	case config.DriverHTTP:
		b.repo = store.NewHTTPRepository(cfg.Storage.BaseURL, httpOpts("storage")...)
	default:
		return nil, errors.Join(fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver), b.Close())
	}

	cat := cfg.CatalogBackend()
	switch cat.Driver {
	case config.DriverMemory:
		src := catalog.NewMemorySource(nil)
		b.catalog = src
		b.replacer = memoryReplacer{src}
	case config.DriverSQLite, config.DriverPostgres:
		db, err := openDB(cat.Driver, cat.DSN)
		if err != nil {
			return nil, errors.Join(err, b.Close())
		}
		sc := store.NewSQLCatalog(db)
		b.catalog, b.replacer = sc, sc
	case config.DriverHTTP:
		b.catalog = store.NewHTTPCatalog(cat.BaseURL, httpOpts("catalog")...)
	default:
		return nil, errors.Join(fmt.Errorf("unsupported catalog driver %q", cat.Driver), b.Close())
	}

	logger.Info("backends opened",
		logging.String("storage", cfg.Storage.Driver),
		logging.String("catalog", cat.Driver),
	)
	return b, nil
}

// applySeed loads the seed file into the backends. Catalogs served over HTTP
// are read-only and are skipped.
func applySeed(ctx context.Context, b *backends, path string, logger logging.Logger) error {
	seed, err := store.LoadSeed(path)
	if err != nil {
		return err
	}
	if b.replacer == nil && len(seed.Catalog) > 0 {
		logger.Warn("catalog backend is read-only, seed catalog ignored")
	}
	if err := seed.Apply(ctx, b.replacer, b.repo); err != nil {
		return err
	}
	logger.Info("seed applied",
		logging.String("file", path),
		logging.Int("pages", len(seed.Pages)),
		logging.Int("kinds", len(seed.Catalog)),
	)
	return nil
}

type memoryReplacer struct {
	src *catalog.MemorySource
}

func (m memoryReplacer) Replace(ctx context.Context, kind catalog.Kind, items []catalog.Item) error {
	m.src.Put(kind, items)
	return nil
}

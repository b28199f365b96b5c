package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gabrielmiguelok/pagestudio/pkg/catalog"

	// PostgreSQL driver
	_ "github.com/lib/pq"
	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder syntax and connection setup.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// ErrUnsupportedDriver is returned by Open for drivers other than sqlite and
// postgres.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

const schema = `
CREATE TABLE IF NOT EXISTS pages (
	name       TEXT PRIMARY KEY,
	document   TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS catalog_items (
	kind      TEXT NOT NULL,
	id        TEXT NOT NULL,
	position  INTEGER NOT NULL,
	name      TEXT NOT NULL,
	image_url TEXT NOT NULL DEFAULT '',
	price     DOUBLE PRECISION NOT NULL DEFAULT 0,
	brand     TEXT NOT NULL DEFAULT '',
	category  TEXT NOT NULL DEFAULT '',
	products  TEXT NOT NULL DEFAULT '[]',
	packs     TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (kind, id)
);`

// DB wraps a database handle with its dialect.
type DB struct {
	*sql.DB
	dialect Dialect
}

// Open connects to driver ("sqlite" or "postgres") and ensures the schema.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	var dialect Dialect
	switch driver {
	case "sqlite":
		dialect = DialectSQLite
		if !strings.Contains(dsn, "_pragma") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	case "postgres":
		dialect = DialectPostgres
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if dialect == DialectSQLite {
		// Embedded database: a single writer avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	db := &DB{DB: sqlDB, dialect: dialect}
	if err := db.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (db *DB) rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLRepository stores page documents in the pages table.
type SQLRepository struct {
	db *DB
}

// NewSQLRepository creates a repository over db.
func NewSQLRepository(db *DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Get returns the stored document or ErrNotFound.
func (r *SQLRepository) Get(ctx context.Context, page string) ([]byte, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, r.db.rebind(`SELECT document FROM pages WHERE name = ?`), page).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get page %q: %w", page, err)
	}
	return []byte(doc), nil
}

// Put upserts the document and reads it back.
func (r *SQLRepository) Put(ctx context.Context, page string, doc []byte) ([]byte, error) {
	const upsert = `INSERT INTO pages (name, document, updated_at) VALUES (?, ?, ?)
ON CONFLICT (name) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, r.db.rebind(upsert), page, string(doc), time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("put page %q: %w", page, err)
	}
	return r.Get(ctx, page)
}

// SQLCatalog serves the catalog from the catalog_items table.
type SQLCatalog struct {
	db *DB
}

// NewSQLCatalog creates a catalog source over db.
func NewSQLCatalog(db *DB) *SQLCatalog {
	return &SQLCatalog{db: db}
}

// List returns the items of kind in their stored order.
func (c *SQLCatalog) List(ctx context.Context, kind catalog.Kind) ([]catalog.Item, error) {
	const q = `SELECT id, name, image_url, price, brand, category, products, packs
FROM catalog_items WHERE kind = ? ORDER BY position, id`

	rows, err := c.db.QueryContext(ctx, c.db.rebind(q), string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	items := make([]catalog.Item, 0)
	for rows.Next() {
		var (
			it              catalog.Item
			products, packs string
		)
		if err := rows.Scan(&it.ID, &it.Name, &it.ImageURL, &it.Price, &it.Brand, &it.Category, &products, &packs); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		if err := json.Unmarshal([]byte(products), &it.Products); err != nil {
			return nil, fmt.Errorf("decode products of %s %q: %w", kind, it.ID, err)
		}
		if err := json.Unmarshal([]byte(packs), &it.Packs); err != nil {
			return nil, fmt.Errorf("decode packs of %s %q: %w", kind, it.ID, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Replace swaps every item of kind for items, in one transaction.
func (c *SQLCatalog) Replace(ctx context.Context, kind catalog.Kind, items []catalog.Item) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, c.db.rebind(`DELETE FROM catalog_items WHERE kind = ?`), string(kind)); err != nil {
		return fmt.Errorf("clear %s: %w", kind, err)
	}

	const insert = `INSERT INTO catalog_items
(kind, id, position, name, image_url, price, brand, category, products, packs)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, c.db.rebind(insert))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, it := range items {
		products, err := json.Marshal(nonNil(it.Products))
		if err != nil {
			return err
		}
		packs, err := json.Marshal(nonNil(it.Packs))
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, string(kind), it.ID, i, it.Name, it.ImageURL, it.Price,
			it.Brand, it.Category, string(products), string(packs)); err != nil {
			return fmt.Errorf("insert %s %q: %w", kind, it.ID, err)
		}
	}
	return tx.Commit()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Package cartdb provides durable cart persistence backed by SQLite.
//
// The cart survives process restarts: every mutation is written before the
// mutating call returns, and the store rehydrates from here at construction.
package cartdb

import (
	"database/sql"
	_ "embed"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sonavia/sonavia/internal/domain/cart"
	"github.com/sonavia/sonavia/internal/domain/license"
)

//go:embed schema.sql
var schema string

// DB is a SQLite-backed cart store.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the cart database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open cart database")
	}

	// WAL keeps rehydration reads cheap while mutations are written through
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set pragmas")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to apply schema")
	}

	return &DB{db: db}, nil
}

// Save replaces the persisted cart with the given items atomically.
func (d *DB) Save(items []cart.Item) error {
	tx, err := d.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM cart_items"); err != nil {
		return errors.Wrap(err, "failed to clear cart table")
	}

	stmt, err := tx.Prepare(`
		INSERT INTO cart_items
		(catalog_item_id, item_type, license, unit_price, title, artist, artwork_url, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare insert")
	}
	defer stmt.Close()

	for _, it := range items {
		_, err := stmt.Exec(
			it.CatalogItemID, string(it.ItemType), string(it.License),
			it.UnitPrice, it.Title, it.Artist, it.ArtworkURL,
			it.AddedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return errors.Wrapf(err, "failed to insert cart item %s", it.CatalogItemID)
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit cart")
}

// Load returns the persisted cart items.
func (d *DB) Load() ([]cart.Item, error) {
	rows, err := d.db.Query(`
		SELECT catalog_item_id, item_type, license, unit_price, title, artist, artwork_url, added_at
		FROM cart_items ORDER BY added_at`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query cart items")
	}
	defer rows.Close()

	var items []cart.Item
	for rows.Next() {
		var it cart.Item
		var itemType, lt, addedAt string
		if err := rows.Scan(&it.CatalogItemID, &itemType, &lt, &it.UnitPrice,
			&it.Title, &it.Artist, &it.ArtworkURL, &addedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan cart item")
		}
		it.ItemType = cart.ItemType(itemType)
		it.License = license.Type(lt)
		if ts, err := time.Parse(time.RFC3339Nano, addedAt); err == nil {
			it.AddedAt = ts
		}
		items = append(items, it)
	}
	return items, errors.Wrap(rows.Err(), "failed to iterate cart items")
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

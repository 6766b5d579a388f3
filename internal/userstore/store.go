// Package userstore is the durable key/value-ish store over a small set
// of tables, with a write-through in-memory mirror (spec §4.1). It is the
// source of truth for subscriptions, nick mappings, and cross-service
// links.
package userstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/crawlbeem/beem/internal/shared"
)

// Row is a generic table row: column name -> value.
type Row map[string]any

// Store is the case-insensitive row store every component depends on.
// Reads touch only the in-memory mirror; writes serialize through the
// backing store first, then the mirror, so concurrent readers always see
// a consistent snapshot (spec §4.1 "Concurrency").
type Store interface {
	// Load creates any missing tables declared in Schema in the already
	// opened backing store, and reads every row into the in-memory mirror. Fails
	// with shared.ErrStoreInit on IO or schema error.
	Load(ctx context.Context) error

	// GetRow looks up a row by its case-insensitive key tuple. A miss
	// returns ok=false, not an error.
	GetRow(table string, keys []string) (row Row, ok bool)

	// Rows returns a snapshot of every row currently in table's mirror,
	// for the handful of lookups that need to scan by a non-key field
	// (e.g. resolving a linked Twitch handle back to its WT user).
	Rows(table string) []Row

	// AddRow writes a new row through to the backing store and, only on
	// success, inserts it into the mirror. Fails with shared.ErrDuplicate
	// if the primary key already exists.
	AddRow(ctx context.Context, table string, row Row) error

	// SetRowField updates a single field, backing store first, then the
	// mirror.
	SetRowField(ctx context.Context, table string, keys []string, field string, value any) error

	// Close closes the backing store.
	Close() error
}

func keyOf(keys []string) string {
	lowered := make([]string, len(keys))
	for i, k := range keys {
		lowered[i] = strings.ToLower(k)
	}
	return strings.Join(lowered, "\x00")
}

func tableSchema(table string) (TableSchema, error) {
	for _, t := range Schema {
		if t.Name == table {
			return t, nil
		}
	}
	return TableSchema{}, fmt.Errorf("%w: unknown table %q", shared.ErrStoreInit, table)
}

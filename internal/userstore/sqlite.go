package userstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/crawlbeem/beem/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store over a single SQLite file, mirroring the
// teacher's WAL-mode connection setup for a small embedded database.
type SQLiteStore struct {
	db *sql.DB

	mu     sync.RWMutex // guards mirror; writes also serialize through wmu
	wmu    sync.Mutex   // single-writer discipline, spec §4.1
	mirror map[string]map[string]Row
}

// NewSQLite opens (creating if needed) a SQLite-backed Store at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create database directory: %w", shared.ErrStoreInit, err)
		}
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", shared.ErrStoreInit, err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline extends to the driver too
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: ping database: %w", shared.ErrStoreInit, err)
	}

	return &SQLiteStore{
		db:     db,
		mirror: make(map[string]map[string]Row),
	}, nil
}

// Load creates any missing tables declared in Schema and reads every row
// into the in-memory mirror.
func (s *SQLiteStore) Load(ctx context.Context) error {
	for _, t := range Schema {
		if err := s.createTable(ctx, t); err != nil {
			return err
		}
		if err := s.loadTable(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) createTable(ctx context.Context, t TableSchema) error {
	cols := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		cols[i] = fmt.Sprintf("%s %s", f.Name, f.SQLType)
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.Name, strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%w: create table %s: %w", shared.ErrStoreInit, t.Name, err)
	}
	return nil
}

func (s *SQLiteStore) loadTable(ctx context.Context, t TableSchema) error {
	colNames := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		colNames[i] = f.Name
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(colNames, ", "), t.Name)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: scan %s: %w", shared.ErrStoreInit, t.Name, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("userstore: failed to close rows", "table", t.Name, "error", closeErr)
		}
	}()

	table := make(map[string]Row)
	for rows.Next() {
		scanTargets := make([]any, len(t.Fields))
		values := make([]any, len(t.Fields))
		for i := range scanTargets {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return fmt.Errorf("%w: scan %s row: %w", shared.ErrStoreInit, t.Name, err)
		}

		row := make(Row, len(t.Fields))
		for i, f := range t.Fields {
			row[f.Name] = values[i]
		}
		table[row["name_lower"].(string)] = row
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterate %s: %w", shared.ErrStoreInit, t.Name, err)
	}

	s.mu.Lock()
	s.mirror[t.Name] = table
	s.mu.Unlock()

	slog.Info("userstore: table loaded", "table", t.Name, "rows", len(table))
	return nil
}

// GetRow looks up a row case-insensitively in the mirror.
func (s *SQLiteStore) GetRow(table string, keys []string) (Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.mirror[table]
	if !ok {
		return nil, false
	}
	row, ok := t[keyOf(keys)]
	return row, ok
}

// Rows returns a snapshot of every row currently mirrored for table.
func (s *SQLiteStore) Rows(table string) []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.mirror[table]
	if !ok {
		return nil
	}
	out := make([]Row, 0, len(t))
	for _, row := range t {
		out = append(out, row)
	}
	return out
}

// AddRow writes row through to SQLite, then inserts it into the mirror.
// The mirror is left unchanged if the write fails.
func (s *SQLiteStore) AddRow(ctx context.Context, table string, row Row) error {
	t, err := tableSchema(table)
	if err != nil {
		return err
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	key := row["name_lower"].(string)
	if _, ok := s.GetRow(table, []string{key}); ok {
		return fmt.Errorf("%w: %s[%s]", shared.ErrDuplicate, table, key)
	}

	cols := make([]string, len(t.Fields))
	placeholders := make([]string, len(t.Fields))
	values := make([]any, len(t.Fields))
	for i, f := range t.Fields {
		cols[i] = f.Name
		placeholders[i] = "?"
		values[i] = row[f.Name]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
		return fmt.Errorf("%w: insert into %s: %w", shared.ErrWriteFailed, table, err)
	}

	s.mu.Lock()
	if s.mirror[table] == nil {
		s.mirror[table] = make(map[string]Row)
	}
	s.mirror[table][key] = row
	s.mu.Unlock()

	return nil
}

// SetRowField updates the backing store, then the mirror.
func (s *SQLiteStore) SetRowField(ctx context.Context, table string, keys []string, field string, value any) error {
	if _, err := tableSchema(table); err != nil {
		return err
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	key := keyOf(keys)
	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE name_lower = ?", table, field)
	if _, err := s.db.ExecContext(ctx, query, value, key); err != nil {
		return fmt.Errorf("%w: update %s.%s: %w", shared.ErrWriteFailed, table, field, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.mirror[table]; ok {
		if row, ok := t[key]; ok {
			row[field] = value
		}
	}
	return nil
}

// Close closes the backing database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close userstore database: %w", err)
	}
	return nil
}

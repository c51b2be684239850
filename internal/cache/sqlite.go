package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/socialcards/internal/cards"
)

// SQLite stores batches in a local SQLite database file, which survives
// across separate plan and capture processes on one machine.
type SQLite struct {
	db     *sqlx.DB
	table  string
	prefix string
}

// NewSQLite opens the database and creates the batch table when missing.
func NewSQLite(ctx context.Context, cfg SQLiteConfig, prefix string) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := checkTable(cfg.Table); err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	store := NewSQLiteWithDB(db, cfg.Table, prefix)
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	cache_key TEXT PRIMARY KEY,
	batch TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`, store.table)
	if _, err := db.ExecContext(ctx, query); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create %s table: %w", store.table, err)
	}
	return store, nil
}

// NewSQLiteWithDB wraps an open handle (primarily for testing). The table must
// already exist.
func NewSQLiteWithDB(db *sqlx.DB, table, prefix string) *SQLite {
	return &SQLite{db: db, table: tableOrDefault(table), prefix: prefix}
}

// Set upserts the batch under key.
func (s *SQLite) Set(ctx context.Context, key string, batch cards.JobBatch) error {
	data, err := encode(batch)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (cache_key, batch, updated_at) VALUES (?, ?, ?)
ON CONFLICT(cache_key) DO UPDATE SET batch = excluded.batch, updated_at = excluded.updated_at`, s.table)
	if _, err := s.db.ExecContext(ctx, query, prefixed(s.prefix, key), string(data), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("upsert job batch: %w", err)
	}
	return nil
}

// Get loads the batch under key, or an empty batch when no row exists.
func (s *SQLite) Get(ctx context.Context, key string) (cards.JobBatch, error) {
	query := fmt.Sprintf(`SELECT batch FROM %s WHERE cache_key = ?`, s.table)
	var data string
	if err := s.db.GetContext(ctx, &data, query, prefixed(s.prefix, key)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cards.JobBatch{}, nil
		}
		return nil, fmt.Errorf("select job batch: %w", err)
	}
	return decode([]byte(data))
}

// Close closes the database.
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

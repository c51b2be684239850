package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/socialcards/internal/cards"
)

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres stores batches as JSONB rows keyed by cache key.
type Postgres struct {
	pool   pgxPool
	table  string
	prefix string
}

// NewPostgres connects to Postgres and makes sure the batch table exists.
func NewPostgres(ctx context.Context, cfg PostgresConfig, prefix string) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewPostgresWithPool(pool, cfg.Table, prefix)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresWithPool constructs a cache from an existing pool (primarily for testing).
func NewPostgresWithPool(pool pgxPool, table, prefix string) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return &Postgres{pool: pool, table: tableOrDefault(table), prefix: prefix}, nil
}

// EnsureSchema creates the batch table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	cache_key TEXT PRIMARY KEY,
	batch JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, p.table)
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", p.table, err)
	}
	return nil
}

// Set upserts the batch under key.
func (p *Postgres) Set(ctx context.Context, key string, batch cards.JobBatch) error {
	data, err := encode(batch)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (cache_key, batch, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (cache_key) DO UPDATE SET batch = EXCLUDED.batch, updated_at = EXCLUDED.updated_at`, p.table)
	if _, err := p.pool.Exec(ctx, query, prefixed(p.prefix, key), data); err != nil {
		return fmt.Errorf("upsert job batch: %w", err)
	}
	return nil
}

// Get loads the batch under key, or an empty batch when no row exists.
func (p *Postgres) Get(ctx context.Context, key string) (cards.JobBatch, error) {
	query := fmt.Sprintf(`SELECT batch FROM %s WHERE cache_key = $1`, p.table)
	var data []byte
	if err := p.pool.QueryRow(ctx, query, prefixed(p.prefix, key)).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cards.JobBatch{}, nil
		}
		return nil, fmt.Errorf("select job batch: %w", err)
	}
	return decode(data)
}

// Close releases the underlying pool resources.
func (p *Postgres) Close() error {
	if p == nil || p.pool == nil {
		return nil
	}
	p.pool.Close()
	return nil
}

// Package cache provides durable JobCache backends that carry a planned batch
// from the planning invocation to a later capture invocation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/socialcards/internal/cards"
)

// Supported backend names.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendGCS      = "gcs"
)

const defaultTable = "card_batches"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config selects and configures a backend.
type Config struct {
	Backend   string         `mapstructure:"backend"`
	Dir       string         `mapstructure:"dir"`
	KeyPrefix string         `mapstructure:"key_prefix"`
	Postgres  PostgresConfig `mapstructure:"postgres"`
	SQLite    SQLiteConfig   `mapstructure:"sqlite"`
	Redis     RedisConfig    `mapstructure:"redis"`
	GCS       GCSConfig      `mapstructure:"gcs"`
}

// PostgresConfig controls the Postgres backend.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// SQLiteConfig controls the SQLite backend.
type SQLiteConfig struct {
	Path  string `mapstructure:"path"`
	Table string `mapstructure:"table"`
}

// RedisConfig controls the Redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GCSConfig controls the Cloud Storage backend.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// Validate checks the settings required by the selected backend.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendFile:
		if strings.TrimSpace(c.Dir) == "" {
			return fmt.Errorf("cache.dir is required for the file backend")
		}
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("cache.postgres.dsn is required for the postgres backend")
		}
		if err := checkTable(c.Postgres.Table); err != nil {
			return err
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("cache.sqlite.path is required for the sqlite backend")
		}
		if err := checkTable(c.SQLite.Table); err != nil {
			return err
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis backend")
		}
	case BackendGCS:
		if c.GCS.Bucket == "" {
			return fmt.Errorf("cache.gcs.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Backend)
	}
	return nil
}

// New builds the configured backend.
func New(ctx context.Context, cfg Config, fs afero.Fs, logger *zap.Logger) (cards.JobCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("using job cache backend", zap.String("backend", cfg.Backend))

	switch cfg.Backend {
	case BackendFile:
		return NewFile(fs, cfg.Dir, cfg.KeyPrefix)
	case BackendMemory:
		return NewMemory(), nil
	case BackendPostgres:
		return NewPostgres(ctx, cfg.Postgres, cfg.KeyPrefix)
	case BackendSQLite:
		return NewSQLite(ctx, cfg.SQLite, cfg.KeyPrefix)
	case BackendRedis:
		return NewRedis(ctx, cfg.Redis, cfg.KeyPrefix)
	case BackendGCS:
		return NewGCS(ctx, cfg.GCS, cfg.KeyPrefix)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func checkTable(table string) error {
	if table == "" {
		return nil
	}
	if !validTableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	return nil
}

func tableOrDefault(table string) string {
	if table == "" {
		return defaultTable
	}
	return table
}

func prefixed(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}

// encode serializes a batch; a nil batch is stored as an empty list, never null.
func encode(batch cards.JobBatch) ([]byte, error) {
	data, err := json.Marshal(batch.Clone())
	if err != nil {
		return nil, fmt.Errorf("marshal job batch: %w", err)
	}
	return data, nil
}

func decode(data []byte) (cards.JobBatch, error) {
	var batch cards.JobBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("unmarshal job batch: %w", err)
	}
	return batch.Clone(), nil
}

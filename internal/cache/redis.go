package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/socialcards/internal/cards"
)

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// Redis stores each batch as a JSON string value.
type Redis struct {
	client redisClient
	prefix string
}

// NewRedis connects to Redis and pings it.
func NewRedis(ctx context.Context, cfg RedisConfig, prefix string) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisWithClient(client, prefix), nil
}

// NewRedisWithClient wraps an existing client (primarily for testing).
func NewRedisWithClient(client redisClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Set stores the batch without expiry.
func (r *Redis) Set(ctx context.Context, key string, batch cards.JobBatch) error {
	data, err := encode(batch)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, prefixed(r.prefix, key), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get loads the batch, or an empty batch when the key is missing.
func (r *Redis) Get(ctx context.Context, key string) (cards.JobBatch, error) {
	data, err := r.client.Get(ctx, prefixed(r.prefix, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cards.JobBatch{}, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decode(data)
}

// Close closes the client.
func (r *Redis) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

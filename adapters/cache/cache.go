// Package cache provides a Redis-backed decorator for the usage source.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/artpar/costboard/domain/snapshot"
	"github.com/artpar/costboard/domain/usage"
	"github.com/artpar/costboard/ports"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultKey is the Redis key prefix for the cached usage dataset.
const DefaultKey = "costboard:usage:current"

// NewClient constructs a Redis client from a redis:// URL or a host:port address.
func NewClient(addr string) *redis.Client {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	return redis.NewClient(opts)
}

// Ping verifies connectivity to Redis with a short timeout.
func Ping(ctx context.Context, client *redis.Client) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(timeoutCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// UsageCache serves live usage from Redis when fresh and from the wrapped
// source otherwise. Redis failures never fail a read.
//
// Entries live under "<key>:<generation>". Invalidate bumps the generation
// counter at "<key>:gen", so a fetch that started before the bump writes to
// a key no later read looks at.
type UsageCache struct {
	next   ports.UsageSource
	client *redis.Client
	key    string
	ttl    time.Duration
	logger zerolog.Logger
}

// Config configures the usage cache.
type Config struct {
	Key string
	TTL time.Duration
}

// NewUsageCache wraps next with a Redis cache.
func NewUsageCache(next ports.UsageSource, client *redis.Client, cfg Config, logger zerolog.Logger) *UsageCache {
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &UsageCache{
		next:   next,
		client: client,
		key:    cfg.Key,
		ttl:    cfg.TTL,
		logger: logger.With().Str("component", "usage_cache").Logger(),
	}
}

// GenerationKey returns the Redis key of the generation counter.
func (c *UsageCache) GenerationKey() string {
	return c.key + ":gen"
}

// EntryKey returns the Redis key holding the dataset for generation gen.
func (c *UsageCache) EntryKey(gen int64) string {
	return c.key + ":" + strconv.FormatInt(gen, 10)
}

// generation reads the current counter. A missing counter is generation 0.
func (c *UsageCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.GenerationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// CurrentUsage returns the cached dataset or fetches and stores a fresh one.
func (c *UsageCache) CurrentUsage(ctx context.Context) ([]usage.Record, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("cache read failed, using live source")
		return c.next.CurrentUsage(ctx)
	}
	entry := c.EntryKey(gen)

	data, err := c.client.Get(ctx, entry).Bytes()
	switch {
	case err == nil:
		records, decErr := snapshot.DecodePayload(data)
		if decErr == nil {
			return records, nil
		}
		c.logger.Warn().Err(decErr).Msg("discarding unreadable cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Msg("cache read failed, using live source")
	}

	records, err := c.next.CurrentUsage(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := snapshot.EncodePayload(records); err == nil {
		if err := c.client.Set(ctx, entry, data, c.ttl).Err(); err != nil {
			c.logger.Warn().Err(err).Msg("cache write failed")
		}
	}

	return records, nil
}

// Invalidate moves readers to a fresh generation and drops the old entry.
func (c *UsageCache) Invalidate(ctx context.Context) error {
	gen, err := c.client.Incr(ctx, c.GenerationKey()).Result()
	if err != nil {
		return fmt.Errorf("bump cache generation: %w", err)
	}
	if err := c.client.Del(ctx, c.EntryKey(gen-1)).Err(); err != nil {
		return fmt.Errorf("drop cache entry: %w", err)
	}
	return nil
}

// Ensure interface compliance.
var _ ports.UsageSource = (*UsageCache)(nil)

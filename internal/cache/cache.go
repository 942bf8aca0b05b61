// Package cache provides a Redis-backed read cache for warehouse query
// results. Values are stored as JSON with a TTL; mutations invalidate by
// key prefix. A nil *Cache is a safe no-op, so callers need no branching
// when caching is disabled.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"refadmin/internal/config"
	"refadmin/internal/metrics"
)

// Cache wraps a Redis client with JSON get/set semantics.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a cache from the Redis configuration. Returns nil (caching
// disabled) when no address is configured.
func New(cfg config.RedisConfig) *Cache {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	return &Cache{client: client, ttl: cfg.CacheTTL}
}

// GetJSON loads the value at key into dest. Returns false on miss or any
// Redis/decoding failure. A broken cache must read as a miss, never as
// an error the caller has to handle.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) bool {
	if c == nil {
		return false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		metrics.CacheOps.WithLabelValues("miss").Inc()
		return false
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		metrics.CacheOps.WithLabelValues("decode_error").Inc()
		return false
	}
	metrics.CacheOps.WithLabelValues("hit").Inc()
	return true
}

// SetJSON stores the value at key with the configured TTL. Failures are
// dropped: the cache is an optimization, not a system of record.
func (c *Cache) SetJSON(ctx context.Context, key string, value any) {
	if c == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		metrics.CacheOps.WithLabelValues("set_error").Inc()
	}
}

// Invalidate removes every key under the given prefix.
func (c *Cache) Invalidate(ctx context.Context, prefix string) {
	if c == nil {
		return
	}
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		c.client.Del(ctx, keys...)
		metrics.CacheOps.WithLabelValues("invalidated").Inc()
	}
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Enabled reports whether a Redis backend is configured.
func (c *Cache) Enabled() bool {
	return c != nil
}

// Close releases the Redis client.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

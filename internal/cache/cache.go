// Package cache provides an optional Redis-backed cache in front of the
// dashboard aggregation queries, absorbing polling load with a short TTL.
// It is disposable by definition: every miss falls through to the store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client. A nil *Cache is valid and behaves as an
// always-miss cache, so callers do not need to branch on whether caching is
// enabled.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New parses redisURL (e.g. redis://host:6379/0) and returns a Cache with
// the given default TTL for dashboard entries.
func New(redisURL string, ttl time.Duration) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &Cache{client: redis.NewClient(opt), ttl: ttl}, nil
}

// Ping verifies connectivity, used by the Redis health checker.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("cache not configured")
	}
	return c.client.Ping(ctx).Err()
}

// GetJSON looks up key and unmarshals it into dst, reporting whether the key
// was present. Any Redis or unmarshal error is treated as a miss: a cold or
// unavailable cache must never turn into a client-visible failure.
func (c *Cache) GetJSON(ctx context.Context, key string, dst interface{}) bool {
	if c == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false
	}
	return true
}

// SetJSON marshals v and stores it under key with the cache's default TTL.
// Errors are swallowed: a failed cache write must not fail the request that
// produced the value it would have cached.
func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.client.Set(ctx, key, raw, c.ttl)
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

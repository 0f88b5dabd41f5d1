// Package cache holds short-lived derived counts in Redis. Every operation
// fails open: a missing or unhealthy Redis degrades to hitting Postgres.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	waitedCountKey = "campusledger:students:waited_count"
	countTTL       = 30 * time.Second
)

// Counts caches the waited-student badge count. A nil *Counts is valid and
// behaves as a permanent miss.
type Counts struct {
	rdb *redis.Client
}

// New connects to Redis at addr. Returns nil when addr is empty.
func New(addr string) *Counts {
	if addr == "" {
		return nil
	}
	return &Counts{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// WaitedCount returns the cached count and whether the cache was warm.
func (c *Counts) WaitedCount(ctx context.Context) (int64, bool) {
	if c == nil {
		return 0, false
	}
	n, err := c.rdb.Get(ctx, waitedCountKey).Int64()
	if err != nil {
		return 0, false
	}
	return n, true
}

// SetWaitedCount stores a freshly computed count.
func (c *Counts) SetWaitedCount(ctx context.Context, n int64) {
	if c == nil {
		return
	}
	c.rdb.Set(ctx, waitedCountKey, n, countTTL)
}

// InvalidateWaited drops the cached count after any student status mutation.
func (c *Counts) InvalidateWaited(ctx context.Context) {
	if c == nil {
		return
	}
	c.rdb.Del(ctx, waitedCountKey)
}

// Close releases the underlying connection pool.
func (c *Counts) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

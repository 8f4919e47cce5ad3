// Package cache implements the read-through response cache. Entries are pure
// derived data: deleting one at any time is always safe, and every cached
// value must be reconstructible from its authoritative source.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/casperarmani/backendmultchat/internal/redisstore"
)

const keyPrefix = "cache:"

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "response_cache_hits_total",
		Help: "Total number of cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "response_cache_misses_total",
		Help: "Total number of cache misses",
	})

	cacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "response_cache_invalidations_total",
		Help: "Total number of cache keys explicitly invalidated",
	})
)

// Stats is a point-in-time hit/miss readout for the metrics endpoint.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Cache is the TTL-based get/set/invalidate layer over the shared store.
type Cache struct {
	rdb        *redisstore.Client
	defaultTTL time.Duration
	logger     zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache with the given default TTL. Call sites with different
// volatility override the TTL per Set call.
func New(rdb *redisstore.Client, defaultTTL time.Duration, logger zerolog.Logger) *Cache {
	return &Cache{
		rdb:        rdb,
		defaultTTL: defaultTTL,
		logger:     logger.With().Str("component", "cache").Logger(),
	}
}

func key(k string) string {
	return keyPrefix + k
}

// Get unmarshals the cached value for k into dest and reports whether it was
// present. A store failure degrades to a miss so callers fall back to the
// authoritative source; a value that no longer unmarshals is deleted and
// reported as a miss.
func (c *Cache) Get(ctx context.Context, k string, dest any) bool {
	data, err := c.rdb.Get(ctx, key(k)).Bytes()
	if err != nil {
		if !redisstore.IsNotFound(err) {
			c.logger.Warn().Err(err).Str("key", k).Msg("Cache read failed, treating as miss")
		}
		c.misses.Add(1)
		cacheMisses.Inc()
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn().Err(err).Str("key", k).Msg("Malformed cache entry, dropping")
		c.rdb.Del(ctx, key(k))
		c.misses.Add(1)
		cacheMisses.Inc()
		return false
	}

	c.hits.Add(1)
	cacheHits.Inc()
	return true
}

// Set stores value under k. A ttl of zero or less uses the default.
func (c *Cache) Set(ctx context.Context, k string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", k, err)
	}
	if err := c.rdb.Set(ctx, key(k), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", k, err)
	}
	return nil
}

// Invalidate deletes the given keys. Write paths call this in the same
// logical operation that changes the underlying data; the TTL only bounds
// staleness when an invalidation is skipped.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = key(k)
	}
	if err := c.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("cache: invalidate: %w", err)
	}
	cacheInvalidations.Add(float64(len(keys)))
	return nil
}

// InvalidateScope removes every cached key associated with a logical scope
// such as a user or conversation id. Matching is a glob over the scope id;
// over-deletion is harmless since entries are derived data. Returns the
// number of keys removed.
func (c *Cache) InvalidateScope(ctx context.Context, scopeID string) (int, error) {
	if scopeID == "" {
		return 0, fmt.Errorf("cache: empty scope")
	}

	var removed int
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*"+scopeID+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, fmt.Errorf("cache: invalidate scope %s: %w", scopeID, err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("cache: scope scan %s: %w", scopeID, err)
	}

	if removed > 0 {
		cacheInvalidations.Add(float64(removed))
		c.logger.Debug().Str("scope", scopeID).Int("removed", removed).Msg("Invalidated cache scope")
	}
	return removed, nil
}

// Stats returns the in-process hit/miss counters. Reading mutates nothing.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

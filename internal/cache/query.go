// Package cache provides Redis-backed caching for the query-time core:
// serialized search results and query embedding vectors. A stateless
// core restarted across replicas needs a shared cache, unlike a
// single-process in-memory map.
package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// QueryCache caches serialized search responses in Redis, keyed by a
// hash of (route, query, filters, topK). Entries auto-expire via Redis TTL.
type QueryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQueryCache creates a QueryCache with the given TTL.
func NewQueryCache(rdb *redis.Client, ttl time.Duration) *QueryCache {
	return &QueryCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached payload for the given route/query/filters/topK, or
// ok=false on a cache miss or Redis error (a Redis outage degrades to
// always-miss, never to an error propagated to the caller).
func (c *QueryCache) Get(ctx context.Context, route, query string, filters model.Filters, topK int) (payload []byte, ok bool) {
	key := cacheKey(route, query, filters, topK)
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("[QUERY-CACHE] get failed, treating as miss", "error", err)
		}
		return nil, false
	}
	slog.Info("[QUERY-CACHE] hit", "route", route, "key", key)
	return val, true
}

// Set stores a serialized payload under the route/query/filters/topK key.
func (c *QueryCache) Set(ctx context.Context, route, query string, filters model.Filters, topK int, payload []byte) {
	key := cacheKey(route, query, filters, topK)
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		slog.Warn("[QUERY-CACHE] set failed", "error", err)
		return
	}
	slog.Info("[QUERY-CACHE] set", "route", route, "key", key, "ttl_s", int(c.ttl.Seconds()))
}

// cacheKey builds a deterministic key: "qc:{route}:{sha256(query|filters|topK)}".
// Filters are sorted by key before hashing so map iteration order never
// changes the key.
func cacheKey(route, query string, filters model.Filters, topK int) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(query))
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte(filters[k]))
	}
	fmt.Fprintf(h, ":%d", topK)

	return fmt.Sprintf("qc:%s:%x", route, h.Sum(nil)[:16])
}

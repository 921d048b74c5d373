package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmbeddingCache caches query embedding vectors in Redis, keyed by
// normalized query hash, sparing redundant embedder calls for repeated
// queries.
type EmbeddingCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// DefaultEmbeddingTTL is 15 minutes unless overridden by EMBEDDING_CACHE_TTL env var.
func DefaultEmbeddingTTL() time.Duration {
	if v := os.Getenv("EMBEDDING_CACHE_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 15 * time.Minute
}

// NewEmbeddingCache creates an EmbeddingCache with the given TTL.
func NewEmbeddingCache(rdb *redis.Client, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{rdb: rdb, ttl: ttl}
}

// Get returns a cached embedding vector for queryHash, or ok=false on a
// cache miss or Redis error.
func (c *EmbeddingCache) Get(ctx context.Context, queryHash string) (vec []float32, ok bool) {
	raw, err := c.rdb.Get(ctx, queryHash).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("[EMBED-CACHE] get failed, treating as miss", "error", err)
		}
		return nil, false
	}
	if err := json.Unmarshal(raw, &vec); err != nil {
		slog.Warn("[EMBED-CACHE] decode failed, treating as miss", "error", err)
		return nil, false
	}
	slog.Info("[EMBED-CACHE] hit", "query_hash", queryHash)
	return vec, true
}

// Set stores an embedding vector under queryHash.
func (c *EmbeddingCache) Set(ctx context.Context, queryHash string, vec []float32) {
	raw, err := json.Marshal(vec)
	if err != nil {
		slog.Warn("[EMBED-CACHE] encode failed", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, queryHash, raw, c.ttl).Err(); err != nil {
		slog.Warn("[EMBED-CACHE] set failed", "error", err)
		return
	}
	slog.Info("[EMBED-CACHE] set", "query_hash", queryHash, "vec_dim", len(vec), "ttl_s", int(c.ttl.Seconds()))
}

// EmbeddingQueryHash returns a deterministic cache key for a query string.
// Normalizes by lowercasing and trimming whitespace before hashing.
func EmbeddingQueryHash(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("emb:%x", h[:16])
}

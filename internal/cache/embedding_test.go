package cache

import (
	"context"
	"testing"
	"time"
)

func TestEmbeddingCache_HitMiss(t *testing.T) {
	rdb := newTestRedisClient(t)
	defer rdb.Close()
	ctx := context.Background()

	c := NewEmbeddingCache(rdb, time.Minute)
	hash := EmbeddingQueryHash("test query")

	if _, ok := c.Get(ctx, hash); ok {
		t.Fatal("expected miss on empty cache")
	}

	vec := []float32{0.1, 0.2, 0.3}
	c.Set(ctx, hash, vec)

	got, ok := c.Get(ctx, hash)
	if !ok {
		t.Fatal("expected hit after set")
	}
	if len(got) != 3 || got[0] != 0.1 || got[1] != 0.2 || got[2] != 0.3 {
		t.Fatalf("unexpected vector: %v", got)
	}
}

func TestEmbeddingCache_Roundtrip768(t *testing.T) {
	rdb := newTestRedisClient(t)
	defer rdb.Close()
	ctx := context.Background()

	c := NewEmbeddingCache(rdb, time.Minute)

	vec := make([]float32, 768)
	for i := range vec {
		vec[i] = float32(i) * 0.001
	}

	hash := EmbeddingQueryHash("roundtrip test")
	c.Set(ctx, hash, vec)

	got, ok := c.Get(ctx, hash)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 768 {
		t.Fatalf("expected 768 dims, got %d", len(got))
	}
	if got[0] != 0.0 || got[767] != float32(767)*0.001 {
		t.Fatalf("vector data corrupted: first=%f last=%f", got[0], got[767])
	}
}

func TestEmbeddingQueryHash_Deterministic(t *testing.T) {
	h1 := EmbeddingQueryHash("What is TUMM?")
	h2 := EmbeddingQueryHash("what is tumm?")
	h3 := EmbeddingQueryHash("  What is TUMM?  ")

	if h1 != h2 {
		t.Fatalf("case-insensitive mismatch: %s != %s", h1, h2)
	}
	if h1 != h3 {
		t.Fatalf("whitespace-insensitive mismatch: %s != %s", h1, h3)
	}
}

func TestEmbeddingQueryHash_Different(t *testing.T) {
	h1 := EmbeddingQueryHash("query one")
	h2 := EmbeddingQueryHash("query two")

	if h1 == h2 {
		t.Fatal("different queries should produce different hashes")
	}
}

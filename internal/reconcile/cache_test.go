package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestCacheVersioning(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "aging", "received", "2024-03-31")
	if err != nil {
		t.Fatalf("build key: %v", err)
	}
	if key != "aging:received:2024-03-31:v1" {
		t.Fatalf("unexpected key %s", key)
	}
	if err := cache.Bump(ctx); err != nil {
		t.Fatalf("bump: %v", err)
	}
	key, _ = cache.BuildKey(ctx, "aging", "received", "2024-03-31")
	if key != "aging:received:2024-03-31:v2" {
		t.Fatalf("unexpected key after bump %s", key)
	}
}

func TestCacheFetchJSONDoesNotStoreFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	var out map[string]int
	boom := errors.New("boom")
	if err := cache.FetchJSON(ctx, "k", &out, func(context.Context) (any, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if mr.Exists("k") {
		t.Fatalf("failed load must not be cached")
	}
	if err := cache.FetchJSON(ctx, "k", &out, func(context.Context) (any, error) { return map[string]int{"a": 1}, nil }); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if out["a"] != 1 || !mr.Exists("k") {
		t.Fatalf("expected cached value, got %v", out)
	}
	if ttl := mr.TTL("k"); ttl != time.Minute {
		t.Fatalf("ttl = %s", ttl)
	}
}

func TestNilCachePassesThrough(t *testing.T) {
	var cache *Cache
	var out []string
	if err := cache.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) { return []string{"x"}, nil }); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("unexpected %v", out)
	}
	if err := cache.Bump(context.Background()); err != nil {
		t.Fatalf("bump: %v", err)
	}
}

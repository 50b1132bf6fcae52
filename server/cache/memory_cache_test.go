package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type entry struct {
	ID       string
	Feedback []string
}

func newTestCache(t *testing.T, size int, ttl time.Duration) *MemoryCache {
	t.Helper()
	c := NewMemoryCache(size, ttl, zap.NewNop())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMemoryCacheGetIntoTypedDestination(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, 10, time.Minute)

	want := entry{ID: "abc", Feedback: []string{"Bend your knees more"}}
	if err := c.Set(ctx, "value", want); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "pointer", &want); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"value", "pointer"} {
		var got entry
		if err := c.Get(ctx, key, &got); err != nil {
			t.Fatalf("Get(%s): %v", key, err)
		}
		if got.ID != want.ID || len(got.Feedback) != 1 {
			t.Errorf("Get(%s) = %+v", key, got)
		}
	}

	var wrong int
	if err := c.Get(ctx, "value", &wrong); err == nil || errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected a type error, got %v", err)
	}
	if err := c.Get(ctx, "value", entry{}); err == nil {
		t.Error("expected an error for a non-pointer destination")
	}
}

func TestMemoryCacheMissAndExpiry(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, 10, time.Minute)

	var got entry
	if err := c.Get(ctx, "missing", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}

	if err := c.SetWithTTL(ctx, "short", entry{ID: "x"}, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	if ok, _ := c.Exists(ctx, "short"); ok {
		t.Error("expired entry still reported as existing")
	}
	if err := c.Get(ctx, "short", &got); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss for expired entry, got %v", err)
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, 2, time.Minute)

	c.Set(ctx, "a", entry{ID: "a"})
	time.Sleep(2 * time.Millisecond)
	c.Set(ctx, "b", entry{ID: "b"})
	time.Sleep(2 * time.Millisecond)

	var got entry
	if err := c.Get(ctx, "a", &got); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	c.Set(ctx, "c", entry{ID: "c"})

	if ok, _ := c.Exists(ctx, "b"); ok {
		t.Error("expected b to be evicted")
	}
	for _, key := range []string{"a", "c"} {
		if ok, _ := c.Exists(ctx, key); !ok {
			t.Errorf("expected %s to survive", key)
		}
	}

	stats, err := c.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Items != 2 || stats.Evictions != 1 || stats.Hits != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestGenerateCacheKey(t *testing.T) {
	if GenerateCacheKey("ab", "c") == GenerateCacheKey("a", "bc") {
		t.Error("component boundaries must change the key")
	}
	if GenerateCacheKey("img", "lunge") != GenerateCacheKey("img", "lunge") {
		t.Error("keys must be deterministic")
	}
}

func TestMemoryCacheCloseTwice(t *testing.T) {
	c := NewMemoryCache(1, time.Minute, zap.NewNop())
	c.Close()
	c.Close()
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func domainMemoryConfig() domain.CacheConfig {
	return domain.CacheConfig{
		Type:     "memory",
		Capacity: 10,
		TTL:      time.Minute,
	}
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, "expiring", []byte("temp"), 10*time.Millisecond)

		// Should be available immediately
		val, _ := cache.Get(ctx, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		// Wait for expiration
		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("InsertionOrderEviction", func(t *testing.T) {
		smallCache := NewMemoryCache(3)

		_ = smallCache.Set(ctx, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, "c", []byte("3"), time.Minute)

		// Reading "a" must NOT protect it: eviction order is insertion
		// order, not recency of use.
		if v, _ := smallCache.Get(ctx, "a"); v == nil {
			t.Fatal("expected 'a' before overflow")
		}

		_ = smallCache.Set(ctx, "d", []byte("4"), time.Minute)

		if v, _ := smallCache.Get(ctx, "a"); v != nil {
			t.Error("expected oldest-inserted 'a' to be evicted despite recent read")
		}
		if v, _ := smallCache.Get(ctx, "b"); v == nil {
			t.Error("expected 'b' to survive")
		}
		if v, _ := smallCache.Get(ctx, "d"); v == nil {
			t.Error("expected 'd' to be present")
		}
	})

	t.Run("GetDoesNotRefreshTTL", func(t *testing.T) {
		c := NewMemoryCache(10)
		_ = c.Set(ctx, "k", []byte("v"), 30*time.Millisecond)

		// Repeated reads must not extend the entry's lifetime.
		for i := 0; i < 3; i++ {
			time.Sleep(10 * time.Millisecond)
			_, _ = c.Get(ctx, "k")
		}
		time.Sleep(10 * time.Millisecond)

		if v, _ := c.Get(ctx, "k"); v != nil {
			t.Error("expected entry to expire at its original deadline")
		}
	})

	t.Run("OverwriteMovesToBack", func(t *testing.T) {
		c := NewMemoryCache(2)

		_ = c.Set(ctx, "a", []byte("1"), time.Minute)
		_ = c.Set(ctx, "b", []byte("2"), time.Minute)
		_ = c.Set(ctx, "a", []byte("1b"), time.Minute) // re-insert
		_ = c.Set(ctx, "c", []byte("3"), time.Minute)  // evicts oldest

		if v, _ := c.Get(ctx, "b"); v != nil {
			t.Error("expected 'b' to be evicted after 'a' was re-inserted")
		}
		if v, _ := c.Get(ctx, "a"); string(v) != "1b" {
			t.Errorf("expected re-inserted value '1b', got '%s'", string(v))
		}
	})

	t.Run("ClearAndLen", func(t *testing.T) {
		c := NewMemoryCache(10)
		_ = c.Set(ctx, "x", []byte("1"), time.Minute)
		_ = c.Set(ctx, "y", []byte("2"), time.Minute)

		if n, _ := c.Len(ctx); n != 2 {
			t.Errorf("expected len 2, got %d", n)
		}

		if err := c.Clear(ctx); err != nil {
			t.Fatalf("Clear failed: %v", err)
		}
		if n, _ := c.Len(ctx); n != 0 {
			t.Errorf("expected len 0 after clear, got %d", n)
		}
	})
}

func TestMemoryCacheCapacityNeverExceeded(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(5)

	for i := 0; i < 50; i++ {
		key := string(rune('a' + i%26))
		_ = c.Set(ctx, key, []byte{byte(i)}, time.Minute)

		n, _ := c.Len(ctx)
		if n > 5 {
			t.Fatalf("capacity exceeded: len %d after insert %d", n, i)
		}
	}
}

func TestNewFactory(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		c, err := New(domainMemoryConfig())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()

		if _, ok := c.(*MemoryCache); !ok {
			t.Errorf("expected *MemoryCache, got %T", c)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		cfg := domainMemoryConfig()
		cfg.Type = "memcached"
		if _, err := New(cfg); err == nil {
			t.Error("expected error for unsupported cache type")
		}
	})
}

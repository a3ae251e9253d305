package domain

import (
	"context"
	"time"
)

// Cache is the prediction cache interface. Backed by in-process memory by
// default, or Redis for multi-node deployments. Entries expire by fixed TTL
// and are evicted oldest-inserted-first at capacity; reads never refresh an
// entry's TTL or its position in the eviction order.
type Cache interface {
	// Get retrieves a value from cache. Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// Clear drops every entry.
	Clear(ctx context.Context) error

	// Len returns the current entry count.
	Len(ctx context.Context) (int, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Capacity bounds the in-memory cache entry count.
	Capacity int

	// TTL is the fixed per-entry lifetime.
	TTL time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

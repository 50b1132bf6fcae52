package cache

import (
	"context"
	"fmt"
	"time"
)

var ErrCacheMiss = fmt.Errorf("cache miss")

// Cache stores analysis responses keyed by GenerateCacheKey.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}) error

	// Get copies the stored value into dest, which must be a non-nil pointer
	// to a type the stored value is assignable to.
	Get(ctx context.Context, key string, dest interface{}) error

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	GetStats(ctx context.Context) (*CacheStats, error)

	Close() error
}

type CacheStats struct {
	Connected bool   `json:"connected"`
	Items     int    `json:"items"`
	MaxSize   int    `json:"max_size"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Evictions int64  `json:"evictions"`
	Info      string `json:"info"`
}

// Package cache provides an optional Redis-backed read-through cache for
// catalogue purl→category resolutions, for deployments
// that already run a shared Redis instance. Every consumer works without a
// Cache (nil-safe), so this package is opt-in rather than load-bearing.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key is not present in the cache.
var ErrNotFound = errors.New("key not found in cache")

// RedisConfig holds configuration for the Redis-backed Cache.
type RedisConfig struct {
	Address      string
	Password     string
	Database     int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
}

// NewCache builds a Cache from the given configuration.
func NewCache(ctx context.Context, cfg interface{}) (Cache, error) {
	switch config := cfg.(type) {
	case RedisConfig:
		return NewRedisCache(config)
	default:
		return nil, fmt.Errorf("cache: unsupported config type %T", cfg)
	}
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CatalogueCache is a two-tier read-through cache in front of expensive
// lookups: an in-process LRU (L1) backed by an optional Redis Cache (L2).
// Its one call site is catalogue purl→category resolution; settings reads do
// not go through it. Grounded on the teacher's
// tiered L1/L2 cache shape, with the MCP-context-specific prefetch queue
// dropped since this core has no analogous request-scoped context to
// prefetch.
type CatalogueCache struct {
	l1  *lru.Cache[string, string]
	l2  Cache
	ttl time.Duration
}

// CatalogueCacheConfig configures a CatalogueCache.
type CatalogueCacheConfig struct {
	L1MaxSize  int           `mapstructure:"l1_max_size"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

// NewCatalogueCache builds a CatalogueCache. l2 may be nil, in which case
// the cache runs L1-only (no Redis configured).
func NewCatalogueCache(l2 Cache, cfg CatalogueCacheConfig) (*CatalogueCache, error) {
	if cfg.L1MaxSize <= 0 {
		cfg.L1MaxSize = 4096
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 15 * time.Minute
	}

	l1, err := lru.New[string, string](cfg.L1MaxSize)
	if err != nil {
		return nil, fmt.Errorf("cache: create l1: %w", err)
	}

	return &CatalogueCache{l1: l1, l2: l2, ttl: cfg.DefaultTTL}, nil
}

// Get returns the cached value for key, checking L1 before falling through
// to L2. A miss in both tiers reports found=false with no error.
func (c *CatalogueCache) Get(ctx context.Context, key string) (value string, found bool, err error) {
	if v, ok := c.l1.Get(key); ok {
		return v, true, nil
	}
	if c.l2 == nil {
		return "", false, nil
	}

	var v string
	if err := c.l2.Get(ctx, key, &v); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	c.l1.Add(key, v)
	return v, true, nil
}

// Set writes value to both tiers.
func (c *CatalogueCache) Set(ctx context.Context, key, value string) error {
	c.l1.Add(key, value)
	if c.l2 == nil {
		return nil
	}
	return c.l2.Set(ctx, key, value, c.ttl)
}

// Invalidate removes key from both tiers.
func (c *CatalogueCache) Invalidate(ctx context.Context, key string) error {
	c.l1.Remove(key)
	if c.l2 == nil {
		return nil
	}
	return c.l2.Delete(ctx, key)
}

// Close releases the L2 connection, if configured.
func (c *CatalogueCache) Close() error {
	if c.l2 == nil {
		return nil
	}
	return c.l2.Close()
}

package cache

import (
	"context"
	"errors"
	"time"
)

// LayeredCache reads through an in-process L1 to Redis (L2) and writes through
// both. Entries promoted from L2 keep their remaining Redis lifetime in L1.
type LayeredCache struct {
	mem    *MemoryCache
	redis  *RedisCache
	maxTTL time.Duration
}

// NewLayeredCache creates a layered cache over redisCache. The Redis layer is
// owned by the caller; Close releases only L1.
func NewLayeredCache(redisCache *RedisCache, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
		MemoryMaxTTL:  time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &LayeredCache{
		mem:    NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize), WithMemoryDefaultTTL(cfg.MemoryMaxTTL)),
		redis:  redisCache,
		maxTTL: cfg.MemoryMaxTTL,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.redis.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return lc.mem.Set(ctx, key, value, lc.l1TTL(expiration))
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.mem.Get(ctx, key, dest); err == nil {
		return nil
	}

	var raw []byte
	if err := lc.redis.Get(ctx, key, &raw); err != nil {
		return err
	}
	if err := decodeValue(raw, dest); err != nil {
		return err
	}

	ttl, err := lc.redis.TTL(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		return nil // expired between the two calls
	}
	if err == nil {
		_ = lc.mem.Set(ctx, key, raw, lc.l1TTL(ttl))
	}
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.mem.Delete(ctx, keys...)
	return lc.redis.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	if ok, _ := lc.mem.Exists(ctx, keys...); ok {
		return true, nil
	}
	return lc.redis.Exists(ctx, keys...)
}

// Close releases the L1 sweeper.
func (lc *LayeredCache) Close() error {
	return lc.mem.Close()
}

func (lc *LayeredCache) l1TTL(d time.Duration) time.Duration {
	if d <= 0 || d > lc.maxTTL {
		return lc.maxTTL
	}
	return d
}

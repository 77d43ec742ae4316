package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quote struct {
	Pair  string  `json:"pair"`
	Price float64 `json:"price"`
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestMemoryCache_SetGetStruct(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "q", quote{Pair: "EUR/USD", Price: 1.1}, time.Minute))

	var got quote
	require.NoError(t, mc.Get(ctx, "q", &got))
	assert.Equal(t, quote{Pair: "EUR/USD", Price: 1.1}, got)
}

func TestMemoryCache_StringAndBytes(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "token", "sub-1", time.Minute))
	var s string
	require.NoError(t, mc.Get(ctx, "token", &s))
	assert.Equal(t, "sub-1", s)

	require.NoError(t, mc.Set(ctx, "raw", []byte(`{"pair":"GBP/USD"}`), time.Minute))
	var q quote
	require.NoError(t, mc.Get(ctx, "raw", &q))
	assert.Equal(t, "GBP/USD", q.Pair)
}

func TestMemoryCache_Expiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(WithMemoryClock(clock.Now))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "v", 20*time.Second))
	clock.Advance(19 * time.Second)
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(time.Second)
	var got string
	assert.ErrorIs(t, mc.Get(ctx, "k", &got), ErrCacheMiss)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCache_DefaultTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(WithMemoryClock(clock.Now), WithMemoryDefaultTTL(time.Minute))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "v", 0))
	clock.Advance(time.Minute)
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, mc.Set(ctx, "b", "2", time.Minute))
	var s string
	require.NoError(t, mc.Get(ctx, "a", &s)) // a becomes most recent
	require.NoError(t, mc.Set(ctx, "c", "3", time.Minute))

	for key, want := range map[string]bool{"a": true, "b": false, "c": true} {
		ok, err := mc.Exists(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, ok, key)
	}
	assert.Equal(t, 2, mc.Len())
}

func TestMemoryCache_OverwriteKeepsSize(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, mc.Set(ctx, "b", "2", time.Minute))
	require.NoError(t, mc.Set(ctx, "a", "3", time.Minute))

	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	assert.Equal(t, "3", s)
	ok, _ := mc.Exists(ctx, "b")
	assert.True(t, ok)
}

func TestMemoryCache_SweepAndClose(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(WithMemoryClock(clock.Now), WithMemoryCleanup(5*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", time.Second))
	require.NoError(t, mc.Set(ctx, "b", "2", time.Hour))
	clock.Advance(2 * time.Second)

	require.Eventually(t, func() bool { return mc.Len() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, mc.Close())
	require.NoError(t, mc.Close())
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "quote:EUR/USD:1h", GenerateKey("quote", "EUR/USD", "1h"))
	assert.Equal(t, "session-token", GenerateKey("session-token"))
	assert.Equal(t, "n:3", GenerateKey("n", 3))
}

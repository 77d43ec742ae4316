package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(WithClock(func() time.Time { return now }))

	assert.True(t, l.Allow("market", 2, 1))
	assert.True(t, l.Allow("market", 2, 1))
	assert.False(t, l.Allow("market", 2, 1))

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, l.Allow("market", 2, 1))
	assert.False(t, l.Allow("market", 2, 1))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	now := time.Now()
	l := New(WithClock(func() time.Time { return now }))

	assert.True(t, l.Allow("market", 1, 0))
	assert.False(t, l.Allow("market", 1, 0))
	assert.True(t, l.Allow("prediction", 1, 0))
}

func TestLimiter_ZeroCapacityDisables(t *testing.T) {
	l := New()
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("k", 0, 0))
	}
}

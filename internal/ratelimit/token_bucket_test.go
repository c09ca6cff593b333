package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTokenBucket_AllowAndRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 5, 5) // 5 tokens capacity, 5 tokens/sec.

	require.True(t, b.Allow(5), "initial burst")
	require.False(t, b.Allow(1), "bucket should be empty")

	clk.Advance(200 * time.Millisecond) // 1 token refilled (5 tokens/sec).
	require.True(t, b.Allow(1), "refill after time advance")
}

func TestTokenBucket_DoesNotExceedCapacity(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 1, 1) // capacity 1 token.

	require.True(t, b.Allow(1))

	clk.Advance(10 * time.Second)
	require.True(t, b.Allow(1), "refill up to capacity")
	require.False(t, b.Allow(1), "only 1 token available")
}

func TestTokenBucket_ZeroRateNeverRefills(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 2, 0)

	require.True(t, b.Allow(2))
	clk.Advance(time.Hour)
	require.False(t, b.Allow(1), "no refill with rate=0")
}

func TestTokenBucket_ClockGoingBackwards(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	b := NewTokenBucket(clk, 1, 1)

	require.True(t, b.Allow(1))
	clk.Advance(-10 * time.Second)
	require.False(t, b.Allow(1), "no refill when time goes backwards")
	clk.Advance(time.Second)
	require.True(t, b.Allow(1), "refill after clock resumes")
}

func TestTokenBucket_NonPositiveCostAlwaysAllowed(t *testing.T) {
	b := NewTokenBucket(nil, 0, 0)
	require.True(t, b.Allow(0))
	require.True(t, b.Allow(-1))
	require.False(t, b.Allow(1), "empty bucket rejects")
}

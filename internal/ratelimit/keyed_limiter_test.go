package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyedLimiter_PerKeyBudgets(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewKeyedLimiter(KeyedConfig{Clock: clk, Rate: 2})

	for i := 0; i < 2; i++ {
		require.True(t, l.Allow("alice"), "alice request %d", i)
	}
	require.False(t, l.Allow("alice"), "alice should be limited")
	require.True(t, l.Allow("bob"), "bob has an independent bucket")

	clk.Advance(500 * time.Millisecond)
	require.True(t, l.Allow("alice"), "alice refills after 500ms at 2/s")
}

func TestKeyedLimiter_DisabledWhenRateZero(t *testing.T) {
	l := NewKeyedLimiter(KeyedConfig{})
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("k"))
	}
	require.Zero(t, l.Len())

	var nilLimiter *KeyedLimiter
	require.True(t, nilLimiter.Allow("k"))
}

func TestKeyedLimiter_BoundsKeysLRU(t *testing.T) {
	var evicted []string
	l := NewKeyedLimiter(KeyedConfig{
		Clock:   &fakeClock{now: time.Unix(0, 0)},
		Rate:    1,
		MaxKeys: 3,
		OnEvict: func(key string) { evicted = append(evicted, key) },
	})

	for i := 0; i < 3; i++ {
		l.Allow(fmt.Sprintf("k%d", i))
	}
	// Touch k0 so k1 becomes the oldest.
	l.Allow("k0")
	l.Allow("k3")

	require.Equal(t, 3, l.Len())
	require.Equal(t, []string{"k1"}, evicted)
}

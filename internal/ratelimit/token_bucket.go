package ratelimit

import (
	"sync"
	"time"
)

// Clock abstracts time so buckets can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// One token is 1e9 nano-tokens, so a rate of X tokens/sec adds exactly X
// nano-tokens per elapsed nanosecond and no float rounding is involved.
const nanoPerToken int64 = int64(time.Second)

const maxInt64 = int64(^uint64(0) >> 1)

// TokenBucket refills at an integer number of tokens per second. It is safe
// for concurrent use.
type TokenBucket struct {
	mu    sync.Mutex
	clock Clock

	capacity int64 // tokens
	rate     int64 // tokens/sec

	nano int64
	last time.Time
}

// NewTokenBucket returns a full bucket. A nil clock means wall time.
func NewTokenBucket(clock Clock, capacity, rate int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	capacity = max(capacity, 0)
	rate = max(rate, 0)
	return &TokenBucket{
		clock:    clock,
		capacity: capacity,
		rate:     rate,
		nano:     toNano(capacity),
		last:     clock.Now(),
	}
}

// Allow takes n tokens if they are available. n <= 0 always succeeds.
func (b *TokenBucket) Allow(n int64) bool {
	if n <= 0 {
		return true
	}
	cost := toNano(n)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.nano < cost {
		return false
	}
	b.nano -= cost
	return true
}

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	elapsed := now.Sub(b.last)
	b.last = now
	if elapsed <= 0 || b.rate <= 0 || b.capacity <= 0 {
		// A clock that went backwards only moves the reference point.
		return
	}

	full := toNano(b.capacity)
	missing := full - b.nano
	if missing <= 0 {
		b.nano = full
		return
	}
	// Clamp before multiplying so elapsed*rate cannot overflow.
	if elapsed.Nanoseconds() >= missing/b.rate {
		b.nano = full
		return
	}
	b.nano = min(b.nano+elapsed.Nanoseconds()*b.rate, full)
}

func toNano(tokens int64) int64 {
	if tokens <= 0 {
		return 0
	}
	if tokens > maxInt64/nanoPerToken {
		return maxInt64
	}
	return tokens * nanoPerToken
}

package ratelimit

import (
	"container/list"
	"sync"
)

// DefaultMaxKeys bounds the number of buckets a KeyedLimiter keeps when the
// caller does not choose a limit.
const DefaultMaxKeys = 4096

// KeyedLimiter keeps one token bucket per key (for example per identity). The
// number of buckets is bounded; the least recently used key is evicted first,
// which at worst hands an evicted key a fresh, full bucket.
type KeyedLimiter struct {
	clock   Clock
	rate    int64
	burst   int64
	maxKeys int
	onEvict func(key string)

	mu      sync.Mutex
	buckets map[string]*keyedEntry
	lru     *list.List
}

type keyedEntry struct {
	bucket *TokenBucket
	elem   *list.Element
}

type KeyedConfig struct {
	Clock Clock
	// Rate is tokens per second per key. Rate <= 0 disables limiting.
	Rate    int64
	Burst   int64
	MaxKeys int
	// OnEvict is called outside the limiter's lock.
	OnEvict func(key string)
}

func NewKeyedLimiter(cfg KeyedConfig) *KeyedLimiter {
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Rate
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = DefaultMaxKeys
	}
	return &KeyedLimiter{
		clock:   cfg.Clock,
		rate:    cfg.Rate,
		burst:   cfg.Burst,
		maxKeys: cfg.MaxKeys,
		onEvict: cfg.OnEvict,
		buckets: make(map[string]*keyedEntry),
		lru:     list.New(),
	}
}

// Allow takes one token from key's bucket.
func (l *KeyedLimiter) Allow(key string) bool {
	if l == nil || l.rate <= 0 {
		return true
	}

	var evicted []string
	l.mu.Lock()
	e, ok := l.buckets[key]
	if ok {
		l.lru.MoveToFront(e.elem)
	} else {
		e = &keyedEntry{bucket: NewTokenBucket(l.clock, l.burst, l.rate)}
		e.elem = l.lru.PushFront(key)
		l.buckets[key] = e
		for len(l.buckets) > l.maxKeys {
			oldest := l.lru.Back()
			oldKey := oldest.Value.(string)
			l.lru.Remove(oldest)
			delete(l.buckets, oldKey)
			evicted = append(evicted, oldKey)
		}
	}
	bucket := e.bucket
	l.mu.Unlock()

	if l.onEvict != nil {
		for _, k := range evicted {
			l.onEvict(k)
		}
	}
	return bucket.Allow(1)
}

func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

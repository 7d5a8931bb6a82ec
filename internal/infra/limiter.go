package infra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter keeps one token bucket per key, e.g. per client address or
// per symbol. Buckets idle for longer than the idle window are dropped.
type KeyedLimiter struct {
	mu      sync.Mutex
	buckets map[string]*keyedEntry
	rps     rate.Limit
	burst   int
	idle    time.Duration
}

// NewKeyedLimiter allows rps requests per second per key with the given
// burst. A non-positive rps disables limiting.
func NewKeyedLimiter(rps float64, burst int) *KeyedLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &KeyedLimiter{
		buckets: make(map[string]*keyedEntry),
		rps:     limit,
		burst:   burst,
		idle:    10 * time.Minute,
	}
}

func (k *KeyedLimiter) get(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.buckets[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(k.rps, k.burst)}
		k.buckets[key] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

// Allow reports whether a request for key may proceed now.
func (k *KeyedLimiter) Allow(key string) bool {
	return k.get(key).Allow()
}

// Wait blocks until key has a token or ctx is done.
func (k *KeyedLimiter) Wait(ctx context.Context, key string) error {
	if err := k.get(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter %s: %w", key, err)
	}
	return nil
}

// Prune drops buckets not used within the idle window.
func (k *KeyedLimiter) Prune() {
	k.mu.Lock()
	defer k.mu.Unlock()
	cutoff := time.Now().Add(-k.idle)
	for key, e := range k.buckets {
		if e.lastSeen.Before(cutoff) {
			delete(k.buckets, key)
		}
	}
}

// Len returns the number of live buckets.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

// Package ratelimit provides per-key fixed-window token buckets. The API
// server uses it to throttle failed authentication attempts per client.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"grimm.is/rnsgate/internal/clock"
)

// Limiter manages rate limiting for multiple keys
type Limiter struct {
	limit    int
	interval time.Duration
	clock    clock.Clock

	limiters map[string]*bucket
	mu       sync.Mutex
}

// bucket holds the tokens left in the current window
type bucket struct {
	tokens   int
	lastFill time.Time
}

// NewLimiter creates a limiter granting limit tokens per key every interval.
// A nil clock uses the system clock.
func NewLimiter(limit int, interval time.Duration, clk clock.Clock) *Limiter {
	return &Limiter{
		limit:    limit,
		interval: interval,
		clock:    clock.Or(clk),
		limiters: make(map[string]*bucket),
	}
}

// get returns the bucket of key, refilled when its window has passed.
// Callers hold l.mu.
func (l *Limiter) get(key string) *bucket {
	now := l.clock.Now()
	b, ok := l.limiters[key]
	if !ok {
		b = &bucket{tokens: l.limit, lastFill: now}
		l.limiters[key] = b
	}
	if now.Sub(b.lastFill) >= l.interval {
		b.tokens = l.limit
		b.lastFill = now
	}
	return b
}

// Allow takes a token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.get(key)
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// Exhausted reports whether key has no tokens left, without taking one.
func (l *Limiter) Exhausted(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.limiters[key]
	if !ok || l.clock.Since(b.lastFill) >= l.interval {
		return false
	}
	return b.tokens <= 0
}

// RetryAfter returns how long until key's window refills.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.limiters[key]
	if !ok {
		return 0
	}
	return max(0, l.interval-l.clock.Since(b.lastFill))
}

// Reset clears rate limit for a specific key
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
}

// CleanupExpired removes buckets whose window ended more than maxAge ago.
func (l *Limiter) CleanupExpired(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	now := l.clock.Now()
	for key, b := range l.limiters {
		if now.Sub(b.lastFill) > maxAge {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// StartCleanup removes expired buckets every interval until ctx is done.
func (l *Limiter) StartCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.CleanupExpired(maxAge)
			}
		}
	}()
}

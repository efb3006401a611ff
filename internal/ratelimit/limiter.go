package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter reports whether an action keyed by key may proceed now.
type RateLimiter interface {
	Allow(key string) bool
}

// Limiter enforces a minimum interval between operations sharing a key.
// Keys are usually hosts, or "detail:{platform}" for enrichment calls.
type Limiter struct {
	mu          sync.Mutex
	hosts       map[string]time.Time
	minInterval time.Duration
}

// New creates a limiter with the given minimum interval per key.
func New(minInterval time.Duration) *Limiter {
	return &Limiter{
		hosts:       make(map[string]time.Time),
		minInterval: minInterval,
	}
}

// Interval returns the configured minimum interval.
func (l *Limiter) Interval() time.Duration {
	return l.minInterval
}

// Allow records an operation for key and returns true when minInterval has
// elapsed since the last recorded one. A refused call leaves the timestamp
// unchanged.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if last, ok := l.hosts[key]; ok && now.Sub(last) < l.minInterval {
		return false
	}
	l.hosts[key] = now
	return true
}

// Wait blocks until an operation for key is allowed.
func (l *Limiter) Wait(key string) {
	_ = l.WaitContext(context.Background(), key)
}

// WaitContext blocks until an operation for key is allowed or ctx is done.
func (l *Limiter) WaitContext(ctx context.Context, key string) error {
	for {
		wait := l.reserve(key)
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve claims the slot for key when it is free and otherwise returns how
// long the caller must sleep before trying again.
func (l *Limiter) reserve(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	last, ok := l.hosts[key]
	if !ok {
		l.hosts[key] = now
		return 0
	}
	if elapsed := now.Sub(last); elapsed < l.minInterval {
		return l.minInterval - elapsed
	}
	l.hosts[key] = now
	return 0
}

// Reset forgets the last operation for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hosts, key)
}

// ResetAll forgets every key.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hosts = make(map[string]time.Time)
}

var _ RateLimiter = (*Limiter)(nil)

package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is the in-process backend, used when Redis is not configured
// or unreachable at startup.
type MemoryCache struct {
	mu     sync.RWMutex
	items  map[string]entry
	ttl    time.Duration
	stopCh chan struct{}
	once   sync.Once
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory creates an in-memory cache whose Set uses ttl.
func NewMemory(ttl time.Duration) *MemoryCache {
	c := &MemoryCache{
		items:  make(map[string]entry),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}
	go c.cleanup()
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return cloneBytes(e.value), true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

func (c *MemoryCache) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry{
		value:     cloneBytes(value),
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]entry)
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	n := 0
	for _, e := range c.items {
		if !now.After(e.expiresAt) {
			n++
		}
	}
	return n
}

// Stop ends the background sweeper. Safe to call more than once.
func (c *MemoryCache) Stop() {
	c.once.Do(func() { close(c.stopCh) })
}

func (c *MemoryCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *MemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, key)
		}
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ Cache = (*MemoryCache)(nil)

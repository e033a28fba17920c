package otp

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	code   string
	expiry time.Time
}

// MemoryCache is an in-process Cache. Entries expire lazily on read and are
// swept periodically once Start is called.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Put(_ context.Context, email, code string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[email] = memoryEntry{code: code, expiry: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, email string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[email]
	if !ok {
		return "", false, nil
	}
	if c.now().After(entry.expiry) {
		delete(c.entries, email)
		return "", false, nil
	}
	return entry.code, true, nil
}

func (c *MemoryCache) Delete(_ context.Context, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, email)
	return nil
}

// Start launches a background sweep that drops expired entries until ctx is
// cancelled.
func (c *MemoryCache) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

func (c *MemoryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for email, entry := range c.entries {
		if now.After(entry.expiry) {
			delete(c.entries, email)
		}
	}
}

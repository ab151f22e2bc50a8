package didresolver

import (
	"context"
	"sync"
	"time"
)

// DocumentCache stores resolved DID documents for a bounded lifetime.
// Implementations must be safe for concurrent use.
type DocumentCache interface {
	Get(ctx context.Context, didStr string) (*Document, bool)
	Set(ctx context.Context, didStr string, doc *Document)
	Purge(ctx context.Context, didStr string)
}

type memoryEntry struct {
	doc       *Document
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryCache is an in-process TTL cache. It is the default document cache
// when no redis backend is configured.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates a memory cache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, didStr string) (*Document, bool) {
	c.mu.RLock()
	entry, ok := c.entries[didStr]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if entry.expired(c.now()) {
		c.mu.Lock()
		delete(c.entries, didStr)
		c.mu.Unlock()
		return nil, false
	}
	return entry.doc, true
}

func (c *MemoryCache) Set(_ context.Context, didStr string, doc *Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[didStr] = &memoryEntry{doc: doc, expiresAt: c.now().Add(c.ttl)}
}

func (c *MemoryCache) Purge(_ context.Context, didStr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, didStr)
}

// Evict removes all expired entries and reports how many were dropped.
func (c *MemoryCache) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	dropped := 0
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of cached documents, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

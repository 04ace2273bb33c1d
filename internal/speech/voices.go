package speech

import (
	"context"
	"sync"
	"time"
)

// CachedCatalog caches a successful upstream voice list for a fixed TTL.
// Fallback lists are not cached, so the catalog recovers as soon as the
// upstream does. This cache is independent of the rate-limit store.
type CachedCatalog struct {
	inner VoiceCatalog
	ttl   time.Duration

	mu        sync.RWMutex
	cached    *VoiceList
	expiresAt time.Time

	now func() time.Time
}

func NewCachedCatalog(inner VoiceCatalog, ttl time.Duration) *CachedCatalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedCatalog{inner: inner, ttl: ttl, now: time.Now}
}

func (c *CachedCatalog) List(ctx context.Context) (*VoiceList, error) {
	c.mu.RLock()
	if c.cached != nil && c.now().Before(c.expiresAt) {
		list := c.cached
		c.mu.RUnlock()
		return list, nil
	}
	c.mu.RUnlock()

	list, err := c.inner.List(ctx)
	if err != nil {
		return nil, err
	}

	if !list.Fallback {
		c.mu.Lock()
		c.cached = list
		c.expiresAt = c.now().Add(c.ttl)
		c.mu.Unlock()
	}
	return list, nil
}

// Purge drops the cached list. Used by the admin cache endpoint.
func (c *CachedCatalog) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
	c.expiresAt = time.Time{}
}

// Cached reports whether a live cached entry exists.
func (c *CachedCatalog) Cached() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cached != nil && c.now().Before(c.expiresAt)
}

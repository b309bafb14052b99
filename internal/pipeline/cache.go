package pipeline

import (
	"sync"
	"time"

	"lookupbot/internal/lookup"

	"github.com/google/uuid"
)

// CopyCache is the ephemeral token -> payload map behind the "copy"
// button. Entries live for at most the TTL and are consumed on first
// retrieval. Expiry is lazy: checked on Take and by the periodic sweep.
// Nothing survives a restart.
type CopyCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	payload   lookup.Envelope
	createdAt time.Time
}

func NewCopyCache(ttl time.Duration) *CopyCache {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &CopyCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Put stores the payload under a fresh opaque token and returns the token.
func (c *CopyCache) Put(payload lookup.Envelope) string {
	token := uuid.NewString()
	c.mu.Lock()
	c.entries[token] = cacheEntry{payload: payload, createdAt: c.now()}
	c.mu.Unlock()
	return token
}

// Take returns the payload for token and evicts it. A second Take, or one
// after the TTL elapsed, reports ok=false and leaves no residual entry.
func (c *CopyCache) Take(token string) (lookup.Envelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[token]
	if !ok {
		return nil, false
	}
	delete(c.entries, token)
	if c.now().Sub(entry.createdAt) >= c.ttl {
		return nil, false
	}
	return entry.payload, true
}

// Sweep evicts all expired entries and returns how many were removed.
func (c *CopyCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	cutoff := c.now().Add(-c.ttl)
	for token, entry := range c.entries {
		if !entry.createdAt.After(cutoff) {
			delete(c.entries, token)
			removed++
		}
	}
	return removed
}

// Len reports the number of live entries, expired or not.
func (c *CopyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

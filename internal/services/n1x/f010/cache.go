package f010

import (
	"sync"
	"time"
)

// DefaultTTL bounds how long a process remembers keys it issued.
const DefaultTTL = 24 * time.Hour

// KeyCache remembers recently issued keys per room for validation requests
// that cannot reach the issuing room. It is owned by whoever constructs it
// and injected into the validator; entries expire after the TTL.
type KeyCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	roomID    string
	expiresAt time.Time
}

// NewKeyCache returns a cache with the given TTL; non-positive values use DefaultTTL.
func NewKeyCache(ttl time.Duration) *KeyCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &KeyCache{ttl: ttl, now: time.Now, entries: make(map[string]cacheEntry)}
}

// Remember records key as issued by roomID.
func (c *KeyCache) Remember(roomID, key string) {
	if c == nil {
		return
	}
	key = NormalizeKey(key)
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{roomID: roomID, expiresAt: c.now().Add(c.ttl)}
	c.pruneLocked()
}

// Lookup reports the issuing room of a live key.
func (c *KeyCache) Lookup(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	key = NormalizeKey(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return entry.roomID, true
}

// Len returns the number of live entries.
func (c *KeyCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
	return len(c.entries)
}

func (c *KeyCache) pruneLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

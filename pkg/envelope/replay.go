package envelope

import (
	"context"
	"sync"
	"time"
)

// ReplayCache tracks accepted nonces per sender until their envelopes
// expire. Record returns false when the (sender, nonce) pair was already
// accepted. Implementations must be safe for concurrent use: a lost insert
// reopens a replay window.
type ReplayCache interface {
	Record(ctx context.Context, senderID, nonce string, expiresAt time.Time) (bool, error)
}

// MemoryReplayCache is a mutex-guarded in-process cache. Entries are evicted
// lazily once past their expiry, bounding the cache to the set of currently
// valid envelopes.
type MemoryReplayCache struct {
	mu    sync.Mutex
	seen  map[string]time.Time // "sender\x00nonce" -> expiry
	clock func() time.Time
}

func NewMemoryReplayCache() *MemoryReplayCache {
	return &MemoryReplayCache{seen: make(map[string]time.Time), clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (c *MemoryReplayCache) WithClock(clock func() time.Time) *MemoryReplayCache {
	c.clock = clock
	return c
}

func (c *MemoryReplayCache) Record(_ context.Context, senderID, nonce string, expiresAt time.Time) (bool, error) {
	key := senderID + "\x00" + nonce
	now := c.clock().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictLocked(now)
	if expiry, ok := c.seen[key]; ok && now.Before(expiry) {
		return false, nil
	}
	c.seen[key] = expiresAt
	return true, nil
}

// Len reports the number of live entries, for tests and metrics.
func (c *MemoryReplayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *MemoryReplayCache) evictLocked(now time.Time) {
	for key, expiry := range c.seen {
		if now.After(expiry) {
			delete(c.seen, key)
		}
	}
}

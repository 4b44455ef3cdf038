// ABOUTME: TTL cache for hiscores snapshots keyed by account name
// ABOUTME: Background cleanup goroutine prunes expired entries

package hiscores

import (
	"sync"
	"time"

	"github.com/runeclock/eventbot/internal/store"
)

type cacheEntry struct {
	snap *store.Snapshot
	at   time.Time
}

// snapshotCache is a thread-safe TTL cache for fetched snapshots. A zero TTL
// disables caching entirely.
type snapshotCache struct {
	mu     sync.RWMutex
	seen   map[string]cacheEntry
	ttl    time.Duration
	done   chan struct{}
	closed bool
}

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	c := &snapshotCache{
		seen: make(map[string]cacheEntry),
		ttl:  ttl,
		done: make(chan struct{}),
	}
	if ttl > 0 {
		go c.cleanup()
	}
	return c
}

func (c *snapshotCache) get(key string) (*store.Snapshot, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.seen[key]
	if !ok || time.Since(entry.at) >= c.ttl {
		return nil, false
	}
	return entry.snap, true
}

func (c *snapshotCache) put(key string, snap *store.Snapshot) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[key] = cacheEntry{snap: snap, at: time.Now()}
}

func (c *snapshotCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

func (c *snapshotCache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.seen {
		if now.Sub(entry.at) > c.ttl {
			delete(c.seen, key)
		}
	}
}

func (c *snapshotCache) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}

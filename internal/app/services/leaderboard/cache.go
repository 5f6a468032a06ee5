package leaderboard

import (
	"sync"
	"time"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/domain/activity"
	domain "github.com/PlayPark-Labs/engagement_engine/internal/app/domain/leaderboard"
)

// cache holds fully built boards for a bounded time. Staleness is bounded by
// the TTL alone: a new write never evicts an entry, and concurrent misses may
// build the same board twice. Both are accepted trade-offs at demo scale.
type cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[activity.Kind]cacheEntry
}

type cacheEntry struct {
	entries []domain.Entry
	builtAt time.Time
}

func newCache(ttl time.Duration, now func() time.Time) *cache {
	if now == nil {
		now = time.Now
	}
	return &cache{
		ttl:     ttl,
		now:     now,
		entries: make(map[activity.Kind]cacheEntry),
	}
}

func (c *cache) setClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now != nil {
		c.now = now
	}
}

// get returns the cached board and whether it is still fresh. Callers must
// treat the returned slice as read-only; pagination copies what it hands out.
func (c *cache) get(kind activity.Kind) ([]domain.Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[kind]
	if !ok || c.now().Sub(entry.builtAt) >= c.ttl {
		return nil, false
	}
	return entry.entries, true
}

func (c *cache) put(kind activity.Kind, entries []domain.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[kind] = cacheEntry{entries: entries, builtAt: c.now()}
}

package dedup

import "sync"

// DefaultLimit bounds the cache when the configuration does not.
const DefaultLimit = 1000

// Cache is a bounded ordered set of already-emitted event identifiers.
// Eviction is strict FIFO on insertion order, never LRU: membership tests
// do not reorder entries. The ring plus the membership map give O(1)
// insert, evict and lookup.
type Cache struct {
	mu      sync.RWMutex
	limit   int
	ring    []string
	head    int // index of the oldest entry
	count   int
	members map[string]struct{}
}

// New creates an empty cache holding at most limit identifiers.
func New(limit int) *Cache {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Cache{
		limit:   limit,
		ring:    make([]string, limit),
		members: make(map[string]struct{}, limit),
	}
}

// Restore rebuilds a cache from a persisted snapshot, oldest first. If the
// snapshot exceeds the limit only the newest entries are kept.
func Restore(ids []string, limit int) *Cache {
	c := New(limit)
	for _, id := range ids {
		c.Record(id)
	}
	return c
}

// Contains reports whether id has already been recorded.
func (c *Cache) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[id]
	return ok
}

// Record inserts id, evicting the oldest entries until the bound holds.
// Recording an identifier that is already present is a no-op so that the
// original insertion order is preserved.
func (c *Cache) Record(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.members[id]; ok {
		return
	}

	if c.count == c.limit {
		oldest := c.ring[c.head]
		delete(c.members, oldest)
		c.head = (c.head + 1) % c.limit
		c.count--
	}

	c.ring[(c.head+c.count)%c.limit] = id
	c.members[id] = struct{}{}
	c.count++
}

// Len returns the number of tracked identifiers.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

// Snapshot returns the tracked identifiers oldest first, for persistence.
func (c *Cache) Snapshot() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, c.count)
	for i := 0; i < c.count; i++ {
		out = append(out, c.ring[(c.head+i)%c.limit])
	}
	return out
}

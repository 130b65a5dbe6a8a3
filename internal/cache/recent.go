package cache

import (
	"container/list"
	"sync"
	"time"
)

// Recent remembers recently announced keys so the same announcement is not
// repeated within a time window. Entries expire after the TTL and the least
// recently seen entry is evicted once capacity is reached.
type Recent struct {
	capacity int
	ttl      time.Duration

	// LRU implementation
	items    map[string]*list.Element
	eviction *list.List

	mu    sync.Mutex
	stats Stats
}

type recentEntry struct {
	key  string
	seen time.Time
	hits int64
}

// Stats holds cache statistics.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Expired   int64
	ItemCount int
	Capacity  int
}

// NewRecent creates a cache holding at most capacity keys for ttl each.
func NewRecent(capacity int, ttl time.Duration) *Recent {
	if capacity <= 0 {
		capacity = 1
	}
	return &Recent{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
		stats:    Stats{Capacity: capacity},
	}
}

// Seen reports whether key was recorded within the TTL before now, and
// records it as seen at now. A hit does not extend the window.
func (c *Recent) Seen(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*recentEntry)
		if now.Sub(entry.seen) < c.ttl {
			c.eviction.MoveToFront(elem)
			entry.hits++
			c.stats.Hits++
			return true
		}
		c.stats.Expired++
		c.removeElement(elem)
	}

	c.stats.Misses++
	for c.eviction.Len() >= c.capacity {
		c.evictOldest()
	}
	c.items[key] = c.eviction.PushFront(&recentEntry{key: key, seen: now})
	return false
}

// Forget removes key so the next announcement is spoken again.
func (c *Recent) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Len returns the number of remembered keys, expired or not.
func (c *Recent) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

// Prune removes entries that expired before now.
func (c *Recent) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pruned := 0
	// Start from the back (oldest entries)
	elem := c.eviction.Back()
	for elem != nil {
		prev := elem.Prev()
		if now.Sub(elem.Value.(*recentEntry).seen) >= c.ttl {
			c.removeElement(elem)
			c.stats.Expired++
			pruned++
		}
		elem = prev
	}
	return pruned
}

// Stats returns cache statistics.
func (c *Recent) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.ItemCount = len(c.items)
	return stats
}

// evictOldest removes the least recently used item (must be called with lock held).
func (c *Recent) evictOldest() {
	if elem := c.eviction.Back(); elem != nil {
		c.removeElement(elem)
		c.stats.Evictions++
	}
}

// removeElement removes an element from the cache (must be called with lock held).
func (c *Recent) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	delete(c.items, elem.Value.(*recentEntry).key)
}

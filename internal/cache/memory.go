package cache

import (
	"container/list"
	"sync"
	"time"
)

// MemoryCache is the L1 cache: an LRU bounded by both total bytes and
// entry count.
type MemoryCache struct {
	capacity   int64 // Maximum size in bytes
	maxEntries int
	size       int64 // Current size in bytes

	// LRU implementation
	items    map[string]*list.Element
	eviction *list.List

	mu    sync.Mutex
	stats Stats
}

type memoryEntry struct {
	key       string
	value     []byte
	timestamp time.Time
}

// NewMemoryCache creates a memory cache. A maxEntries of zero leaves the
// entry count unbounded.
func NewMemoryCache(capacity int64, maxEntries int) *MemoryCache {
	return &MemoryCache{
		capacity:   capacity,
		maxEntries: maxEntries,
		items:      make(map[string]*list.Element),
		eviction:   list.New(),
	}
}

// Get retrieves a value and marks it most recently used.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	c.eviction.MoveToFront(elem)
	c.stats.Hits++
	return elem.Value.(*memoryEntry).value, true
}

// Put stores a value, evicting least recently used entries to make room.
func (c *MemoryCache) Put(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	valueSize := int64(len(value))
	if valueSize > c.capacity {
		return ErrItemTooLarge
	}

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}

	for c.eviction.Len() > 0 && (c.size+valueSize > c.capacity || c.full()) {
		c.evictOldest()
	}

	elem := c.eviction.PushFront(&memoryEntry{key: key, value: value, timestamp: time.Now()})
	c.items[key] = elem
	c.size += valueSize
	return nil
}

func (c *MemoryCache) full() bool {
	return c.maxEntries > 0 && c.eviction.Len() >= c.maxEntries
}

// Delete removes an entry from the cache.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Clear removes all entries from the cache.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.eviction.Init()
	c.size = 0
}

// Len returns the number of entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eviction.Len()
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Capacity = c.capacity
	stats.MaxEntries = c.maxEntries
	stats.Size = c.size
	stats.ItemCount = int64(len(c.items))
	stats.updateHitRate()
	return stats
}

// Prune removes entries stored longer ago than maxAge.
func (c *MemoryCache) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	pruned := 0

	for elem := c.eviction.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*memoryEntry).timestamp.Before(cutoff) {
			c.removeElement(elem)
			pruned++
		}
		elem = prev
	}
	return pruned
}

// evictOldest removes the least recently used item (must be called with lock held).
func (c *MemoryCache) evictOldest() {
	if elem := c.eviction.Back(); elem != nil {
		c.removeElement(elem)
		c.stats.Evictions++
		c.stats.LastEvict = time.Now()
	}
}

// removeElement removes an element from the cache (must be called with lock held).
func (c *MemoryCache) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	entry := elem.Value.(*memoryEntry)
	delete(c.items, entry.key)
	c.size -= int64(len(entry.value))
}

package store

import (
	"math"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Cache provides in-memory caching for payloads.
type Cache interface {
	Get(key string) ([]byte, bool)
	Add(key string, value []byte)
	Has(key string) bool
	Remove(key string)
	Clear()
	Len() int
}

// LRUCache evicts least recently used values once their total size exceeds
// maxBytes. A value larger than maxBytes is never stored.
type LRUCache struct {
	maxBytes int64
	size     int64
	lru      *simplelru.LRU[string, []byte]
	mu       sync.Mutex
}

// NewLRUCache creates a new LRU cache.
func NewLRUCache(maxBytes int64) *LRUCache {
	c := &LRUCache{maxBytes: maxBytes}
	// The entry count is unbounded; only the byte budget evicts.
	c.lru, _ = simplelru.NewLRU[string, []byte](math.MaxInt, c.evicted)
	return c
}

// evicted runs under c.mu for every value leaving the cache.
func (c *LRUCache) evicted(_ string, value []byte) {
	c.size -= int64(len(value))
}

// Get retrieves a value from the cache.
func (c *LRUCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

// Add adds a value to the cache, replacing any earlier value for key.
func (c *LRUCache) Add(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(key)
	n := int64(len(value))
	if n > c.maxBytes {
		return
	}
	for c.size+n > c.maxBytes {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
	c.lru.Add(key, value)
	c.size += n
}

// Has checks if a key exists in the cache without touching its recency.
func (c *LRUCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(key)
}

// Remove removes a key from the cache.
func (c *LRUCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Clear clears the cache.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Size returns the bytes held.
func (c *LRUCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

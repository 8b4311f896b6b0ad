package embed

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	scripterrors "github.com/trieloff/scriptrag/internal/errors"
)

// Cache strategies selectable through configuration.
const (
	CacheStrategyLRU = "lru"
	CacheStrategyTTL = "ttl"
)

// CacheStats is a point-in-time cache snapshot. Size is approximate:
// it counts vector payload bytes, not map or key overhead.
type CacheStats struct {
	Entries    int
	SizeBytes  int64
	Hits       uint64
	Misses     uint64
	MaxEntries int
}

// EmbeddingCache caches embeddings keyed by (content, model). Content
// is hashed, so arbitrarily long texts are fine as keys.
type EmbeddingCache interface {
	// Get returns the cached embedding for the content/model pair.
	Get(content, model string) ([]float32, bool)

	// Put stores an embedding for the content/model pair.
	Put(content, model string, vector []float32)

	// Clear empties the cache and returns how many entries it held.
	Clear() int

	// Stats returns a snapshot of cache occupancy and hit counters.
	Stats() CacheStats
}

// cacheKey hashes the pair so long scene texts stay cheap to key.
func cacheKey(content, model string) string {
	h := sha256.Sum256([]byte(model + "\x00" + content))
	return hex.EncodeToString(h[:])
}

// LRUCache is a size-bounded cache with least-recently-used eviction.
type LRUCache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, []float32]
	bytes   int64
	hits    uint64
	misses  uint64
	maxSize int
}

var _ EmbeddingCache = (*LRUCache)(nil)

// NewLRUCache creates a cache bounded to maxSize entries.
func NewLRUCache(maxSize int) (*LRUCache, error) {
	c := &LRUCache{maxSize: maxSize}
	entries, err := lru.NewWithEvict[string, []float32](maxSize, func(_ string, v []float32) {
		c.bytes -= int64(len(v)) * 4
	})
	if err != nil {
		return nil, scripterrors.ConfigError("invalid cache size", err)
	}
	c.entries = entries
	return c, nil
}

func (c *LRUCache) Get(content, model string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries.Get(cacheKey(content, model))
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

func (c *LRUCache) Put(content, model string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(content, model)
	if old, ok := c.entries.Peek(key); ok {
		c.bytes -= int64(len(old)) * 4
	}
	c.entries.Add(key, vector)
	c.bytes += int64(len(vector)) * 4
}

func (c *LRUCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.entries.Len()
	c.entries.Purge()
	c.bytes = 0
	return n
}

func (c *LRUCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Entries:    c.entries.Len(),
		SizeBytes:  c.bytes,
		Hits:       c.hits,
		Misses:     c.misses,
		MaxEntries: c.maxSize,
	}
}

// TTLCache is a size-bounded cache whose entries also expire after a
// fixed time to live.
type TTLCache struct {
	mu      sync.Mutex
	entries *expirable.LRU[string, []float32]
	hits    uint64
	misses  uint64
	maxSize int
}

var _ EmbeddingCache = (*TTLCache)(nil)

// NewTTLCache creates a cache bounded to maxSize entries with the
// given time to live. A zero ttl disables expiry.
func NewTTLCache(maxSize int, ttl time.Duration) *TTLCache {
	return &TTLCache{
		entries: expirable.NewLRU[string, []float32](maxSize, nil, ttl),
		maxSize: maxSize,
	}
}

func (c *TTLCache) Get(content, model string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries.Get(cacheKey(content, model))
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

func (c *TTLCache) Put(content, model string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(cacheKey(content, model), vector)
}

func (c *TTLCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.entries.Len()
	c.entries.Purge()
	return n
}

func (c *TTLCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var bytes int64
	for _, key := range c.entries.Keys() {
		if v, ok := c.entries.Peek(key); ok {
			bytes += int64(len(v)) * 4
		}
	}
	return CacheStats{
		Entries:    c.entries.Len(),
		SizeBytes:  bytes,
		Hits:       c.hits,
		Misses:     c.misses,
		MaxEntries: c.maxSize,
	}
}

// NewCache builds a cache for the configured strategy.
func NewCache(strategy string, maxSize int, ttl time.Duration) (EmbeddingCache, error) {
	switch strategy {
	case CacheStrategyLRU, "":
		return NewLRUCache(maxSize)
	case CacheStrategyTTL:
		return NewTTLCache(maxSize, ttl), nil
	default:
		return nil, scripterrors.ConfigError("unknown cache strategy", nil).
			WithDetail("strategy", strategy)
	}
}

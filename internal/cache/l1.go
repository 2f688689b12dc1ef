package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/monitoring"
)

// L1Cache is the process-local decision tier: a size-bounded LRU with a
// short per-entry TTL. Prefix purges walk the key set; the entry count is
// small enough (10k default) that a scan stays cheap.
type L1Cache struct {
	lru *expirable.LRU[string, *models.CachedDecision]

	mu     sync.Mutex
	hits   uint64
	misses uint64
}

func NewL1Cache(maxEntries int, ttl time.Duration) *L1Cache {
	return &L1Cache{
		lru: expirable.NewLRU[string, *models.CachedDecision](maxEntries, nil, ttl),
	}
}

func (c *L1Cache) Get(key string) (*models.CachedDecision, bool) {
	v, ok := c.lru.Get(key)
	c.mu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
	if ok {
		monitoring.RecordCacheHit("l1")
	} else {
		monitoring.RecordCacheMiss("l1")
	}
	return v, ok
}

func (c *L1Cache) Set(key string, d *models.CachedDecision) {
	c.lru.Add(key, d)
}

func (c *L1Cache) Delete(key string) {
	c.lru.Remove(key)
}

// DeleteByPrefix removes every entry whose key starts with prefix and
// returns how many were removed.
func (c *L1Cache) DeleteByPrefix(prefix string) int {
	var removed int
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

func (c *L1Cache) Purge() {
	c.lru.Purge()
}

func (c *L1Cache) Len() int {
	return c.lru.Len()
}

// Stats reports cumulative hit/miss counters and the current entry count.
func (c *L1Cache) Stats() L1Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return L1Stats{Hits: c.hits, Misses: c.misses, Entries: c.lru.Len()}
}

type L1Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

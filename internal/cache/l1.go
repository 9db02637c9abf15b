package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// L1Cache is a process-local, exact-LRU, TTL-bounded cache for one named
// query's results. Ported in spirit from pkg/history/cache/l1_cache.go's
// cacheEntry/evictOldest shape, but backed by
// hashicorp/golang-lru/v2/expirable instead of that file's linear scan
// over a map (which the teacher itself marks with a "Replace with
// Ristretto" TODO) so eviction order is exactly least-recently-used.
type L1Cache struct {
	lru *expirable.LRU[string, []byte]
}

func NewL1Cache(maxEntries int, ttl time.Duration) *L1Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &L1Cache{lru: expirable.NewLRU[string, []byte](maxEntries, nil, ttl)}
}

func (c *L1Cache) Get(key string) ([]byte, bool) {
	return c.lru.Get(key)
}

func (c *L1Cache) Set(key string, value []byte) {
	c.lru.Add(key, value)
}

func (c *L1Cache) Delete(key string) {
	c.lru.Remove(key)
}

func (c *L1Cache) Len() int {
	return c.lru.Len()
}

// Purge evicts every entry, used when an invalidation rule targets a
// whole cache rather than a single key or pattern.
func (c *L1Cache) Purge() {
	c.lru.Purge()
}

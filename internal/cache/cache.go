// Package cache provides a small TTL cache on top of an LRU.
package cache

import (
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

// Cache stores values for a limited time. Implementations are safe for
// concurrent use.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
}

type entry struct {
	value   any
	expires time.Time
}

// LRU is a Cache bounded in size. Expired entries are dropped on read.
type LRU struct {
	mu  sync.Mutex
	lru *lru.Cache
	now func() time.Time
}

// NewLRU returns a cache holding at most maxEntries values. Zero means no
// limit.
func NewLRU(maxEntries int) *LRU {
	return &LRU{lru: lru.New(maxEntries), now: time.Now}
}

// Get implements Cache.
func (c *LRU) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	e := v.(entry)
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.value, true
}

// Set implements Cache. A non-positive ttl never expires.
func (c *LRU) Set(key string, value any, ttl time.Duration) {
	e := entry{value: value}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.lru.Add(key, e)
}

// Len returns the number of entries, expired ones included.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

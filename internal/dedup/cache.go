// Package dedup keeps a short-lived set of recently seen message IDs so
// hub retries never reach subscribers twice. Eviction is lazy on lookup
// with an optional periodic sweep; the TTL must exceed the hub's retry
// window.
package dedup

import (
	"sync"
	"time"
)

const DefaultTTL = time.Minute

type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time // id -> expiry
	stop    chan struct{}
	once    sync.Once

	now func() time.Time // test hook
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
}

// Seen reports whether id was remembered within the TTL. Expired entries
// are dropped on lookup.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.entries[id]
	if !ok {
		return false
	}
	if c.now().After(exp) {
		delete(c.entries, id)
		return false
	}
	return true
}

func (c *Cache) Remember(id string) {
	c.mu.Lock()
	c.entries[id] = c.now().Add(c.ttl)
	c.mu.Unlock()
}

// Sweep removes all expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	dropped := 0
	for id, exp := range c.entries {
		if now.After(exp) {
			delete(c.entries, id)
			dropped++
		}
	}
	return dropped
}

// StartSweeper runs Sweep every interval until Stop.
func (c *Cache) StartSweeper(interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-t.C:
				c.Sweep()
			}
		}
	}()
}

func (c *Cache) Stop() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

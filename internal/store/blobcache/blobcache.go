// Package blobcache is a client-side, TTL-evicted in-memory cache of
// fetched blobs, so a history-mode client doesn't round-trip the store for
// a blob it already downloaded. Grounded on daemon/src/remote.rs's
// RemoteHandler.blobs_cache / handle_recycle_cache (Supplement C.2).
package blobcache

import (
	"sync"
	"time"
)

type entry struct {
	blob   []byte
	expire time.Time
}

// Cache holds recently fetched blobs keyed by resource ID, evicting each
// entry ttl after it was stored.
type Cache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[int64]entry

	stop chan struct{}
	once sync.Once
}

// New starts a Cache with the given TTL and a background sweep every ttl,
// mirroring the Rust handler's `recycle_cache_intv` ticking once per
// cache_seconds.
func New(ttl time.Duration) *Cache {
	c := &Cache{
		ttl:   ttl,
		items: make(map[int64]entry),
		stop:  make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep(time.Now())
		}
	}
}

func (c *Cache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.items {
		if now.After(e.expire) {
			delete(c.items, id)
		}
	}
}

// Get returns the cached blob for id, if present and not yet expired.
func (c *Cache) Get(id int64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[id]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expire) {
		return nil, false
	}
	return e.blob, true
}

// Put stores blob under id, resetting its expiry.
func (c *Cache) Put(id int64, blob []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[id] = entry{blob: blob, expire: time.Now().Add(c.ttl)}
}

// Invalidate removes id, called on delete events the way handle_event
// clears blobs_cache for every deleted item.
func (c *Cache) Invalidate(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
}

// Close stops the background sweep goroutine.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

package identity

import (
	"sort"
	"sync"
	"time"

	"github.com/andrewgari/starbunk-js-sub002/replybot"
)

type stopper interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) stopper

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

type cacheEntry struct {
	identity   replybot.Identity
	memberID   string
	insertedAt time.Time
	gen        uint64
	timer      stopper
}

// cache holds one entry per key. Every write gets its own generation so an
// expiry timer scheduled for an older write never removes a newer entry.
type cache struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	afterFunc afterFunc
	gen       uint64
	entries   map[string]*cacheEntry
}

func newCache(ttl time.Duration, now func() time.Time, af afterFunc) *cache {
	return &cache{
		ttl:       ttl,
		now:       now,
		afterFunc: af,
		entries:   map[string]*cacheEntry{},
	}
}

func (c *cache) get(key string) (replybot.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return replybot.Identity{}, false
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		c.removeLocked(key)
		return replybot.Identity{}, false
	}
	return e.identity, true
}

func (c *cache) put(key, memberID string, id replybot.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key]; ok && old.timer != nil {
		old.timer.Stop()
	}
	c.gen++
	gen := c.gen
	e := &cacheEntry{
		identity:   id,
		memberID:   memberID,
		insertedAt: c.now(),
		gen:        gen,
	}
	c.entries[key] = e
	e.timer = c.afterFunc(c.ttl, func() { c.expire(key, gen) })
}

func (c *cache) expire(key string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.gen == gen {
		delete(c.entries, key)
	}
}

func (c *cache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		c.removeLocked(key)
	}
}

func (c *cache) clearMember(memberID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, e := range c.entries {
		if e.memberID == memberID {
			c.removeLocked(key)
			n++
		}
	}
	return n
}

func (c *cache) stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return Stats{Size: len(keys), Keys: keys}
}

func (c *cache) removeLocked(key string) {
	if e, ok := c.entries[key]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(c.entries, key)
	}
}

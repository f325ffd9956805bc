// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package cache provides the bounded deduplication cache used by ingest
// paths. Webhook deliveries and now-playing observations can repeat; the LRU
// remembers recently seen keys within a TTL window so repeats are dropped
// without unbounded growth.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	key       string
	seenAt    time.Time
	expiresAt time.Time
	prev      *entry
	next      *entry
}

// LRU is a thread-safe least-recently-used cache of string keys with TTL.
// Get, Seen, and eviction are O(1): a doubly-linked list keeps recency order
// and a map gives direct lookup.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*entry

	// head.next is the most recently used; tail.prev the least.
	head *entry
	tail *entry
}

// NewLRU creates a cache holding at most capacity keys for at most ttl each.
func NewLRU(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &LRU{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*entry, capacity),
		head:     &entry{},
		tail:     &entry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Seen reports whether key was recorded within the TTL window, recording it
// if it was not. This is the deduplication primitive: the first call for a
// key returns false, repeats within the TTL return true.
func (c *LRU) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e, ok := c.items[key]; ok {
		if now.Before(e.expiresAt) {
			c.moveToFront(e)
			return true
		}
		c.remove(e)
	}

	e := &entry{key: key, seenAt: now, expiresAt: now.Add(c.ttl)}
	c.pushFront(e)
	c.items[key] = e
	for len(c.items) > c.capacity {
		c.remove(c.tail.prev)
	}
	return false
}

// Get returns when key was last recorded, if it is present and unexpired.
func (c *LRU) Get(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return time.Time{}, false
	}
	if !time.Now().Before(e.expiresAt) {
		c.remove(e)
		return time.Time{}, false
	}
	c.moveToFront(e)
	return e.seenAt, true
}

// Remove deletes key, reporting whether it was present.
func (c *LRU) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.remove(e)
		return true
	}
	return false
}

// Len returns the number of entries, counting any not-yet-collected expired
// ones.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Purge drops expired entries eagerly. Callers with a housekeeping tick can
// use this to reclaim memory between natural evictions.
func (c *LRU) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for e := c.tail.prev; e != c.head; {
		prev := e.prev
		if !now.Before(e.expiresAt) {
			c.remove(e)
			removed++
		}
		e = prev
	}
	return removed
}

func (c *LRU) pushFront(e *entry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *LRU) moveToFront(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	c.pushFront(e)
}

func (c *LRU) remove(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(c.items, e.key)
}

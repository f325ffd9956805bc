// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLRU_Seen(t *testing.T) {
	c := NewLRU(10, time.Minute)

	if c.Seen("a") {
		t.Error("First observation reported as seen")
	}
	if !c.Seen("a") {
		t.Error("Repeat observation not reported as seen")
	}
	if c.Seen("b") {
		t.Error("Distinct key reported as seen")
	}
}

func TestLRU_Eviction(t *testing.T) {
	c := NewLRU(3, time.Minute)

	c.Seen("a")
	c.Seen("b")
	c.Seen("c")

	// Touch "a" so "b" becomes least recently used.
	c.Seen("a")
	c.Seen("d")

	if _, ok := c.Get("b"); ok {
		t.Error("Expected 'b' to be evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("Expected %q to be present", k)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len = %d, want 3", c.Len())
	}
}

func TestLRU_TTLExpiration(t *testing.T) {
	c := NewLRU(10, 30*time.Millisecond)

	c.Seen("a")
	time.Sleep(50 * time.Millisecond)

	if c.Seen("a") {
		t.Error("Expired key still reported as seen")
	}
}

func TestLRU_Purge(t *testing.T) {
	c := NewLRU(10, 20*time.Millisecond)

	c.Seen("a")
	c.Seen("b")
	time.Sleep(40 * time.Millisecond)
	c.Seen("c")

	if removed := c.Purge(); removed != 2 {
		t.Errorf("Purge removed %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU(100, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Seen(fmt.Sprintf("key-%d-%d", n, j%50))
				c.Get(fmt.Sprintf("key-%d-%d", n, j%50))
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 100 {
		t.Errorf("Len = %d exceeds capacity", c.Len())
	}
}

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLRUCache(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"SetAndGet", testSetAndGet},
		{"GetMiss", testGetMiss},
		{"GetExpired", testGetExpired},
		{"EvictsLeastRecentlyUsed", testEvictsLeastRecentlyUsed},
		{"InvalidateRemovesEntry", testInvalidateRemovesEntry},
		{"InvalidateAllClearsCache", testInvalidateAllClearsCache},
		{"SetUpdatesExisting", testSetUpdatesExisting},
		{"SetIfGenerationDropsStale", testSetIfGenerationDropsStale},
		{"ConcurrentAccess", testConcurrentAccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func entryOf(s string) Entry {
	return Entry{Body: []byte(s), ContentType: "application/json"}
}

func testSetAndGet(t *testing.T) {
	c := NewLRUCache(10, 5*time.Second)
	c.Set("key1", entryOf("value1"))

	got, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected cache hit, got miss")
	}
	if string(got.Body) != "value1" || got.ContentType != "application/json" {
		t.Fatalf("unexpected entry %+v", got)
	}
}

func testGetMiss(t *testing.T) {
	c := NewLRUCache(10, 5*time.Second)
	if _, ok := c.Get("nonexistent"); ok {
		t.Fatal("expected cache miss, got hit")
	}
}

func testGetExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache(10, time.Second)
	c.now = func() time.Time { return now }
	c.Set("key1", entryOf("value1"))

	if _, ok := c.Get("key1"); !ok {
		t.Fatal("expected hit before expiry")
	}
	now = now.Add(2 * time.Second)
	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected miss after expiry")
	}
	if c.Size() != 0 {
		t.Fatalf("expected expired entry to be dropped, size %d", c.Size())
	}
}

func testEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache(2, 5*time.Second)
	c.Set("a", entryOf("1"))
	c.Set("b", entryOf("2"))

	// Touch a so b becomes the least recently used.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be cached")
	}
	c.Set("c", entryOf("3"))

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to survive")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("expected c to be cached")
	}
}

func testInvalidateRemovesEntry(t *testing.T) {
	c := NewLRUCache(10, 5*time.Second)
	c.Set("key1", entryOf("v"))
	c.Invalidate("key1")
	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected miss after invalidate")
	}
	c.Invalidate("missing")
}

func testInvalidateAllClearsCache(t *testing.T) {
	c := NewLRUCache(10, 5*time.Second)
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), entryOf("v"))
	}
	c.InvalidateAll()
	if c.Size() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Size())
	}
	c.Set("k", entryOf("v"))
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected cache usable after InvalidateAll")
	}
}

func testSetUpdatesExisting(t *testing.T) {
	c := NewLRUCache(10, 5*time.Second)
	c.Set("key1", entryOf("old"))
	c.Set("key1", entryOf("new"))

	got, _ := c.Get("key1")
	if string(got.Body) != "new" {
		t.Fatalf("expected updated value, got %q", got.Body)
	}
	if c.Size() != 1 {
		t.Fatalf("expected size 1, got %d", c.Size())
	}
}

func testConcurrentAccess(t *testing.T) {
	c := NewLRUCache(50, 5*time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (n+j)%80)
				c.Set(key, entryOf("v"))
				c.Get(key)
				if j%25 == 0 {
					c.InvalidateAll()
				}
			}
		}(i)
	}
	wg.Wait()
	if c.Size() > 50 {
		t.Fatalf("cache grew past max size: %d", c.Size())
	}
}

func testSetIfGenerationDropsStale(t *testing.T) {
	c := NewLRUCache(10, 5*time.Second)
	gen := c.Generation()
	if !c.SetIfGeneration("key1", entryOf("fresh"), gen) {
		t.Fatal("expected store at current generation")
	}

	c.InvalidateAll()
	if c.SetIfGeneration("key2", entryOf("stale"), gen) {
		t.Fatal("expected stale generation to be rejected")
	}
	if _, ok := c.Get("key2"); ok {
		t.Fatal("stale entry was stored")
	}
	if !c.SetIfGeneration("key2", entryOf("fresh"), c.Generation()) {
		t.Fatal("expected store at new generation")
	}
}

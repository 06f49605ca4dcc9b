package cache

import (
	"sort"
	"sync"
	"testing"
	"time"
)

// TestCache_New tests cache creation.
func TestCache_New(t *testing.T) {
	c := New[string](5*time.Minute, 10*time.Minute)
	if c == nil {
		t.Fatal("New() returned nil")
	}
	if c.store == nil {
		t.Error("cache store not initialized")
	}
}

// TestCache_BasicOperations tests Get and Set.
func TestCache_BasicOperations(t *testing.T) {
	c := New[string](5*time.Minute, 10*time.Minute)

	t.Run("Set and Get", func(t *testing.T) {
		c.Set("key1", "value1")

		val, found := c.Get("key1")
		if !found {
			t.Error("expected key1 to be found")
		}
		if val != "value1" {
			t.Errorf("expected value1, got %v", val)
		}
	})

	t.Run("Get non-existent key", func(t *testing.T) {
		val, found := c.Get("nonexistent")
		if found || val != "" {
			t.Error("expected nonexistent key to not be found")
		}
	})

	t.Run("Set overwrites", func(t *testing.T) {
		c.Set("key1", "value2")
		if val, _ := c.Get("key1"); val != "value2" {
			t.Errorf("expected value2, got %v", val)
		}
		if c.ItemCount() != 1 {
			t.Errorf("expected 1 item, got %d", c.ItemCount())
		}
	})
}

// TestCache_Touch tests that Touch extends expiry.
func TestCache_Touch(t *testing.T) {
	c := New[int](60*time.Millisecond, time.Minute)
	c.Set("k", 1)

	time.Sleep(40 * time.Millisecond)
	if !c.Touch("k") {
		t.Fatal("expected Touch to find key")
	}
	time.Sleep(40 * time.Millisecond)

	if _, found := c.Get("k"); !found {
		t.Error("expected touched key to survive")
	}
	if c.Touch("missing") {
		t.Error("expected Touch on missing key to fail")
	}
}

// TestCache_Add tests insert-if-absent semantics.
func TestCache_Add(t *testing.T) {
	type ring struct{ n int }
	c := New[*ring](time.Minute, time.Minute)

	first, added := c.Add("topic", &ring{n: 1})
	if !added || first.n != 1 {
		t.Fatal("expected first Add to insert")
	}
	second, added := c.Add("topic", &ring{n: 2})
	if added || second != first {
		t.Error("expected second Add to return existing value")
	}
}

// TestCache_KeysAndExpiry tests Keys and the expiry callback.
func TestCache_KeysAndExpiry(t *testing.T) {
	c := New[string](30*time.Millisecond, 10*time.Millisecond)

	var mu sync.Mutex
	evicted := map[string]string{}
	c.OnEvicted(func(k, v string) {
		mu.Lock()
		evicted[k] = v
		mu.Unlock()
	})

	c.Set("a", "1")
	c.Set("b", "2")
	keys := c.Keys()
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("unexpected keys %v", keys)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(evicted)
		mu.Unlock()
		if n == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if evicted["a"] != "1" || evicted["b"] != "2" {
		t.Errorf("expected expiry callbacks for a and b, got %v", evicted)
	}
	if got := c.ItemCount(); got != 0 {
		t.Errorf("expected expired items swept, got %d", got)
	}
}

// TestCache_Concurrency tests concurrent access.
func TestCache_Concurrency(t *testing.T) {
	c := New[int](time.Minute, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set("k", j)
				c.Get("k")
				c.Touch("k")
			}
		}(i)
	}
	wg.Wait()
	if _, found := c.Get("k"); !found {
		t.Error("expected key to exist")
	}
}

package lru

import "testing"

func TestPutAndGet(t *testing.T) {
	c := New[string, int](3)

	c.Put("a", 1)
	c.Put("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("expected a=1, got %d (present=%v)", v, ok)
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Errorf("expected b=2, got %d (present=%v)", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}
	if c.Len() != 2 {
		t.Errorf("expected length 2, got %d", c.Len())
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3) // evicts a, the oldest

	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to survive")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to survive")
	}
	if c.Len() != 2 {
		t.Errorf("expected length 2, got %d", c.Len())
	}
}

func TestGetRefreshesRecency(t *testing.T) {
	c := New[string, int](2)

	c.Put("a", 1)
	c.Put("b", 2)

	// Touch a so b becomes the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a present")
	}

	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to survive after being touched")
	}
}

func TestPutUpdatesExistingKey(t *testing.T) {
	c := New[string, int](2)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("a", 10) // update, not insert; also refreshes a

	if c.Len() != 2 {
		t.Fatalf("expected length 2 after update, got %d", c.Len())
	}
	if v, _ := c.Get("a"); v != 10 {
		t.Errorf("expected updated value 10, got %d", v)
	}

	c.Put("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted, not the updated a")
	}
}

func TestContainsDoesNotRefresh(t *testing.T) {
	c := New[string, int](2)

	c.Put("a", 1)
	c.Put("b", 2)

	// Contains must not promote a, so a is still the eviction candidate.
	if !c.Contains("a") {
		t.Fatal("expected a present")
	}

	c.Put("c", 3)
	if c.Contains("a") {
		t.Error("expected a to be evicted despite Contains check")
	}
}

func TestDelete(t *testing.T) {
	c := New[string, int](2)

	c.Put("a", 1)
	c.Delete("a")
	c.Delete("never-stored") // no-op

	if c.Contains("a") {
		t.Error("expected a gone after Delete")
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got length %d", c.Len())
	}

	// Deleted slot is reusable without triggering eviction.
	c.Put("b", 2)
	c.Put("c", 3)
	if !c.Contains("b") || !c.Contains("c") {
		t.Error("expected both entries to fit after delete")
	}
}

func TestStructKeys(t *testing.T) {
	type stationYear struct {
		Station string
		Year    int
	}

	c := New[stationYear, []float64](2)
	c.Put(stationYear{"47662", 2019}, []float64{1.5, 2.5})

	got, ok := c.Get(stationYear{"47662", 2019})
	if !ok || len(got) != 2 {
		t.Fatalf("expected cached slice of length 2, got %v (present=%v)", got, ok)
	}
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for zero capacity")
		}
	}()
	New[string, int](0)
}

package dynamic

import "testing"

func TestKey_DistinctAcrossSeparators(t *testing.T) {
	a := key{entity: "a/b", tenant: "c"}
	b := key{entity: "a", tenant: "b/c"}
	if a.String() == b.String() {
		t.Fatalf("keys collide: %q", a.String())
	}

	c := NewCache()
	fa, _ := c.flight(a)
	fb, _ := c.flight(b)
	if fa == fb {
		t.Errorf("flight keys collide: %q", fa)
	}
}

func TestCache_EvictAdvancesGeneration(t *testing.T) {
	c := NewCache()
	k := key{entity: "transactions", tenant: "c1"}

	stale, gen := c.flight(k)
	if got := c.evict(k); got != stale {
		t.Errorf("evict returned %q, want %q", got, stale)
	}
	if c.markReady(k, gen) {
		t.Error("a pass from an evicted generation marked the key ready")
	}
	if c.isReady(k) {
		t.Fatal("key ready after evict")
	}

	next, gen2 := c.flight(k)
	if next == stale {
		t.Error("flight key did not change after evict")
	}
	if !c.markReady(k, gen2) || !c.isReady(k) {
		t.Error("current generation could not mark the key ready")
	}
}

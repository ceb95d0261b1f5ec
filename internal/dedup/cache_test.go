package dedup

import (
	"testing"
	"time"
)

func TestSeenWithinTTL(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	if c.Seen("m1") {
		t.Fatal("fresh cache reports m1 seen")
	}
	c.Remember("m1")
	if !c.Seen("m1") {
		t.Fatal("m1 not seen after Remember")
	}
	if c.Seen("m2") {
		t.Fatal("m2 seen without Remember")
	}
}

func TestExpiry(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Remember("m1")

	c.now = func() time.Time { return base.Add(30 * time.Second) }
	if !c.Seen("m1") {
		t.Fatal("m1 expired before TTL")
	}

	c.now = func() time.Time { return base.Add(61 * time.Second) }
	if c.Seen("m1") {
		t.Fatal("m1 still seen after TTL")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry not evicted, len=%d", c.Len())
	}
}

func TestSweep(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Remember("a")
	c.Remember("b")
	c.Remember("c")

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	if got := c.Sweep(); got != 3 {
		t.Fatalf("Sweep dropped %d, want 3", got)
	}
	if c.Len() != 0 {
		t.Fatalf("len=%d after sweep", c.Len())
	}
}

func TestDuplicateDeliveredOnce(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	delivered := 0
	deliver := func(id string) {
		if c.Seen(id) {
			return
		}
		c.Remember(id)
		delivered++
	}

	// Network retry: same id twice in quick succession.
	deliver("m1")
	deliver("m1")
	deliver("m1")
	if delivered != 1 {
		t.Fatalf("delivered %d times, want 1", delivered)
	}
}

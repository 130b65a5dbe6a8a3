package cache

import (
	"testing"
	"time"
)

func TestRecent_SeenWithinTTL(t *testing.T) {
	c := NewRecent(10, time.Second)
	now := time.Unix(1000, 0)

	if c.Seen("a", now) {
		t.Error("Expected first sighting to be a miss")
	}
	if !c.Seen("a", now.Add(500*time.Millisecond)) {
		t.Error("Expected repeat within TTL to be a hit")
	}
	if c.Seen("a", now.Add(2*time.Second)) {
		t.Error("Expected repeat after TTL to be a miss")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 2 || stats.Expired != 1 {
		t.Errorf("Expected 1 hit, 2 misses, 1 expired, got %+v", stats)
	}
}

func TestRecent_HitDoesNotExtendWindow(t *testing.T) {
	c := NewRecent(10, time.Second)
	now := time.Unix(1000, 0)

	c.Seen("a", now)
	c.Seen("a", now.Add(900*time.Millisecond))
	if c.Seen("a", now.Add(1100*time.Millisecond)) {
		t.Error("Expected window to be measured from the first sighting")
	}
}

func TestRecent_EvictsLeastRecent(t *testing.T) {
	c := NewRecent(2, time.Hour)
	now := time.Unix(1000, 0)

	c.Seen("a", now)
	c.Seen("b", now)
	c.Seen("a", now) // a is now most recent
	c.Seen("c", now) // evicts b

	if c.Len() != 2 {
		t.Errorf("Expected 2 items, got %d", c.Len())
	}
	if !c.Seen("a", now) {
		t.Error("Expected a to survive eviction")
	}
	if c.Seen("b", now) {
		t.Error("Expected b to have been evicted")
	}
	if c.Stats().Evictions < 1 {
		t.Errorf("Expected evictions, got %+v", c.Stats())
	}
}

func TestRecent_Forget(t *testing.T) {
	c := NewRecent(10, time.Hour)
	now := time.Unix(1000, 0)

	c.Seen("a", now)
	c.Forget("a")
	if c.Seen("a", now) {
		t.Error("Expected forgotten key to be a miss")
	}
}

func TestRecent_Prune(t *testing.T) {
	c := NewRecent(10, time.Second)
	now := time.Unix(1000, 0)

	c.Seen("old", now)
	c.Seen("new", now.Add(1500*time.Millisecond))

	if pruned := c.Prune(now.Add(2 * time.Second)); pruned != 1 {
		t.Errorf("Expected 1 pruned, got %d", pruned)
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 item left, got %d", c.Len())
	}
}

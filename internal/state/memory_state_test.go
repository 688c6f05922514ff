package state

import (
	"fmt"
	"sync"
	"testing"

	"github.com/auto-dns/nodehostd/internal/domain"
)

func TestStatusCacheBasics(t *testing.T) {
	c := NewStatusCache()
	if _, ok := c.Get("web1"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set("web1", domain.StateStopped)
	if st, ok := c.Get("web1"); !ok || st != domain.StateStopped {
		t.Fatalf("Get = %s, %v", st, ok)
	}
	if !c.Update("web1", domain.StateRunning) {
		t.Fatal("Update on known name should succeed")
	}
	if st, _ := c.Get("web1"); st != domain.StateRunning {
		t.Fatalf("state = %s", st)
	}
	if !c.Remove("web1") {
		t.Fatal("Remove should report true")
	}
	if c.Remove("web1") {
		t.Fatal("second Remove should report false")
	}
}

func TestUpdateDoesNotResurrect(t *testing.T) {
	c := NewStatusCache()
	if c.Update("ghost", domain.StateUnknown) {
		t.Fatal("Update must not create entries")
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d", c.Len())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	c := NewStatusCache()
	c.Set("a", domain.StateRunning)
	c.Set("b", domain.StateStopped)
	snap := c.Snapshot()
	snap["a"] = domain.StateUnknown
	delete(snap, "b")
	if st, _ := c.Get("a"); st != domain.StateRunning {
		t.Fatal("snapshot mutation leaked into cache")
	}
	if c.Len() != 2 {
		t.Fatal("snapshot delete leaked into cache")
	}
	names := c.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("Names = %v", names)
	}
	entries := c.Entries()
	if entries[0].Name != "a" || entries[0].LastUpdated.IsZero() {
		t.Fatalf("Entries = %+v", entries)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := NewStatusCache()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("c%d", i%4)
			for j := 0; j < 200; j++ {
				c.Set(name, domain.StateRunning)
				c.Update(name, domain.StateStopped)
				c.Snapshot()
				c.Get(name)
				if j%50 == 0 {
					c.Remove(name)
				}
			}
		}(i)
	}
	wg.Wait()
	if c.Len() > 4 {
		t.Fatalf("Len = %d, want at most 4", c.Len())
	}
}

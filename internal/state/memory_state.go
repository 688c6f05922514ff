package state

import (
	"sort"
	"sync"
	"time"

	"github.com/auto-dns/nodehostd/internal/domain"
)

// StatusCache stores the last-known state of every container this node owns.
// Each method holds the lock for a single map operation only.
type StatusCache struct {
	mu         sync.RWMutex
	containers map[string]Entry
	now        func() time.Time
}

func NewStatusCache() *StatusCache {
	return &StatusCache{
		containers: make(map[string]Entry),
		now:        time.Now,
	}
}

func (s *StatusCache) Get(name string) (domain.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.containers[name]
	return e.State, ok
}

// Set inserts or overwrites the state for a container.
func (s *StatusCache) Set(name string, state domain.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.containers[name] = Entry{Name: name, State: state, LastUpdated: s.now()}
}

// Update overwrites the state only if the container is already known. It
// reports whether the write happened.
func (s *StatusCache) Update(name string, state domain.State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.containers[name]; !exists {
		return false
	}
	s.containers[name] = Entry{Name: name, State: state, LastUpdated: s.now()}
	return true
}

func (s *StatusCache) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.containers[name]; !exists {
		return false
	}
	delete(s.containers, name)
	return true
}

// Snapshot returns a copy of every known (name, state) pair.
func (s *StatusCache) Snapshot() map[string]domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.State, len(s.containers))
	for name, e := range s.containers {
		out[name] = e.State
	}
	return out
}

// Entries returns a copy of all entries sorted by name.
func (s *StatusCache) Entries() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.containers))
	for _, e := range s.containers {
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the known container names in sorted order.
func (s *StatusCache) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.containers))
	for name := range s.containers {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (s *StatusCache) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.containers)
}

package gate

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is the default single-process sender-activity store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]time.Time)}
}

func (s *MemoryStore) LastActivity(_ context.Context, sender string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lastActivity, found := s.entries[sender]
	return lastActivity, found, nil
}

func (s *MemoryStore) Touch(_ context.Context, sender string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[sender] = at
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for sender, lastActivity := range s.entries {
		if !lastActivity.After(cutoff) {
			delete(s.entries, sender)
			removed++
		}
	}
	return removed, nil
}

// Len reports the current entry count. Used by tests and sweep diagnostics.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

package token

import (
	"sync"
	"time"
)

// pruneHighWater triggers an inline prune on consume once a set grows past it.
const pruneHighWater = 4096

// usedSet records consumed token ids until their expiry.
type usedSet struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func newUsedSet() *usedSet {
	return &usedSet{entries: make(map[string]time.Time)}
}

// consume marks id as used. Checking and marking happen under one lock so two concurrent
// callers can never both succeed for the same id.
func (s *usedSet) consume(id string, expiresAt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, used := s.entries[id]; used {
		return ErrAlreadyUsed
	}
	if len(s.entries) >= pruneHighWater {
		s.pruneLocked(now)
	}
	s.entries[id] = expiresAt
	return nil
}

func (s *usedSet) prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked(now)
}

// pruneLocked drops ids whose token has expired; an expired token fails verification on its
// own, so forgetting it cannot reopen a replay.
func (s *usedSet) pruneLocked(now time.Time) int {
	removed := 0
	for id, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

func (s *usedSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

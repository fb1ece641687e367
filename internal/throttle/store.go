package throttle

import (
	"sync"
	"time"
)

// Store tracks the last failed submission per key.
//
// At most one entry exists per key; a new failure replaces the previous
// timestamp rather than accumulating a count. Entries are only ever removed
// by Sweep.
type Store struct {
	mu       sync.RWMutex
	failures map[string]time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		failures: make(map[string]time.Time),
	}
}

// ExceedsThreshold reports whether the rate between now and the last recorded
// failure for key is strictly greater than thresholdRate. Unknown keys never
// exceed.
func (s *Store) ExceedsThreshold(key string, thresholdRate float64, now time.Time) bool {
	s.mu.RLock()
	last, ok := s.failures[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return SubmissionRate(now, last) > thresholdRate
}

// RecordFailure sets the last failure time for key to now, creating the entry
// if needed.
func (s *Store) RecordFailure(key string, now time.Time) {
	now = now.UTC().Truncate(time.Millisecond)
	s.mu.Lock()
	s.failures[key] = now
	s.mu.Unlock()
}

// Sweep removes every entry whose rate relative to now is strictly below
// thresholdRate and returns how many were removed. Entries exactly at the
// threshold are kept.
func (s *Store) Sweep(thresholdRate float64, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, last := range s.failures {
		if SubmissionRate(now, last) < thresholdRate {
			delete(s.failures, key)
			removed++
		}
	}
	return removed
}

// LastFailure returns the recorded failure time for key.
func (s *Store) LastFailure(key string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.failures[key]
	return t, ok
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.failures)
}

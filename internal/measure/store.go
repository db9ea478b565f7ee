package measure

import (
	"sync"
	"time"
)

// Store keeps the rolling in-memory window of measurements. It is the
// single owner of the window: writers go through Append, readers only
// ever receive copies. All operations are total.
type Store struct {
	mu      sync.RWMutex
	window  time.Duration
	entries []Measurement
	now     func() time.Time
}

// NewStore creates a store retaining measurements no older than window.
func NewStore(window time.Duration) *Store {
	return &Store{
		window: window,
		now:    time.Now,
	}
}

// NewStoreWithClock is NewStore with an injectable clock, for tests.
func NewStoreWithClock(window time.Duration, now func() time.Time) *Store {
	return &Store{
		window: window,
		now:    now,
	}
}

// Append inserts m at the end of the window and prunes entries older
// than now-window. Atomic with respect to concurrent Snapshot calls.
func (s *Store) Append(m Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, m)
	s.pruneLocked()
}

// LoadInitial replaces the window wholesale. Entries must already be
// sorted ascending; used once at startup before the producer runs.
func (s *Store) LoadInitial(entries []Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make([]Measurement, len(entries))
	copy(s.entries, entries)
	s.pruneLocked()
}

// Snapshot returns a copy of the current window, oldest first.
func (s *Store) Snapshot() []Measurement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Measurement, len(s.entries))
	copy(out, s.entries)

	return out
}

// Latest returns the most recent measurement, if any.
func (s *Store) Latest() (Measurement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return Measurement{}, false
	}

	return s.entries[len(s.entries)-1], true
}

// Len returns the number of measurements currently retained.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Window returns the retention window.
func (s *Store) Window() time.Duration {
	return s.window
}

func (s *Store) pruneLocked() {
	cutoff := s.now().Add(-s.window)
	i := 0
	for i < len(s.entries) && s.entries[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.entries = append(s.entries[:0], s.entries[i:]...)
	}
}

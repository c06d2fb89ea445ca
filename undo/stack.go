// Package undo records confirmed, reversible actions for a short window.
package undo

import (
	"sync"
	"time"

	"github.com/crypticpy/Grantscope-2-sub004/clock"
	"github.com/crypticpy/Grantscope-2-sub004/domain"
)

// DefaultWindow is how long a record stays undoable.
const DefaultWindow = 5 * time.Second

// Stack is a LIFO of undo records. Records expire passively: validity is
// checked against the clock on every read.
type Stack struct {
	clock  clock.Clock
	window time.Duration

	mu      sync.Mutex
	records []domain.UndoRecord
}

// New creates a stack. A non-positive window uses DefaultWindow.
func New(c clock.Clock, window time.Duration) *Stack {
	if c == nil {
		c = clock.Real()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Stack{clock: c, window: window}
}

// Window returns the validity window.
func (s *Stack) Window() time.Duration { return s.window }

// Push sweeps expired entries and appends r. A zero timestamp is stamped with now.
func (s *Stack) Push(r domain.UndoRecord) {
	now := s.clock.Now()
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, cur := range s.records {
		if s.valid(cur, now) {
			kept = append(kept, cur)
		}
	}
	s.records = append(kept, r)
}

// PopValid removes and returns the most recent valid record. When every
// record has expired the stack is emptied and ok is false.
func (s *Stack) PopValid() (domain.UndoRecord, bool) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.lastValidLocked(now)
	if i < 0 {
		s.records = nil
		return domain.UndoRecord{}, false
	}
	r := s.records[i]
	s.records = s.records[:i]
	return r, true
}

// MostRecentValid peeks at the record PopValid would return.
func (s *Stack) MostRecentValid() (domain.UndoRecord, bool) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.lastValidLocked(now)
	if i < 0 {
		return domain.UndoRecord{}, false
	}
	return s.records[i], true
}

// HasValid reports whether anything can be undone right now.
func (s *Stack) HasValid() bool {
	_, ok := s.MostRecentValid()
	return ok
}

// TimeRemaining is the part of r's window left at the current instant.
func (s *Stack) TimeRemaining(r domain.UndoRecord) time.Duration {
	left := s.window - s.clock.Now().Sub(r.Timestamp)
	if left < 0 {
		return 0
	}
	return left
}

// Len counts stored records, expired ones included.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Stack) lastValidLocked(now time.Time) int {
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.valid(s.records[i], now) {
			return i
		}
	}
	return -1
}

func (s *Stack) valid(r domain.UndoRecord, now time.Time) bool {
	return now.Sub(r.Timestamp) < s.window
}

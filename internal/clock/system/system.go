// Package system provides clocks for stamping tracker events.
package system

import (
	"sync"
	"time"
)

// Clock reads the wall clock in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Stepped is a deterministic clock that advances by a fixed step on every
// read. It is safe for concurrent use.
type Stepped struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewStepped returns a clock whose first reading is start.
func NewStepped(start time.Time, step time.Duration) *Stepped {
	return &Stepped{next: start.UTC(), step: step}
}

// Now returns the current reading and advances the clock.
func (s *Stepped) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.next
	s.next = s.next.Add(s.step)
	return now
}

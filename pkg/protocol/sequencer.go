package protocol

import (
	"sync/atomic"
	"time"
)

// Sequencer generates packet numbers that look like Unix timestamps (seconds)
// and are strictly increasing within a process.
//
// When the clock has not moved past the last number issued, the last number
// is incremented instead. Under heavy use the increment path dominates
// and numbers drift ahead of wall-clock time. Numbers are not unique across
// restarts or hosts.
type Sequencer struct {
	last atomic.Int64
	now  func() time.Time
}

// NewSequencer creates a Sequencer driven by the system clock
func NewSequencer() *Sequencer {
	return &Sequencer{now: time.Now}
}

// NewSequencerWithClock creates a Sequencer driven by the supplied clock
func NewSequencerWithClock(now func() time.Time) *Sequencer {
	if now == nil {
		now = time.Now
	}
	return &Sequencer{now: now}
}

// Next returns the next packet number using lock-free atomic operations
func (s *Sequencer) Next() int64 {
	for {
		last := s.last.Load()
		now := s.now().Unix()

		// A clock at or behind the last number (same second, drift from
		// earlier increments, or a clock step backwards) falls back to +1.
		next := now
		if now <= last {
			next = last + 1
		}

		if s.last.CompareAndSwap(last, next) {
			return next
		}
		// CAS failed - another goroutine issued a number, retry
	}
}

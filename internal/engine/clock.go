package engine

import "sync/atomic"

// LogicalClock stamps queued messages with increasing seq numbers.
// Implemented by Clock (production) and testutil.DeterministicClock.
type LogicalClock interface {
	Next() int64
	Current() int64
}

// Clock is a monotonic logical clock for message ordering.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// External Send calls may stamp messages while the loop dispatches.
type Clock struct {
	seq atomic.Int64
}

var _ LogicalClock = (*Clock)(nil)

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

package engine

import "sync/atomic"

// Clock is a monotonic logical counter used to order chain log records.
//
// Entries and failures share one clock, so the relative order of successes
// and failures in a chain is recoverable without wall-clock timestamps.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

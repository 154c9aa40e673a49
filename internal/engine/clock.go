package engine

import (
	"sync/atomic"
	"time"
)

// Clock stamps dispatch records.
//
// Seq is a strictly increasing counter, so records order correctly in the
// journal even when two cycles share a wall-clock millisecond. Now is the
// wall-clock source used by the refresh gate; tests swap it for a manual clock.
type Clock struct {
	seq atomic.Int64
	now func() time.Time
}

// NewClock creates a clock at seq 0 backed by time.Now.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockAt creates a clock starting at a specific sequence number with the
// given time source. A nil now falls back to time.Now.
func NewClockAt(start int64, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	c := &Clock{now: now}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Now reads the wall clock.
func (c *Clock) Now() time.Time {
	return c.now()
}

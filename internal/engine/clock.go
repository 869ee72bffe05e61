package engine

import "sync/atomic"

// Clock is the logical block counter. Every executed transaction gets the
// next value as both its log sequence number and its block, so settlement
// windows are measured in transactions and replay sees the same blocks.
//
// Safe for concurrent use, although only the Run loop advances it.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock at block 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after block start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new block.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued block without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Advance skips n blocks without executing anything and returns the new
// block. Only call it while no transaction is in flight.
func (c *Clock) Advance(n int64) int64 {
	if n <= 0 {
		return c.Current()
	}
	return c.seq.Add(n)
}

package pattern

import "sync/atomic"

// Clock is the monotonic id source for patterns.
//
// Every call to Next returns a value strictly greater than any value
// previously returned, across goroutines.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first id is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start.
// Used when restoring persisted patterns.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next id.
func (c *Clock) Next() ID {
	return ID(c.seq.Add(1))
}

// Current returns the last id handed out.
func (c *Clock) Current() ID {
	return ID(c.seq.Load())
}

// advanceTo moves the clock forward to at least v. It never moves backwards.
func (c *Clock) advanceTo(v int64) {
	for {
		cur := c.seq.Load()
		if cur >= v || c.seq.CompareAndSwap(cur, v) {
			return
		}
	}
}

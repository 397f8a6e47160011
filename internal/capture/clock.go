package capture

import (
	"sync/atomic"
	"time"
)

// Clock stamps events in microseconds since the Unix epoch.
type Clock interface {
	NowMicro() uint64
}

// SystemClock reads the wall clock and never runs backwards: a reading
// older than the last one returned yields the last one again.
//
// Safe for concurrent use.
type SystemClock struct {
	last atomic.Uint64
	now  func() time.Time
}

// NewSystemClock returns a clock backed by time.Now.
func NewSystemClock() *SystemClock {
	return &SystemClock{now: time.Now}
}

// NowMicro returns the current time in microseconds.
func (c *SystemClock) NowMicro() uint64 {
	t := c.now().UnixMicro()
	if t < 0 {
		t = 0
	}
	us := uint64(t)
	for {
		last := c.last.Load()
		if us <= last {
			return last
		}
		if c.last.CompareAndSwap(last, us) {
			return us
		}
	}
}

// Last returns the most recent value handed out without reading the wall
// clock.
func (c *SystemClock) Last() uint64 {
	return c.last.Load()
}

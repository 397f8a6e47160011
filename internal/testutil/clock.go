package testutil

import (
	"sync"
	"time"
)

// MicroClock is a deterministic microsecond clock for tests. Each call to
// NowMicro returns the current reading and then advances it by the step.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MicroClock struct {
	mu   sync.Mutex
	now  uint64
	step uint64
}

// NewMicroClock creates a clock reading start that advances by step per
// reading. A zero step freezes the clock.
func NewMicroClock(start, step uint64) *MicroClock {
	return &MicroClock{now: start, step: step}
}

// NowMicro returns the current reading and advances the clock.
func (c *MicroClock) NowMicro() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now += c.step
	return t
}

// Peek returns the next reading without advancing.
func (c *MicroClock) Peek() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *MicroClock) Set(t uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d microseconds.
func (c *MicroClock) Advance(d uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Stopwatch is a fake time source for duration measurements: each call to
// Now returns a time Step later than the previous call.
type Stopwatch struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

// NewStopwatch returns a stopwatch advancing by step per reading.
func NewStopwatch(step time.Duration) *Stopwatch {
	return &Stopwatch{t: time.Unix(1_700_000_000, 0), step: step}
}

// Now returns the next reading.
func (s *Stopwatch) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.t
	s.t = s.t.Add(s.step)
	return t
}

// SetStep changes the step for later readings.
func (s *Stopwatch) SetStep(step time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = step
}

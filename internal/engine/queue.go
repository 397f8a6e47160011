package engine

import (
	"sync"

	"github.com/roach88/mestouches/internal/record"
)

// Batch holds pending events, one slice per kind.
type Batch struct {
	Keys     []record.KeyEvent
	Clicks   []record.RawClick
	Sessions []record.SessionUsage
}

// Len returns the total number of events.
func (b *Batch) Len() int {
	return len(b.Keys) + len(b.Clicks) + len(b.Sessions)
}

// Empty reports whether no kind holds events.
func (b *Batch) Empty() bool {
	return b.Len() == 0
}

// Append moves o's events to the end of b, kind by kind.
func (b *Batch) Append(o Batch) {
	b.Keys = appendOrTake(b.Keys, o.Keys)
	b.Clicks = appendOrTake(b.Clicks, o.Clicks)
	b.Sessions = appendOrTake(b.Sessions, o.Sessions)
}

func appendOrTake[T any](dst, src []T) []T {
	if len(dst) == 0 {
		return src
	}
	return append(dst, src...)
}

// Queue is the mailbox between producers and the consumer.
//
// Thread-safety model:
//   - TryHandOff, HandOff, Kick, Close: safe from any goroutine
//   - WaitAndDrain, TryDrain: exactly one consumer goroutine
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending Batch
	kicked  bool
	closed  bool
}

// NewQueue creates an empty, open queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// TryHandOff moves every event of b into the queue if the lock can be taken
// without waiting. On success b is left empty; on failure b is untouched.
// A closed queue refuses the hand-off.
func (q *Queue) TryHandOff(b *Batch) bool {
	if b.Empty() {
		return true
	}
	if !q.mu.TryLock() {
		return false
	}
	defer q.mu.Unlock()
	return q.handOffLocked(b)
}

// HandOff is the blocking form of TryHandOff, for teardown paths that are
// not latency constrained.
func (q *Queue) HandOff(b *Batch) bool {
	if b.Empty() {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.handOffLocked(b)
}

func (q *Queue) handOffLocked(b *Batch) bool {
	if q.closed {
		return false
	}
	q.pending.Append(*b)
	*b = Batch{}
	q.cond.Signal()
	return true
}

// WaitAndDrain blocks until the queue holds events, Kick is called or the
// queue is closed, then takes every pending event. It returns false once
// the queue is closed and empty.
func (q *Queue) WaitAndDrain() (Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending.Empty() && !q.kicked && !q.closed {
		q.cond.Wait()
	}
	q.kicked = false
	if q.pending.Empty() && q.closed {
		return Batch{}, false
	}
	b := q.pending
	q.pending = Batch{}
	return b, true
}

// TryDrain takes every pending event without waiting. The boolean is false
// once the queue is closed and empty.
func (q *Queue) TryDrain() (Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.kicked = false
	b := q.pending
	q.pending = Batch{}
	return b, !(b.Empty() && q.closed)
}

// Kick wakes the consumer without adding events.
func (q *Queue) Kick() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.kicked = true
	q.cond.Broadcast()
}

// Close refuses further hand-offs and wakes every waiter. Events already
// pending are still drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

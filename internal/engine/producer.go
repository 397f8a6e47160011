package engine

import (
	"github.com/roach88/mestouches/internal/metrics"
	"github.com/roach88/mestouches/internal/record"
)

// Producer is one producer's local buffer. A Producer is not safe for
// concurrent use; each callback thread owns its own.
type Producer struct {
	queue *Queue
	local Batch
}

// NewProducer returns a producer feeding q.
func (q *Queue) NewProducer() *Producer {
	return &Producer{queue: q}
}

// PushKey buffers e and attempts one non-blocking hand-off of everything
// buffered. It reports whether the buffer is now empty.
func (p *Producer) PushKey(e record.KeyEvent) bool {
	p.local.Keys = append(p.local.Keys, e)
	metrics.EventCaptured("keys")
	return p.flush("keys")
}

// PushClick buffers c and attempts one non-blocking hand-off.
func (p *Producer) PushClick(c record.RawClick) bool {
	p.local.Clicks = append(p.local.Clicks, c)
	metrics.EventCaptured("clicks")
	return p.flush("clicks")
}

// PushSession buffers u and attempts one non-blocking hand-off.
func (p *Producer) PushSession(u record.SessionUsage) bool {
	p.local.Sessions = append(p.local.Sessions, u)
	metrics.EventCaptured("sessions")
	return p.flush("sessions")
}

// Flush retries the hand-off of anything still buffered without blocking.
func (p *Producer) Flush() bool {
	return p.queue.TryHandOff(&p.local)
}

// Drain hands off the buffer, waiting for the queue lock. It returns false
// if the queue was already closed, in which case the events are discarded.
func (p *Producer) Drain() bool {
	if p.queue.HandOff(&p.local) {
		return true
	}
	p.local = Batch{}
	return false
}

// Pending returns the number of buffered events.
func (p *Producer) Pending() int {
	return p.local.Len()
}

func (p *Producer) flush(kind string) bool {
	if p.queue.TryHandOff(&p.local) {
		return true
	}
	metrics.HandoffDeferred(kind)
	return false
}

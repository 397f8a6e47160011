package relay

import (
	"context"
	"errors"
	"time"
)

// DefaultName is the channel name used when none is configured.
const DefaultName = "mestouches"

// DefaultWakeTimeout bounds the teardown wake-all broadcast.
const DefaultWakeTimeout = time.Second

// ErrClosed is returned by operations on a closed endpoint.
var ErrClosed = errors.New("relay: endpoint closed")

// Reader is the aggregator side of a channel.
type Reader interface {
	// Next returns the next whole pending record without blocking. The
	// boolean is false when none is pending.
	Next() (Record, bool, error)
	Close() error
}

// Writer is the host side of a channel.
type Writer interface {
	Send(Record) error
	Close() error
}

// Waker notifies listening aggregators that records are pending.
type Waker interface {
	Wake() error
	// WakeAll is the teardown broadcast. It gives up when ctx is done.
	WakeAll(ctx context.Context) error
}

// Wakeup delivers wake notifications to an aggregator.
type Wakeup interface {
	C() <-chan struct{}
	Close() error
}

// Options locates a channel.
type Options struct {
	// Name identifies the channel. Defaults to DefaultName.
	Name string

	// Dir holds the FIFO and wake registrations on unix systems. Ignored
	// on Windows.
	Dir string

	// WordSize is 4 or 8; zero means NativeWordSize.
	WordSize int
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = DefaultName
	}
	if o.WordSize == 0 {
		o.WordSize = NativeWordSize
	}
	return o
}

// Validate checks the word size.
func (o Options) Validate() error {
	o = o.withDefaults()
	if !ValidWordSize(o.WordSize) {
		return errors.New("relay: word size must be 4 or 8")
	}
	return nil
}

// notify does a non-blocking send on a wake channel of capacity one;
// pending wake-ups coalesce.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

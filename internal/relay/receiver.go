package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/mestouches/internal/capture"
	"github.com/roach88/mestouches/internal/diag"
	"github.com/roach88/mestouches/internal/metrics"
)

// DefaultPollInterval is the fallback drain interval when no wake-up
// arrives.
const DefaultPollInterval = 250 * time.Millisecond

// Handler consumes decoded window signals. capture.WindowHook implements
// it.
type Handler interface {
	Handle(capture.WindowSignal) bool
}

// Receiver drains a Reader into a Handler on the aggregator side.
type Receiver struct {
	reader  Reader
	wakeup  Wakeup
	handler Handler
	poll    time.Duration
	diag    *diag.Log
	logger  *slog.Logger

	failing bool
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) ReceiverOption {
	return func(r *Receiver) {
		if d > 0 {
			r.poll = d
		}
	}
}

// WithReceiverDiag sets the diagnostic log for read failures.
func WithReceiverDiag(l *diag.Log) ReceiverOption {
	return func(r *Receiver) { r.diag = l }
}

// WithReceiverLogger sets the logger.
func WithReceiverLogger(l *slog.Logger) ReceiverOption {
	return func(r *Receiver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewReceiver returns a receiver. wakeup may be nil, in which case only
// the poll interval drives draining.
func NewReceiver(reader Reader, wakeup Wakeup, h Handler, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		reader:  reader,
		wakeup:  wakeup,
		handler: h,
		poll:    DefaultPollInterval,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains on every wake-up and poll tick until ctx is done, then
// drains once more. Read failures are recorded and never stop the loop.
func (r *Receiver) Run(ctx context.Context) error {
	var wake <-chan struct{}
	if r.wakeup != nil {
		wake = r.wakeup.C()
	}
	tick := time.NewTicker(r.poll)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Drain()
			return nil
		case <-wake:
		case <-tick.C:
		}
		r.Drain()
	}
}

// Drain hands every pending whole record to the handler and returns how
// many lifecycle records it forwarded. It must not be called
// concurrently with Run.
func (r *Receiver) Drain() int {
	n := 0
	for {
		rec, ok, err := r.reader.Next()
		if err != nil {
			metrics.RelayRecord("error")
			if !r.failing {
				r.failing = true
				r.diag.Record(diag.Ipc, "relay.read", "could not read relay channel", err)
			}
			return n
		}
		if r.failing {
			r.failing = false
			r.logger.Info("relay channel readable again")
		}
		if !ok {
			return n
		}
		if !rec.Lifecycle() {
			metrics.RelayRecord("ignored")
			r.logger.Debug("relay record ignored", "code", rec.Code)
			continue
		}
		metrics.RelayRecord("window")
		r.handler.Handle(rec.Signal())
		n++
	}
}

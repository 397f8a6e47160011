package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/mestouches/internal/metrics"
	"github.com/roach88/mestouches/internal/record"
)

// KeySink receives key events. Implemented by store.Keystream.
type KeySink interface {
	TryAppend(events []record.KeyEvent) (bool, error)
	AppendAll(events []record.KeyEvent) error
}

// ClickSink receives raw clicks together with the screen set they were
// captured against. Implemented by store.Pointer.
type ClickSink interface {
	TryMerge(clicks []record.RawClick, screens record.ScreenSet) (bool, error)
	Merge(clicks []record.RawClick, screens record.ScreenSet) error
}

// SessionSink receives completed window sessions. Implemented by
// store.Sessions.
type SessionSink interface {
	TryAppend(usages []record.SessionUsage) (bool, error)
	AppendAll(usages []record.SessionUsage) error
}

// ScreenSource reports the live monitor configuration.
type ScreenSource interface {
	Screens() record.ScreenSet
}

// StaticScreens is a ScreenSource that never changes.
type StaticScreens struct {
	Set record.ScreenSet
}

// Screens implements ScreenSource.
func (s StaticScreens) Screens() record.ScreenSet { return s.Set }

// DefaultRetryInterval is the backoff before retrying a busy store.
const DefaultRetryInterval = 5 * time.Millisecond

// Engine is the single consumer of a Queue.
type Engine struct {
	queue    *Queue
	keys     KeySink
	clicks   ClickSink
	sessions SessionSink
	screens  ScreenSource
	retry    time.Duration
	logger   *slog.Logger

	// carry holds events a store could not take yet. Owned by Run.
	carry Batch
	// busy is set when a store lock was contended in the last round.
	busy bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetryInterval sets the backoff used while a store is busy.
func WithRetryInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retry = d
		}
	}
}

// WithScreens sets the screen source consulted once per pointer batch.
func WithScreens(s ScreenSource) Option {
	return func(e *Engine) {
		if s != nil {
			e.screens = s
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine draining q into the given sinks. A nil sink
// leaves events of that kind in carry-over until shutdown.
func New(q *Queue, keys KeySink, clicks ClickSink, sessions SessionSink, opts ...Option) *Engine {
	e := &Engine{
		queue:    q,
		keys:     keys,
		clicks:   clicks,
		sessions: sessions,
		screens:  StaticScreens{},
		retry:    DefaultRetryInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run consumes the queue until it is closed, either directly or by
// cancelling ctx. It must be called from exactly one goroutine.
//
// Before returning, Run merges any carry-over with blocking locks. Events
// for a store that is still unavailable at that point are logged and
// dropped.
func (e *Engine) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, e.queue.Close)
	defer stop()

	e.logger.Info("consumer starting")
	for {
		if e.busy {
			timer := time.NewTimer(e.retry)
			select {
			case <-ctx.Done():
			case <-timer.C:
			}
			timer.Stop()
			b, open := e.queue.TryDrain()
			e.carry.Append(b)
			if !open {
				break
			}
		} else {
			b, ok := e.queue.WaitAndDrain()
			if !ok {
				break
			}
			e.carry.Append(b)
		}
		e.mergeRound()
	}

	e.finalMerge()
	e.logger.Info("consumer stopped")
	return ctx.Err()
}

// mergeRound offers each non-empty kind of the carry-over to its store
// without blocking.
func (e *Engine) mergeRound() {
	e.busy = false

	if n := len(e.carry.Keys); n > 0 && e.keys != nil {
		ok, err := e.keys.TryAppend(e.carry.Keys)
		if e.settle("keystream", "keys", n, ok, err) {
			e.carry.Keys = nil
		}
	}

	if n := len(e.carry.Clicks); n > 0 && e.clicks != nil {
		ok, err := e.clicks.TryMerge(e.carry.Clicks, e.screens.Screens())
		if e.settle("pointer", "clicks", n, ok, err) {
			e.carry.Clicks = nil
		}
	}

	if n := len(e.carry.Sessions); n > 0 && e.sessions != nil {
		ok, err := e.sessions.TryAppend(e.carry.Sessions)
		if e.settle("sessions", "sessions", n, ok, err) {
			e.carry.Sessions = nil
		}
	}
}

// settle records the outcome of one merge attempt and reports whether the
// events were taken.
func (e *Engine) settle(store, kind string, n int, ok bool, err error) bool {
	switch {
	case ok:
		metrics.EventsMerged(kind, n)
		return true
	case err != nil:
		metrics.MergeDeferred(store, "unavailable")
		e.logger.Debug("store unavailable, keeping events", "store", store, "pending", n, "error", err)
	default:
		metrics.MergeDeferred(store, "busy")
		e.busy = true
	}
	return false
}

func (e *Engine) finalMerge() {
	if n := len(e.carry.Keys); n > 0 {
		e.drop("keystream", n, e.keys == nil || e.keys.AppendAll(e.carry.Keys) != nil)
	}
	if n := len(e.carry.Clicks); n > 0 {
		e.drop("pointer", n, e.clicks == nil || e.clicks.Merge(e.carry.Clicks, e.screens.Screens()) != nil)
	}
	if n := len(e.carry.Sessions); n > 0 {
		e.drop("sessions", n, e.sessions == nil || e.sessions.AppendAll(e.carry.Sessions) != nil)
	}
	e.carry = Batch{}
}

func (e *Engine) drop(store string, n int, failed bool) {
	if failed {
		e.logger.Warn("dropping events at shutdown: store unavailable", "store", store, "events", n)
	}
}

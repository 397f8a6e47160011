// Package diag keeps the structured diagnostic log shared by storage, relay
// and capture code.
//
// Failures in those layers never unwind: they are described here and the
// caller carries on. Every entry is also written to slog.
package diag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a diagnostic entry.
type Kind string

const (
	// FileIO covers open, read, write and truncate failures, signature
	// mismatches and unsupported versions.
	FileIO Kind = "FILE_IO"

	// Ipc covers relay channel open, write and read failures.
	Ipc Kind = "IPC"

	// CallbackLatency is the soft warning for a capture callback that ran
	// over its budget.
	CallbackLatency Kind = "CALLBACK_LATENCY"
)

// Entry is one recorded failure.
type Entry struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Op      string    `json:"op"`      // originating operation, e.g. "keystream.load"
	Summary string    `json:"summary"` // short human-readable description
	Detail  string    `json:"detail"`  // underlying error text
	At      time.Time `json:"at"`
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s: %s: %s", e.Kind, e.Op, e.Summary, e.Detail)
}

// DefaultCapacity bounds the number of retained entries.
const DefaultCapacity = 512

// Log is a bounded, lock-protected list of entries. The zero value is not
// usable; call New.
type Log struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	dropped  int
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithCapacity bounds the log to n entries; older entries are evicted first.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithLogger sets the slog logger entries are mirrored to.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithNow overrides the clock used to stamp entries.
func WithNow(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New creates an empty Log.
func New(opts ...Option) *Log {
	l := &Log{
		capacity: DefaultCapacity,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends an entry and mirrors it to slog. A nil error leaves the
// detail empty. Record is safe on a nil *Log, which only logs.
func (l *Log) Record(kind Kind, op, summary string, err error) Entry {
	e := l.entry(kind, op, summary, err)
	if l == nil {
		slog.Error(summary, "kind", kind, "op", op, "error", e.Detail)
		return e
	}
	l.mu.Lock()
	l.append(e)
	l.mu.Unlock()
	l.mirror(e)
	return e
}

// TryRecord is the non-blocking variant for callback threads: when the log
// is busy the entry is discarded. It reports whether the entry was stored.
// TryRecord does not write to slog; callers throttle their own warnings.
func (l *Log) TryRecord(kind Kind, op, summary string, err error) bool {
	if l == nil {
		return false
	}
	if !l.mu.TryLock() {
		return false
	}
	l.append(l.entry(kind, op, summary, err))
	l.mu.Unlock()
	return true
}

// Entries returns a copy of the retained entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Count returns the number of retained entries of the given kind.
func (l *Log) Count(kind Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the newest entry, if any.
func (l *Log) Last() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Evicted returns how many entries were pushed out by the capacity bound.
func (l *Log) Evicted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Clear drops every entry.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.dropped = 0
}

func (l *Log) entry(kind Kind, op, summary string, err error) Entry {
	e := Entry{
		ID:      uuid.Must(uuid.NewV7()).String(),
		Kind:    kind,
		Op:      op,
		Summary: summary,
	}
	if err != nil {
		e.Detail = err.Error()
	}
	if l != nil {
		e.At = l.now()
	} else {
		e.At = time.Now()
	}
	return e
}

// append must be called with mu held.
func (l *Log) append(e Entry) {
	if len(l.entries) >= l.capacity {
		n := len(l.entries) - l.capacity + 1
		l.entries = append(l.entries[:0], l.entries[n:]...)
		l.dropped += n
	}
	l.entries = append(l.entries, e)
}

func (l *Log) mirror(e Entry) {
	level := slog.LevelError
	if e.Kind == CallbackLatency {
		level = slog.LevelWarn
	}
	l.logger.Log(context.Background(), level, e.Summary,
		"kind", string(e.Kind),
		"op", e.Op,
		"error", e.Detail,
		"id", e.ID,
	)
}

package capture

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/mestouches/internal/engine"
	"github.com/roach88/mestouches/internal/record"
)

// Window lifecycle codes. Created and destroyed double as relay record
// codes; renames are only reported by native sources.
const (
	WindowCreated   int32 = 3
	WindowDestroyed int32 = 4
	WindowRenamed   int32 = 5
)

// WindowSignal is a decoded window lifecycle notification. Window is an
// opaque handle, stable for the lifetime of the window.
type WindowSignal struct {
	Code   int32
	Window uint64
	Param  uint64
}

// Resolver names the owner and title of a window. Implementations only
// query the system; they never modify it.
type Resolver interface {
	Resolve(window uint64) (subject, document string)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(window uint64) (subject, document string)

// Resolve calls f.
func (f ResolverFunc) Resolve(window uint64) (string, string) { return f(window) }

// NopResolver resolves nothing; every session it sees is dropped for lack
// of a document name.
type NopResolver struct{}

// Resolve implements Resolver.
func (NopResolver) Resolve(uint64) (string, string) { return "", "" }

// MapResolver is an in-memory Resolver, safe for concurrent use.
type MapResolver struct {
	mu    sync.RWMutex
	names map[uint64][2]string
}

// NewMapResolver returns an empty resolver.
func NewMapResolver() *MapResolver {
	return &MapResolver{names: make(map[uint64][2]string)}
}

// Set records the names of window.
func (m *MapResolver) Set(window uint64, subject, document string) {
	m.mu.Lock()
	m.names[window] = [2]string{subject, document}
	m.mu.Unlock()
}

// Forget drops window.
func (m *MapResolver) Forget(window uint64) {
	m.mu.Lock()
	delete(m.names, window)
	m.mu.Unlock()
}

// Resolve implements Resolver.
func (m *MapResolver) Resolve(window uint64) (string, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := m.names[window]
	return n[0], n[1]
}

// WindowHook turns create/destroy pairs into SessionUsage records.
//
// The open set is owned by the hook's thread; Handle must not be called
// concurrently.
type WindowHook struct {
	producer *engine.Producer
	clock    Clock
	latency  *LatencyMonitor
	resolver Resolver
	privacy  *Privacy
	enabled  atomic.Bool

	open map[uint64]openWindow
}

type openWindow struct {
	start    uint64
	subject  string
	document string
}

// NewWindowHook returns an enabled hook feeding q.
func NewWindowHook(q *engine.Queue, opts ...Option) *WindowHook {
	cfg := newConfig(opts)
	h := &WindowHook{
		producer: q.NewProducer(),
		clock:    cfg.clock,
		latency:  cfg.monitor("window"),
		resolver: cfg.resolver,
		privacy:  cfg.privacy,
		open:     make(map[uint64]openWindow),
	}
	h.enabled.Store(true)
	return h
}

// Handle processes one signal. It reports whether a session was produced.
//
// A created window is timed from now and named while it still exists; a
// rename refreshes the names of an open window. A destroyed window that
// was never seen created is ignored. Names missing at create time are
// looked up once more at destroy time. An empty subject then becomes
// record.DefaultSubject, while an empty document or a subject matching
// the privacy filter drops the session.
func (h *WindowHook) Handle(sig WindowSignal) bool {
	start := h.latency.Begin()
	defer h.latency.End(start)

	if !h.enabled.Load() {
		return false
	}
	switch sig.Code {
	case WindowCreated:
		w := openWindow{start: h.clock.NowMicro()}
		w.subject, w.document = h.resolver.Resolve(sig.Window)
		h.open[sig.Window] = w
	case WindowRenamed:
		h.renamed(sig.Window)
	case WindowDestroyed:
		return h.destroyed(sig.Window)
	}
	h.producer.Flush()
	return false
}

// renamed keeps the last non-empty names seen for an open window.
func (h *WindowHook) renamed(window uint64) {
	w, ok := h.open[window]
	if !ok {
		return
	}
	subject, document := h.resolver.Resolve(window)
	if subject != "" {
		w.subject = subject
	}
	if document != "" {
		w.document = document
	}
	h.open[window] = w
}

func (h *WindowHook) destroyed(window uint64) bool {
	w, ok := h.open[window]
	if !ok {
		h.producer.Flush()
		return false
	}
	delete(h.open, window)
	end := h.clock.NowMicro()

	subject, document := w.subject, w.document
	if subject == "" || document == "" {
		s, d := h.resolver.Resolve(window)
		if subject == "" {
			subject = s
		}
		if document == "" {
			document = d
		}
	}
	if document == "" || h.privacy.Excluded(subject) {
		h.producer.Flush()
		return false
	}
	if subject == "" {
		subject = record.DefaultSubject
	}
	h.producer.PushSession(record.SessionUsage{
		Subject:  record.Fit(subject, record.SubjectWidth),
		Document: record.Fit(document, record.DocumentWidth),
		Start:    w.start,
		End:      end,
	})
	return true
}

// Open returns the number of windows currently being timed.
func (h *WindowHook) Open() int { return len(h.open) }

// SetEnabled turns production on or off. Windows already being timed stay
// in the open set.
func (h *WindowHook) SetEnabled(on bool) { h.enabled.Store(on) }

// Pending returns the number of events still buffered locally.
func (h *WindowHook) Pending() int { return h.producer.Pending() }

// Drain hands off anything buffered, waiting for the queue if needed.
func (h *WindowHook) Drain() bool { return h.producer.Drain() }

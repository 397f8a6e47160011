package capture

import (
	"sync/atomic"

	"github.com/roach88/mestouches/internal/engine"
	"github.com/roach88/mestouches/internal/record"
)

// Keyboard messages delivered to a low-level keyboard hook.
const (
	MsgKeyDown    uint32 = 0x0100
	MsgKeyUp      uint32 = 0x0101
	MsgSysKeyDown uint32 = 0x0104
	MsgSysKeyUp   uint32 = 0x0105
)

// RawKey is a decoded keyboard notification.
type RawKey struct {
	Message uint32
	VKCode  uint32
}

// KeyboardHook records key releases.
type KeyboardHook struct {
	producer *engine.Producer
	clock    Clock
	latency  *LatencyMonitor
	enabled  atomic.Bool
}

// NewKeyboardHook returns an enabled hook feeding q.
func NewKeyboardHook(q *engine.Queue, opts ...Option) *KeyboardHook {
	cfg := newConfig(opts)
	h := &KeyboardHook{
		producer: q.NewProducer(),
		clock:    cfg.clock,
		latency:  cfg.monitor("keyboard"),
	}
	h.enabled.Store(true)
	return h
}

// Handle processes one notification. It reports whether a key event was
// produced. Must not be called concurrently.
func (h *KeyboardHook) Handle(k RawKey) bool {
	start := h.latency.Begin()
	defer h.latency.End(start)

	if !h.enabled.Load() {
		return false
	}
	switch k.Message {
	case MsgKeyUp, MsgSysKeyUp:
	default:
		h.producer.Flush()
		return false
	}
	h.producer.PushKey(record.KeyEvent{
		Code:      uint8(k.VKCode),
		Timestamp: h.clock.NowMicro(),
	})
	return true
}

// SetEnabled turns production on or off.
func (h *KeyboardHook) SetEnabled(on bool) { h.enabled.Store(on) }

// Pending returns the number of events still buffered locally.
func (h *KeyboardHook) Pending() int { return h.producer.Pending() }

// Drain hands off anything buffered, waiting for the queue if needed.
// Called once the hook thread has stopped.
func (h *KeyboardHook) Drain() bool { return h.producer.Drain() }

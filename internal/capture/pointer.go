package capture

import (
	"sync/atomic"

	"github.com/roach88/mestouches/internal/engine"
	"github.com/roach88/mestouches/internal/record"
)

// Pointer messages delivered to a low-level mouse hook.
const (
	MsgMouseMove   uint32 = 0x0200
	MsgLButtonDown uint32 = 0x0201
	MsgLButtonUp   uint32 = 0x0202
	MsgRButtonDown uint32 = 0x0204
	MsgRButtonUp   uint32 = 0x0205
	MsgMButtonDown uint32 = 0x0207
	MsgMButtonUp   uint32 = 0x0208
	MsgMouseWheel  uint32 = 0x020A
	MsgXButtonDown uint32 = 0x020B
	MsgXButtonUp   uint32 = 0x020C
)

// X button identifiers carried in the high word of MouseData.
const (
	XButton1 uint16 = 0x0001
	XButton2 uint16 = 0x0002
)

// RawPointer is a decoded mouse notification. X and Y are virtual-desktop
// coordinates.
type RawPointer struct {
	Message   uint32
	X, Y      int32
	MouseData uint32
}

// ButtonFor maps a notification to the button it releases. The second
// result is false for messages that do not produce a click.
func ButtonFor(p RawPointer) (record.Button, bool) {
	switch p.Message {
	case MsgLButtonUp:
		return record.ButtonLeft, true
	case MsgRButtonUp:
		return record.ButtonRight, true
	case MsgMButtonUp:
		return record.ButtonMiddle, true
	case MsgXButtonUp:
		if uint16(p.MouseData>>16) == XButton1 {
			return record.ButtonX1, true
		}
		return record.ButtonX2, true
	case MsgMouseWheel:
		if int16(p.MouseData>>16) > 0 {
			return record.ButtonWheelUp, true
		}
		return record.ButtonWheelDown, true
	}
	return 0, false
}

// PointerHook records button releases and wheel notches.
type PointerHook struct {
	producer *engine.Producer
	clock    Clock
	latency  *LatencyMonitor
	enabled  atomic.Bool
}

// NewPointerHook returns an enabled hook feeding q.
func NewPointerHook(q *engine.Queue, opts ...Option) *PointerHook {
	cfg := newConfig(opts)
	h := &PointerHook{
		producer: q.NewProducer(),
		clock:    cfg.clock,
		latency:  cfg.monitor("pointer"),
	}
	h.enabled.Store(true)
	return h
}

// Handle processes one notification. It reports whether a click was
// produced. Must not be called concurrently.
func (h *PointerHook) Handle(p RawPointer) bool {
	start := h.latency.Begin()
	defer h.latency.End(start)

	if !h.enabled.Load() {
		return false
	}
	button, ok := ButtonFor(p)
	if !ok {
		h.producer.Flush()
		return false
	}
	h.producer.PushClick(record.RawClick{
		Button:    button,
		X:         p.X,
		Y:         p.Y,
		Timestamp: h.clock.NowMicro(),
	})
	return true
}

// SetEnabled turns production on or off.
func (h *PointerHook) SetEnabled(on bool) { h.enabled.Store(on) }

// Pending returns the number of events still buffered locally.
func (h *PointerHook) Pending() int { return h.producer.Pending() }

// Drain hands off anything buffered, waiting for the queue if needed.
func (h *PointerHook) Drain() bool { return h.producer.Drain() }

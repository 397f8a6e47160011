package capture

import (
	"context"
	"errors"

	"github.com/roach88/mestouches/internal/engine"
)

// ErrUnsupported is returned by platform constructors on systems without
// native hooks.
var ErrUnsupported = errors.New("native capture is not supported on this platform")

// Hooks groups the hooks of one capture session. Each hook has its own
// producer buffer. Window is nil when window lifecycle arrives through the
// relay instead.
type Hooks struct {
	Keyboard *KeyboardHook
	Pointer  *PointerHook
	Window   *WindowHook
}

// NewHooks builds all three hooks over q with the same options.
func NewHooks(q *engine.Queue, opts ...Option) *Hooks {
	return &Hooks{
		Keyboard: NewKeyboardHook(q, opts...),
		Pointer:  NewPointerHook(q, opts...),
		Window:   NewWindowHook(q, opts...),
	}
}

// SetEnabled toggles every hook.
func (h *Hooks) SetEnabled(on bool) {
	h.Keyboard.SetEnabled(on)
	h.Pointer.SetEnabled(on)
	if h.Window != nil {
		h.Window.SetEnabled(on)
	}
}

// Drain hands off whatever the hooks still buffer. Only call it after the
// source driving the hooks has returned.
func (h *Hooks) Drain() {
	h.Keyboard.Drain()
	h.Pointer.Drain()
	if h.Window != nil {
		h.Window.Drain()
	}
}

// Source drives hooks until ctx is done or the input ends.
type Source interface {
	Run(ctx context.Context, hooks *Hooks) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, hooks *Hooks) error

// Run calls f.
func (f SourceFunc) Run(ctx context.Context, hooks *Hooks) error { return f(ctx, hooks) }

// WindowSource produces window lifecycle signals only. The relay host runs
// one of these in the isolated process.
type WindowSource interface {
	RunWindows(ctx context.Context, emit func(WindowSignal)) error
}

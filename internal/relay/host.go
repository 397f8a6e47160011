package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/mestouches/internal/capture"
	"github.com/roach88/mestouches/internal/diag"
)

// Host forwards window lifecycle from an isolated process into a channel.
// The writer is opened on the first event and reopened after a failure.
type Host struct {
	mu          sync.Mutex
	dial        func() (Writer, error)
	waker       Waker
	writer      Writer
	installed   bool
	wakeTimeout time.Duration
	diag        *diag.Log
	logger      *slog.Logger

	sent    int
	dropped int
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithWakeTimeout overrides DefaultWakeTimeout.
func WithWakeTimeout(d time.Duration) HostOption {
	return func(h *Host) {
		if d > 0 {
			h.wakeTimeout = d
		}
	}
}

// WithHostDiag sets the diagnostic log for open and write failures.
func WithHostDiag(l *diag.Log) HostOption {
	return func(h *Host) { h.diag = l }
}

// WithHostLogger sets the logger.
func WithHostLogger(l *slog.Logger) HostOption {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHost returns an installed host.
func NewHost(dial func() (Writer, error), waker Waker, opts ...HostOption) *Host {
	h := &Host{
		dial:        dial,
		waker:       waker,
		installed:   true,
		wakeTimeout: DefaultWakeTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Forward sends sig and wakes the aggregators. Only create and destroy
// signals are relayed. Failures are recorded as Ipc diagnostics and the
// signal is dropped.
func (h *Host) Forward(sig capture.WindowSignal) {
	rec := FromSignal(sig)
	if !rec.Lifecycle() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.installed {
		return
	}
	if h.writer == nil {
		w, err := h.dial()
		if err != nil {
			h.dropped++
			h.diag.Record(diag.Ipc, "relay.open", "could not open relay channel", err)
			return
		}
		h.writer = w
	}
	if err := h.writer.Send(rec); err != nil {
		h.dropped++
		h.diag.Record(diag.Ipc, "relay.write", "could not write relay record", err)
		h.writer.Close()
		h.writer = nil
		return
	}
	h.sent++
	if err := h.waker.Wake(); err != nil {
		h.logger.Debug("relay wake failed", "error", err)
	}
}

// Run forwards everything src produces until ctx is done, then
// uninstalls.
func (h *Host) Run(ctx context.Context, src capture.WindowSource) error {
	err := src.RunWindows(ctx, h.Forward)
	h.Uninstall()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Uninstall stops forwarding, broadcasts a final wake-all bounded by the
// wake timeout so aggregators drain what is left, and closes the writer.
// It is safe to call more than once.
func (h *Host) Uninstall() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.installed {
		return
	}
	h.installed = false

	ctx, cancel := context.WithTimeout(context.Background(), h.wakeTimeout)
	defer cancel()
	if err := h.waker.WakeAll(ctx); err != nil {
		h.logger.Warn("relay wake-all failed", "error", err)
	}
	if h.writer != nil {
		h.writer.Close()
		h.writer = nil
	}
}

// Counts returns how many signals were sent and dropped.
func (h *Host) Counts() (sent, dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sent, h.dropped
}

//go:build !linux && !darwin && !windows

package relay

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("relay: no system endpoint on this platform")

// Listen is unsupported on this platform.
func Listen(Options) (Reader, error) { return nil, errUnsupported }

// Dial is unsupported on this platform.
func Dial(Options) (Writer, error) { return nil, errUnsupported }

// Subscribe is unsupported on this platform.
func Subscribe(Options) (Wakeup, error) { return nil, errUnsupported }

// NewWaker returns a waker that does nothing.
func NewWaker(Options) Waker { return nopWaker{} }

type nopWaker struct{}

func (nopWaker) Wake() error                       { return nil }
func (nopWaker) WakeAll(ctx context.Context) error { return ctx.Err() }

package relay

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mestouches/internal/capture"
	"github.com/roach88/mestouches/internal/diag"
	"github.com/roach88/mestouches/internal/testutil"
)

type countingWaker struct {
	wakes    atomic.Int32
	wakeAlls atomic.Int32
	block    bool
}

func (w *countingWaker) Wake() error {
	w.wakes.Add(1)
	return nil
}

func (w *countingWaker) WakeAll(ctx context.Context) error {
	w.wakeAlls.Add(1)
	if w.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func TestHost_ForwardOpensLazilyAndWakes(t *testing.T) {
	p := NewPipe(8)
	dials := 0
	dial := func() (Writer, error) {
		dials++
		return p, nil
	}
	w := &countingWaker{}
	h := NewHost(dial, w, WithHostLogger(testutil.QuietLogger()))
	assert.Equal(t, 0, dials)

	h.Forward(capture.WindowSignal{Code: capture.WindowCreated, Window: 3})
	h.Forward(capture.WindowSignal{Code: capture.WindowDestroyed, Window: 3})

	assert.Equal(t, 1, dials)
	assert.Equal(t, int32(2), w.wakes.Load())
	assert.Equal(t, 48, p.Pending())

	rec, ok, err := p.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Record{Code: CodeCreated, A: 3}, rec)
}

func TestHost_ForwardSkipsRenames(t *testing.T) {
	p := NewPipe(8)
	dials := 0
	dial := func() (Writer, error) {
		dials++
		return p, nil
	}
	w := &countingWaker{}
	h := NewHost(dial, w, WithHostLogger(testutil.QuietLogger()))

	h.Forward(capture.WindowSignal{Code: capture.WindowRenamed, Window: 3})

	assert.Equal(t, 0, dials)
	assert.Equal(t, int32(0), w.wakes.Load())
	assert.Equal(t, 0, p.Pending())
}

func TestHost_OpenFailureIsDiagnosedAndRetried(t *testing.T) {
	p := NewPipe(4)
	fail := true
	dial := func() (Writer, error) {
		if fail {
			return nil, errors.New("no listener")
		}
		return p, nil
	}
	dl := diag.New(diag.WithLogger(testutil.QuietLogger()))
	h := NewHost(dial, &countingWaker{}, WithHostDiag(dl), WithHostLogger(testutil.QuietLogger()))

	h.Forward(capture.WindowSignal{Code: capture.WindowCreated, Window: 1})
	assert.Equal(t, 1, dl.Count(diag.Ipc))

	fail = false
	h.Forward(capture.WindowSignal{Code: capture.WindowCreated, Window: 2})

	sent, dropped := h.Counts()
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, dropped)
}

func TestHost_WriteFailureReopens(t *testing.T) {
	first := NewPipe(4)
	second := NewPipe(4)
	pipes := []*Pipe{first, second}
	dial := func() (Writer, error) {
		p := pipes[0]
		pipes = pipes[1:]
		return p, nil
	}
	dl := diag.New(diag.WithLogger(testutil.QuietLogger()))
	h := NewHost(dial, &countingWaker{}, WithHostDiag(dl), WithHostLogger(testutil.QuietLogger()))

	require.NoError(t, first.Close())
	h.Forward(capture.WindowSignal{Code: capture.WindowCreated, Window: 1})
	h.Forward(capture.WindowSignal{Code: capture.WindowCreated, Window: 2})

	assert.Equal(t, 1, dl.Count(diag.Ipc))
	assert.Equal(t, 12, second.Pending())
}

func TestHost_UninstallWakesAllOnceAndStops(t *testing.T) {
	p := NewPipe(4)
	w := &countingWaker{}
	h := NewHost(func() (Writer, error) { return p, nil }, w, WithHostLogger(testutil.QuietLogger()))

	h.Uninstall()
	h.Uninstall()
	assert.Equal(t, int32(1), w.wakeAlls.Load())

	h.Forward(capture.WindowSignal{Code: capture.WindowCreated, Window: 1})
	assert.Equal(t, 0, p.Pending())
}

func TestHost_WakeAllIsBounded(t *testing.T) {
	w := &countingWaker{block: true}
	h := NewHost(func() (Writer, error) { return NewPipe(4), nil }, w,
		WithWakeTimeout(20*time.Millisecond), WithHostLogger(testutil.QuietLogger()))

	start := time.Now()
	h.Uninstall()
	assert.Less(t, time.Since(start), time.Second)
}

type scriptSource struct {
	sigs []capture.WindowSignal
}

func (s scriptSource) RunWindows(ctx context.Context, emit func(capture.WindowSignal)) error {
	for _, sig := range s.sigs {
		emit(sig)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHost_RunToReceiver(t *testing.T) {
	p := NewPipe(8)
	h := NewHost(func() (Writer, error) { return p, nil }, p, WithHostLogger(testutil.QuietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	src := scriptSource{sigs: []capture.WindowSignal{
		{Code: capture.WindowCreated, Window: 10},
		{Code: capture.WindowDestroyed, Window: 10},
	}}
	go func() { done <- h.Run(ctx, src) }()

	handler := &recordingHandler{}
	r := NewReceiver(p, p, handler, WithReceiverLogger(testutil.QuietLogger()))
	require.Eventually(t, func() bool {
		r.Drain()
		return len(handler.signals()) == 2
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

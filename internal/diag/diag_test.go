package diag

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLog(opts ...Option) *Log {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))}, opts...)
	return New(opts...)
}

func TestRecord(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l := quietLog(WithNow(func() time.Time { return at }))

	e := l.Record(FileIO, "keystream.load", "failed to open store", errors.New("no such file"))

	assert.Equal(t, FileIO, e.Kind)
	assert.Equal(t, "keystream.load", e.Op)
	assert.Equal(t, "no such file", e.Detail)
	assert.Equal(t, at, e.At)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "[FILE_IO] keystream.load: failed to open store: no such file", e.String())

	last, ok := l.Last()
	require.True(t, ok)
	assert.Equal(t, e, last)
	assert.Equal(t, 1, l.Count(FileIO))
	assert.Equal(t, 0, l.Count(Ipc))
}

func TestRecordMirrorsToSlog(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	l.Record(Ipc, "relay.read", "channel read failed", errors.New("broken pipe"))
	l.Record(CallbackLatency, "capture.keyboard", "callback over budget", nil)

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "kind=IPC")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "kind=CALLBACK_LATENCY")
}

func TestCapacityEvictsOldest(t *testing.T) {
	l := quietLog(WithCapacity(3))
	for _, op := range []string{"a", "b", "c", "d", "e"} {
		l.Record(FileIO, op, "x", nil)
	}

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].Op)
	assert.Equal(t, "e", entries[2].Op)
	assert.Equal(t, 2, l.Evicted())

	l.Clear()
	assert.Empty(t, l.Entries())
	assert.Equal(t, 0, l.Evicted())
}

func TestTryRecordWhenBusy(t *testing.T) {
	stamped := 0
	l := quietLog(WithNow(func() time.Time {
		stamped++
		return time.Unix(0, 0)
	}))

	l.mu.Lock()
	ok := l.TryRecord(CallbackLatency, "capture.pointer", "slow", nil)
	l.mu.Unlock()
	assert.False(t, ok)
	assert.Empty(t, l.Entries())
	assert.Zero(t, stamped, "a busy log builds no entry")

	assert.True(t, l.TryRecord(CallbackLatency, "capture.pointer", "slow", nil))
	assert.Len(t, l.Entries(), 1)
	assert.Equal(t, 1, stamped)
}

func TestNilLogIsSafe(t *testing.T) {
	var l *Log
	assert.NotPanics(t, func() {
		l.Record(FileIO, "op", "summary", errors.New("boom"))
		assert.False(t, l.TryRecord(FileIO, "op", "summary", nil))
	})
}

func TestConcurrentRecord(t *testing.T) {
	l := quietLog(WithCapacity(1000))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Record(Ipc, "relay", "x", nil)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, l.Count(Ipc))
}

package capture

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mestouches/internal/diag"
	"github.com/roach88/mestouches/internal/engine"
	"github.com/roach88/mestouches/internal/record"
	"github.com/roach88/mestouches/internal/testutil"
)

func drain(t *testing.T, q *engine.Queue) engine.Batch {
	t.Helper()
	b, _ := q.TryDrain()
	return b
}

func testOptions(clock Clock, extra ...Option) []Option {
	return append([]Option{
		WithClock(clock),
		WithLogger(testutil.QuietLogger()),
		WithStopwatch(testutil.NewStopwatch(time.Microsecond).Now),
	}, extra...)
}

func TestKeyboardHook_OnlyReleasesProduceEvents(t *testing.T) {
	tests := []struct {
		name    string
		message uint32
		want    bool
	}{
		{"key down", MsgKeyDown, false},
		{"key up", MsgKeyUp, true},
		{"system key down", MsgSysKeyDown, false},
		{"system key up", MsgSysKeyUp, true},
		{"unrelated", 0x0200, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := engine.NewQueue()
			h := NewKeyboardHook(q, testOptions(testutil.NewMicroClock(100, 1))...)

			assert.Equal(t, tt.want, h.Handle(RawKey{Message: tt.message, VKCode: 0x41}))

			b := drain(t, q)
			if tt.want {
				assert.Equal(t, []record.KeyEvent{{Code: 0x41, Timestamp: 100}}, b.Keys)
			} else {
				assert.Empty(t, b.Keys)
			}
		})
	}
}

func TestKeyboardHook_TruncatesKeyCode(t *testing.T) {
	q := engine.NewQueue()
	h := NewKeyboardHook(q, testOptions(testutil.NewMicroClock(7, 0))...)

	h.Handle(RawKey{Message: MsgKeyUp, VKCode: 0x1A5})

	b := drain(t, q)
	require.Len(t, b.Keys, 1)
	assert.Equal(t, uint8(0xA5), b.Keys[0].Code)
}

func TestKeyboardHook_Disabled(t *testing.T) {
	q := engine.NewQueue()
	h := NewKeyboardHook(q, testOptions(testutil.NewMicroClock(7, 0))...)

	h.SetEnabled(false)
	assert.False(t, h.Handle(RawKey{Message: MsgKeyUp, VKCode: 1}))
	h.SetEnabled(true)
	assert.True(t, h.Handle(RawKey{Message: MsgKeyUp, VKCode: 2}))

	b := drain(t, q)
	require.Len(t, b.Keys, 1)
	assert.Equal(t, uint8(2), b.Keys[0].Code)
}

func TestKeyboardHook_ClosedQueueKeepsBuffer(t *testing.T) {
	q := engine.NewQueue()
	h := NewKeyboardHook(q, testOptions(testutil.NewMicroClock(7, 0))...)
	q.Close()

	h.Handle(RawKey{Message: MsgKeyUp, VKCode: 1})
	assert.Equal(t, 1, h.Pending())

	assert.False(t, h.Drain())
	assert.Equal(t, 0, h.Pending())
}

func TestButtonFor(t *testing.T) {
	wheel := func(delta int16) uint32 { return uint32(uint16(delta)) << 16 }

	tests := []struct {
		name string
		raw  RawPointer
		want record.Button
		ok   bool
	}{
		{"left up", RawPointer{Message: MsgLButtonUp}, record.ButtonLeft, true},
		{"right up", RawPointer{Message: MsgRButtonUp}, record.ButtonRight, true},
		{"middle up", RawPointer{Message: MsgMButtonUp}, record.ButtonMiddle, true},
		{"x1 up", RawPointer{Message: MsgXButtonUp, MouseData: uint32(XButton1) << 16}, record.ButtonX1, true},
		{"x2 up", RawPointer{Message: MsgXButtonUp, MouseData: uint32(XButton2) << 16}, record.ButtonX2, true},
		{"wheel forward", RawPointer{Message: MsgMouseWheel, MouseData: wheel(120)}, record.ButtonWheelUp, true},
		{"wheel backward", RawPointer{Message: MsgMouseWheel, MouseData: wheel(-120)}, record.ButtonWheelDown, true},
		{"left down", RawPointer{Message: MsgLButtonDown}, 0, false},
		{"move", RawPointer{Message: MsgMouseMove}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ButtonFor(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestPointerHook_KeepsVirtualDesktopCoordinates(t *testing.T) {
	q := engine.NewQueue()
	h := NewPointerHook(q, testOptions(testutil.NewMicroClock(50, 5))...)

	assert.False(t, h.Handle(RawPointer{Message: MsgMouseMove, X: 1, Y: 1}))
	assert.True(t, h.Handle(RawPointer{Message: MsgLButtonUp, X: -1280, Y: 20}))
	assert.True(t, h.Handle(RawPointer{Message: MsgRButtonUp, X: 300, Y: -4}))

	b := drain(t, q)
	assert.Equal(t, []record.RawClick{
		{Button: record.ButtonLeft, X: -1280, Y: 20, Timestamp: 50},
		{Button: record.ButtonRight, X: 300, Y: -4, Timestamp: 55},
	}, b.Clicks)
}

func TestWindowHook_Lifecycle(t *testing.T) {
	resolver := NewMapResolver()
	resolver.Set(1, `C:\Tools\editor.exe`, "notes.txt")
	resolver.Set(2, "", "Untitled")
	resolver.Set(3, `C:\Tools\editor.exe`, "")

	q := engine.NewQueue()
	clock := testutil.NewMicroClock(1_000, 10)
	h := NewWindowHook(q, testOptions(clock, WithResolver(resolver))...)

	h.Handle(WindowSignal{Code: WindowCreated, Window: 1}) // 1000
	h.Handle(WindowSignal{Code: WindowCreated, Window: 2}) // 1010
	h.Handle(WindowSignal{Code: WindowCreated, Window: 3}) // 1020
	assert.Equal(t, 3, h.Open())

	assert.False(t, h.Handle(WindowSignal{Code: WindowDestroyed, Window: 99}), "untracked destroy")
	assert.True(t, h.Handle(WindowSignal{Code: WindowDestroyed, Window: 1}))  // 1030
	assert.True(t, h.Handle(WindowSignal{Code: WindowDestroyed, Window: 2}))  // 1040
	assert.False(t, h.Handle(WindowSignal{Code: WindowDestroyed, Window: 3})) // 1050, no document
	assert.Equal(t, 0, h.Open())

	b := drain(t, q)
	assert.Equal(t, []record.SessionUsage{
		{Subject: `C:\Tools\editor.exe`, Document: "notes.txt", Start: 1_000, End: 1_030},
		{Subject: record.DefaultSubject, Document: "Untitled", Start: 1_010, End: 1_040},
	}, b.Sessions)
}

func TestWindowHook_NamesOutliveTheWindow(t *testing.T) {
	// A destroyed window can no longer be named; the names seen at create
	// time are used.
	resolver := NewMapResolver()
	resolver.Set(1, `C:\Tools\editor.exe`, "notes.txt")

	q := engine.NewQueue()
	h := NewWindowHook(q, testOptions(testutil.NewMicroClock(1_000, 10), WithResolver(resolver))...)

	h.Handle(WindowSignal{Code: WindowCreated, Window: 1})
	resolver.Forget(1)
	assert.True(t, h.Handle(WindowSignal{Code: WindowDestroyed, Window: 1}))

	b := drain(t, q)
	assert.Equal(t, []record.SessionUsage{
		{Subject: `C:\Tools\editor.exe`, Document: "notes.txt", Start: 1_000, End: 1_010},
	}, b.Sessions)
}

func TestWindowHook_RenameRefreshesNames(t *testing.T) {
	resolver := NewMapResolver()
	resolver.Set(1, `C:\Tools\editor.exe`, "Untitled")

	q := engine.NewQueue()
	h := NewWindowHook(q, testOptions(testutil.NewMicroClock(0, 1), WithResolver(resolver))...)

	h.Handle(WindowSignal{Code: WindowCreated, Window: 1})
	resolver.Set(1, "", "draft.md")
	assert.False(t, h.Handle(WindowSignal{Code: WindowRenamed, Window: 1}))
	assert.False(t, h.Handle(WindowSignal{Code: WindowRenamed, Window: 42}), "untracked rename")
	assert.Equal(t, 1, h.Open())

	resolver.Forget(1)
	assert.True(t, h.Handle(WindowSignal{Code: WindowDestroyed, Window: 1}))

	b := drain(t, q)
	require.Len(t, b.Sessions, 1)
	assert.Equal(t, `C:\Tools\editor.exe`, b.Sessions[0].Subject, "an empty name does not replace a known one")
	assert.Equal(t, "draft.md", b.Sessions[0].Document)
}

func TestWindowHook_UnnamedAtCreateFallsBackToDestroy(t *testing.T) {
	resolver := NewMapResolver()

	q := engine.NewQueue()
	h := NewWindowHook(q, testOptions(testutil.NewMicroClock(0, 1), WithResolver(resolver))...)

	h.Handle(WindowSignal{Code: WindowCreated, Window: 1})
	resolver.Set(1, "shell.exe", "Downloads")
	assert.True(t, h.Handle(WindowSignal{Code: WindowDestroyed, Window: 1}))

	b := drain(t, q)
	require.Len(t, b.Sessions, 1)
	assert.Equal(t, "shell.exe", b.Sessions[0].Subject)
	assert.Equal(t, "Downloads", b.Sessions[0].Document)
}

func TestWindowHook_IgnoresOtherCodes(t *testing.T) {
	q := engine.NewQueue()
	h := NewWindowHook(q, testOptions(testutil.NewMicroClock(0, 1))...)

	assert.False(t, h.Handle(WindowSignal{Code: 7, Window: 1}))
	assert.Equal(t, 0, h.Open())
}

func TestWindowHook_DefaultResolverDropsEverything(t *testing.T) {
	q := engine.NewQueue()
	h := NewWindowHook(q, testOptions(testutil.NewMicroClock(0, 1))...)

	h.Handle(WindowSignal{Code: WindowCreated, Window: 1})
	assert.False(t, h.Handle(WindowSignal{Code: WindowDestroyed, Window: 1}))
	assert.Empty(t, drain(t, q).Sessions)
}

func TestWindowHook_PrivacyExclusion(t *testing.T) {
	resolver := NewMapResolver()
	resolver.Set(1, `C:\Program Files\KeePass\KeePass.exe`, "Passwords.kdbx")
	resolver.Set(2, `C:\Windows\notepad.exe`, "todo.txt")

	privacy, err := NewPrivacy([]string{"keepass.exe"})
	require.NoError(t, err)

	q := engine.NewQueue()
	h := NewWindowHook(q, testOptions(testutil.NewMicroClock(0, 1), WithResolver(resolver), WithPrivacy(privacy))...)

	for _, w := range []uint64{1, 2} {
		h.Handle(WindowSignal{Code: WindowCreated, Window: w})
	}
	assert.False(t, h.Handle(WindowSignal{Code: WindowDestroyed, Window: 1}))
	assert.True(t, h.Handle(WindowSignal{Code: WindowDestroyed, Window: 2}))

	b := drain(t, q)
	require.Len(t, b.Sessions, 1)
	assert.Equal(t, "todo.txt", b.Sessions[0].Document)
}

func TestWindowHook_FitsLongNames(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	resolver := ResolverFunc(func(uint64) (string, string) { return string(long), string(long) })

	q := engine.NewQueue()
	h := NewWindowHook(q, testOptions(testutil.NewMicroClock(0, 1), WithResolver(resolver))...)
	h.Handle(WindowSignal{Code: WindowCreated, Window: 5})
	h.Handle(WindowSignal{Code: WindowDestroyed, Window: 5})

	b := drain(t, q)
	require.Len(t, b.Sessions, 1)
	assert.Len(t, b.Sessions[0].Subject, record.SubjectWidth-1)
	assert.Len(t, b.Sessions[0].Document, record.DocumentWidth-1)
}

func TestHooks_SetEnabledAndDrain(t *testing.T) {
	q := engine.NewQueue()
	hooks := NewHooks(q, testOptions(testutil.NewMicroClock(0, 1))...)

	hooks.SetEnabled(false)
	assert.False(t, hooks.Keyboard.Handle(RawKey{Message: MsgKeyUp}))
	assert.False(t, hooks.Pointer.Handle(RawPointer{Message: MsgLButtonUp}))
	hooks.SetEnabled(true)
	assert.True(t, hooks.Keyboard.Handle(RawKey{Message: MsgKeyUp}))

	hooks.Drain()
	assert.Equal(t, 1, q.Len())
}

func TestLatencyMonitor_ReportsOverBudget(t *testing.T) {
	var logs testutil.LogBuffer
	dl := diag.New(diag.WithLogger(testutil.QuietLogger()))
	sw := testutil.NewStopwatch(100 * time.Microsecond)

	q := engine.NewQueue()
	h := NewKeyboardHook(q,
		WithClock(testutil.NewMicroClock(0, 1)),
		WithDiag(dl),
		WithLogger(logs.Logger()),
		WithStopwatch(sw.Now),
	)

	h.Handle(RawKey{Message: MsgKeyUp})
	assert.Equal(t, 0, dl.Count(diag.CallbackLatency))

	sw.SetStep(600 * time.Microsecond)
	h.Handle(RawKey{Message: MsgKeyUp})
	h.Handle(RawKey{Message: MsgKeyUp})
	h.Handle(RawKey{Message: MsgKeyUp})

	assert.Equal(t, 3, dl.Count(diag.CallbackLatency))
	last, ok := dl.Last()
	require.True(t, ok)
	assert.Equal(t, "keyboard.callback", last.Op)
	assert.Contains(t, last.Summary, "600us")

	// The slog warning is throttled.
	assert.Equal(t, 1, strings.Count(logs.String(), "callback over latency budget"))
}

func TestLatencyMonitor_DefaultBudget(t *testing.T) {
	m := NewLatencyMonitor("pointer", 0, nil, nil)
	assert.Equal(t, DefaultLatencyBudget, m.Budget())

	m = NewLatencyMonitor("pointer", time.Millisecond, nil, nil)
	assert.Equal(t, time.Millisecond, m.Budget())
}

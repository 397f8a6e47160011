package capture

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mestouches/internal/engine"
	"github.com/roach88/mestouches/internal/record"
	"github.com/roach88/mestouches/internal/testutil"
)

const script = `
# a short session
{"type":"open","window":7,"subject":"C:/Tools/editor.exe","document":"notes.txt"}
{"type":"key","code":65}
{"type":"click","button":"left","x":-20,"y":300}
{"type":"wait","ms":0}
{"type":"click","button":"wheel_down","x":5,"y":5}
{"type":"close","window":7}
`

func TestParseReplay(t *testing.T) {
	src, err := ParseReplay(strings.NewReader(script))
	require.NoError(t, err)
	assert.Equal(t, 6, src.Steps())
}

func TestParseReplay_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bad json", `{"type":`, "replay line 1"},
		{"unknown type", "\n" + `{"type":"drag"}`, `replay line 2: unknown step type "drag"`},
		{"unknown button", `{"type":"click","button":"thumb"}`, `unknown button "thumb"`},
		{"x3 cannot be replayed", `{"type":"click","button":"x3"}`, "cannot be replayed"},
		{"key out of range", `{"type":"key","code":300}`, "out of range"},
		{"open without window", `{"type":"open"}`, "needs a window handle"},
		{"rename without window", `{"type":"rename","document":"x"}`, "needs a window handle"},
		{"negative wait", `{"type":"wait","ms":-1}`, "negative wait"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReplay(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReplaySource_DrivesHooks(t *testing.T) {
	src, err := ParseReplay(strings.NewReader(script))
	require.NoError(t, err)

	q := engine.NewQueue()
	hooks := NewHooks(q, testOptions(testutil.NewMicroClock(1_000, 1), WithResolver(src.Resolver()))...)

	require.NoError(t, src.Run(context.Background(), hooks))
	hooks.Drain()

	b := drain(t, q)
	require.Len(t, b.Keys, 1)
	assert.Equal(t, uint8(65), b.Keys[0].Code)

	require.Len(t, b.Clicks, 2)
	assert.Equal(t, record.ButtonLeft, b.Clicks[0].Button)
	assert.Equal(t, int32(-20), b.Clicks[0].X)
	assert.Equal(t, record.ButtonWheelDown, b.Clicks[1].Button)

	require.Len(t, b.Sessions, 1)
	assert.Equal(t, "C:/Tools/editor.exe", b.Sessions[0].Subject)
	assert.Equal(t, "notes.txt", b.Sessions[0].Document)
	assert.Less(t, b.Sessions[0].Start, b.Sessions[0].End)
}

func TestReplaySource_RunWindows(t *testing.T) {
	src, err := ParseReplay(strings.NewReader(script))
	require.NoError(t, err)

	var got []WindowSignal
	require.NoError(t, src.RunWindows(context.Background(), func(s WindowSignal) { got = append(got, s) }))

	assert.Equal(t, []WindowSignal{
		{Code: WindowCreated, Window: 7},
		{Code: WindowDestroyed, Window: 7},
	}, got)
	subject, document := src.Resolver().Resolve(7)
	assert.Equal(t, "C:/Tools/editor.exe", subject)
	assert.Equal(t, "notes.txt", document)
}

func TestReplaySource_Rename(t *testing.T) {
	src, err := ParseReplay(strings.NewReader(`
{"type":"open","window":3,"subject":"editor.exe","document":"Untitled"}
{"type":"rename","window":3,"document":"draft.md"}
{"type":"close","window":3}
`))
	require.NoError(t, err)

	q := engine.NewQueue()
	hooks := NewHooks(q, testOptions(testutil.NewMicroClock(0, 1), WithResolver(src.Resolver()))...)
	require.NoError(t, src.Run(context.Background(), hooks))
	hooks.Drain()

	b := drain(t, q)
	require.Len(t, b.Sessions, 1)
	assert.Equal(t, "editor.exe", b.Sessions[0].Subject)
	assert.Equal(t, "draft.md", b.Sessions[0].Document)

	var got []int32
	require.NoError(t, src.RunWindows(context.Background(), func(s WindowSignal) { got = append(got, s.Code) }))
	assert.Equal(t, []int32{WindowCreated, WindowRenamed, WindowDestroyed}, got)
}

func TestReplaySource_StopsOnCancel(t *testing.T) {
	src, err := ParseReplay(strings.NewReader(`{"type":"wait","ms":60000}` + "\n" + `{"type":"key","code":1}`))
	require.NoError(t, err)

	q := engine.NewQueue()
	hooks := NewHooks(q, testOptions(testutil.NewMicroClock(0, 1))...)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = src.Run(ctx, hooks)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, q.Len())
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mestouches/internal/record"
	"github.com/roach88/mestouches/internal/testutil"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "", cfg.DataDir)
	assert.Equal(t, 50, cfg.AutosaveEvery)
	assert.True(t, cfg.StrictPointerLoad)
	assert.Equal(t, 500*time.Microsecond, cfg.Latency())
	assert.True(t, cfg.Capture.Keyboard)
	assert.True(t, cfg.Capture.Pointer)
	assert.True(t, cfg.Capture.Windows)
	assert.False(t, cfg.Relay.Enabled)
	assert.Equal(t, "mestouches", cfg.Relay.Endpoint)
	assert.Equal(t, 0, cfg.Relay.WordSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Relay.Poll())
	assert.Equal(t, time.Second, cfg.Relay.Wake())
	assert.Empty(t, cfg.Privacy.ExcludeSubjects)
	assert.Empty(t, cfg.Screens.Monitors)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
data_dir: /var/lib/mestouches
autosave_every: 10
latency_budget: 2ms
relay:
  enabled: true
  word_size: 4
privacy:
  exclude_subjects: ["keepass.exe", "*/private/*"]
screens:
  origin_x: 1920
  monitors:
    - {hash: "DISPLAY1", width: 1920, height: 1080}
    - {hash: "DISPLAY2", x: 1920, width: 2560, height: 1440}
log:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/mestouches", cfg.DataDir)
	assert.Equal(t, 10, cfg.AutosaveEvery)
	assert.Equal(t, 2*time.Millisecond, cfg.Latency())
	assert.True(t, cfg.Relay.Enabled)
	assert.Equal(t, 4, cfg.Relay.WordSize)
	assert.Equal(t, "mestouches", cfg.Relay.Endpoint, "untouched keys keep their default")
	assert.Equal(t, []string{"keepass.exe", "*/private/*"}, cfg.Privacy.ExcludeSubjects)
	assert.Equal(t, "debug", cfg.Log.Level)

	set := cfg.Screens.ScreenSet()
	assert.Equal(t, int32(1920), set.OriginX)
	assert.Equal(t, []record.Screen{
		{Hash: "DISPLAY1", Width: 1920, Height: 1080},
		{Hash: "DISPLAY2", X: 1920, Width: 2560, Height: 1440},
	}, set.Screens)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 250*time.Microsecond, duration("250us"))
	assert.Equal(t, 250*time.Microsecond, duration("250µs"))
	assert.Equal(t, 2*time.Second, duration("2s"))
	assert.Zero(t, duration("soon"))
	assert.Zero(t, duration(""))
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "colour: blue"},
		{"unknown nested key", "relay: {port: 9}"},
		{"zero autosave", "autosave_every: 0"},
		{"bad word size", "relay: {word_size: 2}"},
		{"bad duration", "latency_budget: fast"},
		{"bad log level", "log: {level: loud}"},
		{"monitor without size", "screens: {monitors: [{hash: A}]}"},
		{"wrong type", "strict_pointer_load: maybe"},
		{"not yaml", "a: [1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	want := Default()
	data, err := Encode(want)
	require.NoError(t, err)

	got, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", FileName)
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	assert.Error(t, WriteDefault(path), "existing file is never overwritten")
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatch_ReloadsValidEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("privacy: {exclude_subjects: [a.exe]}\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var latest atomic.Pointer[Config]
	ready := make(chan struct{})
	go func() {
		close(ready)
		Watch(ctx, path, testutil.QuietLogger(), func(c *Config) { latest.Store(c) })
	}()
	<-ready

	// The watcher may not be registered yet; keep rewriting until a reload
	// is observed.
	require.Eventually(t, func() bool {
		os.WriteFile(path, []byte("privacy: {exclude_subjects: [b.exe]}\n"), 0o644)
		c := latest.Load()
		return c != nil && len(c.Privacy.ExcludeSubjects) == 1 && c.Privacy.ExcludeSubjects[0] == "b.exe"
	}, 5*time.Second, 100*time.Millisecond)

	// An invalid edit is ignored.
	time.Sleep(4 * settle)
	before := latest.Load()
	require.NoError(t, os.WriteFile(path, []byte("colour: blue\n"), 0o644))
	time.Sleep(4 * settle)
	assert.Same(t, before, latest.Load())
}

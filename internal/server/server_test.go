package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mestouches/internal/config"
	"github.com/roach88/mestouches/internal/diag"
	"github.com/roach88/mestouches/internal/record"
	"github.com/roach88/mestouches/internal/store"
	"github.com/roach88/mestouches/internal/testutil"
	"github.com/roach88/mestouches/internal/tracker"
)

func newTestServer(t *testing.T) (*tracker.Tracker, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	logger := testutil.QuietLogger()
	tr, err := tracker.New(cfg,
		tracker.WithLogger(logger),
		tracker.WithDiag(diag.New(diag.WithLogger(logger))),
	)
	require.NoError(t, err)

	ts := httptest.NewServer(New(tr, logger).Handler())
	t.Cleanup(ts.Close)
	return tr, ts
}

func get(t *testing.T, ts *httptest.Server, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func post(t *testing.T, ts *httptest.Server, path string) (int, actionResult) {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	var res actionResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return resp.StatusCode, res
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestHealth(t *testing.T) {
	tr, ts := newTestServer(t)

	status, body := get(t, ts, "/healthz")
	require.Equal(t, http.StatusOK, status)

	var h health
	require.NoError(t, json.Unmarshal(body, &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, tr.SessionID(), h.Session)
	assert.False(t, h.Installed)
}

func TestKeystreamSnapshot(t *testing.T) {
	tr, ts := newTestServer(t)
	k := tr.Keystream()
	require.NoError(t, k.Append(record.KeyEvent{Code: 65, Timestamp: 1}))
	require.NoError(t, k.Append(record.KeyEvent{Code: 65, Timestamp: 2}))
	require.NoError(t, k.Append(record.KeyEvent{Code: 66, Timestamp: 3}))

	status, body := get(t, ts, "/api/keystream")
	require.Equal(t, http.StatusOK, status)
	golden(t).Assert(t, "keystream", body)
}

func TestSessionsSnapshot(t *testing.T) {
	tr, ts := newTestServer(t)
	s := tr.Sessions()
	require.NoError(t, s.Append(record.SessionUsage{Subject: "editor.exe", Document: "main.go", Start: 100, End: 400}))
	require.NoError(t, s.Append(record.SessionUsage{Subject: "editor.exe", Document: "go.mod", Start: 500, End: 600}))
	require.NoError(t, s.Append(record.SessionUsage{Subject: "browser.exe", Document: "docs", Start: 0, End: 50}))

	status, body := get(t, ts, "/api/sessions")
	require.Equal(t, http.StatusOK, status)
	golden(t).Assert(t, "sessions", body)
}

func TestPointerSnapshot(t *testing.T) {
	tr, ts := newTestServer(t)
	p := tr.Pointer()
	require.NoError(t, p.ObserveScreens([]record.Screen{{Hash: "DISPLAY1", Width: 100, Height: 100}}, 10))
	require.NoError(t, p.Append(record.ClickEvent{Button: record.ButtonRight, X: 5, Y: 5, Timestamp: 20}))

	status, body := get(t, ts, "/api/pointer")
	require.Equal(t, http.StatusOK, status)

	var v pointerView
	require.NoError(t, json.Unmarshal(body, &v))
	assert.True(t, v.Available)
	assert.Equal(t, 1, v.Clicks)
	require.Len(t, v.Displays, 1)
	assert.Equal(t, uint64(1), v.Displays[0].Hits)
	assert.Contains(t, v.Buttons, buttonView{Button: "right", Count: 1})
}

func TestDiagnostics(t *testing.T) {
	tr, ts := newTestServer(t)
	tr.Diag().Record(diag.Ipc, "relay.read", "could not read relay channel", nil)

	status, body := get(t, ts, "/api/diagnostics")
	require.Equal(t, http.StatusOK, status)

	var v diagnosticsView
	require.NoError(t, json.Unmarshal(body, &v))
	require.Len(t, v.Entries, 1)
	assert.Equal(t, diag.Ipc, v.Entries[0].Kind)
	assert.Equal(t, "relay.read", v.Entries[0].Op)
}

func TestStoreActions(t *testing.T) {
	tr, ts := newTestServer(t)
	require.NoError(t, tr.Keystream().Append(record.KeyEvent{Code: 1, Timestamp: 1}))

	status, res := post(t, ts, "/api/stores/keystream/save")
	require.Equal(t, http.StatusOK, status, res.Error)
	assert.True(t, res.Available)
	_, err := os.Stat(filepath.Join(tr.DataDir(), store.KeystreamFile))
	require.NoError(t, err)

	status, res = post(t, ts, "/api/stores/keystream/reset")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, tr.Keystream().Ranked())

	// The pointer file was never written, so a reload fails and the store
	// keeps its state.
	status, res = post(t, ts, "/api/stores/pointer/reload")
	assert.Equal(t, http.StatusConflict, status)
	assert.True(t, res.Available)
	assert.NotEmpty(t, res.Error)
}

func TestStoreActions_NotFound(t *testing.T) {
	_, ts := newTestServer(t)

	status, res := post(t, ts, "/api/stores/clipboard/save")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, res.Error, "unknown store kind")

	status, res = post(t, ts, "/api/stores/sessions/explode")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "unknown action", res.Error)
}

func TestMetrics(t *testing.T) {
	tr, ts := newTestServer(t)
	require.NoError(t, tr.Keystream().Save())

	status, body := get(t, ts, "/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.Contains(string(body), "mestouches_store_saves_total"))
}

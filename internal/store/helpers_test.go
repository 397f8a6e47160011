package store

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/mestouches/internal/diag"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func testOptions(t *testing.T) (Options, *diag.Log) {
	t.Helper()
	d := diag.New(diag.WithLogger(quietLogger()))
	return Options{Diag: d, Logger: quietLogger(), Strict: true}, d
}

// unwritablePath returns a path whose parent is a regular file, so every
// save fails.
func unwritablePath(t *testing.T, name string) string {
	t.Helper()
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	return filepath.Join(blocker, name)
}

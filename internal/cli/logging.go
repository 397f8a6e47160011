package cli

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/roach88/mestouches/internal/config"
)

// newLogger builds the process logger. --verbose forces debug level; a
// "auto" format picks text for terminals and JSON otherwise.
func newLogger(w io.Writer, verbose bool, lc config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	format := lc.Format
	if format == "" || format == "auto" {
		format = "json"
		if isTerminal(w) {
			format = "text"
		}
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// setupLogging installs the process logger as the slog default.
func setupLogging(w io.Writer, verbose bool, lc config.LogConfig) *slog.Logger {
	logger := newLogger(w, verbose, lc)
	slog.SetDefault(logger)
	return logger
}

package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/roach88/mestouches/internal/codec"
	"github.com/roach88/mestouches/internal/diag"
	"github.com/roach88/mestouches/internal/metrics"
)

// DefaultThreshold is the number of modifications between autosaves.
const DefaultThreshold = 50

// Default file names under the data directory.
const (
	KeystreamFile = "keyboard.mto"
	PointerFile   = "mouse.mto"
	SessionsFile  = "event.mto"
)

// FileName returns the fixed file name of a store kind.
func FileName(k codec.Kind) string {
	switch k {
	case codec.KindKeystream:
		return KeystreamFile
	case codec.KindPointer:
		return PointerFile
	default:
		return SessionsFile
	}
}

var (
	// ErrUnavailable is returned by operations on a store with no state.
	ErrUnavailable = errors.New("store unavailable")

	// ErrEmptyFile is the load failure for a zero-byte file.
	ErrEmptyFile = errors.New("empty file")
)

// Options configures a store.
type Options struct {
	// Threshold is the autosave threshold; zero means DefaultThreshold.
	Threshold int

	// Strict makes loads abort on any size shortfall.
	Strict bool

	// Diag receives FileIO entries. Nil only logs.
	Diag *diag.Log

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Stats reports persistence counters.
type Stats struct {
	Available     bool   `json:"available"`
	Modifications int    `json:"modifications"`
	Autosaves     int    `json:"autosaves"`
	LastSaveError string `json:"last_save_error,omitempty"`
}

// kindCodec binds a state type to its codec functions.
type kindCodec[S any] struct {
	kind   codec.Kind
	decode func([]byte, codec.Options) (*S, error)
	encode func(*S) []byte
	empty  func() *S
	clone  func(*S) *S
}

// base is the persistence core shared by every store kind. All fields are
// guarded by mu.
type base[S any] struct {
	mu sync.Mutex

	codec     kindCodec[S]
	path      string
	threshold int
	strict    bool
	diag      *diag.Log
	logger    *slog.Logger

	state *S
	dirty bool // derived cache needs a rebuild

	mods      int
	autosaves int
	lastErr   error
}

func (b *base[S]) init(c kindCodec[S], path string, opts Options) {
	b.codec = c
	b.path = path
	b.threshold = opts.Threshold
	if b.threshold <= 0 {
		b.threshold = DefaultThreshold
	}
	b.strict = opts.Strict
	b.diag = opts.Diag
	b.logger = opts.Logger
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.dirty = true
}

// load reads and decodes path. Every failure is recorded as FileIO.
func load[S any](c kindCodec[S], path string, strict bool, log *diag.Log) (*S, error) {
	op := c.kind.String() + ".load"
	data, err := os.ReadFile(path)
	if err != nil {
		log.Record(diag.FileIO, op, "could not read store file", err)
		return nil, fmt.Errorf("load %s: %w", c.kind, err)
	}
	if len(data) == 0 {
		err := fmt.Errorf("%s: %w", path, ErrEmptyFile)
		log.Record(diag.FileIO, op, "store file is empty", err)
		return nil, fmt.Errorf("load %s: %w", c.kind, err)
	}
	s, err := c.decode(data, codec.Options{Strict: strict})
	if err != nil {
		log.Record(diag.FileIO, op, "could not decode store file", err)
		return nil, fmt.Errorf("load %s: %w", c.kind, err)
	}
	return s, nil
}

// open attempts the initial load; the store stays unavailable on failure.
func (b *base[S]) open() {
	s, err := load(b.codec, b.path, b.strict, b.diag)
	if err != nil {
		b.logger.Warn("store unavailable", "store", b.codec.kind.String(), "path", b.path, "error", err)
		return
	}
	b.state = s
}

// Kind returns the store kind.
func (b *base[S]) Kind() codec.Kind { return b.codec.kind }

// Path returns the file the store autosaves to.
func (b *base[S]) Path() string { return b.path }

// Available reports whether the store holds state.
func (b *base[S]) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state != nil
}

// Stats returns the persistence counters.
func (b *base[S]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Stats{
		Available:     b.state != nil,
		Modifications: b.mods,
		Autosaves:     b.autosaves,
	}
	if b.lastErr != nil {
		st.LastSaveError = b.lastErr.Error()
	}
	return st
}

// Save writes the state to the store's own path.
func (b *base[S]) Save() error {
	return b.SaveTo(b.path)
}

// SaveTo writes the state to path in the newest layout.
func (b *base[S]) SaveTo(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saveLocked(path, "explicit")
}

// Flush saves if the store holds state. Used at teardown.
func (b *base[S]) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == nil {
		return nil
	}
	return b.saveLocked(b.path, "flush")
}

// Reload replaces the state with the contents of the store's own path.
func (b *base[S]) Reload() error {
	return b.LoadFrom(b.path, b.strict)
}

// LoadFrom replaces the state wholesale with the contents of path. On
// failure the current state is kept.
func (b *base[S]) LoadFrom(path string, strict bool) error {
	s, err := load(b.codec, path, strict, b.diag)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
	b.dirty = true
	b.mods = 0
	return nil
}

// Reset clears every entry and counter and persists the empty store
// immediately. The store is available afterwards even if the save fails.
func (b *base[S]) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = b.codec.empty()
	b.dirty = true
	b.mods = 0
	return b.saveLocked(b.path, "reset")
}

// Snapshot returns a deep copy of the state, or false when unavailable.
func (b *base[S]) Snapshot() (*S, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == nil {
		return nil, false
	}
	return b.codec.clone(b.state), true
}

// View calls fn with the live state while holding the store lock. It
// reports false without calling fn when the store is unavailable. fn must
// not retain the pointer or block.
func (b *base[S]) View(fn func(*S)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == nil {
		return false
	}
	fn(b.state)
	return true
}

// modified records one modification and autosaves at the threshold. Must
// be called with mu held.
func (b *base[S]) modified() {
	b.dirty = true
	b.mods++
	if b.mods < b.threshold {
		return
	}
	b.autosaves++
	if err := b.saveLocked(b.path, "autosave"); err != nil {
		b.logger.Warn("autosave failed", "store", b.codec.kind.String(), "error", err)
	}
	b.mods = 0
}

// saveLocked encodes and writes the state. Must be called with mu held.
func (b *base[S]) saveLocked(path, trigger string) error {
	if b.state == nil {
		return ErrUnavailable
	}
	err := writeFile(path, b.codec.encode(b.state))
	metrics.StoreSaved(b.codec.kind.String(), trigger, err)
	if err != nil {
		b.diag.Record(diag.FileIO, b.codec.kind.String()+".save", "could not write store file", err)
		if path == b.path {
			b.lastErr = err
		}
		return fmt.Errorf("save %s: %w", b.codec.kind, err)
	}
	if path == b.path {
		b.lastErr = nil
	}
	b.logger.Debug("store saved", "store", b.codec.kind.String(), "path", path, "trigger", trigger)
	return nil
}

// writeFile replaces path atomically with data.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

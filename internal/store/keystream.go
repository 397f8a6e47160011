package store

import (
	"sort"

	"github.com/roach88/mestouches/internal/codec"
	"github.com/roach88/mestouches/internal/record"
)

var keystreamCodec = kindCodec[codec.Keystream]{
	kind:   codec.KindKeystream,
	decode: codec.DecodeKeystream,
	encode: codec.EncodeKeystream,
	empty:  func() *codec.Keystream { return &codec.Keystream{} },
	clone:  (*codec.Keystream).Clone,
}

// KeyCount is one key code with its total.
type KeyCount struct {
	Code  uint8  `json:"code"`
	Count uint32 `json:"count"`
}

// Keystream is the durable key log.
type Keystream struct {
	base[codec.Keystream]

	ranked []KeyCount
}

// LoadKeystream decodes the keystream file at path. Failures are recorded
// in opts.Diag.
func LoadKeystream(path string, opts Options) (*codec.Keystream, error) {
	return load(keystreamCodec, path, opts.Strict, opts.Diag)
}

// OpenKeystream creates the store and attempts to load path.
func OpenKeystream(path string, opts Options) *Keystream {
	k := &Keystream{}
	k.init(keystreamCodec, path, opts)
	k.open()
	return k
}

// NewKeystream creates an available, empty store that has not been saved.
func NewKeystream(path string, opts Options) *Keystream {
	k := &Keystream{}
	k.init(keystreamCodec, path, opts)
	k.state = keystreamCodec.empty()
	return k
}

// Append adds one key event, blocking on the store lock.
func (k *Keystream) Append(e record.KeyEvent) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state == nil {
		return ErrUnavailable
	}
	k.state.Add(e)
	k.modified()
	return nil
}

// TryAppend adds events only if the store lock is free. It reports whether
// the events were merged; on false nothing was taken.
func (k *Keystream) TryAppend(events []record.KeyEvent) (bool, error) {
	if !k.mu.TryLock() {
		return false, nil
	}
	defer k.mu.Unlock()
	if k.state == nil {
		return false, ErrUnavailable
	}
	for _, e := range events {
		k.state.Add(e)
		k.modified()
	}
	return true, nil
}

// AppendAll adds events, blocking on the store lock.
func (k *Keystream) AppendAll(events []record.KeyEvent) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state == nil {
		return ErrUnavailable
	}
	for _, e := range events {
		k.state.Add(e)
		k.modified()
	}
	return nil
}

// Repair drops entries older than the first entry and rebuilds the
// counters. It returns the number of entries removed.
func (k *Keystream) Repair() (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state == nil {
		return 0, ErrUnavailable
	}
	entries := k.state.Entries
	if len(entries) == 0 {
		return 0, nil
	}
	first := entries[0].Timestamp
	kept := entries[:0]
	for _, e := range entries {
		if e.Timestamp >= first {
			kept = append(kept, e)
		}
	}
	removed := len(entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	k.state.Entries = kept
	k.state.Recount()
	k.modified()
	return removed, nil
}

// Ranked returns the key codes with a non-zero count, most pressed first.
func (k *Keystream) Ranked() []KeyCount {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state == nil {
		return nil
	}
	if k.dirty {
		k.rebuild()
	}
	return append([]KeyCount(nil), k.ranked...)
}

// rebuild must be called with mu held.
func (k *Keystream) rebuild() {
	k.ranked = k.ranked[:0]
	for code, n := range k.state.Counters {
		if n > 0 {
			k.ranked = append(k.ranked, KeyCount{Code: uint8(code), Count: n})
		}
	}
	sort.SliceStable(k.ranked, func(i, j int) bool {
		return k.ranked[i].Count > k.ranked[j].Count
	})
	k.dirty = false
}

package store

import (
	"fmt"
	"sort"

	"github.com/roach88/mestouches/internal/codec"
	"github.com/roach88/mestouches/internal/record"
)

var pointerCodec = kindCodec[codec.Pointer]{
	kind:   codec.KindPointer,
	decode: codec.DecodePointer,
	encode: codec.EncodePointer,
	empty:  func() *codec.Pointer { return &codec.Pointer{} },
	clone:  (*codec.Pointer).Clone,
}

// ButtonCount is one button with its total.
type ButtonCount struct {
	Button record.Button `json:"button"`
	Count  uint32        `json:"count"`
}

// DisplayHits pairs a display with the clicks that landed on it while it
// was connected.
type DisplayHits struct {
	Index   int            `json:"index"`
	Display record.Display `json:"display"`
	Hits    uint64         `json:"hits"`
}

// Pointer is the durable click log and display history.
type Pointer struct {
	base[codec.Pointer]

	buttons []ButtonCount
	hits    []DisplayHits
}

// LoadPointer decodes the pointer file at path. Failures are recorded in
// opts.Diag.
func LoadPointer(path string, opts Options) (*codec.Pointer, error) {
	return load(pointerCodec, path, opts.Strict, opts.Diag)
}

// OpenPointer creates the store and attempts to load path.
func OpenPointer(path string, opts Options) *Pointer {
	p := &Pointer{}
	p.init(pointerCodec, path, opts)
	p.open()
	return p
}

// NewPointer creates an available, empty store that has not been saved.
func NewPointer(path string, opts Options) *Pointer {
	p := &Pointer{}
	p.init(pointerCodec, path, opts)
	p.state = pointerCodec.empty()
	return p
}

// Append adds one canonical click, blocking on the store lock.
func (p *Pointer) Append(c record.ClickEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return ErrUnavailable
	}
	p.state.AddClick(c)
	p.modified()
	return nil
}

// TryMerge merges raw clicks only if the store lock is free. For each click
// the display history is first reconciled with screens at the click's
// timestamp, then the click is canonicalized and appended. An empty screen
// set carries no information and leaves the history untouched. It reports
// whether the clicks were merged; on false nothing was taken.
func (p *Pointer) TryMerge(clicks []record.RawClick, screens record.ScreenSet) (bool, error) {
	if !p.mu.TryLock() {
		return false, nil
	}
	defer p.mu.Unlock()
	if p.state == nil {
		return false, ErrUnavailable
	}
	p.mergeLocked(clicks, screens)
	return true, nil
}

// Merge is the blocking form of TryMerge.
func (p *Pointer) Merge(clicks []record.RawClick, screens record.ScreenSet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return ErrUnavailable
	}
	p.mergeLocked(clicks, screens)
	return nil
}

func (p *Pointer) mergeLocked(clicks []record.RawClick, screens record.ScreenSet) {
	for _, c := range clicks {
		if len(screens.Screens) > 0 {
			p.observeLocked(screens.Screens, c.Timestamp)
		}
		p.state.AddClick(c.Canonical(screens))
		p.modified()
	}
}

// ObserveScreens reconciles the display history with the current screens
// at time ts: live displays with no matching screen end at ts, and screens
// with no live display start a new one.
func (p *Pointer) ObserveScreens(screens []record.Screen, ts uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return ErrUnavailable
	}
	p.observeLocked(screens, ts)
	return nil
}

func (p *Pointer) observeLocked(screens []record.Screen, ts uint64) {
	found := make([]bool, len(screens))
	changed := false
	for i := range p.state.Displays {
		d := &p.state.Displays[i]
		if !d.Live() {
			continue
		}
		matched := false
		for j, s := range screens {
			if d.Matches(s) {
				found[j] = true
				matched = true
				break
			}
		}
		if !matched {
			d.End = ts
			changed = true
		}
	}
	for j, s := range screens {
		if found[j] {
			continue
		}
		p.state.Displays = append(p.state.Displays, record.Display{
			Hash:   s.Hash,
			X:      s.X,
			Y:      s.Y,
			Width:  s.Width,
			Height: s.Height,
			Start:  ts,
			End:    record.StillPresent,
		})
		changed = true
	}
	if changed {
		p.dirty = true
	}
}

// RenameDisplay sets the custom name of display i.
func (p *Pointer) RenameDisplay(i int, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return ErrUnavailable
	}
	if i < 0 || i >= len(p.state.Displays) {
		return fmt.Errorf("rename display: index %d out of range [0,%d)", i, len(p.state.Displays))
	}
	p.state.Displays[i].Name = record.Fit(name, record.NameWidth)
	p.modified()
	return nil
}

// RemoveDisplay deletes display i from the history.
func (p *Pointer) RemoveDisplay(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return ErrUnavailable
	}
	if i < 0 || i >= len(p.state.Displays) {
		return fmt.Errorf("remove display: index %d out of range [0,%d)", i, len(p.state.Displays))
	}
	p.state.Displays = append(p.state.Displays[:i], p.state.Displays[i+1:]...)
	p.modified()
	return nil
}

// Repair drops clicks older than the first click and rebuilds the
// counters. It returns the number of clicks removed.
func (p *Pointer) Repair() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return 0, ErrUnavailable
	}
	clicks := p.state.Clicks
	if len(clicks) == 0 {
		return 0, nil
	}
	first := clicks[0].Timestamp
	kept := clicks[:0]
	for _, c := range clicks {
		if c.Timestamp >= first {
			kept = append(kept, c)
		}
	}
	removed := len(clicks) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	p.state.Clicks = kept
	p.state.Recount()
	p.modified()
	return removed, nil
}

// Buttons returns the buttons with a non-zero count, most used first.
func (p *Pointer) Buttons() []ButtonCount {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return nil
	}
	if p.dirty {
		p.rebuild()
	}
	return append([]ButtonCount(nil), p.buttons...)
}

// Hits returns every display with the number of clicks inside its bounds
// up to its end timestamp, in history order.
func (p *Pointer) Hits() []DisplayHits {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return nil
	}
	if p.dirty {
		p.rebuild()
	}
	return append([]DisplayHits(nil), p.hits...)
}

// rebuild must be called with mu held.
func (p *Pointer) rebuild() {
	p.buttons = p.buttons[:0]
	for b, n := range p.state.Buttons {
		if n > 0 {
			p.buttons = append(p.buttons, ButtonCount{Button: record.Button(b), Count: n})
		}
	}
	sort.SliceStable(p.buttons, func(i, j int) bool {
		return p.buttons[i].Count > p.buttons[j].Count
	})

	p.hits = p.hits[:0]
	for i, d := range p.state.Displays {
		var n uint64
		for _, c := range p.state.Clicks {
			if c.Timestamp <= d.End && d.Contains(c.X, c.Y) {
				n++
			}
		}
		p.hits = append(p.hits, DisplayHits{Index: i, Display: d, Hits: n})
	}
	p.dirty = false
}

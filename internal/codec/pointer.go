package codec

import (
	"math"

	"github.com/roach88/mestouches/internal/binenc"
	"github.com/roach88/mestouches/internal/record"
)

const pointerCurrent uint8 = 2

// Pointer is the decoded click log, display history and button counters.
type Pointer struct {
	Buttons  [record.ButtonCounterSlots]uint32
	Displays []record.Display
	Clicks   []record.ClickEvent
}

// AddClick appends c and bumps its button counter. Buttons beyond the
// counter array are logged but not counted.
func (p *Pointer) AddClick(c record.ClickEvent) {
	p.Clicks = append(p.Clicks, c)
	if int(c.Button) < len(p.Buttons) {
		p.Buttons[c.Button]++
	}
}

// Recount rebuilds the button counters from the click log.
func (p *Pointer) Recount() {
	p.Buttons = [record.ButtonCounterSlots]uint32{}
	for _, c := range p.Clicks {
		if int(c.Button) < len(p.Buttons) {
			p.Buttons[c.Button]++
		}
	}
}

// Clone returns a deep copy.
func (p *Pointer) Clone() *Pointer {
	c := &Pointer{Buttons: p.Buttons}
	c.Displays = append([]record.Display(nil), p.Displays...)
	c.Clicks = append([]record.ClickEvent(nil), p.Clicks...)
	return c
}

// Both pointer layouts share this header: counters, click count, display
// count. Displays precede clicks in the payload.
const pointerFixed = record.ButtonCounterSlots*4 + 4 + 4

type pointerReader func(r *binenc.Reader, opts Options) (*Pointer, error)

var pointerReaders = map[uint8]pointerReader{
	0: readPointerV0,
	1: readPointerV1,
	2: readPointerV2,
}

// DecodePointer decodes any readable pointer version.
func DecodePointer(b []byte, opts Options) (*Pointer, error) {
	version, r, err := readHeader(b, KindPointer)
	if err != nil {
		return nil, err
	}
	read, ok := pointerReaders[version]
	if !ok {
		return nil, &ParseError{Kind: KindPointer, Version: version, Err: ErrUnsupportedVersion}
	}
	return read(r, opts)
}

func readPointerHeader(r *binenc.Reader, p *Pointer, version uint8) (clicks, displays uint32, err error) {
	if err := r.Need(pointerFixed); err != nil {
		return 0, 0, truncated(KindPointer, version, r.Offset()+pointerFixed, r.Offset()+r.Remaining())
	}
	for i := range p.Buttons {
		p.Buttons[i] = r.U32()
	}
	clicks = r.U32()
	displays = r.U32()
	return clicks, displays, nil
}

// pointerCounts applies the strict/partial policy to both record arrays at
// once: displays are kept first, and clicks are read only after a complete
// display table.
func pointerCounts(r *binenc.Reader, clicks, displays uint32, clickSize, displaySize int, opts Options, version uint8) (int, int, bool, error) {
	need := uint64(displays)*uint64(displaySize) + uint64(clicks)*uint64(clickSize)
	have := uint64(r.Remaining())
	if have >= need {
		return int(clicks), int(displays), false, nil
	}
	if opts.Strict {
		return 0, 0, false, truncated(KindPointer, version, r.Offset()+int(need), r.Offset()+r.Remaining())
	}
	nd := uint64(displays)
	if room := have / uint64(displaySize); nd > room {
		nd = room
	}
	if nd < uint64(displays) {
		return 0, int(nd), true, nil
	}
	have -= nd * uint64(displaySize)
	nc := uint64(clicks)
	if room := have / uint64(clickSize); nc > room {
		nc = room
	}
	return int(nc), int(nd), true, nil
}

// Version 0: 88-byte displays with u32 timestamps, 13-byte clicks with a
// u32 timestamp.
const (
	pointerV0Display = 4*4 + record.HashWidth + record.NameWidth + 4 + 4
	pointerV0Click   = 1 + 4 + 4 + 4
)

func readPointerV0(r *binenc.Reader, opts Options) (*Pointer, error) {
	p := &Pointer{}
	clicks, displays, err := readPointerHeader(r, p, 0)
	if err != nil {
		return nil, err
	}
	nc, nd, partial, err := pointerCounts(r, clicks, displays, pointerV0Click, pointerV0Display, opts, 0)
	if err != nil {
		return nil, err
	}

	p.Displays = make([]record.Display, nd)
	for i := range p.Displays {
		d := &p.Displays[i]
		d.Width = r.U32()
		d.Height = r.U32()
		d.X = r.U32()
		d.Y = r.U32()
		d.Hash = r.Text(record.HashWidth)
		d.Name = r.Text(record.NameWidth)
		d.Start = secondsToMicros(uint64(r.U32()))
		end := r.U32()
		if end == math.MaxUint32 {
			d.End = record.StillPresent
		} else {
			d.End = secondsToMicros(uint64(end))
		}
	}

	p.Clicks = make([]record.ClickEvent, nc)
	for i := range p.Clicks {
		c := &p.Clicks[i]
		c.Button = record.Button(r.U8())
		c.X = r.U32()
		c.Y = r.U32()
		c.Timestamp = secondsToMicros(uint64(r.U32()))
	}

	if partial {
		p.Recount()
	}
	return p, nil
}

// Versions 1 and 2: 96-byte displays and 17-byte clicks, all timestamps
// u64. Version 1 counts seconds, version 2 microseconds.
const (
	pointerWideDisplay = 4*4 + record.HashWidth + record.NameWidth + 8 + 8
	pointerWideClick   = 1 + 4 + 4 + 8
)

func readPointerV1(r *binenc.Reader, opts Options) (*Pointer, error) {
	return readPointerWide(r, opts, 1, secondsToMicros)
}

func readPointerV2(r *binenc.Reader, opts Options) (*Pointer, error) {
	return readPointerWide(r, opts, 2, func(ts uint64) uint64 { return ts })
}

func readPointerWide(r *binenc.Reader, opts Options, version uint8, ts func(uint64) uint64) (*Pointer, error) {
	p := &Pointer{}
	clicks, displays, err := readPointerHeader(r, p, version)
	if err != nil {
		return nil, err
	}
	nc, nd, partial, err := pointerCounts(r, clicks, displays, pointerWideClick, pointerWideDisplay, opts, version)
	if err != nil {
		return nil, err
	}

	p.Displays = make([]record.Display, nd)
	for i := range p.Displays {
		d := &p.Displays[i]
		d.Width = r.U32()
		d.Height = r.U32()
		d.X = r.U32()
		d.Y = r.U32()
		d.Hash = r.Text(record.HashWidth)
		d.Name = r.Text(record.NameWidth)
		d.Start = ts(r.U64())
		d.End = ts(r.U64())
	}

	p.Clicks = make([]record.ClickEvent, nc)
	for i := range p.Clicks {
		c := &p.Clicks[i]
		c.Button = record.Button(r.U8())
		c.X = r.U32()
		c.Y = r.U32()
		c.Timestamp = ts(r.U64())
	}

	if partial {
		p.Recount()
	}
	return p, nil
}

// EncodePointer writes p in the current layout.
func EncodePointer(p *Pointer) []byte {
	w := binenc.NewWriter(headerSize + pointerFixed + len(p.Displays)*pointerWideDisplay + len(p.Clicks)*pointerWideClick)
	writeHeader(w, KindPointer)
	for _, b := range p.Buttons {
		w.U32(b)
	}
	w.U32(uint32(len(p.Clicks)))
	w.U32(uint32(len(p.Displays)))
	for _, d := range p.Displays {
		w.U32(d.Width)
		w.U32(d.Height)
		w.U32(d.X)
		w.U32(d.Y)
		w.Text(d.Hash, record.HashWidth)
		w.Text(d.Name, record.NameWidth)
		w.U64(d.Start)
		w.U64(d.End)
	}
	for _, c := range p.Clicks {
		w.U8(uint8(c.Button))
		w.U32(c.X)
		w.U32(c.Y)
		w.U64(c.Timestamp)
	}
	return w.Bytes()
}

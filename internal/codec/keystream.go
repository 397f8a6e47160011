package codec

import (
	"github.com/roach88/mestouches/internal/binenc"
	"github.com/roach88/mestouches/internal/record"
)

const keystreamCurrent uint8 = 2

// Keystream is the decoded key log with its per-code counters.
type Keystream struct {
	Counters [record.KeyCounterSlots]uint32
	Entries  []record.KeyEvent
}

// Add appends e and bumps its counter.
func (k *Keystream) Add(e record.KeyEvent) {
	k.Entries = append(k.Entries, e)
	k.Counters[e.Code]++
}

// Recount rebuilds the counters from the log.
func (k *Keystream) Recount() {
	k.Counters = [record.KeyCounterSlots]uint32{}
	for _, e := range k.Entries {
		k.Counters[e.Code]++
	}
}

// Clone returns a deep copy.
func (k *Keystream) Clone() *Keystream {
	c := &Keystream{Counters: k.Counters}
	c.Entries = append([]record.KeyEvent(nil), k.Entries...)
	return c
}

// keystreamLayout describes one historical keystream layout.
type keystreamLayout struct {
	counters int  // number of u32 counters stored
	tsWidth  int  // 4 or 8 bytes per timestamp
	seconds  bool // timestamps stored in seconds rather than µs
}

var keystreamLayouts = map[uint8]keystreamLayout{
	0: {counters: 255, tsWidth: 4, seconds: true},
	1: {counters: 255, tsWidth: 8, seconds: true},
	2: {counters: 256, tsWidth: 8},
}

// DecodeKeystream decodes any readable keystream version.
func DecodeKeystream(b []byte, opts Options) (*Keystream, error) {
	version, r, err := readHeader(b, KindKeystream)
	if err != nil {
		return nil, err
	}
	layout, ok := keystreamLayouts[version]
	if !ok {
		return nil, &ParseError{Kind: KindKeystream, Version: version, Err: ErrUnsupportedVersion}
	}
	return layout.read(r, version, opts)
}

func (l keystreamLayout) read(r *binenc.Reader, version uint8, opts Options) (*Keystream, error) {
	fixed := l.counters*4 + 4
	if err := r.Need(fixed); err != nil {
		return nil, truncated(KindKeystream, version, r.Offset()+fixed, r.Offset()+r.Remaining())
	}

	k := &Keystream{}
	for i := 0; i < l.counters; i++ {
		k.Counters[i] = r.U32()
	}
	declared := r.U32()

	recSize := 1 + l.tsWidth
	n, partial, err := fit(r, uint64(declared), recSize, opts.Strict, KindKeystream, version)
	if err != nil {
		return nil, err
	}

	k.Entries = make([]record.KeyEvent, n)
	for i := range k.Entries {
		e := &k.Entries[i]
		e.Code = r.U8()
		if l.tsWidth == 4 {
			e.Timestamp = uint64(r.U32())
		} else {
			e.Timestamp = r.U64()
		}
		if l.seconds {
			e.Timestamp = secondsToMicros(e.Timestamp)
		}
	}

	switch {
	case partial:
		k.Recount()
	case l.counters < record.KeyCounterSlots:
		// Legacy layouts had no slot for the last key code.
		var last uint32
		for _, e := range k.Entries {
			if int(e.Code) == record.KeyCounterSlots-1 {
				last++
			}
		}
		k.Counters[record.KeyCounterSlots-1] = last
	}
	return k, nil
}

// EncodeKeystream writes k in the current layout.
func EncodeKeystream(k *Keystream) []byte {
	w := binenc.NewWriter(headerSize + record.KeyCounterSlots*4 + 4 + len(k.Entries)*9)
	writeHeader(w, KindKeystream)
	for _, c := range k.Counters {
		w.U32(c)
	}
	w.U32(uint32(len(k.Entries)))
	for _, e := range k.Entries {
		w.U8(e.Code)
		w.U64(e.Timestamp)
	}
	return w.Bytes()
}

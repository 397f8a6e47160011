package relay

import (
	"fmt"
	"strconv"

	"github.com/roach88/mestouches/internal/binenc"
	"github.com/roach88/mestouches/internal/capture"
)

// Record codes.
const (
	CodeCreated   = capture.WindowCreated
	CodeDestroyed = capture.WindowDestroyed
)

// NativeWordSize is the pointer width of this build in bytes.
const NativeWordSize = strconv.IntSize / 8

// Record is one relay message: a code and two word-sized parameters. A is
// the window handle; B is carried but unused.
type Record struct {
	Code int32
	A    uint64
	B    uint64
}

// Signal converts the record for the window hook.
func (r Record) Signal() capture.WindowSignal {
	return capture.WindowSignal{Code: r.Code, Window: r.A, Param: r.B}
}

// FromSignal converts a window signal into a record.
func FromSignal(s capture.WindowSignal) Record {
	return Record{Code: s.Code, A: s.Window, B: s.Param}
}

// Lifecycle reports whether the record is a create or destroy
// notification.
func (r Record) Lifecycle() bool {
	return r.Code == CodeCreated || r.Code == CodeDestroyed
}

// RecordSize returns the encoded size for a word size of 4 or 8 bytes.
// Eight-byte words are aligned, leaving 4 bytes of padding after the code.
func RecordSize(word int) int {
	if word == 8 {
		return 24
	}
	return 12
}

// ValidWordSize reports whether word is 4 or 8.
func ValidWordSize(word int) bool { return word == 4 || word == 8 }

// Encode writes r in the layout for word. Parameters wider than a 4-byte
// word are truncated.
func Encode(r Record, word int) []byte {
	w := binenc.NewWriter(RecordSize(word))
	w.U32(uint32(r.Code))
	if word == 8 {
		w.Zero(4)
		w.U64(r.A)
		w.U64(r.B)
	} else {
		w.U32(uint32(r.A))
		w.U32(uint32(r.B))
	}
	return w.Bytes()
}

// Decode reads one record from the front of b.
func Decode(b []byte, word int) (Record, error) {
	if !ValidWordSize(word) {
		return Record{}, fmt.Errorf("relay: invalid word size %d", word)
	}
	r := binenc.NewReader(b)
	if err := r.Need(RecordSize(word)); err != nil {
		return Record{}, fmt.Errorf("relay: short record: %w", err)
	}
	rec := Record{Code: int32(r.U32())}
	if word == 8 {
		r.Skip(4)
		rec.A = r.U64()
		rec.B = r.U64()
	} else {
		rec.A = uint64(r.U32())
		rec.B = uint64(r.U32())
	}
	return rec, nil
}

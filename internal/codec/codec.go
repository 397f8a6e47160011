package codec

import (
	"bytes"
	"fmt"

	"github.com/roach88/mestouches/internal/binenc"
	"github.com/roach88/mestouches/internal/record"
)

// Kind identifies one of the persisted stores.
type Kind uint8

const (
	KindKeystream Kind = iota + 1
	KindPointer
	KindSessions
)

// Kinds lists every store kind in a stable order.
var Kinds = []Kind{KindKeystream, KindPointer, KindSessions}

func (k Kind) String() string {
	switch k {
	case KindKeystream:
		return "keystream"
	case KindPointer:
		return "pointer"
	case KindSessions:
		return "sessions"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind accepts the names produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown store kind %q (want keystream, pointer or sessions)", s)
}

// Signature returns the four magic bytes that open a file of this kind.
func (k Kind) Signature() [4]byte {
	switch k {
	case KindKeystream:
		return [4]byte{'K', 'E', 'Y', 'B'}
	case KindPointer:
		return [4]byte{'M', 'O', 'U', 'S'}
	case KindSessions:
		return [4]byte{'E', 'V', 'E', 'N'}
	default:
		return [4]byte{}
	}
}

// CurrentVersion returns the version written by the encoder for k.
func (k Kind) CurrentVersion() uint8 {
	switch k {
	case KindKeystream:
		return keystreamCurrent
	case KindPointer:
		return pointerCurrent
	default:
		return sessionsCurrent
	}
}

const headerSize = 5

// secondsToMicros scales a legacy seconds timestamp. It saturates below
// record.StillPresent so a scaled value never reads as the sentinel, which
// itself passes through unchanged.
func secondsToMicros(s uint64) uint64 {
	const perSecond = 1_000_000
	if s == record.StillPresent {
		return s
	}
	if s >= (record.StillPresent-1)/perSecond {
		return record.StillPresent - 1
	}
	return s * perSecond
}

// Options controls decoding.
type Options struct {
	// Strict aborts on any size shortfall instead of keeping the whole
	// records that fit.
	Strict bool
}

// Sniff identifies the kind and version of an encoded store without
// decoding its payload.
func Sniff(b []byte) (Kind, uint8, error) {
	if len(b) < headerSize {
		return 0, 0, &ParseError{Expected: headerSize, Actual: len(b), Err: ErrTruncated}
	}
	for _, k := range Kinds {
		sig := k.Signature()
		if bytes.Equal(b[:4], sig[:]) {
			return k, b[4], nil
		}
	}
	return 0, 0, &ParseError{Err: ErrBadSignature}
}

// readHeader validates the signature of b against k and returns the version
// together with a reader positioned at the payload.
func readHeader(b []byte, k Kind) (uint8, *binenc.Reader, error) {
	if len(b) < headerSize {
		return 0, nil, truncated(k, 0, headerSize, len(b))
	}
	sig := k.Signature()
	if !bytes.Equal(b[:4], sig[:]) {
		return 0, nil, &ParseError{Kind: k, Err: ErrBadSignature}
	}
	r := binenc.NewReader(b)
	r.Skip(headerSize)
	return b[4], r, nil
}

func writeHeader(w *binenc.Writer, k Kind) {
	sig := k.Signature()
	w.Raw(sig[:])
	w.U8(k.CurrentVersion())
}

// fit returns how many of the declared records can be read. In strict mode a
// shortfall is an error; otherwise the count shrinks to what the remaining
// bytes hold.
func fit(r *binenc.Reader, declared uint64, recSize int, strict bool, k Kind, version uint8) (int, bool, error) {
	need := declared * uint64(recSize)
	if uint64(r.Remaining()) >= need {
		return int(declared), false, nil
	}
	if strict {
		return 0, false, truncated(k, version, r.Offset()+int(need), r.Offset()+r.Remaining())
	}
	return r.Remaining() / recSize, true, nil
}

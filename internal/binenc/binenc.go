// Package binenc provides explicit little-endian insertion and extraction of
// fixed-width integers and NUL-padded text. Nothing here depends on host
// byte order.
package binenc

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Writer appends little-endian values to a growing buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with room for size bytes.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// Bytes returns the encoded buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) U8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) U16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

func (w *Writer) U32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *Writer) U64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

// Raw appends b unchanged.
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Zero appends n zero bytes.
func (w *Writer) Zero(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// Text appends s as a NUL-padded field of exactly width bytes. Longer
// strings are cut at width; callers fit text beforehand to keep a
// terminator.
func (w *Writer) Text(s string, width int) {
	n := len(s)
	if n > width {
		n = width
	}
	w.buf = append(w.buf, s[:n]...)
	w.Zero(width - n)
}

// Reader extracts little-endian values from a buffer at a moving offset.
//
// Extraction methods assume the caller has already verified the length with
// Need; they panic like any slice access if it has not.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Offset returns the current read position.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Need returns a *ShortError when fewer than n bytes remain.
func (r *Reader) Need(n int) error {
	if n < 0 || r.Remaining() < n {
		return &ShortError{Need: r.off + n, Have: len(r.buf)}
	}
	return nil
}

// Skip advances the offset by n bytes.
func (r *Reader) Skip(n int) { r.off += n }

func (r *Reader) U8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *Reader) U16() uint16 {
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *Reader) U32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *Reader) U64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

// Raw returns the next n bytes without copying.
func (r *Reader) Raw(n int) []byte {
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v
}

// Text reads a width-byte field and returns the bytes before the first NUL.
func (r *Reader) Text(width int) string {
	field := r.Raw(width)
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}

// ShortError reports a buffer that ends before a required position.
type ShortError struct {
	Need int
	Have int
}

func (e *ShortError) Error() string {
	return fmt.Sprintf("buffer too short: need %d bytes, have %d", e.Need, e.Have)
}

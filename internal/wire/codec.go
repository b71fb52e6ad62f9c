// Package wire implements the enclave's compact deterministic binary
// encoding: fixed field order, little-endian integers, uint32
// length-prefixed byte strings, and a uint8 discriminant for tagged
// unions. The format is hand-specified (not protobuf/msgpack) because
// independently compiled clients and enclave builds must interoperate
// byte-for-byte on a format this repository owns end to end.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated is returned when a buffer ends before a field can be read.
var ErrTruncated = errors.New("wire: truncated buffer")

// ErrTooLarge is returned when a length-prefixed field exceeds MaxFieldLen.
var ErrTooLarge = errors.New("wire: field exceeds maximum length")

// MaxFieldLen bounds any single length-prefixed field, guarding against a
// malicious length prefix forcing an oversized allocation.
const MaxFieldLen = 16 << 20 // 16 MiB

// Writer accumulates a canonical little-endian, length-prefixed encoding.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// WriteU8 appends a single byte (used for discriminants).
func (w *Writer) WriteU8(v uint8) { w.buf.WriteByte(v) }

// WriteU32 appends a little-endian uint32.
func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// WriteU64 appends a little-endian uint64.
func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// WriteBool appends a single byte, 1 for true, 0 for false.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

// WriteBytes appends a uint32 length prefix followed by the bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteU32(uint32(len(b)))
	w.buf.Write(b)
}

// WriteString appends a string as length-prefixed UTF-8 bytes.
func (w *Writer) WriteString(s string) {
	w.WriteBytes([]byte(s))
}

// WriteOptionalBytes encodes presence as a single bool byte followed by the
// bytes when present.
func (w *Writer) WriteOptionalBytes(b []byte) {
	if b == nil {
		w.WriteBool(false)
		return
	}
	w.WriteBool(true)
	w.WriteBytes(b)
}

// Reader consumes a canonical encoding produced by Writer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps b for sequential decoding.
func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Remaining reports how many bytes are left unconsumed.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// ReadU8 consumes a single byte.
func (r *Reader) ReadU8() (uint8, error) {
	if r.Remaining() < 1 {
		return 0, ErrTruncated
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// ReadU32 consumes a little-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadU64 consumes a little-endian uint64.
func (r *Reader) ReadU64() (uint64, error) {
	if r.Remaining() < 8 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// ReadBool consumes a single bool byte.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadU8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// ReadBytes consumes a uint32 length prefix followed by that many bytes.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if n > MaxFieldLen {
		return nil, ErrTooLarge
	}
	if r.Remaining() < int(n) {
		return nil, ErrTruncated
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

// ReadString consumes a length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadOptionalBytes consumes a presence byte and, if set, a length-prefixed
// byte string.
func (r *Reader) ReadOptionalBytes() ([]byte, error) {
	present, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	return r.ReadBytes()
}

// Finish errors if the reader has unconsumed trailing bytes; callers use it
// after decoding a top-level message to reject over-long frames.
func (r *Reader) Finish() error {
	if r.Remaining() != 0 {
		return fmt.Errorf("wire: %d trailing bytes", r.Remaining())
	}
	return nil
}

// Package transport implements the enclave's length-prefixed stream
// framing: a 4-byte big-endian length prefix followed by that many bytes
// of payload, one request begetting one response on the same connection.
// Grounded on original_source/qos-core's SocketServer: a single listener
// goroutine accepts connections sequentially, no pipelining, because
// protocol operations are rare and serial.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge is returned when a frame's declared length exceeds the
// configured maximum, at which point the connection must be closed.
var ErrFrameTooLarge = errors.New("transport: frame exceeds maximum size")

const lengthPrefixSize = 4

// DefaultMaxFrameSize bounds a single frame payload; exceeding it closes
// the connection per spec.md §4.1.
const DefaultMaxFrameSize = 4 << 20 // 4 MiB

// ReadFrame reads one length-prefixed frame from r, enforcing maxSize.
func ReadFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxSize {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("transport: read payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > int(^uint32(0)) {
		return ErrFrameTooLarge
	}
	var lenBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("transport: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("transport: write payload: %w", err)
	}
	return nil
}

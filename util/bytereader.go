// Package util provides the small byte-cursor helper shared by the binary
// parser and the constant-expression evaluator.
package util

import (
	"github.com/pkg/errors"
	"github.com/wasmlite/wasmlite/leb128"
)

// ErrShortRead is returned when a read runs past the end of the buffer.
var ErrShortRead = errors.New("util: unexpected end of input")

// ByteReader is a forward-only cursor over an in-memory byte slice.
type ByteReader struct {
	b   []byte
	pos int
}

// NewByteReader wraps b for sequential reading starting at offset 0.
func NewByteReader(b []byte) *ByteReader {
	return &ByteReader{b: b}
}

// Len returns the number of unread bytes remaining.
func (r *ByteReader) Len() int {
	return len(r.b) - r.pos
}

// Pos returns the current cursor offset.
func (r *ByteReader) Pos() int {
	return r.pos
}

// Remaining returns the unread tail of the buffer without consuming it.
func (r *ByteReader) Remaining() []byte {
	return r.b[r.pos:]
}

// ReadByte consumes and returns the next byte.
func (r *ByteReader) ReadByte() (byte, error) {
	if r.pos >= len(r.b) {
		return 0, ErrShortRead
	}
	b := r.b[r.pos]
	r.pos++
	return b, nil
}

// ReadN consumes and returns the next n bytes.
func (r *ByteReader) ReadN(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.b) {
		return nil, ErrShortRead
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// ReadU32 decodes an unsigned 32-bit LEB128 integer at the cursor.
func (r *ByteReader) ReadU32() (uint32, error) {
	v, n, err := leb128.DecodeU32(r.Remaining())
	if err != nil {
		return 0, errors.Wrap(err, "util: read u32")
	}
	r.pos += n
	return v, nil
}

// ReadU64 decodes an unsigned 64-bit LEB128 integer at the cursor.
func (r *ByteReader) ReadU64() (uint64, error) {
	v, n, err := leb128.DecodeU64(r.Remaining())
	if err != nil {
		return 0, errors.Wrap(err, "util: read u64")
	}
	r.pos += n
	return v, nil
}

// ReadI32 decodes a signed 32-bit LEB128 integer at the cursor.
func (r *ByteReader) ReadI32() (int32, error) {
	v, n, err := leb128.DecodeI32(r.Remaining())
	if err != nil {
		return 0, errors.Wrap(err, "util: read i32")
	}
	r.pos += n
	return v, nil
}

// ReadI64 decodes a signed 64-bit LEB128 integer at the cursor.
func (r *ByteReader) ReadI64() (int64, error) {
	v, n, err := leb128.DecodeI64(r.Remaining())
	if err != nil {
		return 0, errors.Wrap(err, "util: read i64")
	}
	r.pos += n
	return v, nil
}

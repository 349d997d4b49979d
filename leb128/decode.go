// Package leb128 decodes and encodes the variable-length integer format
// used throughout the WebAssembly binary format.
// https://webassembly.github.io/spec/core/binary/values.html#integers
package leb128

import "github.com/pkg/errors"

// ErrUnexpectedEOF is returned when the input ends before a LEB128 number
// is complete.
var ErrUnexpectedEOF = errors.New("leb128: unexpected end of input")

// ErrOverflow is returned when a LEB128 number uses more bytes than the
// target width allows.
var ErrOverflow = errors.New("leb128: too many bytes for target width")

// ErrUnusedBits is returned when the terminal byte of a LEB128 number
// carries bits that cannot be represented in the target width (for
// unsigned values) or that disagree with the sign bit (for signed values).
var ErrUnusedBits = errors.New("leb128: invalid encoding, unused bits set")

// DecodeU32 decodes an unsigned 32-bit LEB128 integer from the front of
// data. It returns the decoded value and the number of bytes consumed.
func DecodeU32(data []byte) (uint32, int, error) {
	var result uint32
	shift := uint(0)
	n := 0
	for shift < 32 {
		if n >= len(data) {
			return 0, 0, ErrUnexpectedEOF
		}
		b := data[n]
		n++
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			if uint32(b) != result>>shift {
				return 0, 0, ErrUnusedBits
			}
			return result, n, nil
		}
		shift += 7
	}
	return 0, 0, ErrOverflow
}

// DecodeU64 decodes an unsigned 64-bit LEB128 integer from the front of
// data. It returns the decoded value and the number of bytes consumed.
func DecodeU64(data []byte) (uint64, int, error) {
	var result uint64
	shift := uint(0)
	n := 0
	for shift < 64 {
		if n >= len(data) {
			return 0, 0, ErrUnexpectedEOF
		}
		b := data[n]
		n++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if uint64(b) != result>>shift {
				return 0, 0, ErrUnusedBits
			}
			return result, n, nil
		}
		shift += 7
	}
	return 0, 0, ErrOverflow
}

// DecodeI32 decodes a signed 32-bit LEB128 integer from the front of data.
// It returns the decoded value and the number of bytes consumed.
func DecodeI32(data []byte) (int32, int, error) {
	var result uint32
	shift := uint(0)
	n := 0
	for shift < 32 {
		if n >= len(data) {
			return 0, 0, ErrUnexpectedEOF
		}
		b := data[n]
		n++
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			if shift+7 < 32 {
				if b&0x40 != 0 {
					result |= ^uint32(0) << (shift + 7)
				}
			} else {
				expected := uint8(int32(result)>>shift) & 0x7f
				if b != expected {
					return 0, 0, ErrUnusedBits
				}
			}
			return int32(result), n, nil
		}
		shift += 7
	}
	return 0, 0, ErrOverflow
}

// DecodeU32Unchecked decodes an unsigned 32-bit LEB128 integer without
// surfacing malformed-encoding errors; it is for use on bytecode that
// has already passed DecodeU32 once, during validation, where retaining
// the error-handling cost on every interpreted instruction would be
// pure overhead.
func DecodeU32Unchecked(data []byte) (uint32, int) {
	v, n, _ := DecodeU32(data)
	return v, n
}

// DecodeI32Unchecked is DecodeU32Unchecked's signed counterpart.
func DecodeI32Unchecked(data []byte) (int32, int) {
	v, n, _ := DecodeI32(data)
	return v, n
}

// DecodeI64Unchecked is DecodeU32Unchecked's 64-bit signed counterpart.
func DecodeI64Unchecked(data []byte) (int64, int) {
	v, n, _ := DecodeI64(data)
	return v, n
}

// DecodeI64 decodes a signed 64-bit LEB128 integer from the front of data.
// It returns the decoded value and the number of bytes consumed.
func DecodeI64(data []byte) (int64, int, error) {
	var result uint64
	shift := uint(0)
	n := 0
	for shift < 64 {
		if n >= len(data) {
			return 0, 0, ErrUnexpectedEOF
		}
		b := data[n]
		n++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if shift+7 < 64 {
				if b&0x40 != 0 {
					result |= ^uint64(0) << (shift + 7)
				}
			} else {
				expected := uint8(int64(result)>>shift) & 0x7f
				if b != expected {
					return 0, 0, ErrUnusedBits
				}
			}
			return int64(result), n, nil
		}
		shift += 7
	}
	return 0, 0, ErrOverflow
}

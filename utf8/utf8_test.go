package utf8

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidASCII(t *testing.T) {
	assert.True(t, Valid([]byte("hello, world")))
	assert.True(t, Valid(nil))
}

func TestValidMultiByte(t *testing.T) {
	assert.True(t, Valid([]byte("héllo")))  // 2-byte
	assert.True(t, Valid([]byte("日本語"))) // 3-byte
	assert.True(t, Valid([]byte("😀")))     // 4-byte
}

func TestRejectsOverlongEncoding(t *testing.T) {
	// 0xC0 0x80 is an overlong 2-byte encoding of NUL; 0xC0 is below the
	// minimum valid lead byte (0xC2) for a 2-byte sequence.
	assert.False(t, Valid([]byte{0xC0, 0x80}))
}

func TestRejectsSurrogates(t *testing.T) {
	// U+D800 encoded as a raw 3-byte sequence (ED A0 80): surrogate
	// code points are never valid scalar values in UTF-8.
	assert.False(t, Valid([]byte{0xED, 0xA0, 0x80}))
}

func TestRejectsAboveMaxCodePoint(t *testing.T) {
	// 0xF4 0x90 0x80 0x80 would encode U+110000, one past U+10FFFF.
	assert.False(t, Valid([]byte{0xF4, 0x90, 0x80, 0x80}))
}

func TestRejectsTruncatedSequence(t *testing.T) {
	assert.False(t, Valid([]byte{0xE2, 0x82})) // missing 3rd byte of a 3-byte sequence
}

func TestRejectsStrayContinuationByte(t *testing.T) {
	assert.False(t, Valid([]byte{0x80}))
}

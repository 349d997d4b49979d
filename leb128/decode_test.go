package leb128

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeU32RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 16384, 0xFFFFFFFF} {
		got, n, err := DecodeU32(EncodeU32(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, len(EncodeU32(v)), n)
	}
}

func TestDecodeI32RoundTrip(t *testing.T) {
	for _, v := range []int32{0, -1, 1, 63, -64, 64, -65, 1 << 20, -(1 << 20), -2147483648, 2147483647} {
		got, n, err := DecodeI32(EncodeI32(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, len(EncodeI32(v)), n)
	}
}

func TestDecodeI64RoundTrip(t *testing.T) {
	for _, v := range []int64{0, -1, 1, 1 << 40, -(1 << 40)} {
		got, n, err := DecodeI64(EncodeI64(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, len(EncodeI64(v)), n)
	}
}

func TestDecodeU32TruncatedInput(t *testing.T) {
	_, _, err := DecodeU32([]byte{0x80})
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

// overlong-zero is a classic non-minimal LEB128 encoding of 0: a
// continuation byte followed by a terminal zero byte, valid by the
// mechanical decode but more bytes than canonical.
func TestDecodeU32AcceptsNonMinimalButBitConsistentEncoding(t *testing.T) {
	v, n, err := DecodeU32([]byte{0x80, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)
	assert.Equal(t, 2, n)
}

// The terminal byte of a 5-byte u32 LEB128 may not set any bit above
// the 32nd: 0x10 in the final byte shifts into bit 32, which DecodeU32
// must reject even though the 5-byte-length itself is permitted.
func TestDecodeU32RejectsUnusedHighBits(t *testing.T) {
	_, _, err := DecodeU32([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F})
	require.NoError(t, err)
	_, _, err = DecodeU32([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x2F})
	assert.ErrorIs(t, err, ErrUnusedBits)
}

func TestDecodeU32Overflow(t *testing.T) {
	_, _, err := DecodeU32([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestUncheckedVariantsMatchChecked(t *testing.T) {
	v, n, err := DecodeU32(EncodeU32(300))
	require.NoError(t, err)
	uv, un := DecodeU32Unchecked(EncodeU32(300))
	assert.Equal(t, v, uv)
	assert.Equal(t, n, un)

	iv, in, err := DecodeI32(EncodeI32(-300))
	require.NoError(t, err)
	uiv, uin := DecodeI32Unchecked(EncodeI32(-300))
	assert.Equal(t, iv, uiv)
	assert.Equal(t, in, uin)

	lv, ln, err := DecodeI64(EncodeI64(-70000))
	require.NoError(t, err)
	ulv, uln := DecodeI64Unchecked(EncodeI64(-70000))
	assert.Equal(t, lv, ulv)
	assert.Equal(t, ln, uln)
}

package fp_test

import (
	"math"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"

	"github.com/wasmlite/wasmlite/fp"
)

func TestMinMaxSignedZero(t *testing.T) {
	neg0 := math.Copysign(0, -1)
	assert.Equal(t, neg0, fp.MinF64(0, neg0))
	assert.Equal(t, float64(0), fp.MaxF64(0, neg0))
}

func TestMinMaxNaNContagious(t *testing.T) {
	assert.True(t, math.IsNaN(float64(fp.MinF64(math.NaN(), 1))))
	assert.True(t, math.IsNaN(float64(fp.MaxF64(1, math.NaN()))))
}

func TestNearestTiesToEven(t *testing.T) {
	assert.Equal(t, float64(2), fp.NearestF64(2.5))
	assert.Equal(t, float64(-2), fp.NearestF64(-2.5))
	assert.Equal(t, float64(4), fp.NearestF64(3.5))
}

func TestNearestF32TiesToEven(t *testing.T) {
	assert.Equal(t, float32(2), fp.NearestF32(2.5))
	assert.Equal(t, float32(4), fp.NearestF32(3.5))
}

func TestTruncF32ToI32Overflow(t *testing.T) {
	_, reason := fp.TruncF32ToI32(1e20)
	assert.Equal(t, fp.IntegerOverflow, reason)
}

func TestTruncF32ToI32NaN(t *testing.T) {
	_, reason := fp.TruncF32ToI32(math32.NaN())
	assert.Equal(t, fp.InvalidConversion, reason)
}

func TestTruncF64ToU32InRange(t *testing.T) {
	v, reason := fp.TruncF64ToU32(42.9)
	assert.Equal(t, fp.NoTrap, reason)
	assert.Equal(t, uint32(42), v)
}

func TestTruncF64ToU32NegativeOverflow(t *testing.T) {
	_, reason := fp.TruncF64ToU32(-1)
	assert.Equal(t, fp.IntegerOverflow, reason)
}

func TestConvertU64ToF64HighBitSet(t *testing.T) {
	var v uint64 = 1<<64 - 1 // max uint64
	got := fp.ConvertU64ToF64(v)
	want := 18446744073709551615.0
	assert.InDelta(t, want, got, want*1e-15)
}

func TestPromoteDemoteRoundTrip(t *testing.T) {
	assert.Equal(t, float64(1.5), fp.PromoteF32ToF64(1.5))
	assert.Equal(t, float32(1.5), fp.DemoteF64ToF32(1.5))
}

func TestReinterpretRoundTrip(t *testing.T) {
	v := fp.ReinterpretI32AsF32(0x3F800000)
	assert.Equal(t, float32(1.0), v)
	assert.Equal(t, int32(0x3F800000), fp.ReinterpretF32AsI32(v))
}

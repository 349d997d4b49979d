// Package fp implements the IEEE-754 binary32/binary64 semantics the
// WebAssembly numeric instructions require beyond what Go's native `+`,
// `-`, `*`, `/` on float32/float64 already give: the min/max sign and
// NaN propagation rules, round-to-nearest-ties-to-even for `nearest`,
// and the trapping float-to-integer truncations.
//
// float32 arithmetic is kept in float32 throughout via
// github.com/chewxy/math32 rather than widened to float64, since Go's
// own math package only operates on float64 and widening would round
// twice.
package fp

import (
	"math"

	"github.com/chewxy/math32"
)

// AbsF32, NegF32 and friends wrap math32 so callers never reach for the
// float64 math package on a float32 value.
func AbsF32(v float32) float32   { return math32.Abs(v) }
func NegF32(v float32) float32   { return -v }
func CeilF32(v float32) float32  { return math32.Ceil(v) }
func FloorF32(v float32) float32 { return math32.Floor(v) }
func TruncF32(v float32) float32 { return math32.Trunc(v) }
func SqrtF32(v float32) float32  { return math32.Sqrt(v) }

// NearestF32 rounds to the nearest integral value, ties to even, as
// required by the f32.nearest instruction (distinct from "round half
// away from zero"). The decision is made in float64, which is a safe
// widening for any float32 input and narrows back exactly since the
// rounded result is always integral and within float32 range.
func NearestF32(v float32) float32 {
	if math32.IsNaN(v) || math32.IsInf(v, 0) || v == 0 {
		return v
	}
	return float32(math.RoundToEven(float64(v)))
}

// CopysignF32 composes the magnitude of a with the sign of b.
func CopysignF32(a, b float32) float32 { return math32.Copysign(a, b) }

// MinF32 implements wasm's f32.min: NaN is contagious, and between two
// zeros of different sign the negative one wins (unlike math32.Min,
// which does not make that distinction for equal-magnitude operands).
func MinF32(a, b float32) float32 {
	if math32.IsNaN(a) || math32.IsNaN(b) {
		return canonicalNaNF32()
	}
	if a == 0 && b == 0 {
		if math32.Signbit(a) || math32.Signbit(b) {
			return math32.Copysign(0, -1)
		}
		return 0
	}
	if a < b {
		return a
	}
	return b
}

// MaxF32 is MinF32's mirror: the positive zero wins when signs differ.
func MaxF32(a, b float32) float32 {
	if math32.IsNaN(a) || math32.IsNaN(b) {
		return canonicalNaNF32()
	}
	if a == 0 && b == 0 {
		if math32.Signbit(a) && math32.Signbit(b) {
			return math32.Copysign(0, -1)
		}
		return 0
	}
	if a > b {
		return a
	}
	return b
}

// canonicalNaNF32 is the single NaN bit pattern this interpreter
// produces whenever an operation's result is "an" NaN rather than a
// specific propagated payload; the wasm spec leaves the exact payload
// implementation-defined.
func canonicalNaNF32() float32 {
	return math32.Float32frombits(0x7FC00000)
}

// canonicalNaNF64 is canonicalNaNF32's float64 counterpart.
func canonicalNaNF64() float64 {
	return math.Float64frombits(0x7FF8000000000000)
}

package fp

import (
	"math"

	"github.com/chewxy/math32"
)

// TrapReason is why a trapping float-to-integer truncation failed. The
// zero value means the conversion succeeded.
type TrapReason int

const (
	NoTrap TrapReason = iota
	// InvalidConversion is raised for a NaN operand.
	InvalidConversion
	// IntegerOverflow is raised when the operand's magnitude, after
	// truncating toward zero, falls outside the target type's range.
	IntegerOverflow
)

// TruncF32ToI32 implements i32.trunc_f32_s.
func TruncF32ToI32(v float32) (int32, TrapReason) {
	if math32.IsNaN(v) {
		return 0, InvalidConversion
	}
	f := float64(v)
	if !(f > math.MinInt32-1 && f < math.MaxInt32+1) {
		return 0, IntegerOverflow
	}
	return int32(v), NoTrap
}

// TruncF32ToU32 implements i32.trunc_f32_u.
func TruncF32ToU32(v float32) (uint32, TrapReason) {
	if math32.IsNaN(v) {
		return 0, InvalidConversion
	}
	f := float64(v)
	if !(f > -1 && f < math.MaxUint32+1) {
		return 0, IntegerOverflow
	}
	return uint32(v), NoTrap
}

// TruncF32ToI64 implements i64.trunc_f32_s.
func TruncF32ToI64(v float32) (int64, TrapReason) {
	if math32.IsNaN(v) {
		return 0, InvalidConversion
	}
	f := float64(v)
	if !(f >= -9223372036854775808.0 && f < math.MaxInt64+1) {
		return 0, IntegerOverflow
	}
	return int64(v), NoTrap
}

// TruncF32ToU64 implements i64.trunc_f32_u.
func TruncF32ToU64(v float32) (uint64, TrapReason) {
	if math32.IsNaN(v) {
		return 0, InvalidConversion
	}
	f := float64(v)
	if !(f > -1 && f < math.MaxUint64+1) {
		return 0, IntegerOverflow
	}
	return uint64(v), NoTrap
}

// TruncF64ToI32 implements i32.trunc_f64_s.
func TruncF64ToI32(v float64) (int32, TrapReason) {
	if math.IsNaN(v) {
		return 0, InvalidConversion
	}
	if !(v > math.MinInt32-1 && v < math.MaxInt32+1) {
		return 0, IntegerOverflow
	}
	return int32(v), NoTrap
}

// TruncF64ToU32 implements i32.trunc_f64_u.
func TruncF64ToU32(v float64) (uint32, TrapReason) {
	if math.IsNaN(v) {
		return 0, InvalidConversion
	}
	if !(v > -1 && v < math.MaxUint32+1) {
		return 0, IntegerOverflow
	}
	return uint32(v), NoTrap
}

// TruncF64ToI64 implements i64.trunc_f64_s.
func TruncF64ToI64(v float64) (int64, TrapReason) {
	if math.IsNaN(v) {
		return 0, InvalidConversion
	}
	if !(v >= -9223372036854775808.0 && v < math.MaxInt64+1) {
		return 0, IntegerOverflow
	}
	return int64(v), NoTrap
}

// TruncF64ToU64 implements i64.trunc_f64_u.
func TruncF64ToU64(v float64) (uint64, TrapReason) {
	if math.IsNaN(v) {
		return 0, InvalidConversion
	}
	if !(v > -1 && v < math.MaxUint64+1) {
		return 0, IntegerOverflow
	}
	return uint64(v), NoTrap
}

// ConvertI32ToF32 and friends implement the non-trapping int-to-float
// conversions; 32-bit unsigned inputs are converted from their unsigned
// Go type directly, and 64-bit unsigned inputs go through
// float32FromU64/float64FromU64.
func ConvertI32ToF32(v int32) float32  { return float32(v) }
func ConvertU32ToF32(v uint32) float32 { return float32(v) }
func ConvertI64ToF32(v int64) float32  { return float32(v) }
func ConvertU64ToF32(v uint64) float32 { return float32FromU64(v) }

func ConvertI32ToF64(v int32) float64  { return float64(v) }
func ConvertU32ToF64(v uint32) float64 { return float64(v) }
func ConvertI64ToF64(v int64) float64  { return float64(v) }
func ConvertU64ToF64(v uint64) float64 { return float64FromU64(v) }

// float32FromU64 and float64FromU64 convert an unsigned 64-bit value
// without going through Go's signed int64, which would misinterpret
// values with the high bit set.
func float32FromU64(v uint64) float32 {
	if v>>63 == 0 {
		return float32(int64(v))
	}
	return float32(v>>1)*2 + float32(v&1)
}

func float64FromU64(v uint64) float64 {
	if v>>63 == 0 {
		return float64(int64(v))
	}
	return float64(v>>1)*2 + float64(v&1)
}

// DemoteF64ToF32 implements f32.demote_f64: infinities pass through, any
// NaN becomes the canonical float32 NaN, and finite values round to the
// nearest representable float32.
func DemoteF64ToF32(v float64) float32 {
	if math.IsNaN(v) {
		return canonicalNaNF32()
	}
	return float32(v)
}

// PromoteF32ToF64 implements f64.promote_f32: exact, since every
// float32 value is exactly representable in float64.
func PromoteF32ToF64(v float32) float64 {
	if math32.IsNaN(v) {
		return canonicalNaNF64()
	}
	return float64(v)
}

// ReinterpretI32AsF32 and friends implement the reinterpret
// instructions: a pure bit copy with no numeric conversion.
func ReinterpretI32AsF32(v int32) float32 { return math32.Float32frombits(uint32(v)) }
func ReinterpretF32AsI32(v float32) int32 { return int32(math32.Float32bits(v)) }
func ReinterpretI64AsF64(v int64) float64 { return math.Float64frombits(uint64(v)) }
func ReinterpretF64AsI64(v float64) int64 { return int64(math.Float64bits(v)) }

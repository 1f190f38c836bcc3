package interp

import (
	"math"
	"math/bits"

	"shaderdebug/internal/value"
)

// fmin and fmax return the other operand when one is NaN.
func fmin(a, b float64) float64 {
	switch {
	case math.IsNaN(a):
		return b
	case math.IsNaN(b):
		return a
	case a < b:
		return a
	}
	return b
}

func fmax(a, b float64) float64 {
	switch {
	case math.IsNaN(a):
		return b
	case math.IsNaN(b):
		return a
	case a > b:
		return a
	}
	return b
}

// smallestNormal returns the smallest positive normal value of a float type.
func smallestNormal(t value.VarType) float64 {
	switch t {
	case value.Half:
		return math.Ldexp(1, -14)
	case value.Double:
		return math.Ldexp(1, -1022)
	default:
		return math.Ldexp(1, -126)
	}
}

// flushDenorms replaces denormal components of a 32-bit float value with
// zero of the same sign.
func flushDenorms(v *value.Value) {
	if v.Type != value.Float {
		return
	}
	for i := 0; i < v.Len(); i++ {
		f := v.F32(i)
		if f != 0 && math.Abs(float64(f)) < math.Ldexp(1, -126) {
			v.SetF32(i, float32(math.Copysign(0, float64(f))))
		}
	}
}

func isNormal(f float64, t value.VarType) bool {
	if f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return math.Abs(f) >= smallestNormal(t)
}

// reverseBits reverses the low w bits of x.
func reverseBits(x uint64, w uint) uint64 {
	switch w {
	case 16:
		return uint64(bits.Reverse16(uint16(x)))
	case 64:
		return bits.Reverse64(x)
	default:
		return uint64(bits.Reverse32(uint32(x)))
	}
}

// firstbitLo returns the index of the lowest set bit, or -1.
func firstbitLo(x uint64, w uint) int64 {
	x &= mask(w)
	if x == 0 {
		return -1
	}
	return int64(bits.TrailingZeros64(x))
}

// firstbitHi returns the number of bits above the highest set bit, counted
// from the most significant bit, or -1.
func firstbitHi(x uint64, w uint) int64 {
	x &= mask(w)
	if x == 0 {
		return -1
	}
	return int64(bits.LeadingZeros64(x)) - int64(64-w)
}

// firstbitSHi is firstbitHi for signed values: negative values search for
// the highest clear bit.
func firstbitSHi(x int64, w uint) int64 {
	if x < 0 {
		x = ^x
	}
	return firstbitHi(uint64(x), w)
}

func mask(w uint) uint64 {
	if w >= 64 {
		return math.MaxUint64
	}
	return 1<<w - 1
}

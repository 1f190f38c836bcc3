package interp

import (
	"math"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/value"
)

func (t *ThreadState) execCast(in *ir.Instruction) {
	a := t.arg(in, 0)
	if in.Op == ir.OpBitcast || in.Op == ir.OpAddrSpaceCast {
		t.execBitcast(in, a)
		return
	}
	out := value.Zero("", in.Type)
	w := width(out)
	for i := 0; i < out.Len(); i++ {
		ia := at(a, i)
		switch in.Op {
		case ir.OpTrunc, ir.OpZExt:
			out.SetBits(i, a.Uint(ia))
		case ir.OpSExt:
			if a.Type == value.Bool {
				if a.Bool(ia) {
					out.SetBits(i, ^uint64(0))
				}
				continue
			}
			out.SetBits(i, uint64(a.Int(ia)))
		case ir.OpFPTrunc, ir.OpFPExt:
			out.SetFloat(i, a.Float(ia))
		case ir.OpFPToUI:
			out.SetBits(i, floatToUint(a.Float(ia), w))
		case ir.OpFPToSI:
			out.SetBits(i, uint64(floatToInt(a.Float(ia), w)))
		case ir.OpUIToFP:
			out.SetFloat(i, float64(a.Uint(ia)))
		case ir.OpSIToFP:
			out.SetFloat(i, float64(a.Int(ia)))
		}
	}
	t.set(in, out)
}

// execBitcast reinterprets the bits of a. Pointer casts keep addressing the
// same memory.
func (t *ThreadState) execBitcast(in *ir.Instruction, a value.Value) {
	if in.Type != nil && in.Type.Kind == ir.TypePointer {
		t.set(in, a.Clone())
		t.aliasPointer(in, in.Operands[0])
		return
	}
	out := value.Zero("", in.Type)
	if out.IsAggregate() || a.IsAggregate() {
		t.set(in, a.Clone())
		return
	}
	// Reinterpret through the packed little-endian bytes so that casts
	// between vectors of different widths keep every bit.
	var buf []byte
	aw := max(a.Type.ByteSize(), 1)
	for i := 0; i < a.Len(); i++ {
		for k := 0; k < aw; k++ {
			buf = append(buf, byte(a.Bits(i)>>(8*k)))
		}
	}
	ow := max(out.Type.ByteSize(), 1)
	for i := 0; i < out.Len(); i++ {
		var bits uint64
		for k := 0; k < ow; k++ {
			if j := i*ow + k; j < len(buf) {
				bits |= uint64(buf[j]) << (8 * k)
			}
		}
		out.SetBits(i, bits)
	}
	t.set(in, out)
}

// floatToUint converts with saturation; NaN converts to zero.
func floatToUint(f float64, w uint) uint64 {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if w >= 64 {
		if f >= math.Ldexp(1, 64) {
			return math.MaxUint64
		}
		return uint64(f)
	}
	limit := uint64(1)<<w - 1
	if f >= float64(limit) {
		return limit
	}
	return uint64(f)
}

// floatToInt converts with saturation; NaN converts to zero.
func floatToInt(f float64, w uint) int64 {
	if math.IsNaN(f) {
		return 0
	}
	if w >= 64 {
		switch {
		case f >= math.Ldexp(1, 63):
			return math.MaxInt64
		case f <= -math.Ldexp(1, 63):
			return math.MinInt64
		}
		return int64(f)
	}
	hi := int64(1)<<(w-1) - 1
	lo := -hi - 1
	switch {
	case f >= float64(hi):
		return hi
	case f <= float64(lo):
		return lo
	}
	return int64(f)
}

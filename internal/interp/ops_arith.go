package interp

import (
	"math"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/value"
)

// at maps component i of a result onto an operand, splatting scalars.
func at(v value.Value, i int) int {
	if v.Len() <= 1 {
		return 0
	}
	return i
}

// width returns the bit width of a component of v.
func width(v value.Value) uint {
	if v.Type == value.Bool {
		return 1
	}
	return uint(max(v.Type.ByteSize(), 1)) * 8
}

// execBinary executes the integer arithmetic and bitwise ops.
func (t *ThreadState) execBinary(in *ir.Instruction) {
	a, b := t.arg(in, 0), t.arg(in, 1)
	out := value.Zero("", in.Type)
	w := width(out)
	for i := 0; i < out.Len(); i++ {
		ia, ib := at(a, i), at(b, i)
		var r uint64
		switch in.Op {
		case ir.OpAdd:
			r = a.Uint(ia) + b.Uint(ib)
		case ir.OpSub:
			r = a.Uint(ia) - b.Uint(ib)
		case ir.OpMul:
			r = a.Uint(ia) * b.Uint(ib)
		case ir.OpUDiv, ir.OpURem:
			y := b.Uint(ib)
			if y == 0 {
				r = ^uint64(0)
				t.events |= EventGeneratedNanOrInf
			} else if in.Op == ir.OpUDiv {
				r = a.Uint(ia) / y
			} else {
				r = a.Uint(ia) % y
			}
		case ir.OpSDiv, ir.OpSRem:
			y := b.Int(ib)
			switch {
			case y == 0:
				r = 0
				t.events |= EventGeneratedNanOrInf
			case in.Op == ir.OpSDiv:
				r = uint64(a.Int(ia) / y)
			default:
				r = uint64(a.Int(ia) % y)
			}
		case ir.OpShl:
			r = a.Uint(ia) << (b.Uint(ib) & uint64(w-1))
		case ir.OpLShr:
			r = a.Uint(ia) >> (b.Uint(ib) & uint64(w-1))
		case ir.OpAShr:
			r = uint64(a.Int(ia) >> (b.Uint(ib) & uint64(w-1)))
		case ir.OpAnd:
			r = a.Uint(ia) & b.Uint(ib)
		case ir.OpOr:
			r = a.Uint(ia) | b.Uint(ib)
		case ir.OpXor:
			r = a.Uint(ia) ^ b.Uint(ib)
		}
		out.SetBits(i, r)
	}
	t.set(in, out)
}

// execFloatBinary executes fadd, fsub, fmul, fdiv and frem at the width of
// the result type.
func (t *ThreadState) execFloatBinary(in *ir.Instruction) {
	a, b := t.arg(in, 0), t.arg(in, 1)
	out := value.Zero("", in.Type)
	for i := 0; i < out.Len(); i++ {
		out.SetFloat(i, floatBinary(in.Op, a.Float(at(a, i)), b.Float(at(b, i)), out.Type))
	}
	t.set(in, out)
}

func floatBinary(op ir.Op, x, y float64, typ value.VarType) float64 {
	if typ == value.Double {
		switch op {
		case ir.OpFAdd:
			return x + y
		case ir.OpFSub:
			return x - y
		case ir.OpFMul:
			return x * y
		case ir.OpFDiv:
			return x / y
		default:
			return math.Mod(x, y)
		}
	}
	a, b := float32(x), float32(y)
	switch op {
	case ir.OpFAdd:
		return float64(a + b)
	case ir.OpFSub:
		return float64(a - b)
	case ir.OpFMul:
		return float64(a * b)
	case ir.OpFDiv:
		return float64(a / b)
	default:
		return float64(float32(math.Mod(float64(a), float64(b))))
	}
}

func (t *ThreadState) execFNeg(in *ir.Instruction) {
	a := t.arg(in, 0)
	out := value.Zero("", in.Type)
	for i := 0; i < out.Len(); i++ {
		out.SetFloat(i, -a.Float(at(a, i)))
	}
	t.set(in, out)
}

func (t *ThreadState) execCmp(in *ir.Instruction) {
	a, b := t.arg(in, 0), t.arg(in, 1)
	out := value.Zero("", in.Type)
	for i := 0; i < out.Len(); i++ {
		ia, ib := at(a, i), at(b, i)
		var r bool
		if in.Pred.IsFloat() {
			r = floatCompare(in.Pred, a.Float(ia), b.Float(ib))
		} else {
			r = intCompare(in.Pred, a, ia, b, ib)
		}
		out.SetBool(i, r)
	}
	t.set(in, out)
}

func floatCompare(p ir.Predicate, x, y float64) bool {
	unordered := math.IsNaN(x) || math.IsNaN(y)
	switch p {
	case ir.FCmpFalse:
		return false
	case ir.FCmpOEQ:
		return !unordered && x == y
	case ir.FCmpOGT:
		return !unordered && x > y
	case ir.FCmpOGE:
		return !unordered && x >= y
	case ir.FCmpOLT:
		return !unordered && x < y
	case ir.FCmpOLE:
		return !unordered && x <= y
	case ir.FCmpONE:
		return !unordered && x != y
	case ir.FCmpORD:
		return !unordered
	case ir.FCmpUNO:
		return unordered
	case ir.FCmpUEQ:
		return unordered || x == y
	case ir.FCmpUGT:
		return unordered || x > y
	case ir.FCmpUGE:
		return unordered || x >= y
	case ir.FCmpULT:
		return unordered || x < y
	case ir.FCmpULE:
		return unordered || x <= y
	case ir.FCmpUNE:
		return unordered || x != y
	default:
		return true
	}
}

func intCompare(p ir.Predicate, a value.Value, ia int, b value.Value, ib int) bool {
	switch p {
	case ir.ICmpEQ:
		return a.Uint(ia) == b.Uint(ib)
	case ir.ICmpNE:
		return a.Uint(ia) != b.Uint(ib)
	case ir.ICmpUGT:
		return a.Uint(ia) > b.Uint(ib)
	case ir.ICmpUGE:
		return a.Uint(ia) >= b.Uint(ib)
	case ir.ICmpULT:
		return a.Uint(ia) < b.Uint(ib)
	case ir.ICmpULE:
		return a.Uint(ia) <= b.Uint(ib)
	case ir.ICmpSGT:
		return a.Int(ia) > b.Int(ib)
	case ir.ICmpSGE:
		return a.Int(ia) >= b.Int(ib)
	case ir.ICmpSLT:
		return a.Int(ia) < b.Int(ib)
	default:
		return a.Int(ia) <= b.Int(ib)
	}
}

// execSelect picks between two values; a vector condition selects per
// component.
func (t *ThreadState) execSelect(in *ir.Instruction) {
	cond := t.arg(in, 0)
	x, y := t.arg(in, 1), t.arg(in, 2)
	if x.IsAggregate() || cond.Len() <= 1 {
		pick, op := y, in.Operands[2]
		if cond.Bool(0) {
			pick, op = x, in.Operands[1]
		}
		t.set(in, pick.Clone())
		t.aliasPointer(in, op)
		return
	}
	out := x
	for i := 0; i < out.Len(); i++ {
		if !cond.Bool(at(cond, i)) {
			out.SetBits(i, y.Bits(at(y, i)))
		}
	}
	t.set(in, out)
}

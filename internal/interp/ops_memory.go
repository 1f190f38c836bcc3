package interp

import (
	"fmt"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/memory"
	"shaderdebug/internal/value"
)

// pointer resolves a pointer operand to the memory it addresses.
func (t *ThreadState) pointer(op ir.Operand) memory.Pointer {
	if op.Kind != ir.OperandId {
		t.fail(t.eb().badOperand(fmt.Sprintf("pointer operand %s is not an Id", op)))
	}
	if int(op.Id) >= len(t.values) || !t.assigned.Test(uint(op.Id)) {
		t.fail(t.eb().unassigned(op.Id))
	}
	p, ok := t.mem.Pointer(op.Id)
	if !ok {
		t.fail(t.eb().makeError(CodeNoAllocation, fmt.Sprintf("%%%d does not point into memory", op.Id)))
	}
	if _, ok := t.mem.Allocation(p.Base); !ok {
		t.fail(t.eb().makeError(CodeNoAllocation, fmt.Sprintf("%%%d points into released allocation %%%d", op.Id, p.Base)))
	}
	return p
}

// aliasPointer makes the result of in address the same memory as op when
// both are pointers.
func (t *ThreadState) aliasPointer(in *ir.Instruction, op ir.Operand) {
	if !in.HasResult() || op.Kind != ir.OperandId {
		return
	}
	if p, ok := t.mem.Pointer(op.Id); ok {
		t.mem.SetPointer(in.Result, p)
	}
}

// refresh reloads the value mirrored by pointer id after a write to memory
// it covers.
func (t *ThreadState) refresh(id ir.Id) {
	if int(id) >= len(t.values) || !t.assigned.Test(uint(id)) {
		return
	}
	p, ok := t.mem.Pointer(id)
	if !ok {
		return
	}
	v, err := t.mem.Load(p)
	if err != nil {
		return
	}
	v.Name = t.values[id].Name
	t.assign(id, v)
}

// storeTo writes v through ptr and refreshes the mirrors of the
// allocation and of the pointer used.
func (t *ThreadState) storeTo(ptr ir.Id, p memory.Pointer, v value.Value) {
	if err := t.mem.Store(p, v); err != nil {
		t.fail(t.eb().memory(err))
	}
	t.refresh(p.Base)
	if ptr != p.Base {
		t.refresh(ptr)
	}
}

func (t *ThreadState) load(p memory.Pointer) value.Value {
	v, err := t.mem.Load(p)
	if err != nil {
		t.fail(t.eb().memory(err))
	}
	return v
}

func (t *ThreadState) execAlloca(in *ir.Instruction) {
	elem := in.Type
	if elem != nil && elem.Kind == ir.TypePointer {
		elem = elem.Elem
	}
	t.mem.Allocate(in.Result, elem, false)
	t.set(in, value.Zero("", elem))
}

func (t *ThreadState) execLoad(in *ir.Instruction) {
	p := t.pointer(t.operand(in, 0))
	t.set(in, t.load(p))
}

func (t *ThreadState) execStore(in *ir.Instruction) {
	if len(in.Operands) < 2 {
		t.fail(t.eb().badOperand("store needs a pointer and a value"))
	}
	p := t.pointer(t.operand(in, 0))
	t.storeTo(t.operand(in, 0).Id, p, t.arg(in, 1))
}

func (t *ThreadState) execGEP(in *ir.Instruction) {
	base := t.pointer(t.operand(in, 0))
	indices := make([]uint64, 0, len(in.Operands)-1)
	for i := 1; i < len(in.Operands); i++ {
		indices = append(indices, t.argUint(in, i))
	}
	p, err := t.mem.AddressOf(base, indices)
	if err != nil {
		t.fail(t.eb().memory(err))
	}
	t.mem.SetPointer(in.Result, p)
	t.set(in, t.load(p))
}

// execAtomicRMW applies a read-modify-write to lane or group-shared memory
// and yields the previous value.
func (t *ThreadState) execAtomicRMW(in *ir.Instruction) {
	p := t.pointer(t.operand(in, 0))
	old := t.load(p)
	t.storeTo(t.operand(in, 0).Id, p, atomicApply(in.Atomic, old, t.arg(in, 1)))
	t.set(in, old)
}

// execCmpXchg stores the new value when memory equals the comparand. A
// struct result receives the previous value and the success flag.
func (t *ThreadState) execCmpXchg(in *ir.Instruction) {
	p := t.pointer(t.operand(in, 0))
	old := t.load(p)
	cmp, repl := t.arg(in, 1), t.arg(in, 2)
	ok := old.Uint(0) == cmp.Uint(0)
	if ok {
		t.storeTo(t.operand(in, 0).Id, p, repl)
	}
	out := value.Zero("", in.Type)
	if out.IsAggregate() && len(out.Members) >= 2 {
		out.Members[0].SetBits(0, old.Bits(0))
		out.Members[1].SetBool(0, ok)
		t.set(in, out)
		return
	}
	t.set(in, old)
}

// atomicApply computes the value an atomic op leaves in memory.
func atomicApply(op ir.AtomicOp, old, v value.Value) value.Value {
	out := old
	a, b := old.Uint(0), v.Uint(0)
	sa, sb := old.Int(0), v.Int(0)
	var r uint64
	switch op {
	case ir.AtomicAdd:
		r = a + b
	case ir.AtomicAnd:
		r = a & b
	case ir.AtomicOr:
		r = a | b
	case ir.AtomicXor:
		r = a ^ b
	case ir.AtomicIMin:
		r = uint64(min(sa, sb))
	case ir.AtomicIMax:
		r = uint64(max(sa, sb))
	case ir.AtomicUMin:
		r = min(a, b)
	case ir.AtomicUMax:
		r = max(a, b)
	default:
		r = b
	}
	out.SetBits(0, r)
	return out
}

// element walks literal indices from operand first on into an aggregate.
// The last step may select a vector component.
func (t *ThreadState) element(in *ir.Instruction, agg *value.Value, first int) (*value.Value, int) {
	cur := agg
	for i := first; i < len(in.Operands); i++ {
		idx := int(t.argUint(in, i))
		if cur.IsAggregate() {
			if idx >= len(cur.Members) {
				t.fail(t.eb().badOperand(fmt.Sprintf("%s: index %d out of range", in.Op, idx)))
			}
			cur = &cur.Members[idx]
			continue
		}
		if i != len(in.Operands)-1 || idx >= cur.Len() {
			t.fail(t.eb().badOperand(fmt.Sprintf("%s: cannot index component %d", in.Op, idx)))
		}
		return cur, idx
	}
	return cur, -1
}

func (t *ThreadState) execExtractValue(in *ir.Instruction) {
	agg := t.arg(in, 0).Clone()
	v, comp := t.element(in, &agg, 1)
	if comp < 0 {
		t.set(in, v.Clone())
		return
	}
	out := value.Scalar("", v.Type)
	out.SetBits(0, v.Bits(comp))
	t.set(in, out)
}

func (t *ThreadState) execInsertValue(in *ir.Instruction) {
	agg := t.arg(in, 0).Clone()
	repl := t.arg(in, 1)
	v, comp := t.element(in, &agg, 2)
	if comp < 0 {
		name := v.Name
		*v = repl.Clone()
		v.Name = name
	} else {
		v.SetBits(comp, repl.Bits(0))
	}
	t.set(in, agg)
}

package interp

import (
	"fmt"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/resource"
	"shaderdebug/internal/value"
)

// stepContext carries what one step may read from outside the lane.
type stepContext struct {
	acc   resource.Accessor
	lanes []*ThreadState
	// active marks the lanes stepping in lockstep with this one; nil means
	// every lane.
	active []bool
}

func (c *stepContext) isActive(lane int) bool {
	if c.active == nil {
		return true
	}
	return lane < len(c.active) && c.active[lane]
}

// lane returns lane number l, or nil when it does not exist.
func (c *stepContext) lane(l int) *ThreadState {
	if l < 0 || l >= len(c.lanes) {
		return nil
	}
	return c.lanes[l]
}

// Step executes the next instruction of the lane.
//
// lanes holds every lane of the workgroup indexed by lane number and is
// only read by wave, quad and derivative operations; active marks the lanes
// of the tangle being stepped. A returned *Error is fatal for the session.
func (t *ThreadState) Step(acc resource.Accessor, lanes []*ThreadState, active []bool) (res StepResult, err error) {
	if t.Finished() {
		return StepResult{Instruction: -1, Next: -1}, t.eb().makeError(CodeFinished, "step on a finished lane")
	}
	t.changes = nil
	t.events = 0
	t.touched = nil
	t.skipAdministrative()
	t.current = t.next
	res = StepResult{Instruction: t.current, Block: t.block, Next: -1}

	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(*Error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()

	ctx := &stepContext{acc: acc, lanes: lanes, active: active}
	in := &t.fn.Function.Instructions[t.current]
	if in.Op.IsTerminator() {
		res.Branched = t.execTerminator(in)
	} else {
		t.execInstr(in, ctx)
		if !t.Finished() {
			t.next = t.current + 1
		}
	}
	if !t.Finished() {
		t.skipAdministrative()
		t.dropDead()
	}

	res.Next = t.NextInstruction()
	res.Changes = t.changes
	res.Events = t.events
	res.Resources = t.touched
	return res, nil
}

func (t *ThreadState) skipAdministrative() {
	instrs := t.fn.Function.Instructions
	for t.next < len(instrs)-1 && instrs[t.next].Op.IsAdministrative() {
		t.next++
	}
}

// dropDead removes Ids that are no longer needed at the next instruction
// from the live set and records them as leaving scope. Their values stay
// readable.
func (t *ThreadState) dropDead() {
	at := t.fn.PointOf(t.next)
	for i, ok := t.live.NextSet(0); ok; i, ok = t.live.NextSet(i + 1) {
		id := ir.Id(i)
		if t.fn.IsDead(id, at) {
			t.live.Clear(i)
			t.changes = append(t.changes, Change{Id: id, Before: t.values[i].Clone()})
		}
	}
}

// finish ends the lane: every live Id leaves scope and lane memory is
// released.
func (t *ThreadState) finish() {
	for i, ok := t.live.NextSet(0); ok; i, ok = t.live.NextSet(i + 1) {
		t.changes = append(t.changes, Change{Id: ir.Id(i), Before: t.values[i].Clone()})
	}
	t.live.ClearAll()
	t.End()
}

func (t *ThreadState) execInstr(in *ir.Instruction, ctx *stepContext) {
	switch {
	case in.Op.IsBinary():
		t.execBinary(in)
		return
	case in.Op.IsCast():
		t.execCast(in)
		return
	}

	switch in.Op {
	case ir.OpNop, ir.OpDebugValue, ir.OpDebugDeclare:
	case ir.OpPhi:
		t.execPhi(in)
	case ir.OpSelect:
		t.execSelect(in)
	case ir.OpFNeg:
		t.execFNeg(in)
	case ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv, ir.OpFRem:
		t.execFloatBinary(in)
	case ir.OpICmp, ir.OpFCmp:
		t.execCmp(in)
	case ir.OpExtractValue:
		t.execExtractValue(in)
	case ir.OpInsertValue:
		t.execInsertValue(in)
	case ir.OpAlloca:
		t.execAlloca(in)
	case ir.OpLoad:
		t.execLoad(in)
	case ir.OpStore:
		t.execStore(in)
	case ir.OpGEP:
		t.execGEP(in)
	case ir.OpAtomicRMW:
		t.execAtomicRMW(in)
	case ir.OpCmpXchg:
		t.execCmpXchg(in)
	case ir.OpCall:
		t.execCall(in, ctx)
	default:
		t.unimplemented(in, in.Op.String())
	}
}

// unimplemented warns once per operation and produces a zero result.
func (t *ThreadState) unimplemented(in *ir.Instruction, what string) {
	t.global.warnOnce(what, "unimplemented operation, result is zero")
	if in.HasResult() {
		t.set(in, value.Zero("", in.Type))
	}
}

// execTerminator executes a branch, switch, return or unreachable and
// reports whether it was a conditional branch.
func (t *ThreadState) execTerminator(in *ir.Instruction) bool {
	switch in.Op {
	case ir.OpBr:
		if len(in.Operands) == 0 {
			t.jump(in, 0)
			return false
		}
		if t.arg(in, 0).Bool(0) {
			t.jump(in, 0)
		} else {
			t.jump(in, 1)
		}
		return true
	case ir.OpSwitch:
		sel := t.arg(in, 0)
		target := 0
		for i, c := range in.Cases {
			cv := sel
			cv.SetBits(0, c)
			if cv.Uint(0) == sel.Uint(0) {
				target = i + 1
				break
			}
		}
		t.jump(in, target)
		return true
	case ir.OpRet:
		t.finish()
		return false
	case ir.OpUnreachable:
		t.fail(t.eb().unreachable())
	}
	return false
}

// jump moves the lane to the block in Targets[i], capturing the operands
// of the target's phis first.
func (t *ThreadState) jump(in *ir.Instruction, i int) {
	if i >= len(in.Targets) {
		t.fail(t.eb().badOperand(fmt.Sprintf("%s: missing target %d", in.Op, i)))
	}
	target := in.Targets[i]
	if target < 0 || target >= len(t.fn.Function.Blocks) {
		t.fail(t.eb().badOperand(fmt.Sprintf("%s: target block %d out of range", in.Op, target)))
	}
	clear(t.phiValues)
	for _, id := range t.fn.PhiReferencedIdsPerBlock[target] {
		if int(id) < len(t.values) && t.assigned.Test(uint(id)) {
			t.phiValues[id] = t.values[id]
		}
	}
	t.prevBlock = t.block
	t.block = target
	t.next = t.fn.BlockEntry(target)
}

// execPhi selects the incoming value of the edge the lane arrived by.
func (t *ThreadState) execPhi(in *ir.Instruction) {
	for i, pred := range in.Targets {
		if pred != t.prevBlock || i >= len(in.Operands) {
			continue
		}
		op := in.Operands[i]
		if op.Kind == ir.OperandId {
			if v, ok := t.phiValues[op.Id]; ok {
				t.set(in, v.Clone())
				return
			}
		}
		t.set(in, t.read(op).Clone())
		return
	}
	t.fail(t.eb().badOperand(fmt.Sprintf("phi has no incoming value for block %d", t.prevBlock)))
}

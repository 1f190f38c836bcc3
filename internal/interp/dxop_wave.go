package interp

import (
	"fmt"

	"fortio.org/safecast"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/value"
)

// wave returns the first lane and size of the wave holding t.
func (t *ThreadState) wave(ctx *stepContext) (base, n int) {
	n = t.global.WaveSize
	if n <= 0 {
		n = len(ctx.lanes)
	}
	if n <= 0 {
		return t.Lane, 1
	}
	return t.Lane / n * n, n
}

// waveLanes returns the lanes taking part in a wave op of in, in lane
// order. Every unfinished lane of the wave must be stepping with t.
func (t *ThreadState) waveLanes(in *ir.Instruction, ctx *stepContext) []*ThreadState {
	base, n := t.wave(ctx)
	var out []*ThreadState
	for l := base; l < base+n; l++ {
		lane := ctx.lane(l)
		if lane == nil || lane.Finished() {
			continue
		}
		if !ctx.isActive(l) {
			t.fail(t.eb().diverged(in.DXOp.String()))
		}
		if lane.Helper {
			continue
		}
		out = append(out, lane)
	}
	return out
}

// quadLanes returns the four lanes of t's quad, nil where the workgroup
// has no such lane. Helper lanes take part.
func (t *ThreadState) quadLanes(in *ir.Instruction, ctx *stepContext) [4]*ThreadState {
	var quad [4]*ThreadState
	base := t.Lane &^ 3
	for i := range quad {
		lane := ctx.lane(base + i)
		if lane == nil {
			continue
		}
		if !lane.Finished() && !ctx.isActive(base+i) {
			t.fail(t.eb().diverged(in.DXOp.String()))
		}
		quad[i] = lane
	}
	return quad
}

// operandValue evaluates op in another lane without failing.
func (t *ThreadState) operandValue(op ir.Operand) (value.Value, bool) {
	if t == nil {
		return value.Value{}, false
	}
	if op.Kind == ir.OperandId && (int(op.Id) >= len(t.values) || !t.assigned.Test(uint(op.Id))) {
		return value.Value{}, false
	}
	return t.read(op), true
}

// laneArg reads operand i of in as lane l sees it.
func (t *ThreadState) laneArg(in *ir.Instruction, l *ThreadState, i int) value.Value {
	op := t.operand(in, i)
	v, ok := l.operandValue(op)
	if !ok {
		t.fail(t.eb().makeError(CodeUnassigned, fmt.Sprintf("%s reads %%%d which lane %d never assigned", in.DXOp, op.Id, l.Lane)))
	}
	return v
}

func (t *ThreadState) execWave(in *ir.Instruction, ctx *stepContext) {
	lanes := t.waveLanes(in, ctx)
	base, n := t.wave(ctx)
	switch in.DXOp {
	case ir.DXWaveIsFirstLane:
		t.setBool(in, len(lanes) > 0 && lanes[0] == t)
	case ir.DXWaveAnyTrue, ir.DXWaveAllTrue:
		all := in.DXOp == ir.DXWaveAllTrue
		res := all
		for _, l := range lanes {
			if t.laneArg(in, l, 0).Bool(0) != all {
				res = !all
				break
			}
		}
		t.setBool(in, res)
	case ir.DXWaveActiveAllEqual:
		v := t.arg(in, 0)
		eq := true
		for _, l := range lanes {
			if !t.laneArg(in, l, 0).Equal(v) {
				eq = false
				break
			}
		}
		t.setBool(in, eq)
	case ir.DXWaveActiveBallot:
		var words [4]uint32
		for _, l := range lanes {
			if t.laneArg(in, l, 0).Bool(0) {
				bit := l.Lane - base
				words[bit/32%4] |= 1 << (bit % 32)
			}
		}
		t.set(in, shapeResult(in.Type, value.FromU32("", words[:]...)))
	case ir.DXWaveReadLaneAt:
		var src *ThreadState
		if idx, err := safecast.Conv[int](t.argUint(in, 1)); err == nil && idx < n {
			src = ctx.lane(base + idx)
		}
		v, ok := src.operandValue(t.operand(in, 0))
		if !ok {
			v = value.Zero("", in.Type)
		}
		t.set(in, v.Clone())
	case ir.DXWaveReadLaneFirst:
		if len(lanes) == 0 {
			t.set(in, t.arg(in, 0).Clone())
			return
		}
		t.set(in, t.laneArg(in, lanes[0], 0).Clone())
	case ir.DXWaveActiveOp, ir.DXWavePrefixOp:
		kind := ir.WaveOpKind(t.argUint(in, 1))
		signed := len(in.Operands) > 2 && t.argUint(in, 2) != 0
		prefix := in.DXOp == ir.DXWavePrefixOp
		acc := t.arg(in, 0).Clone()
		started := false
		for _, l := range lanes {
			if prefix && l.Lane >= t.Lane {
				break
			}
			v := t.laneArg(in, l, 0)
			if !started {
				acc = v.Clone()
				started = true
				continue
			}
			waveCombine(&acc, v, kind, signed)
		}
		if !started {
			// Only a prefix over no lanes gets here.
			acc = waveIdentity(t.arg(in, 0), kind)
		}
		t.set(in, acc)
	case ir.DXWaveActiveBit:
		kind := ir.WaveBitKind(t.argUint(in, 1))
		acc := t.arg(in, 0).Clone()
		for i, l := range lanes {
			v := t.laneArg(in, l, 0)
			if i == 0 {
				acc = v.Clone()
				continue
			}
			for c := 0; c < acc.Len(); c++ {
				a, b := acc.Bits(c), v.Bits(c)
				switch kind {
				case ir.WaveBitAnd:
					acc.SetBits(c, a&b)
				case ir.WaveBitOr:
					acc.SetBits(c, a|b)
				default:
					acc.SetBits(c, a^b)
				}
			}
		}
		t.set(in, acc)
	case ir.DXWaveAllBitCount, ir.DXWavePrefixBitCount:
		prefix := in.DXOp == ir.DXWavePrefixBitCount
		count := 0
		for _, l := range lanes {
			if prefix && l.Lane >= t.Lane {
				break
			}
			if t.laneArg(in, l, 0).Bool(0) {
				count++
			}
		}
		t.setUint(in, uint64(count))
	default:
		t.unimplemented(in, in.DXOp.String())
	}
}

func (t *ThreadState) setBool(in *ir.Instruction, b bool) {
	out := value.Zero("", in.Type)
	if out.Len() == 0 {
		out = value.Scalar("", value.Bool)
	}
	out.SetBool(0, b)
	t.set(in, out)
}

func waveIdentity(like value.Value, kind ir.WaveOpKind) value.Value {
	out := like.Clone()
	for c := 0; c < out.Len(); c++ {
		switch {
		case kind != ir.WaveProduct:
			out.SetBits(c, 0)
		case out.Type.IsFloat():
			out.SetFloat(c, 1)
		default:
			out.SetBits(c, 1)
		}
	}
	return out
}

// waveCombine folds v into acc component-wise.
func waveCombine(acc *value.Value, v value.Value, kind ir.WaveOpKind, signed bool) {
	for c := 0; c < acc.Len() && c < v.Len(); c++ {
		if acc.Type.IsFloat() {
			a, b := acc.Float(c), v.Float(c)
			var r float64
			switch kind {
			case ir.WaveSum:
				r = a + b
			case ir.WaveProduct:
				r = a * b
			case ir.WaveMin:
				r = fmin(a, b)
			default:
				r = fmax(a, b)
			}
			if acc.Type == value.Float {
				r = float64(float32(r))
			}
			acc.SetFloat(c, r)
			continue
		}
		a, b := acc.Uint(c), v.Uint(c)
		sa, sb := acc.Int(c), v.Int(c)
		var r uint64
		switch kind {
		case ir.WaveSum:
			r = a + b
		case ir.WaveProduct:
			r = a * b
		case ir.WaveMin:
			if signed {
				r = uint64(min(sa, sb))
			} else {
				r = min(a, b)
			}
		default:
			if signed {
				r = uint64(max(sa, sb))
			} else {
				r = max(a, b)
			}
		}
		acc.SetBits(c, r)
	}
}

func (t *ThreadState) execQuad(in *ir.Instruction, ctx *stepContext) {
	quad := t.quadLanes(in, ctx)
	ql := t.Lane & 3
	var src int
	if in.DXOp == ir.DXQuadReadLaneAt {
		src = int(t.argUint(in, 1) & 3)
	} else {
		switch ir.QuadOpKind(t.argUint(in, 1)) {
		case ir.QuadReadAcrossX:
			src = ql ^ 1
		case ir.QuadReadAcrossY:
			src = ql ^ 2
		default:
			src = ql ^ 3
		}
	}
	v, ok := quad[src].operandValue(t.operand(in, 0))
	if !ok {
		v = value.Zero("", in.Type)
	}
	t.set(in, v.Clone())
}

// execDeriv differences the operand across the quad. Coarse derivatives
// use the top-left lane for the whole quad; fine ones use the lane's own
// row or column.
func (t *ThreadState) execDeriv(in *ir.Instruction, ctx *stepContext) {
	quad := t.quadLanes(in, ctx)
	ql := t.Lane & 3
	var from, to int
	switch in.DXOp {
	case ir.DXDerivCoarseX:
		from, to = 0, 1
	case ir.DXDerivCoarseY:
		from, to = 0, 2
	case ir.DXDerivFineX:
		row := ql & 2
		from, to = row, row+1
	default:
		col := ql & 1
		from, to = col, col+2
	}
	op := t.operand(in, 0)
	a, okA := quad[from].operandValue(op)
	b, okB := quad[to].operandValue(op)
	out := value.Zero("", in.Type)
	if okA && okB {
		for c := 0; c < out.Len() && c < a.Len() && c < b.Len(); c++ {
			d := b.Float(c) - a.Float(c)
			if out.Type == value.Float {
				d = float64(float32(b.Float(c)) - float32(a.Float(c)))
			}
			out.SetFloat(c, d)
		}
	}
	t.setDX(in, out)
}

// execBarrier checks that the whole workgroup reached the barrier together.
// Memory is shared directly, so there is nothing to synchronise.
func (t *ThreadState) execBarrier(in *ir.Instruction, ctx *stepContext) {
	for l, lane := range ctx.lanes {
		if lane != nil && !lane.Finished() && !ctx.isActive(l) {
			t.fail(t.eb().divergedBarrier())
		}
	}
}

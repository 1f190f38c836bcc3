package interp

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"fortio.org/safecast"
	"github.com/rs/zerolog/log"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/resource"
	"shaderdebug/internal/value"
)

// Intrinsic operands, in order. The DXIL opcode itself is carried in
// Instruction.DXOp and is not an operand.
//
//	LoadInput                      sigId, row, col
//	StoreOutput                    sigId, row, col, value
//	ThreadId, GroupId,
//	ThreadIdInGroup                component
//	unary, binary, tertiary        values
//	Dot2, Dot3, Dot4               a0..an, b0..bn
//	CreateHandle                   class, rangeId, index, nonUniform
//	CreateHandleFromBinding        class, space, lowerBound, index, nonUniform
//	CreateHandleFromHeap           index, samplerHeap, nonUniform
//	AnnotateHandle                 handle, kind, compType, stride
//	CBufferLoad                    handle, byteOffset, alignment
//	CBufferLoadLegacy              handle, row
//	BufferLoad                     handle, index, byteOffset
//	BufferStore                    handle, index, byteOffset, x, y, z, w, mask
//	RawBufferLoad                  handle, index, byteOffset, mask, alignment
//	RawBufferStore                 handle, index, byteOffset, x, y, z, w, mask, alignment
//	TextureLoad                    handle, mipOrSample, c0, c1, c2, o0, o1, o2
//	TextureStore                   handle, c0, c1, c2, x, y, z, w, mask
//	Sample                         tex, sampler, c0..c3, o0..o2, clamp
//	SampleBias                     tex, sampler, c0..c3, o0..o2, bias, clamp
//	SampleLevel                    tex, sampler, c0..c3, o0..o2, lod
//	SampleGrad                     tex, sampler, c0..c3, o0..o2, ddx0..2, ddy0..2, clamp
//	SampleCmp                      tex, sampler, c0..c3, o0..o2, compare, clamp
//	SampleCmpLevelZero             tex, sampler, c0..c3, o0..o2, compare
//	SampleCmpLevel                 tex, sampler, c0..c3, o0..o2, compare, lod
//	SampleCmpGrad                  tex, sampler, c0..c3, o0..o2, compare, ddx0..2, ddy0..2, clamp
//	SampleCmpBias                  tex, sampler, c0..c3, o0..o2, compare, bias, clamp
//	CalculateLOD                   tex, sampler, c0..c2, clamped
//	TextureGather                  tex, sampler, c0..c3, o0, o1, channel
//	TextureGatherCmp               tex, sampler, c0..c3, o0, o1, channel, compare
//	GetDimensions                  handle, mip
//	Texture2DMSGetSamplePosition   handle, sampleIndex
//	RenderTargetGetSamplePosition  sampleIndex
//	AtomicBinOp                    handle, atomicOp, c0, c1, c2, value
//	AtomicCompareExchange          handle, c0, c1, c2, compare, value
//	WaveReadLaneAt                 value, lane
//	WaveActiveOp, WavePrefixOp     value, op, signed
//	WaveActiveBit                  value, op
//	QuadReadLaneAt                 value, quadLane
//	QuadOp                         value, op
//	Barrier                        flags
//	Discard                        condition
func (t *ThreadState) execCall(in *ir.Instruction, ctx *stepContext) {
	if in.Callee != "" {
		t.unimplemented(in, "call @"+in.Callee)
		return
	}
	op := in.DXOp
	switch {
	case op.IsMathIntrinsic():
		t.execMath(in, ctx)
		return
	case op.IsSampleOrGather():
		t.execSample(in, ctx)
		return
	case op.IsWaveOp():
		t.execWave(in, ctx)
		return
	}

	switch op {
	case ir.DXLoadInput:
		t.execLoadInput(in)
	case ir.DXStoreOutput:
		t.execStoreOutput(in)
	case ir.DXThreadId:
		t.setUint(in, uint64(t.ThreadID[t.component(in)]))
	case ir.DXGroupId:
		t.setUint(in, uint64(t.global.GroupID[t.component(in)]))
	case ir.DXThreadIdInGroup:
		t.setUint(in, uint64(t.ThreadIDInGroup[t.component(in)]))
	case ir.DXFlattenedThreadIdInGroup:
		sx, sy := t.global.GroupSize[0], t.global.GroupSize[1]
		id := t.ThreadIDInGroup
		t.setUint(in, uint64(id[2]*sx*sy+id[1]*sx+id[0]))

	case ir.DXFAbs, ir.DXSaturate, ir.DXRoundNe, ir.DXRoundNi, ir.DXRoundPi, ir.DXRoundZ, ir.DXFrc:
		t.execFloatUnary(in)
	case ir.DXIsNaN, ir.DXIsInf, ir.DXIsFinite, ir.DXIsNormal:
		t.execFloatClass(in)
	case ir.DXFMax, ir.DXFMin, ir.DXIMax, ir.DXIMin, ir.DXUMax, ir.DXUMin:
		t.execMinMax(in)
	case ir.DXFMad, ir.DXFma, ir.DXIMad, ir.DXUMad:
		t.execMad(in)
	case ir.DXDot2, ir.DXDot3, ir.DXDot4:
		t.execDot(in)
	case ir.DXBfrev, ir.DXCountbits, ir.DXFirstbitLo, ir.DXFirstbitHi, ir.DXFirstbitSHi:
		t.execBits(in)

	case ir.DXCreateHandle, ir.DXCreateHandleFromBinding, ir.DXCreateHandleFromHeap:
		t.execCreateHandle(in, ctx)
	case ir.DXAnnotateHandle:
		t.execAnnotateHandle(in)
	case ir.DXCBufferLoad:
		t.execCBufferLoadScalar(in, ctx)
	case ir.DXCBufferLoadLegacy:
		t.execCBufferLoad(in, ctx)
	case ir.DXBufferLoad, ir.DXRawBufferLoad:
		t.execBufferLoad(in, ctx)
	case ir.DXBufferStore, ir.DXRawBufferStore:
		t.execBufferStore(in, ctx)
	case ir.DXTextureLoad:
		t.execTextureLoad(in, ctx)
	case ir.DXTextureStore:
		t.execTextureStore(in, ctx)
	case ir.DXGetDimensions:
		t.execGetDimensions(in, ctx)
	case ir.DXTexture2DMSGetSamplePosition, ir.DXRenderTargetGetSamplePos, ir.DXRenderTargetGetSampleCount:
		t.execSamplePosition(in, ctx)
	case ir.DXAtomicBinOp, ir.DXAtomicCompareExchange:
		t.execResourceAtomic(in, ctx)

	case ir.DXWaveGetLaneIndex:
		base, _ := t.wave(ctx)
		t.setUint(in, uint64(t.Lane-base))
	case ir.DXWaveGetLaneCount:
		_, n := t.wave(ctx)
		t.setUint(in, uint64(n))
	case ir.DXQuadReadLaneAt, ir.DXQuadOp:
		t.execQuad(in, ctx)
	case ir.DXDerivCoarseX, ir.DXDerivCoarseY, ir.DXDerivFineX, ir.DXDerivFineY:
		t.execDeriv(in, ctx)
	case ir.DXBarrier:
		t.execBarrier(in, ctx)
	case ir.DXDiscard:
		if len(in.Operands) == 0 || t.arg(in, 0).Bool(0) {
			t.discarded = true
			t.finish()
		}
	case ir.DXIsHelperLane:
		out := value.Zero("", in.Type)
		out.SetBool(0, t.Helper)
		t.set(in, out)
	default:
		t.unimplemented(in, op.String())
	}
}

func (t *ThreadState) component(in *ir.Instruction) int {
	c := t.argUint(in, 0)
	if c > 2 {
		t.fail(t.eb().badOperand(fmt.Sprintf("%s: component %d out of range", in.DXOp, c)))
	}
	return int(c)
}

// setUint writes x as the scalar result of in.
func (t *ThreadState) setUint(in *ir.Instruction, x uint64) {
	out := value.Zero("", in.Type)
	if out.Len() > 0 {
		out.SetBits(0, x)
	}
	t.set(in, out)
}

// convertInto stores component k of src into component j of dst,
// converting numerically between integer and float representations.
func convertInto(dst *value.Value, j int, src value.Value, k int) {
	switch {
	case dst.Type.IsFloat() && src.Type.IsFloat():
		dst.SetFloat(j, src.Float(k))
	case dst.Type.IsFloat() && src.Type.IsSigned():
		dst.SetFloat(j, float64(src.Int(k)))
	case dst.Type.IsFloat():
		dst.SetFloat(j, float64(src.Uint(k)))
	case src.Type.IsFloat():
		dst.SetBits(j, uint64(floatToInt(src.Float(k), 64)))
	case src.Type.IsSigned():
		dst.SetBits(j, uint64(src.Int(k)))
	default:
		dst.SetBits(j, src.Uint(k))
	}
}

// shapeResult converts the components of src into a value of type typ. A
// struct type takes one member per component; members past the end of
// src, such as a trailing status, stay zero.
func shapeResult(typ *ir.Type, src value.Value) value.Value {
	out := value.Zero("", typ)
	if out.IsAggregate() {
		for i := range out.Members {
			if i >= src.Len() {
				break
			}
			if m := &out.Members[i]; !m.IsAggregate() && m.Len() > 0 {
				convertInto(m, 0, src, i)
			}
		}
		return out
	}
	for i := 0; i < out.Len() && i < src.Len(); i++ {
		convertInto(&out, i, src, i)
	}
	return out
}

func (t *ThreadState) signatureSlot(in *ir.Instruction, sig []value.Value) (int, int) {
	id := t.argUint(in, 0)
	if id >= uint64(len(sig)) {
		t.fail(t.eb().badOperand(fmt.Sprintf("%s: signature element %d out of range", in.DXOp, id)))
	}
	el := sig[id]
	row, rerr := safecast.Conv[int](t.argUint(in, 1))
	col, cerr := safecast.Conv[int](t.argUint(in, 2))
	if err := errors.Join(rerr, cerr); err != nil {
		t.fail(t.eb().badOperand(fmt.Sprintf("%s: %v", in.DXOp, err)))
	}
	k := col
	if el.Rows > 1 {
		k = row*int(el.Columns) + col
	}
	if k >= el.Len() {
		t.fail(t.eb().badOperand(fmt.Sprintf("%s: component %d of %s out of range", in.DXOp, k, el.Name)))
	}
	return int(id), k
}

func (t *ThreadState) execLoadInput(in *ir.Instruction) {
	id, k := t.signatureSlot(in, t.Inputs)
	out := value.Zero("", in.Type)
	convertInto(&out, 0, t.Inputs[id], k)
	t.set(in, out)
}

// execStoreOutput writes one component of an output; the change carries no
// Id.
func (t *ThreadState) execStoreOutput(in *ir.Instruction) {
	id, k := t.signatureSlot(in, t.Outputs)
	before := t.Outputs[id].Clone()
	out := t.Outputs[id]
	convertInto(&out, k, t.arg(in, 3), 0)
	t.Outputs[id] = out
	t.changes = append(t.changes, Change{Id: ir.NoId, Before: before, After: out.Clone()})
	if out.IsNaNOrInf() {
		t.events |= EventGeneratedNanOrInf
	}
}

func (t *ThreadState) execFloatUnary(in *ir.Instruction) {
	a := t.arg(in, 0)
	out := value.Zero("", in.Type)
	for i := 0; i < out.Len(); i++ {
		x := a.Float(at(a, i))
		var r float64
		switch in.DXOp {
		case ir.DXFAbs:
			r = math.Abs(x)
		case ir.DXSaturate:
			switch {
			case math.IsNaN(x) || x < 0:
				r = 0
			case x > 1:
				r = 1
			default:
				r = x
			}
		case ir.DXRoundNe:
			r = math.RoundToEven(x)
		case ir.DXRoundNi:
			r = math.Floor(x)
		case ir.DXRoundPi:
			r = math.Ceil(x)
		case ir.DXRoundZ:
			r = math.Trunc(x)
		case ir.DXFrc:
			r = x - math.Floor(x)
		}
		out.SetFloat(i, r)
	}
	t.set(in, out)
}

func (t *ThreadState) execFloatClass(in *ir.Instruction) {
	a := t.arg(in, 0)
	out := value.Zero("", in.Type)
	for i := 0; i < out.Len(); i++ {
		x := a.Float(at(a, i))
		var r bool
		switch in.DXOp {
		case ir.DXIsNaN:
			r = math.IsNaN(x)
		case ir.DXIsInf:
			r = math.IsInf(x, 0)
		case ir.DXIsFinite:
			r = !math.IsNaN(x) && !math.IsInf(x, 0)
		case ir.DXIsNormal:
			r = isNormal(x, a.Type)
		}
		out.SetBool(i, r)
	}
	t.set(in, out)
}

func (t *ThreadState) execMinMax(in *ir.Instruction) {
	a, b := t.arg(in, 0), t.arg(in, 1)
	out := value.Zero("", in.Type)
	for i := 0; i < out.Len(); i++ {
		ia, ib := at(a, i), at(b, i)
		switch in.DXOp {
		case ir.DXFMax:
			out.SetFloat(i, fmax(a.Float(ia), b.Float(ib)))
		case ir.DXFMin:
			out.SetFloat(i, fmin(a.Float(ia), b.Float(ib)))
		case ir.DXIMax:
			out.SetBits(i, uint64(max(a.Int(ia), b.Int(ib))))
		case ir.DXIMin:
			out.SetBits(i, uint64(min(a.Int(ia), b.Int(ib))))
		case ir.DXUMax:
			out.SetBits(i, max(a.Uint(ia), b.Uint(ib)))
		case ir.DXUMin:
			out.SetBits(i, min(a.Uint(ia), b.Uint(ib)))
		}
	}
	t.set(in, out)
}

// execMad computes a*b+c. FMad rounds the product; Fma does not.
func (t *ThreadState) execMad(in *ir.Instruction) {
	a, b, c := t.arg(in, 0), t.arg(in, 1), t.arg(in, 2)
	out := value.Zero("", in.Type)
	for i := 0; i < out.Len(); i++ {
		ia, ib, ic := at(a, i), at(b, i), at(c, i)
		switch in.DXOp {
		case ir.DXFMad:
			if out.Type == value.Double {
				out.SetFloat(i, a.Float(ia)*b.Float(ib)+c.Float(ic))
			} else {
				p := float32(a.Float(ia)) * float32(b.Float(ib))
				out.SetFloat(i, float64(p+float32(c.Float(ic))))
			}
		case ir.DXFma:
			out.SetFloat(i, math.FMA(a.Float(ia), b.Float(ib), c.Float(ic)))
		default:
			out.SetBits(i, a.Uint(ia)*b.Uint(ib)+c.Uint(ic))
		}
	}
	t.set(in, out)
}

func (t *ThreadState) execDot(in *ir.Instruction) {
	n := map[ir.DXOp]int{ir.DXDot2: 2, ir.DXDot3: 3, ir.DXDot4: 4}[in.DXOp]
	out := value.Zero("", in.Type)
	if out.Type == value.Double {
		var sum float64
		for i := 0; i < n; i++ {
			sum += t.argFloat(in, i) * t.argFloat(in, n+i)
		}
		out.SetFloat(0, sum)
	} else {
		var sum float32
		for i := 0; i < n; i++ {
			sum += float32(t.argFloat(in, i)) * float32(t.argFloat(in, n+i))
		}
		out.SetFloat(0, float64(sum))
	}
	t.set(in, out)
}

func (t *ThreadState) execBits(in *ir.Instruction) {
	a := t.arg(in, 0)
	out := value.Zero("", in.Type)
	w := width(a)
	for i := 0; i < out.Len(); i++ {
		ia := at(a, i)
		var r uint64
		switch in.DXOp {
		case ir.DXBfrev:
			r = reverseBits(a.Uint(ia), w)
		case ir.DXCountbits:
			r = uint64(bits.OnesCount64(a.Uint(ia)))
		case ir.DXFirstbitLo:
			r = uint64(firstbitLo(a.Uint(ia), w))
		case ir.DXFirstbitHi:
			r = uint64(firstbitHi(a.Uint(ia), w))
		case ir.DXFirstbitSHi:
			r = uint64(firstbitSHi(a.Int(ia), w))
		}
		out.SetBits(i, r)
	}
	t.set(in, out)
}

// execMath hands a transcendental to the device.
func (t *ThreadState) execMath(in *ir.Instruction, ctx *stepContext) {
	a := t.arg(in, 0)
	out, err := ctx.acc.MathIntrinsic(in.DXOp, a)
	if err != nil {
		t.global.warnOnce(in.DXOp.String(), "math intrinsic failed, result is zero")
		log.Debug().Err(err).Int("lane", t.Lane).Msg("math intrinsic")
		out = value.Zero("", in.Type)
	}
	t.setDX(in, shapeResult(in.Type, out))
}

// setDX writes the result of a dx op. Float32 results of the ops in the
// flush table lose their denormals.
func (t *ThreadState) setDX(in *ir.Instruction, out value.Value) {
	if in.DXOp.Flushes() {
		flushDenorms(&out)
	}
	t.set(in, out)
}

// warnResource logs a failed resource access; unbound slots are reported
// once per slot.
func (t *ThreadState) warnResource(in *ir.Instruction, slot resource.BindingSlot, err error) {
	if errors.Is(err, resource.ErrNotBound) {
		t.global.warnOnce("unbound "+slot.String(), "resource not bound, reads are zero and writes are dropped")
		return
	}
	log.Warn().Err(err).Int("lane", t.Lane).Str("op", in.DXOp.String()).Msg("resource access failed")
}

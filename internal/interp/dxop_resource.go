package interp

import (
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog/log"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/resource"
	"shaderdebug/internal/value"
)

func (t *ThreadState) execCreateHandle(in *ir.Instruction, ctx *stepContext) {
	prog := t.global.Program
	var h value.Handle
	switch in.DXOp {
	case ir.DXCreateHandle:
		class := ir.ResourceClass(t.argUint(in, 0))
		rangeID := uint32(t.argUint(in, 1))
		h = value.Handle{Class: class, Register: uint32(t.argUint(in, 2)), NonUniform: t.argUint(in, 3) != 0}
		if r, ok := prog.ResourceByRange(class, rangeID); ok {
			h.Kind, h.Space, h.CompType, h.Stride = r.Kind, r.Space, r.CompType, r.Stride
		} else {
			t.global.warnOnce(fmt.Sprintf("range %s %d", class, rangeID), "handle created for an undeclared resource range")
		}
	case ir.DXCreateHandleFromBinding:
		class := ir.ResourceClass(t.argUint(in, 0))
		space, reg := uint32(t.argUint(in, 1)), uint32(t.argUint(in, 3))
		h = value.Handle{Class: class, Space: space, Register: reg, NonUniform: t.argUint(in, 4) != 0}
		if r, ok := prog.ResourceByBinding(class, space, reg); ok {
			h.Kind, h.CompType, h.Stride = r.Kind, r.CompType, r.Stride
		}
	default:
		h = value.Handle{Class: ir.ClassSRV, Heap: ir.HeapResource, Register: uint32(t.argUint(in, 0)), NonUniform: t.argUint(in, 2) != 0}
		if t.argUint(in, 1) != 0 {
			h.Class, h.Heap = ir.ClassSampler, ir.HeapSampler
		}
		info, err := ctx.acc.ResolveDirect(resource.SlotOf(h))
		if err != nil {
			t.warnResource(in, resource.SlotOf(h), err)
		} else {
			h.Class, h.Kind, h.CompType = info.Class, info.Kind, info.CompType
		}
	}
	t.set(in, value.FromHandle("", h))
}

// execAnnotateHandle attaches resource properties; zero properties keep
// what the handle already knows.
func (t *ThreadState) execAnnotateHandle(in *ir.Instruction) {
	h := t.handle(in, 0)
	if k := ir.ResourceKind(t.argUint(in, 1)); k != ir.KindInvalid {
		h.Kind = k
	}
	if c := ir.CompType(t.argUint(in, 2)); c != ir.CompInvalid {
		h.CompType = c
	}
	if s := uint32(t.argUint(in, 3)); s != 0 {
		h.Stride = s
	}
	t.set(in, value.FromHandle("", h))
}

func (t *ThreadState) handle(in *ir.Instruction, i int) value.Handle {
	h, ok := t.arg(in, i).Handle()
	if !ok {
		t.fail(t.eb().badOperand(fmt.Sprintf("%s: operand %d is not a handle", in.DXOp, i)))
	}
	return h
}

func referenceOf(h value.Handle) resource.ReferenceInfo {
	return resource.ReferenceInfo{
		Class:    h.Class,
		Binding:  resource.SlotOf(h),
		Kind:     h.Kind,
		CompType: h.CompType,
	}
}

// data returns the contents behind h and records the access. ok is false
// when nothing usable is bound.
func (t *ThreadState) data(in *ir.Instruction, ctx *stepContext, h value.Handle) (*resource.Data, bool) {
	slot := resource.SlotOf(h)
	t.touch(referenceOf(h))
	var (
		d   *resource.Data
		err error
	)
	if h.Class == ir.ClassUAV {
		d, err = t.global.Resources.ReadWrite(ctx.acc, slot)
	} else {
		d, err = t.global.Resources.ReadOnly(ctx.acc, h.Class, slot)
	}
	if err != nil {
		t.warnResource(in, slot, err)
		return nil, false
	}
	return d, true
}

// elemType returns the component type of a resource result: the first
// member of a struct or the element of a vector.
func elemType(typ *ir.Type) *ir.Type {
	switch {
	case typ == nil:
		return ir.I32
	case typ.Kind == ir.TypeStruct && len(typ.Members) > 0:
		return typ.Members[0].ScalarOf()
	default:
		return typ.ScalarOf()
	}
}

func readLE(b []byte, w int) uint64 {
	switch w {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func writeLE(b []byte, w int, x uint64) {
	switch w {
	case 1:
		b[0] = byte(x)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(x))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(x))
	default:
		binary.LittleEndian.PutUint64(b, x)
	}
}

// readWords reads up to four words of et starting at off, for the
// components selected by mask. Bytes past the end read as zero.
func readWords(d *resource.Data, off int, et *ir.Type, mask uint64) value.Value {
	out := value.Vector("", value.ForScalar(et), 4)
	w := max(out.Type.ByteSize(), 1)
	for c := 0; c < 4; c++ {
		start := off + c*w
		if mask&(1<<c) == 0 || start+w > len(d.Bytes) {
			continue
		}
		out.SetBits(c, readLE(d.Bytes[start:], w))
	}
	return out
}

func writeWords(d *resource.Data, off int, v value.Value, mask uint64) {
	w := max(v.Type.ByteSize(), 1)
	for c := 0; c < 4 && c < v.Len(); c++ {
		start := off + c*w
		if mask&(1<<c) == 0 || start+w > len(d.Bytes) {
			continue
		}
		writeLE(d.Bytes[start:], w, v.Bits(c))
	}
}

// rawAccess reports whether h addresses words rather than typed elements.
func rawAccess(h value.Handle, d *resource.Data) bool {
	return d.ByteBuffer || h.Kind == ir.KindRawBuffer || h.Kind == ir.KindStructuredBuffer
}

// execCBufferLoad reads one 16-byte row of a constant buffer.
func (t *ThreadState) execCBufferLoad(in *ir.Instruction, ctx *stepContext) {
	h := t.handle(in, 0)
	row := t.argUint(in, 1)
	d, ok := t.data(in, ctx, h)
	if !ok {
		t.set(in, value.Zero("", in.Type))
		return
	}
	et := elemType(in.Type)
	src := value.Vector("", value.ForScalar(et), 0)
	w := max(src.Type.ByteSize(), 1)
	n := min(16/w, value.MaxComponents)
	src.Columns = uint8(n)
	for c := 0; c < n; c++ {
		start := int(row)*16 + c*w
		if start+w <= len(d.Bytes) {
			src.SetBits(c, readLE(d.Bytes[start:], w))
		}
	}
	t.set(in, shapeResult(in.Type, src))
}

// execCBufferLoadScalar reads one element at a byte offset of a constant
// buffer. The alignment operand is a hint and is not checked.
func (t *ThreadState) execCBufferLoadScalar(in *ir.Instruction, ctx *stepContext) {
	h := t.handle(in, 0)
	offset := t.argUint(in, 1)
	out := value.Zero("", elemType(in.Type))
	d, ok := t.data(in, ctx, h)
	if !ok {
		t.set(in, out)
		return
	}
	w := uint64(max(out.Type.ByteSize(), 1))
	if n := uint64(len(d.Bytes)); offset <= n && w <= n-offset {
		out.SetBits(0, readLE(d.Bytes[offset:], int(w)))
	}
	t.set(in, out)
}

func (t *ThreadState) execBufferLoad(in *ir.Instruction, ctx *stepContext) {
	h := t.handle(in, 0)
	index, byteOffset := uint32(t.argUint(in, 1)), uint32(t.argUint(in, 2))
	mask := uint64(0xF)
	if in.DXOp == ir.DXRawBufferLoad {
		if m := t.argUint(in, 3); m != 0 {
			mask = m
		}
	}
	d, ok := t.data(in, ctx, h)
	if !ok {
		t.set(in, value.Zero("", in.Type))
		return
	}
	off, inRange := d.BufferOffset(index, byteOffset)
	if !inRange {
		t.set(in, value.Zero("", in.Type))
		return
	}
	var src value.Value
	if rawAccess(h, d) || in.DXOp == ir.DXRawBufferLoad {
		src = readWords(d, off, elemType(in.Type), mask)
	} else {
		src = resource.DecodeElement(d.Format, d.Bytes[off:])
	}
	t.set(in, shapeResult(in.Type, src))
}

// storeValue gathers the x, y, z, w operands starting at first.
func (t *ThreadState) storeValue(in *ir.Instruction, first int) value.Value {
	x := t.arg(in, first)
	out := value.Vector("", x.Type, 4)
	for c := 0; c < 4; c++ {
		v := t.arg(in, first+c)
		if !v.IsAggregate() && v.Len() > 0 {
			out.SetBits(c, v.Bits(0))
		}
	}
	return out
}

// storeTyped merges the masked components of v into the element at off.
func storeTyped(d *resource.Data, off int, v value.Value, mask uint64) {
	size := d.Format.ElementSize()
	if off+size > len(d.Bytes) {
		return
	}
	el := resource.DecodeElement(d.Format, d.Bytes[off:])
	for c := 0; c < 4 && c < v.Len(); c++ {
		if mask&(1<<c) != 0 {
			convertInto(&el, c, v, c)
		}
	}
	resource.EncodeElement(d.Format, el, d.Bytes[off:off+size])
}

func (t *ThreadState) execBufferStore(in *ir.Instruction, ctx *stepContext) {
	h := t.handle(in, 0)
	index, byteOffset := uint32(t.argUint(in, 1)), uint32(t.argUint(in, 2))
	v := t.storeValue(in, 3)
	mask := t.argUint(in, 7)
	d, ok := t.data(in, ctx, h)
	if !ok {
		return
	}
	off, inRange := d.BufferOffset(index, byteOffset)
	if !inRange {
		return
	}
	if rawAccess(h, d) || in.DXOp == ir.DXRawBufferStore {
		writeWords(d, off, v, mask)
		return
	}
	storeTyped(d, off, v, mask)
}

func (t *ThreadState) execTextureLoad(in *ir.Instruction, ctx *stepContext) {
	h := t.handle(in, 0)
	var c, o [3]uint32
	for i := range c {
		c[i] = uint32(t.argUint(in, 2+i))
		o[i] = uint32(t.argUint(in, 5+i))
	}
	t.events |= EventSampleLoadGather
	d, ok := t.data(in, ctx, h)
	if !ok {
		t.set(in, value.Zero("", in.Type))
		return
	}
	if !d.Texture {
		// Typed buffer bound where a texture load was issued: address by
		// element.
		off, inRange := d.BufferOffset(c[0]+o[0], 0)
		if !inRange {
			t.set(in, value.Zero("", in.Type))
			return
		}
		t.set(in, shapeResult(in.Type, resource.DecodeElement(d.Format, d.Bytes[off:])))
		return
	}
	level := uint32(t.argUint(in, 1))
	if level != 0 {
		what := "mip level"
		if h.Kind == ir.KindTexture2DMS || h.Kind == ir.KindTexture2DMSArray {
			what = "sample"
		}
		t.global.warnOnce(fmt.Sprintf("texture load %s", what),
			fmt.Sprintf("texture load of %s %d; only level 0 is captured and other levels read as zero", what, level))
	}
	off, inRange := d.LevelTexelOffset(level, c[0]+o[0], c[1]+o[1], c[2]+o[2])
	if !inRange {
		t.set(in, value.Zero("", in.Type))
		return
	}
	t.set(in, shapeResult(in.Type, resource.DecodeElement(d.Format, d.Bytes[off:])))
}

func (t *ThreadState) execTextureStore(in *ir.Instruction, ctx *stepContext) {
	h := t.handle(in, 0)
	x, y, z := uint32(t.argUint(in, 1)), uint32(t.argUint(in, 2)), uint32(t.argUint(in, 3))
	v := t.storeValue(in, 4)
	mask := t.argUint(in, 8)
	d, ok := t.data(in, ctx, h)
	if !ok {
		return
	}
	var off int
	var inRange bool
	if d.Texture {
		off, inRange = d.TexelOffset(x, y, z)
	} else {
		off, inRange = d.BufferOffset(x, 0)
	}
	if inRange {
		storeTyped(d, off, v, mask)
	}
}

// samplerOf describes the sampler behind h.
func (t *ThreadState) samplerOf(in *ir.Instruction, ctx *stepContext, h value.Handle) resource.Sampler {
	slot := resource.SlotOf(h)
	s := resource.Sampler{Binding: slot}
	if h.Direct() {
		info, err := ctx.acc.ResolveDirect(slot)
		if err != nil {
			t.warnResource(in, slot, err)
			return s
		}
		s = info.Sampler
		s.Binding = slot
	}
	t.touch(resource.ReferenceInfo{Class: ir.ClassSampler, Binding: slot, Kind: ir.KindSampler, Sampler: s})
	return s
}

// execSample services every sample, gather and LOD query through the
// device.
func (t *ThreadState) execSample(in *ir.Instruction, ctx *stepContext) {
	tex := t.handle(in, 0)
	smp := t.handle(in, 1)
	req := resource.SampleRequest{
		Op:       in.DXOp,
		Kind:     resource.SampleKindOf(in.DXOp),
		Resource: referenceOf(tex),
		Sampler:  t.samplerOf(in, ctx, smp),
	}
	t.touch(req.Resource)
	if req.Kind == resource.SampleLODQuery {
		t.execCalculateLOD(in, ctx, req)
		return
	}
	for i := range req.UV {
		if v, ok := t.argOr(in, 2+i); ok && !v.IsAggregate() {
			req.UV[i] = float32(scalarFloat(v))
		}
	}
	offsets := 3
	if req.Kind == resource.SampleGathered {
		offsets = 2
	}
	for i := 0; i < offsets; i++ {
		if v, ok := t.argOr(in, 6+i); ok {
			req.Offsets[i] = int32(v.Int(0))
		}
	}
	extra := 6 + offsets
	grad := func(first int) {
		for i := 0; i < 3; i++ {
			req.DDX[i] = float32(t.argFloat(in, first+i))
			req.DDY[i] = float32(t.argFloat(in, first+3+i))
		}
	}
	switch in.DXOp {
	case ir.DXSample:
		req.DDX, req.DDY = t.implicitDerivatives(in, ctx, 4)
		req.Clamp = t.optFloat(in, extra)
	case ir.DXSampleBias:
		req.DDX, req.DDY = t.implicitDerivatives(in, ctx, 4)
		req.LOD = float32(t.argFloat(in, extra))
		req.Clamp = t.optFloat(in, extra+1)
	case ir.DXSampleLevel:
		req.LOD = float32(t.argFloat(in, extra))
	case ir.DXSampleGrad:
		grad(extra)
		req.Clamp = t.optFloat(in, extra+6)
	case ir.DXSampleCmp:
		req.DDX, req.DDY = t.implicitDerivatives(in, ctx, 4)
		req.Compare = float32(t.argFloat(in, extra))
		req.Clamp = t.optFloat(in, extra+1)
	case ir.DXSampleCmpLevelZero:
		req.Compare = float32(t.argFloat(in, extra))
	case ir.DXSampleCmpLevel:
		req.Compare = float32(t.argFloat(in, extra))
		req.LOD = float32(t.argFloat(in, extra+1))
	case ir.DXSampleCmpGrad:
		req.Compare = float32(t.argFloat(in, extra))
		grad(extra + 1)
		req.Clamp = t.optFloat(in, extra+7)
	case ir.DXSampleCmpBias:
		req.DDX, req.DDY = t.implicitDerivatives(in, ctx, 4)
		req.Compare = float32(t.argFloat(in, extra))
		req.LOD = float32(t.argFloat(in, extra+1))
		req.Clamp = t.optFloat(in, extra+2)
	case ir.DXTextureGather, ir.DXTextureGatherCmp:
		req.Channel = resource.GatherChannel(t.argUint(in, extra))
		if in.DXOp == ir.DXTextureGatherCmp {
			req.Compare = float32(t.argFloat(in, extra+1))
		}
	}

	t.events |= EventSampleLoadGather
	out, err := ctx.acc.SampleGather(req)
	if err != nil {
		t.warnResource(in, req.Resource.Binding, err)
		t.set(in, value.Zero("", in.Type))
		return
	}
	t.setDX(in, shapeResult(in.Type, out))
}

// execCalculateLOD asks the device for the level of detail the quad's
// coordinate derivatives select. Operand 5 picks the clamped or the
// unclamped level.
func (t *ThreadState) execCalculateLOD(in *ir.Instruction, ctx *stepContext, req resource.SampleRequest) {
	for i := 0; i < 3; i++ {
		if v, ok := t.argOr(in, 2+i); ok && !v.IsAggregate() {
			req.UV[i] = float32(scalarFloat(v))
		}
	}
	req.DDX, req.DDY = t.implicitDerivatives(in, ctx, 3)
	clamped := true
	if v, ok := t.argOr(in, 5); ok {
		clamped = v.Bool(0)
	}

	t.events |= EventSampleLoadGather
	res := value.Zero("", in.Type)
	if res.Len() == 0 {
		res = value.Scalar("", value.Float)
	}
	out, err := ctx.acc.SampleGather(req)
	if err != nil {
		t.warnResource(in, req.Resource.Binding, err)
		t.set(in, res)
		return
	}
	c := 0
	if !clamped {
		c = 1
	}
	if c < out.Len() {
		res.SetFloat(0, out.Float(c))
	}
	t.setDX(in, res)
}

// optFloat reads an optional float operand; an absent or undef operand
// reads as zero.
func (t *ThreadState) optFloat(in *ir.Instruction, i int) float32 {
	v, ok := t.argOr(in, i)
	if !ok {
		return 0
	}
	return float32(scalarFloat(v))
}

func scalarFloat(v value.Value) float64 {
	if v.Len() == 0 {
		return 0
	}
	if v.Type.IsFloat() {
		return v.Float(0)
	}
	return float64(v.Int(0))
}

// implicitDerivatives computes coarse screen-space derivatives of the first
// n coordinates from the lanes of the quad.
func (t *ThreadState) implicitDerivatives(in *ir.Instruction, ctx *stepContext, n int) (ddx, ddy [4]float32) {
	quad := t.quadLanes(in, ctx)
	for i := 0; i < n; i++ {
		if 2+i >= len(in.Operands) || in.Operands[2+i].Kind == ir.OperandUndef {
			continue
		}
		op := in.Operands[2+i]
		v0, ok0 := quad[0].operandValue(op)
		v1, ok1 := quad[1].operandValue(op)
		v2, ok2 := quad[2].operandValue(op)
		if !ok0 || !ok1 || !ok2 {
			continue
		}
		ddx[i] = float32(scalarFloat(v1)) - float32(scalarFloat(v0))
		ddy[i] = float32(scalarFloat(v2)) - float32(scalarFloat(v0))
	}
	return ddx, ddy
}

func (t *ThreadState) execGetDimensions(in *ir.Instruction, ctx *stepContext) {
	h := t.handle(in, 0)
	mip := uint32(t.argUint(in, 1))
	slot := resource.SlotOf(h)
	t.touch(referenceOf(h))
	dims, err := ctx.acc.Dimensions(h.Class, slot, mip)
	if err != nil {
		t.warnResource(in, slot, err)
	}
	t.set(in, shapeResult(in.Type, value.FromU32("", dims.Width, dims.Height, dims.Depth, dims.Mips)))
}

func (t *ThreadState) execSamplePosition(in *ir.Instruction, ctx *stepContext) {
	var count uint32
	var index uint32
	switch in.DXOp {
	case ir.DXTexture2DMSGetSamplePosition:
		h := t.handle(in, 0)
		index = uint32(t.argUint(in, 1))
		t.touch(referenceOf(h))
		n, err := ctx.acc.SampleCount(h.Class, resource.SlotOf(h))
		if err != nil {
			t.warnResource(in, resource.SlotOf(h), err)
		}
		count = n
	default:
		rt, err := ctx.acc.RenderTargetInfo()
		if err != nil {
			log.Warn().Err(err).Msg("render target info unavailable")
		}
		count = rt.SampleCount
		if in.DXOp == ir.DXRenderTargetGetSampleCount {
			t.setUint(in, uint64(count))
			return
		}
		index = uint32(t.argUint(in, 0))
	}
	x, y := resource.StandardSamplePosition(count, index)
	t.set(in, shapeResult(in.Type, value.FromF32("", x, y)))
}

// execResourceAtomic performs an atomic on a UAV word and yields the
// previous value.
func (t *ThreadState) execResourceAtomic(in *ir.Instruction, ctx *stepContext) {
	h := t.handle(in, 0)
	first := 2
	if in.DXOp == ir.DXAtomicCompareExchange {
		first = 1
	}
	c0, c1, c2 := uint32(t.argUint(in, first)), uint32(t.argUint(in, first+1)), uint32(t.argUint(in, first+2))
	old := value.Zero("", in.Type)
	d, ok := t.data(in, ctx, h)
	if !ok {
		t.set(in, old)
		return
	}
	var off int
	switch {
	case d.Texture:
		off, ok = d.TexelOffset(c0, c1, c2)
	case rawAccess(h, d):
		off, ok = d.BufferOffset(c0, c1)
	default:
		off, ok = d.BufferOffset(c0, 0)
	}
	w := max(old.Type.ByteSize(), 1)
	if !ok || off+w > len(d.Bytes) {
		t.set(in, old)
		return
	}
	old.SetBits(0, readLE(d.Bytes[off:], w))
	var next value.Value
	if in.DXOp == ir.DXAtomicCompareExchange {
		cmp, repl := t.arg(in, first+3), t.arg(in, first+4)
		next = old
		if old.Uint(0) == cmp.Uint(0) {
			next.SetBits(0, repl.Bits(0))
		}
	} else {
		next = atomicApply(ir.AtomicOp(t.argUint(in, 1)), old, t.arg(in, first+3))
	}
	writeLE(d.Bytes[off:], w, next.Bits(0))
	t.set(in, old)
}

package value

import "shaderdebug/internal/ir"

// Component slots used by handle values.
const (
	handleRegister = iota
	handleSpace
	handleClass
	handleKind
	handleHeap
	handleCompType
	handleStride
	handleFlags
)

const handleFlagNonUniform = 1

// Handle identifies a bound resource, sampler or constant buffer, either by
// register binding or by direct heap index.
type Handle struct {
	Class ir.ResourceClass
	Kind  ir.ResourceKind
	// Register is the shader register, or the heap index when Heap is set.
	Register   uint32
	Space      uint32
	Heap       ir.HeapType
	CompType   ir.CompType
	Stride     uint32
	NonUniform bool
}

// Direct reports whether the handle addresses a descriptor heap directly.
func (h Handle) Direct() bool { return h.Heap != ir.HeapNone }

func handleVarType(c ir.ResourceClass) VarType {
	switch c {
	case ir.ClassUAV:
		return ReadWriteResource
	case ir.ClassSampler:
		return Sampler
	case ir.ClassCBuffer:
		return ConstantBlock
	default:
		return ReadOnlyResource
	}
}

// FromHandle packs h into an opaque handle value.
func FromHandle(name string, h Handle) Value {
	v := Value{Name: name, Type: handleVarType(h.Class), Rows: 1, Columns: 1}
	v.Comps[handleRegister] = uint64(h.Register)
	v.Comps[handleSpace] = uint64(h.Space)
	v.Comps[handleClass] = uint64(h.Class)
	v.Comps[handleKind] = uint64(h.Kind)
	v.Comps[handleHeap] = uint64(h.Heap)
	v.Comps[handleCompType] = uint64(h.CompType)
	v.Comps[handleStride] = uint64(h.Stride)
	if h.NonUniform {
		v.Comps[handleFlags] |= handleFlagNonUniform
	}
	return v
}

// Handle unpacks a handle value. ok is false when v is not a handle.
func (v Value) Handle() (Handle, bool) {
	if !v.Type.IsHandle() {
		return Handle{}, false
	}
	return Handle{
		Class:      ir.ResourceClass(v.Comps[handleClass]),
		Kind:       ir.ResourceKind(v.Comps[handleKind]),
		Register:   uint32(v.Comps[handleRegister]),
		Space:      uint32(v.Comps[handleSpace]),
		Heap:       ir.HeapType(v.Comps[handleHeap]),
		CompType:   ir.CompType(v.Comps[handleCompType]),
		Stride:     uint32(v.Comps[handleStride]),
		NonUniform: v.Comps[handleFlags]&handleFlagNonUniform != 0,
	}, true
}

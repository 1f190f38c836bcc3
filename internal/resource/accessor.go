package resource

import (
	"errors"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/value"
)

// ErrNotBound is returned by accessors for a slot with nothing bound to it.
// The interpreter treats it as a zero read and a dropped write.
var ErrNotBound = errors.New("nothing bound")

// SampleKind says what a SampleRequest asks the device for.
type SampleKind uint8

const (
	// SampleFiltered returns four filtered components.
	SampleFiltered SampleKind = iota
	// SampleGathered returns one channel of the four texels of a bilinear
	// footprint.
	SampleGathered
	// SampleLODQuery returns the level of detail the derivatives select:
	// component 0 clamped to the mip chain, component 1 unclamped.
	SampleLODQuery
)

func (k SampleKind) String() string {
	switch k {
	case SampleGathered:
		return "gather"
	case SampleLODQuery:
		return "lod"
	default:
		return "sample"
	}
}

// SampleKindOf returns the kind of request op makes.
func SampleKindOf(op ir.DXOp) SampleKind {
	switch op {
	case ir.DXTextureGather, ir.DXTextureGatherCmp:
		return SampleGathered
	case ir.DXCalculateLOD:
		return SampleLODQuery
	default:
		return SampleFiltered
	}
}

// SampleRequest is everything a sample, gather or LOD query passes to the
// device.
type SampleRequest struct {
	Op       ir.DXOp
	Kind     SampleKind
	Resource ReferenceInfo
	Sampler  Sampler
	// UV holds up to four coordinates; unused ones are zero.
	UV      [4]float32
	DDX     [4]float32
	DDY     [4]float32
	Offsets [3]int32
	LOD     float32
	// Clamp is the minimum-LOD clamp of the sample; 0 means none.
	Clamp   float32
	Compare float32
	Channel GatherChannel
}

// Accessor is implemented by the host to give the interpreter access to
// resources and device math. Implementations must be safe to call from one
// goroutine at a time; a Session never calls concurrently.
type Accessor interface {
	// FetchReadOnly returns the contents of a shader resource view or
	// constant buffer. The returned data is never modified.
	FetchReadOnly(class ir.ResourceClass, slot BindingSlot) (*Data, error)
	// FetchReadWrite returns a private copy of an unordered access view;
	// the caller owns and mutates it.
	FetchReadWrite(slot BindingSlot) (*Data, error)
	// SampleGather evaluates a sample, gather or LOD query and returns four
	// components.
	SampleGather(req SampleRequest) (value.Value, error)
	// MathIntrinsic evaluates a transcendental op on every component of in.
	MathIntrinsic(op ir.DXOp, in value.Value) (value.Value, error)
	Dimensions(class ir.ResourceClass, slot BindingSlot, mip uint32) (Dims, error)
	// SampleCount returns the sample count of a multisampled texture.
	// Positions follow the standard pattern, see StandardSamplePosition.
	SampleCount(class ir.ResourceClass, slot BindingSlot) (uint32, error)
	RenderTargetInfo() (RenderTarget, error)
	// ResolveDirect describes the descriptor at a heap index.
	ResolveDirect(slot BindingSlot) (ReferenceInfo, error)
}

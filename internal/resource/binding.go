// Package resource defines how the interpreter reaches resources it does not
// own: bound buffers and textures, samplers, constant buffers and the math
// and sampling units of the device that produced the capture.
package resource

import (
	"fmt"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/value"
)

// BindingSlot addresses one descriptor, either by register and space or,
// for directly indexed handles, by heap and index.
type BindingSlot struct {
	Register uint32      `msgpack:"reg"`
	Space    uint32      `msgpack:"space,omitempty"`
	Heap     ir.HeapType `msgpack:"heap,omitempty"`
	Index    uint32      `msgpack:"index,omitempty"`
}

// SlotOf returns the binding slot a handle refers to.
func SlotOf(h value.Handle) BindingSlot {
	if h.Direct() {
		return BindingSlot{Heap: h.Heap, Index: h.Register}
	}
	return BindingSlot{Register: h.Register, Space: h.Space}
}

func (s BindingSlot) Direct() bool { return s.Heap != ir.HeapNone }

func (s BindingSlot) String() string {
	if s.Direct() {
		return fmt.Sprintf("%s[%d]", s.Heap, s.Index)
	}
	return fmt.Sprintf("t%d,space%d", s.Register, s.Space)
}

// ReferenceInfo describes what a binding slot holds.
type ReferenceInfo struct {
	Class       ir.ResourceClass `msgpack:"class"`
	Binding     BindingSlot      `msgpack:"binding"`
	Kind        ir.ResourceKind  `msgpack:"kind,omitempty"`
	CompType    ir.CompType      `msgpack:"comp,omitempty"`
	SampleCount uint32           `msgpack:"samples,omitempty"`
	Sampler     Sampler          `msgpack:"sampler,omitempty"`
}

// Sampler carries the state of a bound sampler that affects results.
type Sampler struct {
	Binding BindingSlot `msgpack:"binding,omitempty"`
	Bias    float32     `msgpack:"bias,omitempty"`
	// Comparison selects comparison filtering for SampleCmp and GatherCmp.
	Comparison bool `msgpack:"cmp,omitempty"`
}

// GatherChannel selects the component returned by a gather.
type GatherChannel uint8

const (
	GatherRed GatherChannel = iota
	GatherGreen
	GatherBlue
	GatherAlpha
)

// Dims is the result of a dimensions query. Buffers report their element
// count in Width.
type Dims struct {
	Width  uint32
	Height uint32
	// Depth is the depth of a 3D texture or the array size of an array.
	Depth uint32
	Mips  uint32
}

// RenderTarget describes the bound render target for pixel shaders.
type RenderTarget struct {
	SampleCount uint32
}

// Package memory implements lane and group-shared memory: owned
// allocations addressed by Id and non-owning pointers into them.
package memory

import (
	"encoding/binary"
	"errors"
	"fmt"

	"fortio.org/safecast"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/value"
)

var (
	// ErrNoAllocation is returned for a pointer whose backing allocation does not exist.
	ErrNoAllocation = errors.New("no backing allocation")
	// ErrOutOfBounds is returned when an address lies outside its allocation.
	ErrOutOfBounds = errors.New("address out of bounds")
	// ErrBadFirstIndex is returned when the leading address index is not zero.
	ErrBadFirstIndex = errors.New("first address index must be zero")
	// ErrDeepPath is returned for address paths deeper than one level.
	ErrDeepPath = errors.New("address path deeper than supported")
)

// Allocation is an owned, zero-initialised backing buffer.
type Allocation struct {
	Data   []byte
	Type   *ir.Type
	Global bool
}

// Pointer is a non-owning reference into one Allocation.
type Pointer struct {
	Base   ir.Id
	Offset uint32
	Size   uint32
	Type   *ir.Type
}

// Memory maps Ids to allocations and pointers. A lane's Memory may defer
// to a shared parent holding group-shared and device allocations.
type Memory struct {
	allocs   map[ir.Id]*Allocation
	pointers map[ir.Id]Pointer
	parent   *Memory
}

// New creates an empty memory. parent may be nil.
func New(parent *Memory) *Memory {
	return &Memory{
		allocs:   make(map[ir.Id]*Allocation, 16),
		pointers: make(map[ir.Id]Pointer, 32),
		parent:   parent,
	}
}

// Parent returns the shared memory this one defers to.
func (m *Memory) Parent() *Memory { return m.parent }

// Allocate reserves a zeroed buffer for type t under id and registers a
// pointer covering the whole buffer under the same id.
func (m *Memory) Allocate(id ir.Id, t *ir.Type, global bool) *Allocation {
	size := SizeOf(t)
	a := &Allocation{Data: make([]byte, size), Type: t, Global: global}
	m.allocs[id] = a
	m.pointers[id] = Pointer{Base: id, Offset: 0, Size: size, Type: t}
	return a
}

// Allocation returns the allocation registered under id.
func (m *Memory) Allocation(id ir.Id) (*Allocation, bool) {
	if a, ok := m.allocs[id]; ok {
		return a, true
	}
	if m.parent != nil {
		return m.parent.Allocation(id)
	}
	return nil, false
}

// Pointer returns the pointer registered under id.
func (m *Memory) Pointer(id ir.Id) (Pointer, bool) {
	if p, ok := m.pointers[id]; ok {
		return p, true
	}
	if m.parent != nil {
		return m.parent.Pointer(id)
	}
	return Pointer{}, false
}

// SetPointer registers p under id in this memory.
func (m *Memory) SetPointer(id ir.Id, p Pointer) {
	m.pointers[id] = p
}

// IsShared reports whether id is owned by the shared parent.
func (m *Memory) IsShared(id ir.Id) bool {
	if _, ok := m.allocs[id]; ok {
		return false
	}
	return m.parent != nil && m.parent.owns(id)
}

func (m *Memory) owns(id ir.Id) bool {
	_, ok := m.allocs[id]
	return ok
}

// AddressOf computes a pointer at base plus the index path. The first index
// must be zero; at most one further index is supported.
func (m *Memory) AddressOf(base Pointer, indices []uint64) (Pointer, error) {
	if _, ok := m.Allocation(base.Base); !ok {
		return Pointer{}, fmt.Errorf("%w: %%%d", ErrNoAllocation, base.Base)
	}
	if len(indices) == 0 {
		return base, nil
	}
	if indices[0] != 0 {
		return Pointer{}, fmt.Errorf("%w: got %d", ErrBadFirstIndex, indices[0])
	}
	if len(indices) > ir.MaxGEPIndices {
		return Pointer{}, fmt.Errorf("%w: %d indices", ErrDeepPath, len(indices))
	}
	out := base
	if len(indices) == 2 {
		elem, off, err := elementAt(base.Type, indices[1])
		if err != nil {
			return Pointer{}, err
		}
		offset, err := safecast.Conv[uint32](uint64(base.Offset) + uint64(off))
		if err != nil {
			return Pointer{}, fmt.Errorf("%w: offset of element %d: %w", ErrOutOfBounds, indices[1], err)
		}
		out.Type = elem
		out.Offset = offset
		out.Size = SizeOf(elem)
	}
	if err := m.checkBounds(out); err != nil {
		return Pointer{}, err
	}
	return out, nil
}

func (m *Memory) checkBounds(p Pointer) error {
	a, ok := m.Allocation(p.Base)
	if !ok {
		return fmt.Errorf("%w: %%%d", ErrNoAllocation, p.Base)
	}
	if uint64(p.Offset)+uint64(p.Size) > uint64(len(a.Data)) {
		return fmt.Errorf("%w: [%d, %d) in allocation %%%d of %d bytes", ErrOutOfBounds, p.Offset, p.Offset+p.Size, p.Base, len(a.Data))
	}
	return nil
}

// Load reads the value behind p.
func (m *Memory) Load(p Pointer) (value.Value, error) {
	if err := m.checkBounds(p); err != nil {
		return value.Value{}, err
	}
	a, _ := m.Allocation(p.Base)
	v := value.Zero("", p.Type)
	decode(&v, p.Type, a.Data[p.Offset:p.Offset+p.Size])
	return v, nil
}

// Store writes v to the memory behind p.
func (m *Memory) Store(p Pointer, v value.Value) error {
	if err := m.checkBounds(p); err != nil {
		return err
	}
	a, _ := m.Allocation(p.Base)
	encode(v, p.Type, a.Data[p.Offset:p.Offset+p.Size])
	return nil
}

// Free drops every non-global allocation and all pointers.
func (m *Memory) Free() {
	for id, a := range m.allocs {
		if !a.Global {
			delete(m.allocs, id)
		}
	}
	clear(m.pointers)
}

func decode(v *value.Value, t *ir.Type, data []byte) {
	switch t.Kind {
	case ir.TypeScalar, ir.TypeVector:
		w := scalarBytes(t.ScalarOf())
		for i := 0; i < t.Components(); i++ {
			v.SetBits(i, readUint(data[uint32(i)*w:], w))
		}
	case ir.TypeArray, ir.TypeStruct:
		l := LayoutOf(t)
		for i := range v.Members {
			var mt *ir.Type
			var off uint32
			if t.Kind == ir.TypeArray {
				mt, off = t.Elem, uint32(i)*l.Stride
			} else {
				mt, off = t.Members[i], l.MemberOffsets[i]
			}
			decode(&v.Members[i], mt, data[off:off+SizeOf(mt)])
		}
	}
}

func encode(v value.Value, t *ir.Type, data []byte) {
	switch t.Kind {
	case ir.TypeScalar, ir.TypeVector:
		w := scalarBytes(t.ScalarOf())
		for i := 0; i < t.Components() && i < value.MaxComponents; i++ {
			writeUint(data[uint32(i)*w:], w, v.Bits(i))
		}
	case ir.TypeArray, ir.TypeStruct:
		l := LayoutOf(t)
		for i := range v.Members {
			var mt *ir.Type
			var off uint32
			if t.Kind == ir.TypeArray {
				if uint32(i) >= t.ElemCount {
					break
				}
				mt, off = t.Elem, uint32(i)*l.Stride
			} else {
				if i >= len(t.Members) {
					break
				}
				mt, off = t.Members[i], l.MemberOffsets[i]
			}
			encode(v.Members[i], mt, data[off:off+SizeOf(mt)])
		}
	}
}

func readUint(b []byte, w uint32) uint64 {
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

func writeUint(b []byte, w uint32, x uint64) {
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

package memory

import (
	"fmt"
	"math"

	"fortio.org/safecast"

	"shaderdebug/internal/ir"
)

// TypeLayout is the packed byte layout of a type in lane memory. Members
// and elements are laid out back to back without padding.
type TypeLayout struct {
	Size uint32

	// Struct-only:
	MemberOffsets []uint32

	// Array and vector element stride.
	Stride uint32
}

// LayoutOf computes the layout of t. Opaque types have size zero.
func LayoutOf(t *ir.Type) TypeLayout {
	if t == nil {
		return TypeLayout{}
	}
	switch t.Kind {
	case ir.TypeScalar:
		return TypeLayout{Size: scalarBytes(t)}
	case ir.TypeVector, ir.TypeArray:
		elem := LayoutOf(t.Elem)
		return TypeLayout{Size: elem.Size * t.ElemCount, Stride: elem.Size}
	case ir.TypeStruct:
		l := TypeLayout{MemberOffsets: make([]uint32, len(t.Members))}
		for i, m := range t.Members {
			l.MemberOffsets[i] = l.Size
			l.Size += LayoutOf(m).Size
		}
		return l
	default:
		return TypeLayout{}
	}
}

// SizeOf returns the packed byte size of t.
func SizeOf(t *ir.Type) uint32 {
	return LayoutOf(t).Size
}

func scalarBytes(t *ir.Type) uint32 {
	if t.BitWidth <= 8 {
		return 1
	}
	return t.BitWidth / 8
}

// elementAt returns the type and byte offset of element or member idx of t.
func elementAt(t *ir.Type, idx uint64) (*ir.Type, uint32, error) {
	switch t.Kind {
	case ir.TypeArray, ir.TypeVector:
		if t.ElemCount > 0 && idx >= uint64(t.ElemCount) {
			return nil, 0, fmt.Errorf("%w: element %d of %s", ErrOutOfBounds, idx, t)
		}
		stride := uint64(SizeOf(t.Elem))
		if stride != 0 && idx > math.MaxUint32/stride {
			return nil, 0, fmt.Errorf("%w: element %d of %s", ErrOutOfBounds, idx, t)
		}
		off, err := safecast.Conv[uint32](idx * stride)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: element %d of %s: %w", ErrOutOfBounds, idx, t, err)
		}
		return t.Elem, off, nil
	case ir.TypeStruct:
		if idx >= uint64(len(t.Members)) {
			return nil, 0, fmt.Errorf("%w: member %d of %s", ErrOutOfBounds, idx, t)
		}
		return t.Members[idx], LayoutOf(t).MemberOffsets[idx], nil
	default:
		return nil, 0, fmt.Errorf("cannot index into %s", t)
	}
}

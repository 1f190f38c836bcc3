package debuginfo

import (
	"fmt"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/value"
)

type shapeKind uint8

const (
	shapeUnknown shapeKind = iota
	shapeScalar
	shapeVector
	shapeMatrix
	shapeArray
	shapeStruct
)

// shape is the layout of one node of a variable's type tree.
type shape struct {
	kind     shapeKind
	scalar   value.VarType
	elemSize uint32
	rows     int
	cols     int
	layout   ir.MatrixLayout
	// Arrays: remaining dimensions and the element type.
	dims []uint32
	elem int
	// Structs: the struct debug type.
	typ  int
	size uint32
}

func scalarVarType(t *ir.DebugType) value.VarType {
	bits := t.SizeInBits
	switch t.Encoding {
	case ir.EncodingFloat:
		switch bits {
		case 16:
			return value.Half
		case 64:
			return value.Double
		default:
			return value.Float
		}
	case ir.EncodingBool:
		return value.Bool
	case ir.EncodingUnsigned:
		switch bits {
		case 8:
			return value.UByte
		case 16:
			return value.UShort
		case 64:
			return value.ULong
		default:
			return value.UInt
		}
	default:
		switch bits {
		case 8:
			return value.SByte
		case 16:
			return value.SShort
		case 64:
			return value.SLong
		default:
			return value.SInt
		}
	}
}

// shapeOf computes the shape of debug type idx.
func (info *Info) shapeOf(idx int) shape {
	types := info.prog.Debug.Types
	if idx < 0 || idx >= len(types) {
		return shape{kind: shapeUnknown}
	}
	t := &types[idx]
	switch t.Kind {
	case ir.DebugBasic:
		size := max(t.SizeInBits/8, 1)
		return shape{kind: shapeScalar, scalar: scalarVarType(t), elemSize: size, rows: 1, cols: 1, size: size}
	case ir.DebugVector:
		e := info.leafOf(t.Elem)
		n := max(int(t.VecSize), 1)
		return shape{kind: shapeVector, scalar: e.scalar, elemSize: e.elemSize, rows: 1, cols: n, size: e.elemSize * uint32(n)}
	case ir.DebugMatrix:
		e := info.leafOf(t.Elem)
		r, c := max(int(t.Rows), 1), max(int(t.Cols), 1)
		return shape{
			kind: shapeMatrix, scalar: e.scalar, elemSize: e.elemSize,
			rows: r, cols: c, layout: t.Layout, size: e.elemSize * uint32(r*c),
		}
	case ir.DebugArray:
		return info.arrayShape(t.Elem, t.Dims)
	case ir.DebugStruct:
		size := t.SizeInBits / 8
		if size == 0 && len(t.Members) > 0 {
			last := t.Members[len(t.Members)-1]
			size = last.OffsetInBits/8 + info.shapeOf(last.Type).size
		}
		return shape{kind: shapeStruct, scalar: value.Struct, rows: len(t.Members), cols: 1, typ: idx, size: size}
	default:
		return shape{kind: shapeUnknown}
	}
}

// leafOf returns the scalar shape under a vector element reference, which
// may itself name a vector.
func (info *Info) leafOf(idx int) shape {
	s := info.shapeOf(idx)
	if s.kind == shapeVector || s.kind == shapeMatrix {
		return shape{kind: shapeScalar, scalar: s.scalar, elemSize: s.elemSize, rows: 1, cols: 1, size: s.elemSize}
	}
	if s.kind != shapeScalar {
		return shape{kind: shapeScalar, scalar: value.UInt, elemSize: 4, rows: 1, cols: 1, size: 4}
	}
	return s
}

func (info *Info) arrayShape(elem int, dims []uint32) shape {
	if len(dims) == 0 {
		return info.shapeOf(elem)
	}
	inner := info.arrayShape(elem, dims[1:])
	return shape{
		kind:   shapeArray,
		scalar: value.Struct,
		rows:   int(dims[0]),
		cols:   1,
		dims:   dims,
		elem:   elem,
		size:   inner.size * dims[0],
	}
}

var swizzle = [...]string{"x", "y", "z", "w"}

type childShape struct {
	name   string
	offset uint32
	shape  shape
}

// children splits s into its direct parts. Matrices split into their
// storage vectors when the layout is declared and into single components
// otherwise.
func (info *Info) children(s shape) []childShape {
	scalar := shape{kind: shapeScalar, scalar: s.scalar, elemSize: s.elemSize, rows: 1, cols: 1, size: s.elemSize}
	var out []childShape
	switch s.kind {
	case shapeVector:
		for i := 0; i < s.cols; i++ {
			name := fmt.Sprintf("[%d]", i)
			if i < len(swizzle) {
				name = "." + swizzle[i]
			}
			out = append(out, childShape{name: name, offset: uint32(i) * s.elemSize, shape: scalar})
		}
	case shapeMatrix:
		switch s.layout {
		case ir.RowMajor:
			vec := shape{kind: shapeVector, scalar: s.scalar, elemSize: s.elemSize, rows: 1, cols: s.cols, size: s.elemSize * uint32(s.cols)}
			for r := 0; r < s.rows; r++ {
				out = append(out, childShape{name: fmt.Sprintf(".row%d", r), offset: uint32(r) * vec.size, shape: vec})
			}
		case ir.ColumnMajor:
			vec := shape{kind: shapeVector, scalar: s.scalar, elemSize: s.elemSize, rows: 1, cols: s.rows, size: s.elemSize * uint32(s.rows)}
			for c := 0; c < s.cols; c++ {
				out = append(out, childShape{name: fmt.Sprintf(".col%d", c), offset: uint32(c) * vec.size, shape: vec})
			}
		default:
			for k := 0; k < s.rows*s.cols; k++ {
				out = append(out, childShape{name: fmt.Sprintf("[%d]", k), offset: uint32(k) * s.elemSize, shape: scalar})
			}
		}
	case shapeArray:
		inner := info.arrayShape(s.elem, s.dims[1:])
		for i := 0; i < s.rows; i++ {
			out = append(out, childShape{name: fmt.Sprintf("[%d]", i), offset: uint32(i) * inner.size, shape: inner})
		}
	case shapeStruct:
		for _, m := range info.prog.Debug.Types[s.typ].Members {
			out = append(out, childShape{name: "." + m.Name, offset: m.OffsetInBits / 8, shape: info.shapeOf(m.Type)})
		}
	}
	return out
}

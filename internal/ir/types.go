// Package ir holds the decoded shader program model consumed by the debugger.
//
// Programs are produced by an external bytecode parser and loaded here either
// directly or through the msgpack codec. Everything in this package is plain
// data: the interpreter never mutates a Program after validation.
package ir

import (
	"fmt"
	"strings"
)

// Id names one SSA result. Valid Ids are in [0, Program.MaxId).
type Id uint32

// NoId marks an instruction without a result.
const NoId Id = ^Id(0)

// TypeKind distinguishes the shape of a Type.
type TypeKind uint8

const (
	TypeVoid TypeKind = iota
	TypeScalar
	TypeVector
	TypeArray
	TypeStruct
	TypePointer
	// TypeHandle is an opaque resource, sampler or constant-buffer handle.
	TypeHandle
	TypeLabel
)

func (k TypeKind) String() string {
	switch k {
	case TypeVoid:
		return "void"
	case TypeScalar:
		return "scalar"
	case TypeVector:
		return "vector"
	case TypeArray:
		return "array"
	case TypeStruct:
		return "struct"
	case TypePointer:
		return "pointer"
	case TypeHandle:
		return "handle"
	case TypeLabel:
		return "label"
	default:
		return fmt.Sprintf("TypeKind(%d)", k)
	}
}

// ScalarKind is the numeric class of a scalar.
type ScalarKind uint8

const (
	ScalarInt ScalarKind = iota
	ScalarFloat
)

// AddrSpace is the address space of a pointer or global.
type AddrSpace uint8

const (
	AddrPrivate AddrSpace = iota
	AddrDevice
	AddrConstant
	AddrGroupShared
)

func (a AddrSpace) String() string {
	switch a {
	case AddrPrivate:
		return "private"
	case AddrDevice:
		return "device"
	case AddrConstant:
		return "constant"
	case AddrGroupShared:
		return "groupshared"
	default:
		return fmt.Sprintf("AddrSpace(%d)", a)
	}
}

// Type describes the static type of an SSA value or memory object.
type Type struct {
	Kind      TypeKind   `msgpack:"k"`
	Scalar    ScalarKind `msgpack:"s,omitempty"`
	BitWidth  uint32     `msgpack:"w,omitempty"`
	ElemCount uint32     `msgpack:"n,omitempty"`
	Elem      *Type      `msgpack:"e,omitempty"`
	Members   []*Type    `msgpack:"m,omitempty"`
	AddrSpace AddrSpace  `msgpack:"a,omitempty"`
	Name      string     `msgpack:"name,omitempty"`
}

var (
	Void  = &Type{Kind: TypeVoid}
	Label = &Type{Kind: TypeLabel}
	Bool  = &Type{Kind: TypeScalar, Scalar: ScalarInt, BitWidth: 1}
	I8    = &Type{Kind: TypeScalar, Scalar: ScalarInt, BitWidth: 8}
	I16   = &Type{Kind: TypeScalar, Scalar: ScalarInt, BitWidth: 16}
	I32   = &Type{Kind: TypeScalar, Scalar: ScalarInt, BitWidth: 32}
	I64   = &Type{Kind: TypeScalar, Scalar: ScalarInt, BitWidth: 64}
	F16   = &Type{Kind: TypeScalar, Scalar: ScalarFloat, BitWidth: 16}
	F32   = &Type{Kind: TypeScalar, Scalar: ScalarFloat, BitWidth: 32}
	F64   = &Type{Kind: TypeScalar, Scalar: ScalarFloat, BitWidth: 64}
	// Handle is the opaque handle type returned by handle-creation intrinsics.
	Handle = &Type{Kind: TypeHandle, Name: "dx.types.Handle"}
)

func VectorOf(elem *Type, n uint32) *Type {
	return &Type{Kind: TypeVector, Elem: elem, ElemCount: n}
}

func ArrayOf(elem *Type, n uint32) *Type {
	return &Type{Kind: TypeArray, Elem: elem, ElemCount: n}
}

func StructOf(name string, members ...*Type) *Type {
	return &Type{Kind: TypeStruct, Name: name, Members: members}
}

func PointerTo(elem *Type, space AddrSpace) *Type {
	return &Type{Kind: TypePointer, Elem: elem, AddrSpace: space}
}

// IsFloat reports whether t is a float scalar or a vector of floats.
func (t *Type) IsFloat() bool {
	if t == nil {
		return false
	}
	if t.Kind == TypeVector {
		return t.Elem.IsFloat()
	}
	return t.Kind == TypeScalar && t.Scalar == ScalarFloat
}

// IsBool reports whether t is the 1-bit integer type.
func (t *Type) IsBool() bool {
	return t != nil && t.Kind == TypeScalar && t.Scalar == ScalarInt && t.BitWidth == 1
}

// ScalarOf returns the scalar element type of a scalar or vector.
func (t *Type) ScalarOf() *Type {
	if t != nil && t.Kind == TypeVector {
		return t.Elem
	}
	return t
}

// Components returns the number of scalar components of a scalar or vector.
func (t *Type) Components() int {
	if t == nil {
		return 0
	}
	switch t.Kind {
	case TypeScalar:
		return 1
	case TypeVector:
		return int(t.ElemCount)
	default:
		return 0
	}
}

// Equal compares two types structurally.
func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil {
		return false
	}
	if t.Kind != o.Kind || t.Scalar != o.Scalar || t.BitWidth != o.BitWidth ||
		t.ElemCount != o.ElemCount || t.AddrSpace != o.AddrSpace || len(t.Members) != len(o.Members) {
		return false
	}
	if (t.Elem == nil) != (o.Elem == nil) || (t.Elem != nil && !t.Elem.Equal(o.Elem)) {
		return false
	}
	for i := range t.Members {
		if !t.Members[i].Equal(o.Members[i]) {
			return false
		}
	}
	return true
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case TypeVoid:
		return "void"
	case TypeLabel:
		return "label"
	case TypeHandle:
		return "%" + t.Name
	case TypeScalar:
		if t.Scalar == ScalarFloat {
			switch t.BitWidth {
			case 16:
				return "half"
			case 64:
				return "double"
			default:
				return "float"
			}
		}
		return fmt.Sprintf("i%d", t.BitWidth)
	case TypeVector:
		return fmt.Sprintf("<%d x %s>", t.ElemCount, t.Elem)
	case TypeArray:
		return fmt.Sprintf("[%d x %s]", t.ElemCount, t.Elem)
	case TypeStruct:
		if t.Name != "" {
			return "%" + t.Name
		}
		parts := make([]string, len(t.Members))
		for i, m := range t.Members {
			parts[i] = m.String()
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	case TypePointer:
		if t.AddrSpace != AddrPrivate {
			return fmt.Sprintf("%s addrspace(%d)*", t.Elem, t.AddrSpace)
		}
		return t.Elem.String() + "*"
	default:
		return t.Kind.String()
	}
}

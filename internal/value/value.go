// Package value implements the lane value model: a tagged scalar, vector or
// aggregate as held in one lane's register table.
package value

import (
	"fmt"
	"math"
	"strings"

	"shaderdebug/internal/ir"
)

// MaxComponents is the largest number of scalar components a leaf holds
// (a 4x4 matrix).
const MaxComponents = 16

// VarType identifies the runtime type of a Value.
type VarType uint8

const (
	// Unknown represents an unset value.
	Unknown VarType = iota
	Float
	Double
	Half
	SInt
	UInt
	SShort
	UShort
	SLong
	ULong
	SByte
	UByte
	Bool
	// GPUPointer is an opaque pointer handle.
	GPUPointer
	// ReadOnlyResource, ReadWriteResource, Sampler and ConstantBlock are
	// opaque binding handles; see Handle.
	ReadOnlyResource
	ReadWriteResource
	Sampler
	ConstantBlock
	// Struct is any aggregate: structs and arrays. Only Members are populated.
	Struct
)

// String returns a human-readable name for the type.
func (t VarType) String() string {
	switch t {
	case Unknown:
		return "unknown"
	case Float:
		return "float"
	case Double:
		return "double"
	case Half:
		return "half"
	case SInt:
		return "int"
	case UInt:
		return "uint"
	case SShort:
		return "short"
	case UShort:
		return "ushort"
	case SLong:
		return "long"
	case ULong:
		return "ulong"
	case SByte:
		return "sbyte"
	case UByte:
		return "ubyte"
	case Bool:
		return "bool"
	case GPUPointer:
		return "pointer"
	case ReadOnlyResource:
		return "srv"
	case ReadWriteResource:
		return "uav"
	case Sampler:
		return "sampler"
	case ConstantBlock:
		return "cbuffer"
	case Struct:
		return "struct"
	default:
		return fmt.Sprintf("VarType(%d)", t)
	}
}

// ByteSize returns the size of one component of t in bytes, or 0 for
// opaque and aggregate types.
func (t VarType) ByteSize() int {
	switch t {
	case SByte, UByte, Bool:
		return 1
	case Half, SShort, UShort:
		return 2
	case Float, SInt, UInt:
		return 4
	case Double, SLong, ULong:
		return 8
	default:
		return 0
	}
}

func (t VarType) IsFloat() bool {
	return t == Float || t == Double || t == Half
}

func (t VarType) IsSigned() bool {
	return t == SInt || t == SShort || t == SLong || t == SByte
}

func (t VarType) IsInteger() bool {
	switch t {
	case SInt, UInt, SShort, UShort, SLong, ULong, SByte, UByte, Bool:
		return true
	default:
		return false
	}
}

// IsHandle reports whether t is an opaque binding handle.
func (t VarType) IsHandle() bool {
	return t == ReadOnlyResource || t == ReadWriteResource || t == Sampler || t == ConstantBlock
}

// ForScalar maps a scalar program type to its VarType. Integers are signed:
// the program model does not carry signedness.
func ForScalar(t *ir.Type) VarType {
	t = t.ScalarOf()
	if t == nil {
		return Unknown
	}
	switch t.Kind {
	case ir.TypeHandle:
		return ReadOnlyResource
	case ir.TypePointer:
		return GPUPointer
	case ir.TypeScalar:
	default:
		return Unknown
	}
	if t.Scalar == ir.ScalarFloat {
		switch t.BitWidth {
		case 16:
			return Half
		case 64:
			return Double
		default:
			return Float
		}
	}
	switch t.BitWidth {
	case 1:
		return Bool
	case 8:
		return SByte
	case 16:
		return SShort
	case 64:
		return SLong
	default:
		return SInt
	}
}

// Value is a runtime value in one lane.
//
// Leaves hold up to MaxComponents raw component bits, each masked to the
// component width. Aggregates hold only Members.
type Value struct {
	Name    string                `msgpack:"name"`
	Type    VarType               `msgpack:"type"`
	Rows    uint8                 `msgpack:"rows"`
	Columns uint8                 `msgpack:"cols"`
	Comps   [MaxComponents]uint64 `msgpack:"comps"`
	Members []Value               `msgpack:"members,omitempty"`
}

// Scalar returns a zero scalar of type t.
func Scalar(name string, t VarType) Value {
	return Value{Name: name, Type: t, Rows: 1, Columns: 1}
}

// Vector returns a zero vector of n components.
func Vector(name string, t VarType, n int) Value {
	return Value{Name: name, Type: t, Rows: 1, Columns: uint8(n)}
}

func FromU32(name string, vs ...uint32) Value {
	v := Vector(name, UInt, len(vs))
	for i, x := range vs {
		v.SetU32(i, x)
	}
	return v
}

func FromS32(name string, vs ...int32) Value {
	v := Vector(name, SInt, len(vs))
	for i, x := range vs {
		v.SetU32(i, uint32(x))
	}
	return v
}

func FromF32(name string, vs ...float32) Value {
	v := Vector(name, Float, len(vs))
	for i, x := range vs {
		v.SetF32(i, x)
	}
	return v
}

func FromBool(name string, b bool) Value {
	v := Scalar(name, Bool)
	if b {
		v.Comps[0] = 1
	}
	return v
}

// Zero returns the zero value for program type t.
func Zero(name string, t *ir.Type) Value {
	if t == nil {
		return Value{Name: name}
	}
	switch t.Kind {
	case ir.TypeScalar, ir.TypeHandle:
		return Scalar(name, ForScalar(t))
	case ir.TypeVector:
		return Vector(name, ForScalar(t.Elem), int(t.ElemCount))
	case ir.TypeArray:
		v := Value{Name: name, Type: Struct}
		v.Members = make([]Value, t.ElemCount)
		for i := range v.Members {
			v.Members[i] = Zero(fmt.Sprintf("%s[%d]", name, i), t.Elem)
		}
		return v
	case ir.TypeStruct:
		v := Value{Name: name, Type: Struct}
		v.Members = make([]Value, len(t.Members))
		for i, m := range t.Members {
			v.Members[i] = Zero(fmt.Sprintf("%s._child%d", name, i), m)
		}
		return v
	case ir.TypePointer:
		return Zero(name, t.Elem)
	default:
		return Value{Name: name}
	}
}

// FromConstant decodes an inline constant of program type t.
func FromConstant(name string, c *ir.Constant) Value {
	if c == nil {
		return Value{Name: name}
	}
	v := Zero(name, c.Type)
	if v.IsAggregate() {
		for i := range v.Members {
			if i < len(c.Members) {
				child := FromConstant(v.Members[i].Name, c.Members[i])
				v.Members[i] = child
			}
		}
		return v
	}
	for i, b := range c.Bits {
		if i >= MaxComponents {
			break
		}
		v.SetBits(i, b)
	}
	// A scalar constant splats across a vector type.
	if len(c.Bits) == 1 {
		for i := 1; i < v.Len(); i++ {
			v.Comps[i] = v.Comps[0]
		}
	}
	return v
}

// IsAggregate reports whether v holds members instead of components.
func (v Value) IsAggregate() bool {
	return v.Type == Struct || len(v.Members) > 0
}

// Len returns the number of scalar components of a leaf.
func (v Value) Len() int {
	return int(v.Rows) * int(v.Columns)
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	if len(v.Members) == 0 {
		return v
	}
	out := v
	out.Members = make([]Value, len(v.Members))
	for i := range v.Members {
		out.Members[i] = v.Members[i].Clone()
	}
	return out
}

// Equal compares values deeply, ignoring names.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type || v.Rows != o.Rows || v.Columns != o.Columns || v.Comps != o.Comps || len(v.Members) != len(o.Members) {
		return false
	}
	for i := range v.Members {
		if !v.Members[i].Equal(o.Members[i]) {
			return false
		}
	}
	return true
}

func (v Value) mask() uint64 {
	switch v.Type.ByteSize() {
	case 1:
		if v.Type == Bool {
			return 1
		}
		return 0xFF
	case 2:
		return 0xFFFF
	case 4:
		return 0xFFFFFFFF
	default:
		return ^uint64(0)
	}
}

// Bits returns the raw bits of component i.
func (v Value) Bits(i int) uint64 { return v.Comps[i] }

// SetBits stores raw bits into component i, masked to the component width.
func (v *Value) SetBits(i int, b uint64) { v.Comps[i] = b & v.mask() }

// Uint returns component i zero-extended.
func (v Value) Uint(i int) uint64 { return v.Comps[i] & v.mask() }

// Int returns component i sign-extended from its width.
func (v Value) Int(i int) int64 {
	b := v.Comps[i]
	switch v.Type.ByteSize() {
	case 1:
		if v.Type == Bool {
			return int64(b & 1)
		}
		return int64(int8(b))
	case 2:
		return int64(int16(b))
	case 4:
		return int64(int32(b))
	default:
		return int64(b)
	}
}

func (v Value) U32(i int) uint32  { return uint32(v.Comps[i]) }
func (v Value) S32(i int) int32   { return int32(v.Comps[i]) }
func (v Value) U64(i int) uint64  { return v.Comps[i] }
func (v Value) F32(i int) float32 { return math.Float32frombits(uint32(v.Comps[i])) }
func (v Value) F64(i int) float64 { return math.Float64frombits(v.Comps[i]) }
func (v Value) F16(i int) float32 { return HalfToFloat(uint16(v.Comps[i])) }
func (v Value) Bool(i int) bool   { return v.Comps[i] != 0 }

func (v *Value) SetU32(i int, x uint32)  { v.Comps[i] = uint64(x) }
func (v *Value) SetU64(i int, x uint64)  { v.Comps[i] = x }
func (v *Value) SetF32(i int, x float32) { v.Comps[i] = uint64(math.Float32bits(x)) }
func (v *Value) SetF64(i int, x float64) { v.Comps[i] = math.Float64bits(x) }
func (v *Value) SetF16(i int, x float32) { v.Comps[i] = uint64(FloatToHalf(x)) }

func (v *Value) SetBool(i int, b bool) {
	if b {
		v.Comps[i] = 1
	} else {
		v.Comps[i] = 0
	}
}

// Float returns component i of a float value widened to float64.
func (v Value) Float(i int) float64 {
	switch v.Type {
	case Half:
		return float64(v.F16(i))
	case Double:
		return v.F64(i)
	default:
		return float64(v.F32(i))
	}
}

// SetFloat stores f into component i, rounding to the value's float width.
func (v *Value) SetFloat(i int, f float64) {
	switch v.Type {
	case Half:
		v.SetF16(i, float32(f))
	case Double:
		v.SetF64(i, f)
	default:
		v.SetF32(i, float32(f))
	}
}

// IsNaNOrInf reports whether any float component is NaN or infinite.
func (v Value) IsNaNOrInf() bool {
	if !v.Type.IsFloat() {
		return false
	}
	for i := 0; i < v.Len(); i++ {
		f := v.Float(i)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return true
		}
	}
	return false
}

// String returns a human-readable representation of the value.
func (v Value) String() string {
	if v.IsAggregate() {
		parts := make([]string, len(v.Members))
		for i := range v.Members {
			parts[i] = v.Members[i].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	n := v.Len()
	if n == 0 {
		return "<" + v.Type.String() + ">"
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = v.componentString(i)
	}
	if n == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (v Value) componentString(i int) string {
	switch {
	case v.Type == Bool:
		if v.Bool(i) {
			return "true"
		}
		return "false"
	case v.Type.IsFloat():
		return fmt.Sprintf("%g", v.Float(i))
	case v.Type.IsSigned():
		return fmt.Sprintf("%d", v.Int(i))
	case v.Type.IsHandle():
		return fmt.Sprintf("%s#%d", v.Type, v.Comps[handleRegister])
	default:
		return fmt.Sprintf("%d", v.Uint(i))
	}
}

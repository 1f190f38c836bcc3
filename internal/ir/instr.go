package ir

import (
	"fmt"
	"math"
	"strings"
)

// OperandKind distinguishes operand sources.
type OperandKind uint8

const (
	// OperandId reads an SSA result.
	OperandId OperandKind = iota
	// OperandConst decodes an inline constant.
	OperandConst
	// OperandLiteral is an immediate integer that is not a typed value
	// (intrinsic enum arguments, struct member indices).
	OperandLiteral
	// OperandUndef reads as zero of its type.
	OperandUndef
)

// Operand is one instruction argument.
type Operand struct {
	Kind    OperandKind `msgpack:"k"`
	Id      Id          `msgpack:"id,omitempty"`
	Const   *Constant   `msgpack:"c,omitempty"`
	Literal uint64      `msgpack:"l,omitempty"`
	Type    *Type       `msgpack:"t,omitempty"`
}

func Ref(id Id) Operand { return Operand{Kind: OperandId, Id: id} }

func Lit(v uint64) Operand { return Operand{Kind: OperandLiteral, Literal: v} }

func Undef(t *Type) Operand { return Operand{Kind: OperandUndef, Type: t} }

func ConstOp(c *Constant) Operand { return Operand{Kind: OperandConst, Const: c} }

func (o Operand) String() string {
	switch o.Kind {
	case OperandId:
		return fmt.Sprintf("%%%d", o.Id)
	case OperandConst:
		return o.Const.String()
	case OperandLiteral:
		return fmt.Sprintf("#%d", o.Literal)
	case OperandUndef:
		return "undef"
	default:
		return "?"
	}
}

// Constant is an inline constant. Scalars and vectors keep their raw
// component bits; aggregates keep one Constant per member or element.
type Constant struct {
	Type    *Type       `msgpack:"t"`
	Bits    []uint64    `msgpack:"b,omitempty"`
	Members []*Constant `msgpack:"m,omitempty"`
}

func ConstInt(t *Type, v int64) *Constant {
	return &Constant{Type: t, Bits: []uint64{uint64(v)}}
}

func ConstF32(v float32) *Constant {
	return &Constant{Type: F32, Bits: []uint64{uint64(math.Float32bits(v))}}
}

func ConstF64(v float64) *Constant {
	return &Constant{Type: F64, Bits: []uint64{math.Float64bits(v)}}
}

func ConstBool(v bool) *Constant {
	if v {
		return &Constant{Type: Bool, Bits: []uint64{1}}
	}
	return &Constant{Type: Bool, Bits: []uint64{0}}
}

func (c *Constant) String() string {
	if c == nil {
		return "<nil>"
	}
	if len(c.Members) > 0 {
		parts := make([]string, len(c.Members))
		for i, m := range c.Members {
			parts[i] = m.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	parts := make([]string, len(c.Bits))
	scalar := c.Type.ScalarOf()
	for i, b := range c.Bits {
		switch {
		case scalar.IsFloat() && scalar.BitWidth == 32:
			parts[i] = fmt.Sprintf("%g", math.Float32frombits(uint32(b)))
		case scalar.IsFloat() && scalar.BitWidth == 64:
			parts[i] = fmt.Sprintf("%g", math.Float64frombits(b))
		default:
			parts[i] = fmt.Sprintf("%d", int64(b))
		}
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "<" + strings.Join(parts, ", ") + ">"
}

// DebugLoc is the source location attached to an instruction.
type DebugLoc struct {
	Line   uint32 `msgpack:"line,omitempty"`
	Column uint32 `msgpack:"col,omitempty"`
	// Scope indexes Debug.Scopes; -1 when the instruction has no location.
	Scope int `msgpack:"scope"`
	// InlinedAt indexes Debug.InlineSites; -1 when not inlined.
	InlinedAt int `msgpack:"inl"`
}

// NoLoc is the location of an instruction without debug info.
var NoLoc = DebugLoc{Scope: -1, InlinedAt: -1}

// Instruction is one entry of a function's flat instruction list.
//
// Operand layout by op:
//
//	Br       Operands[0] condition (conditional only); Targets [true, false] or [target]
//	Switch   Operands[0] selector; Targets [default, case...]; Cases parallel to Targets[1:]
//	Phi      Operands are incoming values; Targets are the matching predecessor blocks
//	Select   condition, true value, false value
//	Load     pointer
//	Store    pointer, value
//	GEP      base pointer, indices...
//	Alloca   Type is the pointer type; Type.Elem is the allocated type
//	Call     DXOp names the intrinsic; Operands are its arguments
//	Extract/InsertValue  aggregate (, value), then literal indices
//	DebugValue/Declare   Operands[0] the described value; DebugVar, DebugOffset, DebugSize
type Instruction struct {
	Op       Op        `msgpack:"op"`
	Result   Id        `msgpack:"r"`
	Type     *Type     `msgpack:"t,omitempty"`
	Operands []Operand `msgpack:"a,omitempty"`
	Targets  []int     `msgpack:"tg,omitempty"`
	Cases    []uint64  `msgpack:"cs,omitempty"`
	Pred     Predicate `msgpack:"p,omitempty"`
	Atomic   AtomicOp  `msgpack:"ao,omitempty"`
	DXOp     DXOp      `msgpack:"dx,omitempty"`
	Callee   string    `msgpack:"callee,omitempty"`
	Name     string    `msgpack:"name,omitempty"`
	Loc      DebugLoc  `msgpack:"loc"`

	DebugVar    int    `msgpack:"dv,omitempty"`
	DebugOffset uint32 `msgpack:"doff,omitempty"`
	// DebugSize is the byte count of the described fragment; 0 covers the
	// whole variable.
	DebugSize uint32 `msgpack:"dsz,omitempty"`
}

// HasResult reports whether the instruction defines an SSA result.
func (in *Instruction) HasResult() bool {
	return in.Result != NoId
}

func (in *Instruction) String() string {
	var sb strings.Builder
	if in.HasResult() {
		fmt.Fprintf(&sb, "%%%d = ", in.Result)
	}
	sb.WriteString(in.Op.String())
	switch in.Op {
	case OpICmp, OpFCmp:
		sb.WriteString(" " + in.Pred.String())
	case OpCall:
		if in.Callee != "" {
			sb.WriteString(" @" + in.Callee)
		} else {
			sb.WriteString(" @dx.op." + in.DXOp.String())
		}
	case OpAtomicRMW:
		sb.WriteString(" " + in.Atomic.String())
	}
	for i, op := range in.Operands {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(op.String())
	}
	if len(in.Targets) > 0 {
		parts := make([]string, len(in.Targets))
		for i, t := range in.Targets {
			parts[i] = fmt.Sprintf("bb%d", t)
		}
		sb.WriteString(" [" + strings.Join(parts, ", ") + "]")
	}
	return sb.String()
}

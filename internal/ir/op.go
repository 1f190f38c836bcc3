package ir

import "fmt"

// Op is the closed set of instruction operations.
type Op uint8

const (
	OpNop Op = iota
	// Debug annotations; never executed.
	OpDebugValue
	OpDebugDeclare

	// Terminators.
	OpBr
	OpSwitch
	OpRet
	OpUnreachable

	OpPhi
	OpSelect
	OpCall

	// Arithmetic.
	OpFNeg
	OpAdd
	OpSub
	OpMul
	OpUDiv
	OpSDiv
	OpURem
	OpSRem
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpFRem

	// Bitwise.
	OpShl
	OpLShr
	OpAShr
	OpAnd
	OpOr
	OpXor

	OpICmp
	OpFCmp

	// Conversions.
	OpTrunc
	OpZExt
	OpSExt
	OpFPTrunc
	OpFPExt
	OpFPToUI
	OpFPToSI
	OpUIToFP
	OpSIToFP
	OpBitcast
	OpAddrSpaceCast

	OpExtractValue
	OpInsertValue

	// Memory.
	OpAlloca
	OpLoad
	OpStore
	OpGEP
	OpAtomicRMW
	OpCmpXchg

	opCount
)

var opNames = [...]string{
	OpNop:           "nop",
	OpDebugValue:    "dbg.value",
	OpDebugDeclare:  "dbg.declare",
	OpBr:            "br",
	OpSwitch:        "switch",
	OpRet:           "ret",
	OpUnreachable:   "unreachable",
	OpPhi:           "phi",
	OpSelect:        "select",
	OpCall:          "call",
	OpFNeg:          "fneg",
	OpAdd:           "add",
	OpSub:           "sub",
	OpMul:           "mul",
	OpUDiv:          "udiv",
	OpSDiv:          "sdiv",
	OpURem:          "urem",
	OpSRem:          "srem",
	OpFAdd:          "fadd",
	OpFSub:          "fsub",
	OpFMul:          "fmul",
	OpFDiv:          "fdiv",
	OpFRem:          "frem",
	OpShl:           "shl",
	OpLShr:          "lshr",
	OpAShr:          "ashr",
	OpAnd:           "and",
	OpOr:            "or",
	OpXor:           "xor",
	OpICmp:          "icmp",
	OpFCmp:          "fcmp",
	OpTrunc:         "trunc",
	OpZExt:          "zext",
	OpSExt:          "sext",
	OpFPTrunc:       "fptrunc",
	OpFPExt:         "fpext",
	OpFPToUI:        "fptoui",
	OpFPToSI:        "fptosi",
	OpUIToFP:        "uitofp",
	OpSIToFP:        "sitofp",
	OpBitcast:       "bitcast",
	OpAddrSpaceCast: "addrspacecast",
	OpExtractValue:  "extractvalue",
	OpInsertValue:   "insertvalue",
	OpAlloca:        "alloca",
	OpLoad:          "load",
	OpStore:         "store",
	OpGEP:           "getelementptr",
	OpAtomicRMW:     "atomicrmw",
	OpCmpXchg:       "cmpxchg",
}

func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", o)
}

// IsTerminator reports whether o ends a block.
func (o Op) IsTerminator() bool {
	switch o {
	case OpBr, OpSwitch, OpRet, OpUnreachable:
		return true
	default:
		return false
	}
}

// IsAdministrative reports whether o only annotates the program and is
// skipped by the interpreter.
func (o Op) IsAdministrative() bool {
	switch o {
	case OpNop, OpDebugValue, OpDebugDeclare:
		return true
	default:
		return false
	}
}

// IsCast reports whether o is a conversion.
func (o Op) IsCast() bool {
	return o >= OpTrunc && o <= OpAddrSpaceCast
}

// IsBinary reports whether o takes two operands of the result type.
func (o Op) IsBinary() bool {
	return o >= OpAdd && o <= OpXor
}

// Predicate is the comparison predicate of OpICmp and OpFCmp.
type Predicate uint8

const (
	// Ordered float predicates: false when either operand is NaN.
	FCmpFalse Predicate = iota
	FCmpOEQ
	FCmpOGT
	FCmpOGE
	FCmpOLT
	FCmpOLE
	FCmpONE
	FCmpORD
	// Unordered float predicates: true when either operand is NaN.
	FCmpUNO
	FCmpUEQ
	FCmpUGT
	FCmpUGE
	FCmpULT
	FCmpULE
	FCmpUNE
	FCmpTrue

	ICmpEQ
	ICmpNE
	ICmpUGT
	ICmpUGE
	ICmpULT
	ICmpULE
	ICmpSGT
	ICmpSGE
	ICmpSLT
	ICmpSLE
)

var predicateNames = [...]string{
	FCmpFalse: "false", FCmpOEQ: "oeq", FCmpOGT: "ogt", FCmpOGE: "oge", FCmpOLT: "olt",
	FCmpOLE: "ole", FCmpONE: "one", FCmpORD: "ord", FCmpUNO: "uno", FCmpUEQ: "ueq",
	FCmpUGT: "ugt", FCmpUGE: "uge", FCmpULT: "ult", FCmpULE: "ule", FCmpUNE: "une",
	FCmpTrue: "true", ICmpEQ: "eq", ICmpNE: "ne", ICmpUGT: "ugt", ICmpUGE: "uge",
	ICmpULT: "ult", ICmpULE: "ule", ICmpSGT: "sgt", ICmpSGE: "sge", ICmpSLT: "slt",
	ICmpSLE: "sle",
}

func (p Predicate) String() string {
	if int(p) < len(predicateNames) {
		return predicateNames[p]
	}
	return fmt.Sprintf("Predicate(%d)", p)
}

// IsFloat reports whether p belongs to OpFCmp.
func (p Predicate) IsFloat() bool {
	return p <= FCmpTrue
}

// AtomicOp is the read-modify-write operation of OpAtomicRMW and the
// AtomicBinOp intrinsic.
type AtomicOp uint8

const (
	AtomicAdd AtomicOp = iota
	AtomicAnd
	AtomicOr
	AtomicXor
	AtomicIMin
	AtomicIMax
	AtomicUMin
	AtomicUMax
	AtomicExchange
)

func (a AtomicOp) String() string {
	switch a {
	case AtomicAdd:
		return "add"
	case AtomicAnd:
		return "and"
	case AtomicOr:
		return "or"
	case AtomicXor:
		return "xor"
	case AtomicIMin:
		return "min"
	case AtomicIMax:
		return "max"
	case AtomicUMin:
		return "umin"
	case AtomicUMax:
		return "umax"
	case AtomicExchange:
		return "xchg"
	default:
		return fmt.Sprintf("AtomicOp(%d)", a)
	}
}

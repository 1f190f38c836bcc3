package interp

import (
	"errors"
	"fmt"
	"strings"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/memory"
)

// Code identifies the kind of fatal interpreter error.
type Code int

// Stable error codes - do not change values.
const (
	CodeUnassigned      Code = 1001 // SD1001: read of an Id that was never assigned
	CodeNoAllocation    Code = 1002 // SD1002: pointer without backing allocation
	CodeOutOfBounds     Code = 1003 // SD1003: address outside its allocation
	CodeUnreachable     Code = 1004 // SD1004: unreachable executed
	CodeDiverged        Code = 1005 // SD1005: wave or quad op on a diverged group
	CodeDivergedBarrier Code = 1006 // SD1006: barrier on a diverged group
	CodeDeepAddress     Code = 1007 // SD1007: address path deeper than supported
	CodeBadOperand      Code = 1008 // SD1008: operand of the wrong shape
	CodeFinished        Code = 1009 // SD1009: step on a finished lane
)

// String returns the code as "SD1001" format.
func (c Code) String() string {
	return fmt.Sprintf("SD%d", c)
}

// Error is a fatal invariant violation raised while stepping a lane. The
// session stops when one is returned.
type Error struct {
	Code    Code
	Message string
	Lane    int
	// Instruction is the program-wide index of the failing instruction.
	Instruction int
	Function    string
	Callstack   []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: lane %d at instruction %d: %s", e.Code, e.Lane, e.Instruction, e.Message)
}

// Format renders the error with its source callstack.
func (e *Error) Format() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "error %s: %s\n", e.Code, e.Message)
	fmt.Fprintf(&sb, "at %s instruction %d, lane %d\n", e.Function, e.Instruction, e.Lane)
	if len(e.Callstack) > 0 {
		sb.WriteString("callstack:\n")
		for i := len(e.Callstack) - 1; i >= 0; i-- {
			fmt.Fprintf(&sb, "  %d: %s\n", len(e.Callstack)-1-i, e.Callstack[i])
		}
	}
	return sb.String()
}

// IsCode reports whether err is an *Error with code c.
func IsCode(err error, c Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == c
}

// errorBuilder constructs errors located at the lane's current instruction.
type errorBuilder struct {
	t *ThreadState
}

func (eb errorBuilder) makeError(code Code, msg string) *Error {
	t := eb.t
	e := &Error{
		Code:        code,
		Message:     msg,
		Lane:        t.Lane,
		Instruction: t.fn.GlobalOffset + t.current,
		Function:    t.fn.Function.Name,
	}
	if cs := t.fn.Callstack(t.current); len(cs) > 0 {
		e.Callstack = append([]string(nil), cs...)
	}
	return e
}

func (eb errorBuilder) unassigned(id ir.Id) *Error {
	return eb.makeError(CodeUnassigned, fmt.Sprintf("%%%d read before it was assigned", id))
}

func (eb errorBuilder) badOperand(what string) *Error {
	return eb.makeError(CodeBadOperand, what)
}

func (eb errorBuilder) unreachable() *Error {
	return eb.makeError(CodeUnreachable, "unreachable executed")
}

func (eb errorBuilder) diverged(op string) *Error {
	return eb.makeError(CodeDiverged, fmt.Sprintf("%s executed with diverged lanes", op))
}

func (eb errorBuilder) divergedBarrier() *Error {
	return eb.makeError(CodeDivergedBarrier, "barrier reached by part of the workgroup")
}

// memory maps a memory-model failure onto its error code.
func (eb errorBuilder) memory(err error) *Error {
	switch {
	case errors.Is(err, memory.ErrNoAllocation):
		return eb.makeError(CodeNoAllocation, err.Error())
	case errors.Is(err, memory.ErrDeepPath):
		return eb.makeError(CodeDeepAddress, err.Error())
	default:
		return eb.makeError(CodeOutOfBounds, err.Error())
	}
}

// fail aborts the current step; Step recovers the error.
func (t *ThreadState) fail(e *Error) {
	panic(e)
}

package interp

import (
	"strings"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/resource"
	"shaderdebug/internal/value"
)

// EventFlags report notable things that happened during one step.
type EventFlags uint32

const (
	// EventSampleLoadGather is set when the step read a texture through a
	// sample, gather or load.
	EventSampleLoadGather EventFlags = 1 << iota
	// EventGeneratedNanOrInf is set when a result was NaN or infinite, or
	// an integer division by zero produced its sentinel.
	EventGeneratedNanOrInf
)

var eventNames = []struct {
	flag EventFlags
	name string
}{
	{EventSampleLoadGather, "sample-load-gather"},
	{EventGeneratedNanOrInf, "generated-nan-or-inf"},
}

func (f EventFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, e := range eventNames {
		if f&e.flag != 0 {
			parts = append(parts, e.name)
		}
	}
	return strings.Join(parts, "|")
}

// Change is one before/after pair of a lane value. A zero Before means the
// value was newly assigned; a zero After means it left scope. Id is NoId
// for values that have no SSA name, such as shader outputs.
type Change struct {
	Id     ir.Id       `msgpack:"id"`
	Before value.Value `msgpack:"before"`
	After  value.Value `msgpack:"after"`
}

// StepResult describes one executed instruction.
type StepResult struct {
	// Instruction and Block locate the executed instruction in its
	// function.
	Instruction int
	Block       int
	// Next is the function-local index of the next instruction to run; -1
	// once the lane has finished.
	Next int
	// Branched is set when a conditional branch or switch was executed, so
	// the lane may now be apart from its tangle.
	Branched  bool
	Changes   []Change
	Events    EventFlags
	Resources []resource.ReferenceInfo
}

package ir

import (
	"errors"
	"fmt"
)

// MaxGEPIndices is the deepest address path the memory model supports: the
// leading zero index plus one element or member index.
const MaxGEPIndices = 2

// Validate checks program invariants the interpreter relies on.
// Returns error if any invariant is violated.
func Validate(p *Program) error {
	if p == nil {
		return errors.New("nil program")
	}
	var errs []error
	if p.Entry() == nil {
		errs = append(errs, fmt.Errorf("entry point %d does not exist", p.EntryPoint))
	}

	defined := make(map[Id]string, p.MaxId)
	define := func(id Id, where string) {
		if id == NoId {
			return
		}
		if id >= p.MaxId {
			errs = append(errs, fmt.Errorf("%s: id %%%d out of range [0, %d)", where, id, p.MaxId))
			return
		}
		if prev, ok := defined[id]; ok {
			errs = append(errs, fmt.Errorf("%s: id %%%d already defined by %s", where, id, prev))
			return
		}
		defined[id] = where
	}
	for i := range p.Globals {
		define(p.Globals[i].Id, fmt.Sprintf("global %s", p.Globals[i].Name))
	}
	for fi := range p.Functions {
		f := &p.Functions[fi]
		for i := range f.Instructions {
			define(f.Instructions[i].Result, fmt.Sprintf("%s instr %d", f.Name, i))
		}
	}

	for fi := range p.Functions {
		f := &p.Functions[fi]
		if err := validateFunc(p, f, defined); err != nil {
			errs = append(errs, fmt.Errorf("function %s: %w", f.Name, err))
		}
	}
	if err := validateDebug(p); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validateFunc(p *Program, f *Function, defined map[Id]string) error {
	if len(f.Blocks) == 0 {
		return errors.New("function has no blocks")
	}

	var errs []error

	// 1. Blocks tile the instruction list and end with a terminator
	if err := validateBlockRanges(f); err != nil {
		errs = append(errs, err)
		// Targets and predecessors are meaningless with broken ranges.
		return errors.Join(errs...)
	}

	// 2. Branch targets and predecessor lists agree
	if err := validateBlockTargets(f); err != nil {
		errs = append(errs, err)
	}

	// 3. Operand ids exist
	if err := validateOperands(p, f, defined); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateBlockRanges(f *Function) error {
	var errs []error
	next := 0
	for i := range f.Blocks {
		bb := &f.Blocks[i]
		if bb.Start != next {
			errs = append(errs, fmt.Errorf("bb%d: starts at %d, expected %d", i, bb.Start, next))
		}
		if bb.End <= bb.Start {
			errs = append(errs, fmt.Errorf("bb%d: empty block", i))
			next = bb.End
			continue
		}
		if bb.End > len(f.Instructions) {
			errs = append(errs, fmt.Errorf("bb%d: ends at %d past %d instructions", i, bb.End, len(f.Instructions)))
			next = bb.End
			continue
		}
		for j := bb.Start; j < bb.End-1; j++ {
			if f.Instructions[j].Op.IsTerminator() {
				errs = append(errs, fmt.Errorf("bb%d: terminator %s at %d is not last", i, f.Instructions[j].Op, j))
			}
		}
		if last := f.Instructions[bb.End-1].Op; !last.IsTerminator() {
			errs = append(errs, fmt.Errorf("bb%d: not terminated (last op %s)", i, last))
		}
		next = bb.End
	}
	if next != len(f.Instructions) {
		errs = append(errs, fmt.Errorf("%d instructions outside any block", len(f.Instructions)-next))
	}
	return errors.Join(errs...)
}

func validateBlockTargets(f *Function) error {
	var errs []error

	blockExists := func(id int) bool {
		return id >= 0 && id < len(f.Blocks)
	}
	hasPred := func(to, from int) bool {
		for _, p := range f.Blocks[to].Preds {
			if p == from {
				return true
			}
		}
		return false
	}

	for i := range f.Blocks {
		bb := &f.Blocks[i]
		term := &f.Instructions[bb.End-1]
		switch term.Op {
		case OpBr:
			if n := len(term.Targets); n != 1 && n != 2 {
				errs = append(errs, fmt.Errorf("bb%d: br has %d targets", i, n))
			}
			if len(term.Targets) == 2 && len(term.Operands) != 1 {
				errs = append(errs, fmt.Errorf("bb%d: conditional br without condition", i))
			}
		case OpSwitch:
			if len(term.Targets) == 0 || len(term.Cases) != len(term.Targets)-1 {
				errs = append(errs, fmt.Errorf("bb%d: switch has %d targets for %d cases", i, len(term.Targets), len(term.Cases)))
			}
		}
		for _, t := range term.Targets {
			if !blockExists(t) {
				errs = append(errs, fmt.Errorf("bb%d: %s target bb%d does not exist", i, term.Op, t))
				continue
			}
			if !hasPred(t, i) {
				errs = append(errs, fmt.Errorf("bb%d: missing from predecessors of bb%d", i, t))
			}
		}
		for _, pred := range bb.Preds {
			if !blockExists(pred) {
				errs = append(errs, fmt.Errorf("bb%d: predecessor bb%d does not exist", i, pred))
			}
		}

		for j := bb.Start; j < bb.End; j++ {
			in := &f.Instructions[j]
			if in.Op != OpPhi {
				continue
			}
			if len(in.Targets) != len(in.Operands) {
				errs = append(errs, fmt.Errorf("bb%d instr %d: phi has %d values for %d blocks", i, j, len(in.Operands), len(in.Targets)))
			}
			for _, from := range in.Targets {
				if !blockExists(from) || !hasPred(i, from) {
					errs = append(errs, fmt.Errorf("bb%d instr %d: phi incoming bb%d is not a predecessor", i, j, from))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func validateOperands(p *Program, f *Function, defined map[Id]string) error {
	var errs []error
	for j := range f.Instructions {
		in := &f.Instructions[j]
		ctx := fmt.Sprintf("instr %d (%s)", j, in.Op)
		for _, op := range in.Operands {
			if op.Kind != OperandId {
				if op.Kind == OperandConst && op.Const == nil {
					errs = append(errs, fmt.Errorf("%s: nil constant operand", ctx))
				}
				continue
			}
			if _, ok := defined[op.Id]; !ok {
				errs = append(errs, fmt.Errorf("%s: operand %%%d is never defined", ctx, op.Id))
			}
		}
		switch in.Op {
		case OpGEP:
			if n := len(in.Operands) - 1; n < 1 || n > MaxGEPIndices {
				errs = append(errs, fmt.Errorf("%s: %d indices, at most %d supported", ctx, n, MaxGEPIndices))
			}
		case OpLoad:
			if len(in.Operands) != 1 {
				errs = append(errs, fmt.Errorf("%s: expected 1 operand", ctx))
			}
		case OpStore:
			if len(in.Operands) != 2 {
				errs = append(errs, fmt.Errorf("%s: expected 2 operands", ctx))
			}
		case OpAlloca:
			if in.Type == nil || in.Type.Kind != TypePointer || in.Type.Elem == nil {
				errs = append(errs, fmt.Errorf("%s: alloca needs a pointer result type", ctx))
			}
		case OpDebugValue, OpDebugDeclare:
			if in.DebugVar < 0 || in.DebugVar >= len(p.Debug.Locals) {
				errs = append(errs, fmt.Errorf("%s: debug variable %d does not exist", ctx, in.DebugVar))
			}
		}
		if in.HasResult() && (in.Type == nil || in.Type.Kind == TypeVoid) {
			errs = append(errs, fmt.Errorf("%s: result %%%d has no type", ctx, in.Result))
		}
	}
	return errors.Join(errs...)
}

func validateDebug(p *Program) error {
	var errs []error
	d := &p.Debug
	for i, s := range d.Scopes {
		if s.Parent >= len(d.Scopes) || s.Parent >= i && s.Parent != -1 {
			errs = append(errs, fmt.Errorf("scope %d: parent %d must precede it", i, s.Parent))
		}
	}
	for i, l := range d.Locals {
		if l.Scope < 0 || l.Scope >= len(d.Scopes) {
			errs = append(errs, fmt.Errorf("local %s: scope %d does not exist", l.Name, l.Scope))
		}
		if l.Type < 0 || l.Type >= len(d.Types) {
			errs = append(errs, fmt.Errorf("local %d (%s): type %d does not exist", i, l.Name, l.Type))
		}
	}
	for i, t := range d.Types {
		switch t.Kind {
		case DebugVector, DebugMatrix, DebugArray:
			if t.Elem < 0 || t.Elem >= len(d.Types) {
				errs = append(errs, fmt.Errorf("debug type %d: element type %d does not exist", i, t.Elem))
			}
		case DebugStruct:
			for _, m := range t.Members {
				if m.Type < 0 || m.Type >= len(d.Types) {
					errs = append(errs, fmt.Errorf("debug type %d: member %s type %d does not exist", i, m.Name, m.Type))
				}
			}
		}
	}
	return errors.Join(errs...)
}

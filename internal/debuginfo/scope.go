// Package debuginfo maps SSA values back to source variables.
//
// Scopes from the program's debug metadata are kept in an arena addressed by
// index. Each scope collects the value-to-variable mappings recorded by
// dbg.value and dbg.declare records of variables declared in it; the
// variables visible at an instruction are rebuilt from the mappings of the
// scopes enclosing it.
package debuginfo

import (
	"cmp"
	"fmt"
	"slices"

	"golang.org/x/text/unicode/norm"

	"shaderdebug/internal/cfg"
	"shaderdebug/internal/ir"
)

// Mapping records that from Instruction on, bytes [ByteOffset,
// ByteOffset+ByteCount) of a source variable are held by Id. A ByteCount
// of zero covers the whole variable.
type Mapping struct {
	Variable    int
	Name        string
	Id          ir.Id
	ByteOffset  uint32
	ByteCount   uint32
	Instruction int
	// Declare marks a mapping from dbg.declare; Id is then the pointer to
	// the variable's memory.
	Declare bool
}

// Covers reports whether m covers every byte that o covers.
func (m Mapping) Covers(o Mapping) bool {
	if m.Variable != o.Variable || m.ByteOffset > o.ByteOffset {
		return false
	}
	if m.ByteCount == 0 {
		return true
	}
	if o.ByteCount == 0 {
		return false
	}
	return m.ByteOffset+m.ByteCount >= o.ByteOffset+o.ByteCount
}

// Scope is one node of the scope arena.
type Scope struct {
	Kind ir.ScopeKind
	// Parent is the index of the enclosing scope, or -1.
	Parent   int
	Name     string
	File     string
	Line     uint32
	Function string
	// MaxInstruction is the last instruction governed by the scope or any
	// scope nested in it; -1 when no instruction is.
	MaxInstruction int
	// Mappings are ordered by instruction.
	Mappings []Mapping
}

// Info is the debug information of one function.
type Info struct {
	prog   *ir.Program
	fn     *ir.Function
	Scopes []Scope
	// instrScope is the governing scope of every instruction, or -1.
	instrScope []int
	visible    map[int][]SourceVariable
}

// Build reconstructs the scope arena of fi's function, fills fi.Callstacks
// and extends the liveness of every mapped Id to the end of its scope.
func Build(prog *ir.Program, fi *cfg.FunctionInfo) (*Info, error) {
	dbg := &prog.Debug
	info := &Info{
		prog:       prog,
		fn:         fi.Function,
		Scopes:     make([]Scope, len(dbg.Scopes)),
		instrScope: make([]int, len(fi.Function.Instructions)),
		visible:    make(map[int][]SourceVariable),
	}
	for i, s := range dbg.Scopes {
		if s.Parent >= len(dbg.Scopes) || s.Parent == i {
			return nil, fmt.Errorf("scope %d: bad parent %d", i, s.Parent)
		}
		info.Scopes[i] = Scope{
			Kind:           s.Kind,
			Parent:         s.Parent,
			Name:           norm.NFC.String(s.Name),
			File:           s.File,
			Line:           s.Line,
			MaxInstruction: -1,
		}
	}
	for i := range info.Scopes {
		info.Scopes[i].Function = info.functionName(i)
	}

	// Instructions without a location stay in the scope of the last one
	// that had one.
	cur := -1
	for i := range fi.Function.Instructions {
		in := &fi.Function.Instructions[i]
		if s := in.Loc.Scope; s >= 0 && s < len(info.Scopes) {
			cur = s
		}
		info.instrScope[i] = cur
		if cur >= 0 {
			info.Scopes[cur].MaxInstruction = max(info.Scopes[cur].MaxInstruction, i)
		}
	}
	info.propagateExtents()

	if err := info.collectMappings(); err != nil {
		return nil, err
	}
	for _, s := range info.Scopes {
		if s.MaxInstruction < 0 {
			continue
		}
		end := fi.PointOf(s.MaxInstruction)
		for _, m := range s.Mappings {
			fi.ExtendLiveness(m.Id, end)
		}
	}
	for i := range fi.Function.Instructions {
		fi.Callstacks[i] = info.callstack(fi.Function.Instructions[i].Loc)
	}
	return info, nil
}

// propagateExtents raises every scope's extent to cover its nested scopes.
func (info *Info) propagateExtents() {
	for i := range info.Scopes {
		last := info.Scopes[i].MaxInstruction
		for p := info.Scopes[i].Parent; p >= 0 && last >= 0; p = info.Scopes[p].Parent {
			if info.Scopes[p].MaxInstruction >= last {
				break
			}
			info.Scopes[p].MaxInstruction = last
		}
	}
}

func (info *Info) collectMappings() error {
	locals := info.prog.Debug.Locals
	for i := range info.fn.Instructions {
		in := &info.fn.Instructions[i]
		if in.Op != ir.OpDebugValue && in.Op != ir.OpDebugDeclare {
			continue
		}
		if len(in.Operands) == 0 || in.Operands[0].Kind != ir.OperandId {
			// A constant or undef description keeps no Id alive.
			continue
		}
		if in.DebugVar < 0 || in.DebugVar >= len(locals) {
			return fmt.Errorf("instr %d: debug variable %d out of range", i, in.DebugVar)
		}
		local := &locals[in.DebugVar]
		scope := local.Scope
		if scope < 0 || scope >= len(info.Scopes) {
			scope = info.instrScope[i]
		}
		if scope < 0 {
			continue
		}
		m := Mapping{
			Variable:    in.DebugVar,
			Name:        norm.NFC.String(local.Name),
			Id:          in.Operands[0].Id,
			Instruction: i,
			Declare:     in.Op == ir.OpDebugDeclare,
		}
		if !m.Declare {
			m.ByteOffset = in.DebugOffset
			m.ByteCount = in.DebugSize
		}
		info.Scopes[scope].Mappings = append(info.Scopes[scope].Mappings, m)
	}
	for i := range info.Scopes {
		slices.SortStableFunc(info.Scopes[i].Mappings, func(a, b Mapping) int {
			return cmp.Compare(a.Instruction, b.Instruction)
		})
	}
	return nil
}

// functionName returns the name of the function scope enclosing s.
func (info *Info) functionName(s int) string {
	for ; s >= 0; s = info.Scopes[s].Parent {
		if info.Scopes[s].Kind == ir.ScopeFunction {
			return info.Scopes[s].Name
		}
	}
	return ""
}

// callstack lists the functions active at loc, outermost first.
func (info *Info) callstack(loc ir.DebugLoc) []string {
	var out []string
	sites := info.prog.Debug.InlineSites
	for depth := 0; loc.Scope >= 0 && loc.Scope < len(info.Scopes); depth++ {
		if depth > len(sites) {
			break
		}
		if name := info.Scopes[loc.Scope].Function; name != "" {
			out = append(out, name)
		}
		if loc.InlinedAt < 0 || loc.InlinedAt >= len(sites) {
			break
		}
		loc = sites[loc.InlinedAt]
	}
	slices.Reverse(out)
	return out
}

// ScopeOf returns the governing scope of instruction idx, or -1.
func (info *Info) ScopeOf(idx int) int {
	if idx < 0 || idx >= len(info.instrScope) {
		return -1
	}
	return info.instrScope[idx]
}

// enclosing returns the scopes from the function scope down to the
// governing scope of instruction idx.
func (info *Info) enclosing(idx int) []int {
	var chain []int
	for s := info.ScopeOf(idx); s >= 0; s = info.Scopes[s].Parent {
		chain = append(chain, s)
		if info.Scopes[s].Kind == ir.ScopeFunction {
			break
		}
	}
	slices.Reverse(chain)
	return chain
}

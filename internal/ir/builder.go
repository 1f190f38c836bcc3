package ir

import "fmt"

// Builder assembles a Program instruction by instruction. Blocks are laid
// out in creation order; branch targets may name blocks that have not been
// started yet. Predecessor lists and MaxId are filled in by Finish.
type Builder struct {
	prog *Program
	fn   *Function
	next Id
	loc  DebugLoc
}

// NewBuilder starts an empty program.
func NewBuilder(name string, stage ShaderStage) *Builder {
	return &Builder{
		prog: &Program{Name: name, Stage: stage, EntryPoint: 0},
		loc:  NoLoc,
	}
}

// Program returns the program being built.
func (b *Builder) Program() *Program { return b.prog }

// NewId reserves an Id without an instruction.
func (b *Builder) NewId() Id {
	id := b.next
	b.next++
	return id
}

// Func starts a new function; the first function is the entry point.
func (b *Builder) Func(name string) {
	b.closeBlock()
	b.prog.Functions = append(b.prog.Functions, Function{Name: name})
	b.fn = &b.prog.Functions[len(b.prog.Functions)-1]
}

// Block starts a new basic block and returns its index.
func (b *Builder) Block(name string) int {
	if b.fn == nil {
		panic("ir.Builder: Block before Func")
	}
	b.closeBlock()
	start := len(b.fn.Instructions)
	b.fn.Blocks = append(b.fn.Blocks, Block{Name: name, Start: start, End: start})
	return len(b.fn.Blocks) - 1
}

func (b *Builder) closeBlock() {
	if b.fn == nil || len(b.fn.Blocks) == 0 {
		return
	}
	b.fn.Blocks[len(b.fn.Blocks)-1].End = len(b.fn.Instructions)
}

// SetLoc sets the debug location attached to following instructions.
func (b *Builder) SetLoc(loc DebugLoc) { b.loc = loc }

// Emit appends in to the current block and returns its result Id.
// A result is allocated when in.Type is non-void and in.Result is unset.
func (b *Builder) Emit(in Instruction) Id {
	if b.fn == nil || len(b.fn.Blocks) == 0 {
		panic("ir.Builder: Emit outside a block")
	}
	if in.Loc == (DebugLoc{}) {
		in.Loc = b.loc
	}
	if in.Result == 0 && in.Type != nil && in.Type.Kind != TypeVoid && !in.Op.IsTerminator() && !in.Op.IsAdministrative() && in.Op != OpStore {
		in.Result = b.NewId()
	} else if in.Result == 0 {
		in.Result = NoId
	}
	b.fn.Instructions = append(b.fn.Instructions, in)
	b.fn.Blocks[len(b.fn.Blocks)-1].End = len(b.fn.Instructions)
	return in.Result
}

func (b *Builder) Binary(op Op, t *Type, x, y Operand) Id {
	return b.Emit(Instruction{Op: op, Type: t, Operands: []Operand{x, y}})
}

func (b *Builder) Cast(op Op, t *Type, x Operand) Id {
	return b.Emit(Instruction{Op: op, Type: t, Operands: []Operand{x}})
}

func (b *Builder) ICmp(p Predicate, x, y Operand) Id {
	return b.Emit(Instruction{Op: OpICmp, Type: Bool, Pred: p, Operands: []Operand{x, y}})
}

func (b *Builder) FCmp(p Predicate, x, y Operand) Id {
	return b.Emit(Instruction{Op: OpFCmp, Type: Bool, Pred: p, Operands: []Operand{x, y}})
}

func (b *Builder) Select(t *Type, cond, x, y Operand) Id {
	return b.Emit(Instruction{Op: OpSelect, Type: t, Operands: []Operand{cond, x, y}})
}

// PhiIn is one incoming edge of a phi.
type PhiIn struct {
	Value Operand
	Block int
}

func (b *Builder) Phi(t *Type, in ...PhiIn) Id {
	ins := Instruction{Op: OpPhi, Type: t}
	for _, e := range in {
		ins.Operands = append(ins.Operands, e.Value)
		ins.Targets = append(ins.Targets, e.Block)
	}
	return b.Emit(ins)
}

// Call emits a dx.op intrinsic; a void t yields NoId.
func (b *Builder) Call(op DXOp, t *Type, args ...Operand) Id {
	if t == nil {
		t = Void
	}
	return b.Emit(Instruction{Op: OpCall, DXOp: op, Type: t, Operands: args})
}

func (b *Builder) Alloca(elem *Type) Id {
	return b.Emit(Instruction{Op: OpAlloca, Type: PointerTo(elem, AddrPrivate)})
}

func (b *Builder) Load(t *Type, ptr Operand) Id {
	return b.Emit(Instruction{Op: OpLoad, Type: t, Operands: []Operand{ptr}})
}

func (b *Builder) Store(ptr, v Operand) {
	b.Emit(Instruction{Op: OpStore, Type: Void, Operands: []Operand{ptr, v}})
}

// GEP emits an address computation; t is the resulting pointer type.
func (b *Builder) GEP(t *Type, base Operand, indices ...Operand) Id {
	return b.Emit(Instruction{Op: OpGEP, Type: t, Operands: append([]Operand{base}, indices...)})
}

func (b *Builder) ExtractValue(t *Type, agg Operand, index uint64) Id {
	return b.Emit(Instruction{Op: OpExtractValue, Type: t, Operands: []Operand{agg, Lit(index)}})
}

func (b *Builder) Br(target int) {
	b.Emit(Instruction{Op: OpBr, Targets: []int{target}})
}

func (b *Builder) CondBr(cond Operand, ifTrue, ifFalse int) {
	b.Emit(Instruction{Op: OpBr, Operands: []Operand{cond}, Targets: []int{ifTrue, ifFalse}})
}

// Switch emits a switch; targets[i] is taken when the selector equals cases[i].
func (b *Builder) Switch(sel Operand, def int, cases []uint64, targets []int) {
	b.Emit(Instruction{Op: OpSwitch, Operands: []Operand{sel}, Cases: cases, Targets: append([]int{def}, targets...)})
}

func (b *Builder) Ret() {
	b.Emit(Instruction{Op: OpRet})
}

func (b *Builder) Unreachable() {
	b.Emit(Instruction{Op: OpUnreachable})
}

// DebugValue records that v holds size bytes at offset of local variable
// variable from this point on.
func (b *Builder) DebugValue(variable int, v Operand, offset, size uint32) {
	b.Emit(Instruction{Op: OpDebugValue, Operands: []Operand{v}, DebugVar: variable, DebugOffset: offset, DebugSize: size})
}

// DebugDeclare records that the memory behind ptr holds local variable
// variable.
func (b *Builder) DebugDeclare(variable int, ptr Operand) {
	b.Emit(Instruction{Op: OpDebugDeclare, Operands: []Operand{ptr}, DebugVar: variable})
}

// Global declares a module-level variable and returns the Id of its pointer.
func (b *Builder) Global(name string, t *Type, space AddrSpace, init *Constant) Id {
	id := b.NewId()
	b.prog.Globals = append(b.prog.Globals, Global{Id: id, Name: name, Type: t, AddrSpace: space, Init: init})
	return id
}

func (b *Builder) Resource(r Resource) {
	b.prog.Resources = append(b.prog.Resources, r)
}

func (b *Builder) Scope(s Scope) int {
	b.prog.Debug.Scopes = append(b.prog.Debug.Scopes, s)
	return len(b.prog.Debug.Scopes) - 1
}

func (b *Builder) DebugType(t DebugType) int {
	b.prog.Debug.Types = append(b.prog.Debug.Types, t)
	return len(b.prog.Debug.Types) - 1
}

func (b *Builder) Local(v LocalVariable) int {
	b.prog.Debug.Locals = append(b.prog.Debug.Locals, v)
	return len(b.prog.Debug.Locals) - 1
}

func (b *Builder) InlineSite(loc DebugLoc) int {
	b.prog.Debug.InlineSites = append(b.prog.Debug.InlineSites, loc)
	return len(b.prog.Debug.InlineSites) - 1
}

// Finish fills predecessor lists and MaxId, then validates the program.
func (b *Builder) Finish() (*Program, error) {
	b.closeBlock()
	for fi := range b.prog.Functions {
		f := &b.prog.Functions[fi]
		for i := range f.Blocks {
			f.Blocks[i].Preds = nil
		}
		for i := range f.Blocks {
			for _, succ := range f.Successors(i) {
				if succ < 0 || succ >= len(f.Blocks) {
					continue
				}
				f.Blocks[succ].Preds = append(f.Blocks[succ].Preds, i)
			}
		}
	}
	b.prog.MaxId = b.next
	if err := Validate(b.prog); err != nil {
		return nil, fmt.Errorf("build %s: %w", b.prog.Name, err)
	}
	return b.prog, nil
}

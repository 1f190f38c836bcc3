// Package interp executes the instructions of a decoded shader program for
// one lane at a time.
package interp

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/rs/zerolog/log"

	"shaderdebug/internal/cfg"
	"shaderdebug/internal/ir"
	"shaderdebug/internal/memory"
	"shaderdebug/internal/resource"
	"shaderdebug/internal/value"
)

// Global is the state shared by every lane of one workgroup.
type Global struct {
	Program   *ir.Program
	Functions []*cfg.FunctionInfo
	// Memory holds device, constant and group-shared allocations.
	Memory    *memory.Memory
	Resources *resource.Cache

	GroupSize [3]uint32
	GroupID   [3]uint32
	// WaveSize is the number of lanes that take part in wave operations.
	WaveSize int

	shared map[ir.Id]value.Value
	warned map[string]bool
}

// GlobalOptions configure NewGlobal.
type GlobalOptions struct {
	GroupID   [3]uint32
	WaveSize  int
	CacheSize int
}

// NewGlobal prepares the shared state of prog. Globals outside private
// address space are allocated once here and initialised from their
// constant initialisers.
func NewGlobal(prog *ir.Program, opts GlobalOptions) (*Global, error) {
	cache, err := resource.NewCache(opts.CacheSize)
	if err != nil {
		return nil, err
	}
	g := &Global{
		Program:   prog,
		Memory:    memory.New(nil),
		Resources: cache,
		GroupSize: [3]uint32{max(prog.ThreadsX, 1), max(prog.ThreadsY, 1), max(prog.ThreadsZ, 1)},
		GroupID:   opts.GroupID,
		WaveSize:  opts.WaveSize,
		shared:    make(map[ir.Id]value.Value),
		warned:    make(map[string]bool),
	}
	offsets := prog.InstructionOffsets()
	g.Functions = make([]*cfg.FunctionInfo, len(prog.Functions))
	for i := range prog.Functions {
		g.Functions[i] = cfg.BuildFunctionInfo(&prog.Functions[i], offsets[i])
	}
	for i := range prog.Globals {
		gl := &prog.Globals[i]
		if gl.AddrSpace == ir.AddrPrivate {
			continue
		}
		v, err := initGlobal(g.Memory, gl, true)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", gl.Name, err)
		}
		g.shared[gl.Id] = v
	}
	return g, nil
}

func initGlobal(m *memory.Memory, gl *ir.Global, shared bool) (value.Value, error) {
	m.Allocate(gl.Id, gl.Type, shared)
	p, _ := m.Pointer(gl.Id)
	if gl.Init != nil {
		if err := m.Store(p, value.FromConstant(gl.Name, gl.Init)); err != nil {
			return value.Value{}, err
		}
	}
	v, err := m.Load(p)
	if err != nil {
		return value.Value{}, err
	}
	v.Name = gl.Name
	return v, nil
}

// warnOnce logs msg the first time key is seen in this workgroup.
func (g *Global) warnOnce(key, msg string) {
	if g.warned[key] {
		return
	}
	g.warned[key] = true
	log.Warn().Str("key", key).Msg(msg)
}

// ThreadState is the complete state of one lane.
type ThreadState struct {
	Lane int
	// ThreadID is the dispatch thread id; ThreadIDInGroup is the position
	// within the workgroup.
	ThreadID        [3]uint32
	ThreadIDInGroup [3]uint32
	// Helper lanes run only to feed derivatives of their quad.
	Helper bool

	// Inputs and Outputs hold one value per signature element.
	Inputs  []value.Value
	Outputs []value.Value

	global   *Global
	fn       *cfg.FunctionInfo
	values   []value.Value
	live     *bitset.BitSet
	assigned *bitset.BitSet
	mem      *memory.Memory

	block     int
	prevBlock int
	current   int
	next      int
	ended     bool
	discarded bool

	// phiValues holds the incoming phi operands captured when the lane
	// branched into its current block.
	phiValues map[ir.Id]value.Value

	// per-step output
	changes []Change
	events  EventFlags
	touched []resource.ReferenceInfo
}

// NewThread creates lane number lane positioned at the first instruction
// of the entry point.
func NewThread(g *Global, lane int) *ThreadState {
	prog := g.Program
	n := int(prog.MaxId)
	t := &ThreadState{
		Lane:      lane,
		global:    g,
		fn:        g.Functions[prog.EntryPoint],
		values:    make([]value.Value, n),
		live:      bitset.New(uint(n)),
		assigned:  bitset.New(uint(n)),
		mem:       memory.New(g.Memory),
		prevBlock: -1,
		phiValues: make(map[ir.Id]value.Value),
	}

	sx, sy := g.GroupSize[0], g.GroupSize[1]
	flat := uint32(lane)
	t.ThreadIDInGroup = [3]uint32{flat % sx, (flat / sx) % sy, flat / (sx * sy)}
	for i := range t.ThreadID {
		t.ThreadID[i] = g.GroupID[i]*g.GroupSize[i] + t.ThreadIDInGroup[i]
	}

	t.Inputs = signatureValues("input", prog.Inputs)
	t.Outputs = signatureValues("output", prog.Outputs)

	for i := range prog.Globals {
		gl := &prog.Globals[i]
		if gl.AddrSpace == ir.AddrPrivate {
			v, err := initGlobal(t.mem, gl, false)
			if err != nil {
				log.Warn().Err(err).Str("global", gl.Name).Msg("failed to initialise private global")
				v = value.Zero(gl.Name, gl.Type)
			}
			t.define(gl.Id, v)
			continue
		}
		if v, ok := g.shared[gl.Id]; ok {
			t.define(gl.Id, v.Clone())
		}
	}

	t.next = t.fn.BlockEntry(0)
	t.current = t.next
	return t
}

func signatureValues(prefix string, sig []ir.SignatureElement) []value.Value {
	out := make([]value.Value, len(sig))
	for i, el := range sig {
		typ := signatureType(el)
		name := fmt.Sprintf("%s.%s", prefix, el.Name)
		if el.SemanticIndex > 0 {
			name = fmt.Sprintf("%s%d", name, el.SemanticIndex)
		}
		v := value.Vector(name, typ, int(max(el.Rows, 1)*max(el.Cols, 1)))
		if el.Rows > 1 {
			v.Rows, v.Columns = uint8(el.Rows), uint8(max(el.Cols, 1))
		}
		out[i] = v
	}
	return out
}

func signatureType(el ir.SignatureElement) value.VarType {
	switch el.CompType {
	case ir.CompUInt:
		switch el.BitWidth {
		case 16:
			return value.UShort
		case 64:
			return value.ULong
		}
		return value.UInt
	case ir.CompSInt:
		switch el.BitWidth {
		case 16:
			return value.SShort
		case 64:
			return value.SLong
		}
		return value.SInt
	case ir.CompDouble:
		return value.Double
	default:
		if el.BitWidth == 16 {
			return value.Half
		}
		return value.Float
	}
}

// define assigns v to id without recording a change.
func (t *ThreadState) define(id ir.Id, v value.Value) {
	if int(id) >= len(t.values) {
		return
	}
	t.values[id] = v
	t.assigned.Set(uint(id))
	t.live.Set(uint(id))
}

// InitialChanges describes the values a lane holds before its first step:
// globals and shader inputs.
func (t *ThreadState) InitialChanges() []Change {
	var out []Change
	for i := range t.global.Program.Globals {
		id := t.global.Program.Globals[i].Id
		if t.live.Test(uint(id)) {
			out = append(out, Change{Id: id, After: t.values[id].Clone()})
		}
	}
	for _, in := range t.Inputs {
		out = append(out, Change{Id: ir.NoId, After: in})
	}
	return out
}

// SetInput replaces the value of input signature element i.
func (t *ThreadState) SetInput(i int, v value.Value) {
	if i < 0 || i >= len(t.Inputs) {
		return
	}
	v.Name = t.Inputs[i].Name
	t.Inputs[i] = v
}

func (t *ThreadState) eb() errorBuilder { return errorBuilder{t: t} }

// Finished reports whether the lane will execute no more instructions.
func (t *ThreadState) Finished() bool { return t.ended || t.discarded }

// Discarded reports whether the lane was killed by discard.
func (t *ThreadState) Discarded() bool { return t.discarded }

// End stops the lane and releases its private memory.
func (t *ThreadState) End() {
	if t.ended {
		return
	}
	t.ended = true
	t.mem.Free()
}

// NextInstruction returns the function-local index of the next instruction
// to execute, or -1 once the lane has finished.
func (t *ThreadState) NextInstruction() int {
	if t.Finished() {
		return -1
	}
	return t.next
}

// GlobalInstruction returns NextInstruction in program-wide numbering.
func (t *ThreadState) GlobalInstruction() int {
	if t.Finished() {
		return -1
	}
	return t.fn.GlobalOffset + t.next
}

// Block returns the block of the next instruction.
func (t *ThreadState) Block() int { return t.block }

// FunctionInfo returns the static data of the executing function.
func (t *ThreadState) FunctionInfo() *cfg.FunctionInfo { return t.fn }

// Memory returns the lane's memory.
func (t *ThreadState) Memory() *memory.Memory { return t.mem }

// Callstack returns the source callstack at the next instruction.
func (t *ThreadState) Callstack() []string {
	return t.fn.Callstack(t.next)
}

// Value returns the value of id while it is live.
func (t *ThreadState) Value(id ir.Id) (value.Value, bool) {
	if int(id) >= len(t.values) || !t.live.Test(uint(id)) {
		return value.Value{}, false
	}
	return t.values[id], true
}

// IsLive reports whether id currently holds a value in scope.
func (t *ThreadState) IsLive(id ir.Id) bool {
	return int(id) < len(t.values) && t.live.Test(uint(id))
}

// LiveIds returns the live Ids in ascending order.
func (t *ThreadState) LiveIds() []ir.Id {
	out := make([]ir.Id, 0, t.live.Count())
	for i, ok := t.live.NextSet(0); ok; i, ok = t.live.NextSet(i + 1) {
		out = append(out, ir.Id(i))
	}
	return out
}

func valueName(in *ir.Instruction) string {
	if in.Name != "" {
		return in.Name
	}
	return fmt.Sprintf("_%d", in.Result)
}

// read evaluates an operand. Reading an Id that was never assigned aborts
// the step.
func (t *ThreadState) read(op ir.Operand) value.Value {
	switch op.Kind {
	case ir.OperandId:
		if int(op.Id) >= len(t.values) || !t.assigned.Test(uint(op.Id)) {
			t.fail(t.eb().unassigned(op.Id))
		}
		return t.values[op.Id]
	case ir.OperandConst:
		return value.FromConstant("", op.Const)
	case ir.OperandUndef:
		return value.Zero("", op.Type)
	default:
		v := value.Scalar("", value.ULong)
		v.SetU64(0, op.Literal)
		return v
	}
}

// operand returns operand i of in, failing when it is missing.
func (t *ThreadState) operand(in *ir.Instruction, i int) ir.Operand {
	if i >= len(in.Operands) {
		t.fail(t.eb().badOperand(fmt.Sprintf("%s: missing operand %d", in.Op, i)))
	}
	return in.Operands[i]
}

// arg returns operand i of in, failing when it is missing.
func (t *ThreadState) arg(in *ir.Instruction, i int) value.Value {
	return t.read(t.operand(in, i))
}

// argUint reads operand i as an unsigned integer; literals are taken as-is.
func (t *ThreadState) argUint(in *ir.Instruction, i int) uint64 {
	op := t.operand(in, i)
	if op.Kind == ir.OperandLiteral {
		return op.Literal
	}
	v := t.read(op)
	if v.IsAggregate() || v.Len() == 0 {
		return 0
	}
	return v.Uint(0)
}

// argFloat reads component 0 of operand i as a float.
func (t *ThreadState) argFloat(in *ir.Instruction, i int) float64 {
	v := t.arg(in, i)
	if v.IsAggregate() || v.Len() == 0 {
		return 0
	}
	if v.Type.IsFloat() {
		return v.Float(0)
	}
	return float64(v.Int(0))
}

// argOr reads operand i unless it is missing or undef.
func (t *ThreadState) argOr(in *ir.Instruction, i int) (value.Value, bool) {
	if i >= len(in.Operands) {
		return value.Value{}, false
	}
	if in.Operands[i].Kind == ir.OperandUndef {
		return value.Value{}, false
	}
	return t.read(in.Operands[i]), true
}

// set writes v as the result of in and records the change.
func (t *ThreadState) set(in *ir.Instruction, v value.Value) {
	if !in.HasResult() {
		return
	}
	v.Name = valueName(in)
	t.assign(in.Result, v)
	if v.IsNaNOrInf() {
		t.events |= EventGeneratedNanOrInf
	}
}

// assign stores v under id and records a change.
func (t *ThreadState) assign(id ir.Id, v value.Value) {
	if int(id) >= len(t.values) {
		t.fail(t.eb().badOperand(fmt.Sprintf("result %%%d outside the Id range", id)))
	}
	var before value.Value
	if t.live.Test(uint(id)) {
		before = t.values[id]
	}
	t.values[id] = v
	t.assigned.Set(uint(id))
	t.live.Set(uint(id))
	t.changes = append(t.changes, Change{Id: id, Before: before, After: v.Clone()})
}

// touch records a resource access once per step.
func (t *ThreadState) touch(info resource.ReferenceInfo) {
	for _, r := range t.touched {
		if r.Class == info.Class && r.Binding == info.Binding {
			return
		}
	}
	t.touched = append(t.touched, info)
}

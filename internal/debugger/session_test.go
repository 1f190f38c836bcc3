package debugger_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"shaderdebug/internal/debugger"
	"shaderdebug/internal/interp"
	"shaderdebug/internal/ir"
	"shaderdebug/internal/resource"
	"shaderdebug/internal/value"
)

func i32(v int64) ir.Operand { return ir.ConstOp(ir.ConstInt(ir.I32, v)) }

type loopIds struct {
	tid, counter, cond, next, sum ir.Id
}

// buildDivergentLoop builds a loop every lane leaves after a different
// number of iterations, followed by a wave sum of the lane indices:
//
//	bb0: tid; br bb1
//	bb1: counter = phi [tid, bb0], [next, bb2]; cond = counter < 4; br cond, bb2, bb3
//	bb2: next = counter + 1; br bb1
//	bb3: sum = WaveActiveSum(tid); ret
func buildDivergentLoop(t *testing.T) (*ir.Program, loopIds) {
	t.Helper()
	var ids loopIds
	b := ir.NewBuilder("loop", ir.StageCompute)
	b.Func("main")
	b.Block("entry")
	ids.tid = b.Call(ir.DXThreadIdInGroup, ir.I32, ir.Lit(0))
	b.Br(1)
	ids.next = b.NewId()
	b.Block("header")
	ids.counter = b.Phi(ir.I32, ir.PhiIn{Value: ir.Ref(ids.tid), Block: 0}, ir.PhiIn{Value: ir.Ref(ids.next), Block: 2})
	ids.cond = b.ICmp(ir.ICmpULT, ir.Ref(ids.counter), i32(4))
	b.CondBr(ir.Ref(ids.cond), 2, 3)
	b.Block("body")
	b.Emit(ir.Instruction{Op: ir.OpAdd, Result: ids.next, Type: ir.I32,
		Operands: []ir.Operand{ir.Ref(ids.counter), i32(1)}})
	b.Br(1)
	b.Block("exit")
	ids.sum = b.Call(ir.DXWaveActiveOp, ir.I32, ir.Ref(ids.tid), ir.Lit(uint64(ir.WaveSum)), ir.Lit(0))
	b.Ret()
	p, err := b.Finish()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	p.ThreadsX = 4
	return p, ids
}

func begin(t *testing.T, p *ir.Program, observed, lanes int, opts debugger.Options) (*debugger.Session, debugger.ShaderDebugState) {
	t.Helper()
	s, initial, err := debugger.BeginSession(p, debugger.Reflection{}, observed, lanes, opts)
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	return s, initial
}

// runAll continues s until it is exhausted.
func runAll(t *testing.T, s *debugger.Session, acc resource.Accessor) []debugger.ShaderDebugState {
	t.Helper()
	var all []debugger.ShaderDebugState
	for i := 0; i < 1000; i++ {
		states, err := s.Continue(context.Background(), acc)
		if err != nil {
			t.Fatalf("Continue: %v", err)
		}
		if states == nil {
			return all
		}
		all = append(all, states...)
	}
	t.Fatalf("session did not finish")
	return nil
}

func findChange(states []debugger.ShaderDebugState, id ir.Id, leaving bool) (debugger.ShaderDebugState, interp.Change, bool) {
	for _, st := range states {
		for _, c := range st.Changes {
			if c.Id != id {
				continue
			}
			left := c.After.Type == value.Unknown && len(c.After.Members) == 0
			if left == leaving {
				return st, c, true
			}
		}
	}
	return debugger.ShaderDebugState{}, interp.Change{}, false
}

func TestDivergentLoopRemerges(t *testing.T) {
	p, ids := buildDivergentLoop(t)
	for observed := 0; observed < 4; observed++ {
		s, initial := begin(t, p, observed, 4, debugger.Options{WaveSize: 4, BatchSize: 3})
		if initial.Step != 0 || initial.NextInstruction != 0 {
			t.Fatalf("initial state = %+v", initial)
		}
		states := runAll(t, s, resource.NewFixture())

		_, c, ok := findChange(states, ids.sum, false)
		if !ok {
			t.Fatalf("lane %d: no wave sum recorded", observed)
		}
		if got := c.After.Uint(0); got != 6 {
			t.Errorf("lane %d: sum = %d, want 6", observed, got)
		}
		last := states[len(states)-1]
		if last.NextInstruction != -1 || !s.Done() {
			t.Errorf("lane %d: last state %+v, done=%v", observed, last, s.Done())
		}
		// Lane l runs the header 5-l times and the body 4-l times.
		if want := 2 + 3*(5-observed) + 2*(4-observed) + 2; last.Step != want {
			t.Errorf("lane %d: %d steps, want %d", observed, last.Step, want)
		}
	}
}

func TestLoopValuesLeaveScopeAfterExit(t *testing.T) {
	p, ids := buildDivergentLoop(t)
	s, _ := begin(t, p, 1, 4, debugger.Options{WaveSize: 4})
	states := runAll(t, s, resource.NewFixture())

	st, _, ok := findChange(states, ids.sum, false)
	if !ok {
		t.Fatalf("no wave sum recorded")
	}
	for _, id := range []ir.Id{ids.counter, ids.cond, ids.next, ids.tid} {
		found := false
		for _, c := range st.Changes {
			if c.Id == id && c.After.Type == value.Unknown {
				found = true
			}
		}
		if !found {
			t.Errorf("%%%d did not leave scope with the first exit instruction: %+v", id, st.Changes)
		}
	}

	last := states[len(states)-1]
	if _, c, ok := findChange([]debugger.ShaderDebugState{last}, ids.sum, true); !ok || c.Before.Uint(0) != 6 {
		t.Errorf("sum did not leave scope on return: %+v", last.Changes)
	}
	if _, ok := s.LaneVariable(1, ids.sum); ok {
		t.Errorf("sum still live after return")
	}
}

func TestRecordingIsDeterministic(t *testing.T) {
	p, _ := buildDivergentLoop(t)
	record := func() []byte {
		var buf bytes.Buffer
		s, initial := begin(t, p, 2, 4, debugger.Options{WaveSize: 4, BatchSize: 2})
		rec := debugger.NewRecorder(&buf, s)
		rec.Record(initial)
		rec.Record(runAll(t, s, resource.NewFixture())...)
		if err := rec.Close(); err != nil {
			t.Fatalf("recorder: %v", err)
		}
		return buf.Bytes()
	}
	first, second := record(), record()
	if !bytes.Equal(first, second) {
		t.Fatalf("recordings differ: %d vs %d bytes", len(first), len(second))
	}

	s, initial := begin(t, p, 2, 4, debugger.Options{WaveSize: 4})
	rp := debugger.NewReplayer(bytes.NewReader(first))
	if err := rp.Validate(s); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := rp.Check(initial); err != nil {
		t.Fatalf("initial: %v", err)
	}
	if err := rp.Check(runAll(t, s, resource.NewFixture())...); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if err := rp.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	other, _ := begin(t, p, 3, 4, debugger.Options{WaveSize: 4})
	if err := debugger.NewReplayer(bytes.NewReader(first)).Validate(other); !errors.Is(err, debugger.ErrReplayMismatch) {
		t.Fatalf("validate against another lane: %v", err)
	}
}

func TestWaveOpInsideDivergentBranch(t *testing.T) {
	b := ir.NewBuilder("diverged", ir.StageCompute)
	b.Func("main")
	b.Block("entry")
	tid := b.Call(ir.DXThreadIdInGroup, ir.I32, ir.Lit(0))
	cond := b.ICmp(ir.ICmpULT, ir.Ref(tid), i32(2))
	b.CondBr(ir.Ref(cond), 1, 2)
	b.Block("then")
	b.Call(ir.DXWaveActiveOp, ir.I32, ir.Ref(tid), ir.Lit(uint64(ir.WaveSum)), ir.Lit(0))
	b.Br(2)
	b.Block("join")
	b.Ret()
	p, err := b.Finish()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	p.ThreadsX = 4

	s, _ := begin(t, p, 0, 4, debugger.Options{WaveSize: 4})
	_, err = s.Continue(context.Background(), resource.NewFixture())
	if !interp.IsCode(err, interp.CodeDiverged) {
		t.Fatalf("Continue = %v, want %s", err, interp.CodeDiverged)
	}
	if _, again := s.Continue(context.Background(), resource.NewFixture()); again != err {
		t.Fatalf("second Continue = %v, want the same error", again)
	}
}

func TestSourceVariables(t *testing.T) {
	b := ir.NewBuilder("vars", ir.StageCompute)
	file := b.Scope(ir.Scope{Kind: ir.ScopeFile, Parent: -1, Name: "shader.hlsl", File: "shader.hlsl"})
	mainScope := b.Scope(ir.Scope{Kind: ir.ScopeFunction, Parent: file, Name: "main", Line: 1})
	float := b.DebugType(ir.DebugType{Kind: ir.DebugBasic, Name: "float", SizeInBits: 32, Encoding: ir.EncodingFloat})
	x := b.Local(ir.LocalVariable{Name: "x", Scope: mainScope, Type: float})

	b.Func("main")
	b.Block("entry")
	b.SetLoc(ir.DebugLoc{Line: 2, Scope: mainScope, InlinedAt: -1})
	tid := b.Call(ir.DXThreadIdInGroup, ir.I32, ir.Lit(0))
	f := b.Cast(ir.OpUIToFP, ir.F32, ir.Ref(tid))
	b.DebugValue(x, ir.Ref(f), 0, 0)
	b.SetLoc(ir.DebugLoc{Line: 3, Scope: mainScope, InlinedAt: -1})
	b.Ret()
	p, err := b.Finish()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	p.ThreadsX = 4

	s, initial := begin(t, p, 2, 4, debugger.Options{BatchSize: 1})
	if len(initial.Callstack) == 0 || initial.Callstack[len(initial.Callstack)-1] != "main" {
		t.Errorf("initial callstack = %v", initial.Callstack)
	}
	acc := resource.NewFixture()
	for i := 0; i < 2; i++ {
		if _, err := s.Continue(context.Background(), acc); err != nil {
			t.Fatalf("Continue: %v", err)
		}
	}
	vars := s.SourceVariables()
	if len(vars) != 1 || vars[0].Name != "x" {
		t.Fatalf("variables = %+v, want x", vars)
	}
	if got := vars[0].Value.Float(0); got != 2 {
		t.Errorf("x = %v, want 2", got)
	}
	if v, ok := s.LaneVariable(3, f); !ok || v.Float(0) != 3 {
		t.Errorf("lane 3 f = %v, %v; want 3", v.Float(0), ok)
	}
}

func TestContinueHonoursCancellation(t *testing.T) {
	p, _ := buildDivergentLoop(t)
	s, _ := begin(t, p, 0, 4, debugger.Options{WaveSize: 4})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Continue(ctx, resource.NewFixture()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Continue = %v, want context.Canceled", err)
	}
	if s.Steps() != 0 {
		t.Fatalf("steps taken after cancellation: %d", s.Steps())
	}
}

func TestBeginSessionRejectsBadLane(t *testing.T) {
	p, _ := buildDivergentLoop(t)
	if _, _, err := debugger.BeginSession(p, debugger.Reflection{}, 4, 4, debugger.Options{}); err == nil {
		t.Fatalf("observed lane outside the group accepted")
	}
}

func TestStatesRecordTouchedBindings(t *testing.T) {
	b := ir.NewBuilder("touched", ir.StageCompute)
	b.Resource(ir.Resource{Class: ir.ClassSRV, Kind: ir.KindTypedBuffer, Name: "buf", Count: 1, CompType: ir.CompUInt})
	b.Func("main")
	b.Block("entry")
	h := b.Call(ir.DXCreateHandle, ir.Handle, ir.Lit(uint64(ir.ClassSRV)), ir.Lit(0), ir.Lit(0), ir.Lit(0))
	ret := ir.StructOf("dx.types.ResRet.i32", ir.I32, ir.I32, ir.I32, ir.I32, ir.I32)
	first := b.Call(ir.DXBufferLoad, ret, ir.Ref(h), i32(0), ir.Undef(ir.I32))
	second := b.Call(ir.DXBufferLoad, ret, ir.Ref(h), i32(1), ir.Undef(ir.I32))
	b.Ret()
	p, err := b.Finish()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	p.ThreadsX = 1

	fx := resource.NewFixture()
	fx.Bind(ir.ClassSRV, resource.BindingSlot{}, resource.ReferenceInfo{Kind: ir.KindTypedBuffer, CompType: ir.CompUInt},
		&resource.Data{
			Format:      resource.ViewFormat{ByteWidth: 4, Components: 1, CompType: ir.CompUInt},
			NumElements: 2,
			Bytes:       []byte{7, 0, 0, 0, 9, 0, 0, 0},
		})

	s, _ := begin(t, p, 0, 1, debugger.Options{})
	states := runAll(t, s, fx)
	for _, id := range []ir.Id{first, second} {
		st, _, ok := findChange(states, id, false)
		if !ok {
			t.Fatalf("%%%d never assigned", id)
		}
		if len(st.Resources) != 1 {
			t.Fatalf("step %d resources = %+v, want one binding", st.Step, st.Resources)
		}
		if r := st.Resources[0]; r.Class != ir.ClassSRV || r.Binding != (resource.BindingSlot{}) {
			t.Errorf("step %d touched %+v", st.Step, r)
		}
	}
	if st, _, _ := findChange(states, h, false); len(st.Resources) != 0 {
		t.Errorf("handle creation touched %+v", st.Resources)
	}
}

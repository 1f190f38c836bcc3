package interp_test

import (
	"testing"

	"shaderdebug/internal/interp"
	"shaderdebug/internal/ir"
	"shaderdebug/internal/resource"
	"shaderdebug/internal/value"
)

func i32(v int64) ir.Operand { return ir.ConstOp(ir.ConstInt(ir.I32, v)) }

func finish(t *testing.T, b *ir.Builder) *ir.Program {
	t.Helper()
	p, err := b.Finish()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return p
}

func newLanes(t *testing.T, p *ir.Program, n, waveSize int) []*interp.ThreadState {
	t.Helper()
	p.ThreadsX = uint32(n)
	g, err := interp.NewGlobal(p, interp.GlobalOptions{WaveSize: waveSize})
	if err != nil {
		t.Fatalf("NewGlobal: %v", err)
	}
	lanes := make([]*interp.ThreadState, n)
	for i := range lanes {
		lanes[i] = interp.NewThread(g, i)
	}
	return lanes
}

// results collects the last value assigned to every Id while stepping.
type results map[ir.Id]value.Value

func (r results) record(res interp.StepResult) {
	for _, c := range res.Changes {
		if c.Id == ir.NoId || (c.After.Type == value.Unknown && len(c.After.Members) == 0) {
			continue
		}
		r[c.Id] = c.After
	}
}

// runLockstep steps every unfinished lane once per round until all have
// finished, and returns what each lane assigned.
func runLockstep(t *testing.T, acc resource.Accessor, lanes []*interp.ThreadState) []results {
	t.Helper()
	out := make([]results, len(lanes))
	for i := range out {
		out[i] = results{}
	}
	for round := 0; round < 1000; round++ {
		done := true
		for i, l := range lanes {
			if l.Finished() {
				continue
			}
			done = false
			res, err := l.Step(acc, lanes, nil)
			if err != nil {
				t.Fatalf("lane %d: %v", i, err)
			}
			out[i].record(res)
		}
		if done {
			return out
		}
	}
	t.Fatalf("lanes did not finish")
	return nil
}

func TestIntegerDivideByZero(t *testing.T) {
	b := ir.NewBuilder("div", ir.StageCompute)
	b.Func("main")
	b.Block("entry")
	udiv := b.Binary(ir.OpUDiv, ir.I32, i32(7), i32(0))
	sdiv := b.Binary(ir.OpSDiv, ir.I32, i32(7), i32(0))
	ok := b.Binary(ir.OpUDiv, ir.I32, i32(7), i32(2))
	b.Ret()
	lanes := newLanes(t, finish(t, b), 1, 0)

	tests := []struct {
		name  string
		id    ir.Id
		want  uint64
		event bool
	}{
		{"udiv", udiv, 0xFFFFFFFF, true},
		{"sdiv", sdiv, 0, true},
		{"nonzero", ok, 3, false},
	}
	for _, tt := range tests {
		res, err := lanes[0].Step(resource.NewFixture(), lanes, nil)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		got := false
		for _, c := range res.Changes {
			if c.Id == tt.id {
				got = true
				if c.After.Uint(0) != tt.want {
					t.Errorf("%s = %#x, want %#x", tt.name, c.After.Uint(0), tt.want)
				}
			}
		}
		if !got {
			t.Errorf("%s: no change recorded", tt.name)
		}
		if has := res.Events&interp.EventGeneratedNanOrInf != 0; has != tt.event {
			t.Errorf("%s: events = %s", tt.name, res.Events)
		}
	}
}

func TestUnassignedRead(t *testing.T) {
	b := ir.NewBuilder("unassigned", ir.StageCompute)
	b.Func("main")
	b.Block("entry")
	b.Call(ir.DXThreadIdInGroup, ir.I32, ir.Lit(0))
	late := b.NewId()
	b.Binary(ir.OpAdd, ir.I32, ir.Ref(late), i32(1))
	b.Ret()
	b.Block("never")
	b.Emit(ir.Instruction{Op: ir.OpAdd, Result: late, Type: ir.I32, Operands: []ir.Operand{i32(1), i32(1)}})
	b.Ret()
	lanes := newLanes(t, finish(t, b), 1, 0)
	acc := resource.NewFixture()

	if _, err := lanes[0].Step(acc, lanes, nil); err != nil {
		t.Fatalf("first step: %v", err)
	}
	_, err := lanes[0].Step(acc, lanes, nil)
	if !interp.IsCode(err, interp.CodeUnassigned) {
		t.Fatalf("err = %v, want %s", err, interp.CodeUnassigned)
	}
	e := err.(*interp.Error)
	if e.Instruction != 1 || e.Lane != 0 {
		t.Errorf("error at lane %d instruction %d, want lane 0 instruction 1", e.Lane, e.Instruction)
	}
}

func TestUnreachableIsFatal(t *testing.T) {
	b := ir.NewBuilder("unreachable", ir.StageCompute)
	b.Func("main")
	b.Block("entry")
	b.Unreachable()
	lanes := newLanes(t, finish(t, b), 1, 0)

	_, err := lanes[0].Step(resource.NewFixture(), lanes, nil)
	if !interp.IsCode(err, interp.CodeUnreachable) {
		t.Fatalf("err = %v, want %s", err, interp.CodeUnreachable)
	}
}

func TestStoreThenLoadThroughAlloca(t *testing.T) {
	b := ir.NewBuilder("alloca", ir.StageCompute)
	b.Func("main")
	b.Block("entry")
	tid := b.Call(ir.DXThreadIdInGroup, ir.I32, ir.Lit(0))
	v := b.Binary(ir.OpAdd, ir.I32, ir.Ref(tid), i32(5))
	p := b.Alloca(ir.I32)
	b.Store(ir.Ref(p), ir.Ref(v))
	loaded := b.Load(ir.I32, ir.Ref(p))
	b.Ret()
	lanes := newLanes(t, finish(t, b), 2, 0)

	out := runLockstep(t, resource.NewFixture(), lanes)
	for lane, want := range []uint64{5, 6} {
		if got := out[lane][loaded].Uint(0); got != want {
			t.Errorf("lane %d: load = %d, want %d", lane, got, want)
		}
		// The store refreshes the value shown for the allocation.
		if got := out[lane][p].Uint(0); got != want {
			t.Errorf("lane %d: alloca = %d, want %d", lane, got, want)
		}
	}
}

func TestPhiSelectsIncomingEdge(t *testing.T) {
	b := ir.NewBuilder("phi", ir.StageCompute)
	b.Func("main")
	b.Block("entry")
	tid := b.Call(ir.DXThreadIdInGroup, ir.I32, ir.Lit(0))
	cond := b.ICmp(ir.ICmpEQ, ir.Ref(tid), i32(0))
	b.CondBr(ir.Ref(cond), 1, 2)
	b.Block("then")
	x := b.Binary(ir.OpAdd, ir.I32, ir.Ref(tid), i32(10))
	b.Br(3)
	b.Block("else")
	y := b.Binary(ir.OpAdd, ir.I32, ir.Ref(tid), i32(20))
	b.Br(3)
	b.Block("join")
	r := b.Phi(ir.I32, ir.PhiIn{Value: ir.Ref(x), Block: 1}, ir.PhiIn{Value: ir.Ref(y), Block: 2})
	b.Ret()
	lanes := newLanes(t, finish(t, b), 2, 0)

	out := runLockstep(t, resource.NewFixture(), lanes)
	for lane, want := range []uint64{10, 21} {
		if got := out[lane][r].Uint(0); got != want {
			t.Errorf("lane %d: phi = %d, want %d", lane, got, want)
		}
	}
}

func TestConditionalBranchReportsBranched(t *testing.T) {
	b := ir.NewBuilder("branch", ir.StageCompute)
	b.Func("main")
	b.Block("entry")
	b.CondBr(ir.ConstOp(ir.ConstBool(false)), 1, 2)
	b.Block("a")
	b.Ret()
	b.Block("b")
	b.Ret()
	lanes := newLanes(t, finish(t, b), 1, 0)

	res, err := lanes[0].Step(resource.NewFixture(), lanes, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Branched || lanes[0].Block() != 2 || res.Next != 2 {
		t.Fatalf("branched=%v block=%d next=%d, want true 2 2", res.Branched, lanes[0].Block(), res.Next)
	}
}

func TestLivenessDropsDeadValues(t *testing.T) {
	b := ir.NewBuilder("live", ir.StageCompute)
	b.Func("main")
	b.Block("entry")
	tid := b.Call(ir.DXThreadIdInGroup, ir.I32, ir.Lit(0))
	a := b.Binary(ir.OpAdd, ir.I32, ir.Ref(tid), i32(1))
	m := b.Binary(ir.OpMul, ir.I32, ir.Ref(a), i32(2))
	b.Ret()
	lanes := newLanes(t, finish(t, b), 1, 0)
	lane := lanes[0]
	acc := resource.NewFixture()

	for i := 0; i < 2; i++ {
		if _, err := lane.Step(acc, lanes, nil); err != nil {
			t.Fatal(err)
		}
	}
	if !lane.IsLive(a) {
		t.Fatalf("a should be live before its last use")
	}
	res, err := lane.Step(acc, lanes, nil)
	if err != nil {
		t.Fatal(err)
	}
	dropped := false
	for _, c := range res.Changes {
		if c.Id == a && c.After.Type == value.Unknown && c.Before.Uint(0) == 1 {
			dropped = true
		}
	}
	if !dropped || lane.IsLive(a) {
		t.Errorf("a not dropped after its last use: changes %+v", res.Changes)
	}
	if !lane.IsLive(m) {
		t.Errorf("unread result m should stay live until return")
	}

	res, err = lane.Step(acc, lanes, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !lane.Finished() || lane.IsLive(m) || res.Next != -1 {
		t.Errorf("after ret: finished=%v live(m)=%v next=%d", lane.Finished(), lane.IsLive(m), res.Next)
	}
	if _, err := lane.Step(acc, lanes, nil); !interp.IsCode(err, interp.CodeFinished) {
		t.Errorf("step after ret: %v", err)
	}
}

func buildWaveSum(t *testing.T) (*ir.Program, ir.Id) {
	t.Helper()
	b := ir.NewBuilder("wave", ir.StageCompute)
	b.Func("main")
	b.Block("entry")
	tid := b.Call(ir.DXThreadIdInGroup, ir.I32, ir.Lit(0))
	v := b.Binary(ir.OpAdd, ir.I32, ir.Ref(tid), i32(1))
	sum := b.Call(ir.DXWaveActiveOp, ir.I32, ir.Ref(v), ir.Lit(uint64(ir.WaveSum)), ir.Lit(0))
	b.Ret()
	return finish(t, b), sum
}

func TestWaveActiveSum(t *testing.T) {
	p, sum := buildWaveSum(t)
	lanes := newLanes(t, p, 4, 4)

	out := runLockstep(t, resource.NewFixture(), lanes)
	for lane := range lanes {
		if got := out[lane][sum].Uint(0); got != 10 {
			t.Errorf("lane %d: sum = %d, want 10", lane, got)
		}
	}
}

func TestWaveOpOnDivergedLanes(t *testing.T) {
	p, _ := buildWaveSum(t)
	lanes := newLanes(t, p, 4, 4)
	acc := resource.NewFixture()

	for round := 0; round < 2; round++ {
		for _, l := range lanes {
			if _, err := l.Step(acc, lanes, nil); err != nil {
				t.Fatal(err)
			}
		}
	}
	active := []bool{true, true, false, false}
	_, err := lanes[0].Step(acc, lanes, active)
	if !interp.IsCode(err, interp.CodeDiverged) {
		t.Fatalf("err = %v, want %s", err, interp.CodeDiverged)
	}
}

func TestTypedBufferStoreThenLoad(t *testing.T) {
	b := ir.NewBuilder("buffer", ir.StageCompute)
	b.Resource(ir.Resource{Class: ir.ClassUAV, Kind: ir.KindTypedBuffer, Name: "buf", Count: 1, CompType: ir.CompUInt})
	b.Func("main")
	b.Block("entry")
	tid := b.Call(ir.DXThreadIdInGroup, ir.I32, ir.Lit(0))
	h := b.Call(ir.DXCreateHandle, ir.Handle, ir.Lit(uint64(ir.ClassUAV)), ir.Lit(0), ir.Lit(0), ir.Lit(0))
	x := b.Binary(ir.OpAdd, ir.I32, ir.Ref(tid), i32(1))
	b.Call(ir.DXBufferStore, nil, ir.Ref(h), ir.Ref(tid), ir.Undef(ir.I32),
		ir.Ref(x), i32(2), i32(3), i32(300), ir.Lit(0xF))
	ret := ir.StructOf("dx.types.ResRet.i32", ir.I32, ir.I32, ir.I32, ir.I32, ir.I32)
	loaded := b.Call(ir.DXBufferLoad, ret, ir.Ref(h), ir.Ref(tid), ir.Undef(ir.I32))
	b.Ret()
	lanes := newLanes(t, finish(t, b), 2, 0)

	fx := resource.NewFixture()
	format := resource.ViewFormat{ByteWidth: 1, Components: 4, CompType: ir.CompUInt}
	fx.Bind(ir.ClassUAV, resource.BindingSlot{}, resource.ReferenceInfo{Kind: ir.KindTypedBuffer, CompType: ir.CompUInt},
		&resource.Data{Format: format, NumElements: 2, Bytes: make([]byte, 8)})

	out := runLockstep(t, fx, lanes)
	for lane := range lanes {
		got := out[lane][loaded]
		if len(got.Members) != 5 {
			t.Fatalf("lane %d: load result %v", lane, got)
		}
		// 300 does not fit in a byte.
		want := []uint64{uint64(lane) + 1, 2, 3, 300 & 0xFF, 0}
		for i, w := range want {
			if got.Members[i].Uint(0) != w {
				t.Errorf("lane %d member %d = %d, want %d", lane, i, got.Members[i].Uint(0), w)
			}
		}
	}
}

func TestUnboundResourceReadsZero(t *testing.T) {
	b := ir.NewBuilder("unbound", ir.StageCompute)
	b.Resource(ir.Resource{Class: ir.ClassSRV, Kind: ir.KindRawBuffer, Name: "raw", Count: 1})
	b.Func("main")
	b.Block("entry")
	h := b.Call(ir.DXCreateHandle, ir.Handle, ir.Lit(uint64(ir.ClassSRV)), ir.Lit(0), ir.Lit(0), ir.Lit(0))
	loaded := b.Call(ir.DXRawBufferLoad, ir.StructOf("ret", ir.I32, ir.I32, ir.I32, ir.I32, ir.I32),
		ir.Ref(h), i32(0), ir.Undef(ir.I32), ir.Lit(0xF), ir.Lit(4))
	b.Ret()
	lanes := newLanes(t, finish(t, b), 1, 0)

	out := runLockstep(t, resource.NewFixture(), lanes)
	got := out[0][loaded]
	for i, m := range got.Members {
		if m.Uint(0) != 0 {
			t.Errorf("member %d = %d, want 0", i, m.Uint(0))
		}
	}
}

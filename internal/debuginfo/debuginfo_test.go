package debuginfo_test

import (
	"slices"
	"testing"

	"shaderdebug/internal/cfg"
	"shaderdebug/internal/debuginfo"
	"shaderdebug/internal/ir"
	"shaderdebug/internal/value"
)

type shaderIds struct {
	tid, f, vin, g, h ir.Id
}

func loc(scope int, line uint32) ir.DebugLoc {
	return ir.DebugLoc{Line: line, Scope: scope, InlinedAt: -1}
}

// buildShader builds a single-block function with these scopes:
//
//	0 file, 1 main, 2 lexical block in main, 3 helper inlined into main
//
// and the locals x (float, main), v (float4, block), s (struct {float a;
// float4 b;}, main), m (float2x2 without layout, main) and h (float, helper).
func buildShader(t *testing.T) (*ir.Program, shaderIds) {
	t.Helper()
	var ids shaderIds
	b := ir.NewBuilder("vars", ir.StageCompute)

	file := b.Scope(ir.Scope{Kind: ir.ScopeFile, Parent: -1, Name: "shader.hlsl", File: "shader.hlsl"})
	mainScope := b.Scope(ir.Scope{Kind: ir.ScopeFunction, Parent: file, Name: "main", Line: 1})
	block := b.Scope(ir.Scope{Kind: ir.ScopeLexical, Parent: mainScope, Line: 4})
	helper := b.Scope(ir.Scope{Kind: ir.ScopeFunction, Parent: file, Name: "helper", Line: 30})
	site := b.InlineSite(loc(mainScope, 10))

	float := b.DebugType(ir.DebugType{Kind: ir.DebugBasic, Name: "float", SizeInBits: 32, Encoding: ir.EncodingFloat})
	float4 := b.DebugType(ir.DebugType{Kind: ir.DebugVector, SizeInBits: 128, Elem: float, VecSize: 4})
	st := b.DebugType(ir.DebugType{Kind: ir.DebugStruct, Name: "S", SizeInBits: 160, Members: []ir.DebugMember{
		{Name: "a", Type: float, OffsetInBits: 0},
		{Name: "b", Type: float4, OffsetInBits: 32},
	}})
	mat := b.DebugType(ir.DebugType{Kind: ir.DebugMatrix, SizeInBits: 128, Elem: float, Rows: 2, Cols: 2})

	x := b.Local(ir.LocalVariable{Name: "x", Scope: mainScope, Type: float})
	v := b.Local(ir.LocalVariable{Name: "v", Scope: block, Type: float4})
	s := b.Local(ir.LocalVariable{Name: "s", Scope: mainScope, Type: st})
	m := b.Local(ir.LocalVariable{Name: "m", Scope: mainScope, Type: mat})
	h := b.Local(ir.LocalVariable{Name: "h", Scope: helper, Type: float})

	b.Func("main")
	b.Block("entry")
	b.SetLoc(loc(mainScope, 2))
	ids.tid = b.Call(ir.DXThreadIdInGroup, ir.I32, ir.Lit(0))           // 0
	ids.f = b.Cast(ir.OpUIToFP, ir.F32, ir.Ref(ids.tid))                // 1
	b.DebugValue(x, ir.Ref(ids.f), 0, 0)                                // 2
	ids.vin = b.Call(ir.DXLoadInput, ir.VectorOf(ir.F32, 4), ir.Lit(0)) // 3

	b.SetLoc(loc(block, 5))
	b.DebugValue(v, ir.Ref(ids.vin), 0, 0)                            // 4
	ids.g = b.Binary(ir.OpFAdd, ir.F32, ir.Ref(ids.f), ir.Ref(ids.f)) // 5
	b.DebugValue(v, ir.Ref(ids.g), 0, 4)                              // 6
	b.DebugValue(v, ir.Ref(ids.vin), 0, 4)                            // 7

	b.SetLoc(loc(mainScope, 8))
	b.DebugValue(s, ir.Ref(ids.vin), 4, 16) // 8
	b.DebugValue(m, ir.Ref(ids.g), 8, 4)    // 9

	b.SetLoc(ir.DebugLoc{Line: 31, Scope: helper, InlinedAt: site})
	ids.h = b.Binary(ir.OpFMul, ir.F32, ir.Ref(ids.g), ir.Ref(ids.g)) // 10
	b.DebugValue(h, ir.Ref(ids.h), 0, 0)                              // 11

	b.SetLoc(loc(mainScope, 12))
	b.Ret() // 12

	p, err := b.Finish()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return p, ids
}

func build(t *testing.T) (*debuginfo.Info, *cfg.FunctionInfo, shaderIds) {
	t.Helper()
	p, ids := buildShader(t)
	fi := cfg.BuildFunctionInfo(&p.Functions[0], 0)
	info, err := debuginfo.Build(p, fi)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return info, fi, ids
}

func TestScopeExtents(t *testing.T) {
	info, _, _ := build(t)
	want := []struct {
		name     string
		function string
		max      int
		mappings int
	}{
		{"shader.hlsl", "", 12, 0},
		{"main", "main", 12, 3},
		{"", "main", 7, 3},
		{"helper", "helper", 11, 1},
	}
	if len(info.Scopes) != len(want) {
		t.Fatalf("got %d scopes, want %d", len(info.Scopes), len(want))
	}
	for i, w := range want {
		s := info.Scopes[i]
		if s.Name != w.name || s.Function != w.function || s.MaxInstruction != w.max || len(s.Mappings) != w.mappings {
			t.Errorf("scope %d = {%q %q max %d, %d mappings}, want {%q %q max %d, %d mappings}",
				i, s.Name, s.Function, s.MaxInstruction, len(s.Mappings), w.name, w.function, w.max, w.mappings)
		}
	}
	if got := info.ScopeOf(6); got != 2 {
		t.Errorf("ScopeOf(6) = %d, want 2", got)
	}
}

func TestCallstacks(t *testing.T) {
	_, fi, _ := build(t)
	tests := []struct {
		idx  int
		want []string
	}{
		{0, []string{"main"}},
		{6, []string{"main"}},
		{10, []string{"main", "helper"}},
		{12, []string{"main"}},
	}
	for _, tt := range tests {
		if got := fi.Callstack(tt.idx); !slices.Equal(got, tt.want) {
			t.Errorf("Callstack(%d) = %v, want %v", tt.idx, got, tt.want)
		}
	}
}

func TestMappedIdsLiveToScopeEnd(t *testing.T) {
	_, fi, ids := build(t)
	tests := []struct {
		name string
		id   ir.Id
		want int
	}{
		// f is last read at 5 but x is visible until main's scope ends.
		{"x", ids.f, 12},
		{"v", ids.vin, 12},
		{"helper_local", ids.h, 11},
		{"unmapped", ids.tid, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := fi.MaxExecPoint[tt.id]
			if !ok {
				t.Fatalf("no liveness entry for %%%d", tt.id)
			}
			if got.Instruction != tt.want {
				t.Fatalf("last use of %%%d = %d, want %d", tt.id, got.Instruction, tt.want)
			}
		})
	}
}

type wantVar struct {
	name string
	typ  value.VarType
	cols int
	refs []debuginfo.ComponentRef
}

func refs(id ir.Id, offsets ...uint32) []debuginfo.ComponentRef {
	out := make([]debuginfo.ComponentRef, len(offsets))
	for i, off := range offsets {
		out[i] = debuginfo.ComponentRef{Id: id, ByteOffset: off}
	}
	return out
}

func TestVariablesAt(t *testing.T) {
	info, _, ids := build(t)
	x := wantVar{"x", value.Float, 1, refs(ids.f, 0)}
	tests := []struct {
		name string
		idx  int
		want []wantVar
	}{
		{"before_any_mapping", 1, nil},
		{"scalar", 3, []wantVar{x}},
		{"whole_vector", 4, []wantVar{x, {"v", value.Float, 4, refs(ids.vin, 0, 4, 8, 12)}}},
		{"component_override", 6, []wantVar{
			x,
			{"v.x", value.Float, 1, refs(ids.g, 0)},
			{"v.y", value.Float, 1, refs(ids.vin, 4)},
			{"v.z", value.Float, 1, refs(ids.vin, 8)},
			{"v.w", value.Float, 1, refs(ids.vin, 12)},
		}},
		{"collapsed_vector", 7, []wantVar{x, {"v", value.Float, 4, refs(ids.vin, 0, 4, 8, 12)}}},
		{"block_left_struct_member", 8, []wantVar{x, {"s.b", value.Float, 4, refs(ids.vin, 0, 4, 8, 12)}}},
		{"matrix_element", 9, []wantVar{
			x,
			{"s.b", value.Float, 4, refs(ids.vin, 0, 4, 8, 12)},
			{"m[2]", value.Float, 1, refs(ids.g, 0)},
		}},
		{"inlined_function", 11, []wantVar{{"h", value.Float, 1, refs(ids.h, 0)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := info.VariablesAt(tt.idx)
			if len(got) != len(tt.want) {
				names := make([]string, len(got))
				for i, v := range got {
					names[i] = v.Name
				}
				t.Fatalf("VariablesAt(%d) = %v, want %d variables", tt.idx, names, len(tt.want))
			}
			for i, w := range tt.want {
				g := got[i]
				if g.Name != w.name || g.Type != w.typ || g.Columns != w.cols {
					t.Errorf("var %d = %s %s x%d, want %s %s x%d", i, g.Name, g.Type, g.Columns, w.name, w.typ, w.cols)
				}
				if !slices.Equal(g.Refs, w.refs) {
					t.Errorf("%s refs = %v, want %v", w.name, g.Refs, w.refs)
				}
			}
		})
	}
}

func TestVariablesAtIsStable(t *testing.T) {
	info, _, _ := build(t)
	a := info.VariablesAt(6)
	b := info.VariablesAt(6)
	if len(a) != len(b) || len(a) == 0 || &a[0] != &b[0] {
		t.Fatal("VariablesAt did not reuse its result")
	}
}

func TestResolve(t *testing.T) {
	info, _, ids := build(t)
	live := map[ir.Id]value.Value{
		ids.f:   value.FromF32("", 3),
		ids.vin: value.FromF32("", 1, 2, 3, 4),
		ids.g:   value.FromF32("", 6),
	}
	lookup := func(id ir.Id) (value.Value, bool) {
		v, ok := live[id]
		return v, ok
	}

	vars := info.VariablesAt(6)
	want := map[string]float32{"x": 3, "v.x": 6, "v.y": 2, "v.z": 3, "v.w": 4}
	for _, sv := range vars {
		got, ok := sv.Resolve(lookup)
		if !ok {
			t.Fatalf("%s did not resolve", sv.Name)
		}
		if got.Name != sv.Name || got.F32(0) != want[sv.Name] {
			t.Errorf("%s = %v, want %g", sv.Name, got, want[sv.Name])
		}
	}

	v := info.VariablesAt(7)[1]
	got, ok := v.Resolve(lookup)
	if !ok || got.Len() != 4 || got.F32(3) != 4 {
		t.Fatalf("v = %v, %v; want (1, 2, 3, 4)", got, ok)
	}

	delete(live, ids.vin)
	if _, ok := v.Resolve(lookup); ok {
		t.Fatal("variable resolved from a dead Id")
	}
}

func TestResolveStruct(t *testing.T) {
	agg := value.Value{Type: value.Struct, Members: []value.Value{
		value.FromF32("", 1),
		value.FromF32("", 2, 3),
	}}
	sv := debuginfo.SourceVariable{
		Name: "s",
		Type: value.Struct,
		Members: []debuginfo.SourceVariable{
			{Name: "s.a", Type: value.Float, Rows: 1, Columns: 1, Refs: refs(7, 8)},
			{Name: "s.b", Type: value.Float, Rows: 1, Columns: 2, Refs: refs(7, 0, 4)},
		},
	}
	got, ok := sv.Resolve(func(id ir.Id) (value.Value, bool) { return agg, id == 7 })
	if !ok {
		t.Fatal("struct did not resolve")
	}
	if len(got.Members) != 2 || got.Members[0].F32(0) != 3 || got.Members[1].F32(0) != 1 || got.Members[1].F32(1) != 2 {
		t.Fatalf("s = %v", got)
	}

	bad := debuginfo.SourceVariable{Name: "bad", Type: value.Float, Rows: 1, Columns: 1, Refs: refs(7, 2)}
	if _, ok := bad.Resolve(func(ir.Id) (value.Value, bool) { return agg, true }); ok {
		t.Fatal("misaligned reference resolved")
	}
}

package memory

import (
	"errors"
	"math"
	"testing"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/value"
)

func fill(v *value.Value, seed uint64) {
	if v.IsAggregate() {
		for i := range v.Members {
			fill(&v.Members[i], seed+uint64(i)*17)
		}
		return
	}
	for i := 0; i < v.Len(); i++ {
		switch v.Type {
		case value.Float:
			v.SetF32(i, float32(seed)+0.25*float32(i))
		case value.Double:
			v.SetF64(i, math.Pi*float64(seed+uint64(i)))
		case value.Half:
			v.SetF16(i, 1.5+float32(i))
		default:
			v.SetBits(i, ^(seed + uint64(i)*0x01010101))
		}
	}
}

func TestStoreLoadRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		typ  *ir.Type
	}{
		{"bool", ir.Bool},
		{"i8", ir.I8},
		{"i16", ir.I16},
		{"i32", ir.I32},
		{"i64", ir.I64},
		{"half", ir.F16},
		{"float", ir.F32},
		{"double", ir.F64},
		{"float4", ir.VectorOf(ir.F32, 4)},
		{"int_array", ir.ArrayOf(ir.I32, 8)},
		{"struct", ir.StructOf("S", ir.F32, ir.VectorOf(ir.I16, 3), ir.F64)},
		{"struct_of_arrays", ir.StructOf("T", ir.ArrayOf(ir.F32, 2), ir.ArrayOf(ir.StructOf("U", ir.I8, ir.I32), 2))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(nil)
			m.Allocate(1, tt.typ, false)
			p, ok := m.Pointer(1)
			if !ok {
				t.Fatal("allocation did not register a whole-buffer pointer")
			}
			if p.Size != SizeOf(tt.typ) {
				t.Fatalf("pointer size %d, want %d", p.Size, SizeOf(tt.typ))
			}

			zero, err := m.Load(p)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if !zero.Equal(value.Zero("", tt.typ)) {
				t.Fatalf("fresh allocation not zeroed: %s", zero)
			}

			v := value.Zero("", tt.typ)
			fill(&v, 3)
			if err := m.Store(p, v); err != nil {
				t.Fatalf("store: %v", err)
			}
			got, err := m.Load(p)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if !got.Equal(v) {
				t.Fatalf("round trip mismatch:\n got %s\nwant %s", got, v)
			}
		})
	}
}

func TestAddressOfElement(t *testing.T) {
	m := New(nil)
	arr := ir.ArrayOf(ir.I32, 4)
	m.Allocate(7, arr, false)
	base, _ := m.Pointer(7)

	p, err := m.AddressOf(base, []uint64{0, 2})
	if err != nil {
		t.Fatalf("AddressOf: %v", err)
	}
	if p.Offset != 8 || p.Size != 4 || !p.Type.Equal(ir.I32) {
		t.Fatalf("element pointer = %+v", p)
	}
	if err := m.Store(p, value.FromS32("", 42)); err != nil {
		t.Fatalf("store: %v", err)
	}
	whole, _ := m.Load(base)
	if whole.Members[2].S32(0) != 42 || whole.Members[1].S32(0) != 0 {
		t.Fatalf("element store landed wrong: %s", whole)
	}

	s := ir.StructOf("S", ir.I8, ir.F32)
	m.Allocate(8, s, false)
	sp, _ := m.Pointer(8)
	mp, err := m.AddressOf(sp, []uint64{0, 1})
	if err != nil {
		t.Fatalf("AddressOf member: %v", err)
	}
	if mp.Offset != 1 || mp.Size != 4 {
		t.Fatalf("member pointer = %+v, want offset 1 size 4", mp)
	}
}

func TestAddressOfErrors(t *testing.T) {
	m := New(nil)
	m.Allocate(1, ir.ArrayOf(ir.F32, 2), false)
	base, _ := m.Pointer(1)
	m.Allocate(2, ir.ArrayOf(ir.VectorOf(ir.F32, 4), 4), false)
	rows, _ := m.Pointer(2)

	tests := []struct {
		name    string
		ptr     Pointer
		indices []uint64
		want    error
	}{
		{"nonzero_first", base, []uint64{1}, ErrBadFirstIndex},
		{"deep_path", base, []uint64{0, 1, 0}, ErrDeepPath},
		{"out_of_bounds", base, []uint64{0, 2}, ErrOutOfBounds},
		{"past_last_row", rows, []uint64{0, 4}, ErrOutOfBounds},
		{"offset_wraps", rows, []uint64{0, 0x10000000}, ErrOutOfBounds},
		{"index_above_uint32", rows, []uint64{0, 1 << 40}, ErrOutOfBounds},
		{"no_allocation", Pointer{Base: 99, Type: ir.F32, Size: 4}, []uint64{0}, ErrNoAllocation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.AddressOf(tt.ptr, tt.indices)
			if !errors.Is(err, tt.want) {
				t.Fatalf("AddressOf error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSharedParent(t *testing.T) {
	shared := New(nil)
	shared.Allocate(3, ir.ArrayOf(ir.I32, 4), true)

	lane0 := New(shared)
	lane1 := New(shared)
	lane0.Allocate(4, ir.I32, false)

	p, ok := lane0.Pointer(3)
	if !ok || !lane0.IsShared(3) || lane0.IsShared(4) {
		t.Fatal("lane memory did not resolve the shared allocation")
	}
	elem, err := lane0.AddressOf(p, []uint64{0, 1})
	if err != nil {
		t.Fatalf("AddressOf: %v", err)
	}
	if err := lane0.Store(elem, value.FromS32("", 5)); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := lane1.Load(elem)
	if err != nil || got.S32(0) != 5 {
		t.Fatalf("other lane read %v, %v; want 5", got, err)
	}
	if _, ok := lane1.Pointer(4); ok {
		t.Fatal("private allocation leaked to another lane")
	}

	lane0.Free()
	if _, ok := lane0.Allocation(4); ok {
		t.Fatal("Free kept a private allocation")
	}
	if _, ok := lane0.Allocation(3); !ok {
		t.Fatal("Free dropped the shared allocation")
	}
}

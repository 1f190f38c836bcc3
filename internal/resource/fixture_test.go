package resource

import (
	"errors"
	"strings"
	"testing"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/value"
)

const fixtureSrc = `
[render_target]
sample_count = 4

[[resource]]
class = "srv"
kind = "Texture2D"
register = 0
width = 2
height = 2
comp_type = "float"
components = 1
floats = [1.0, 2.0, 3.0, 4.0]

[[resource]]
class = "uav"
kind = "StructuredBuffer"
register = 1
stride = 4
components = 1
comp_type = "uint"
words = [5, 6, 7]

[[resource]]
class = "cbuffer"
register = 0
floats = [0.5, 0.25]

[[resource]]
class = "srv"
kind = "Texture2DMS"
heap = "resource"
index = 9
samples = 8
width = 1
height = 1
`

func loadFixture(t *testing.T) *Fixture {
	t.Helper()
	f, err := ParseFixture(fixtureSrc)
	if err != nil {
		t.Fatalf("ParseFixture: %v", err)
	}
	return f
}

func TestFixtureDimensions(t *testing.T) {
	f := loadFixture(t)
	tests := []struct {
		name  string
		class ir.ResourceClass
		slot  BindingSlot
		mip   uint32
		want  Dims
	}{
		{"texture", ir.ClassSRV, BindingSlot{Register: 0}, 0, Dims{Width: 2, Height: 2, Depth: 1, Mips: 1}},
		{"texture_missing_mip", ir.ClassSRV, BindingSlot{Register: 0}, 3, Dims{Mips: 1}},
		{"structured_buffer", ir.ClassUAV, BindingSlot{Register: 1}, 0, Dims{Width: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Dimensions(tt.class, tt.slot, tt.mip)
			if err != nil {
				t.Fatalf("Dimensions: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Dimensions = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFixtureUnbound(t *testing.T) {
	f := loadFixture(t)
	_, err := f.FetchReadOnly(ir.ClassSRV, BindingSlot{Register: 7})
	if !errors.Is(err, ErrNotBound) {
		t.Fatalf("unbound fetch error = %v, want ErrNotBound", err)
	}
}

func TestFixtureReadWriteIsPrivate(t *testing.T) {
	f := loadFixture(t)
	a, err := f.FetchReadWrite(BindingSlot{Register: 1})
	if err != nil {
		t.Fatalf("FetchReadWrite: %v", err)
	}
	a.Bytes[0] = 99
	b, err := f.FetchReadWrite(BindingSlot{Register: 1})
	if err != nil {
		t.Fatalf("FetchReadWrite: %v", err)
	}
	if b.Bytes[0] != 5 {
		t.Fatalf("write through one copy leaked into another: %d", b.Bytes[0])
	}
}

func TestFixturePointSample(t *testing.T) {
	f := loadFixture(t)
	ref := ReferenceInfo{Binding: BindingSlot{Register: 0}}
	tests := []struct {
		name string
		req  SampleRequest
		want float32
	}{
		{"top_left", SampleRequest{Op: ir.DXSample, Resource: ref, UV: [4]float32{0.25, 0.25}}, 1},
		{"bottom_right", SampleRequest{Op: ir.DXSampleLevel, Resource: ref, UV: [4]float32{0.75, 0.75}}, 4},
		{"clamped", SampleRequest{Op: ir.DXSample, Resource: ref, UV: [4]float32{5, -1}}, 2},
		{"offset", SampleRequest{Op: ir.DXSample, Resource: ref, UV: [4]float32{0.25, 0.25}, Offsets: [3]int32{1, 0, 0}}, 2},
		{"compare", SampleRequest{Op: ir.DXSampleCmp, Resource: ref, UV: [4]float32{0.75, 0.75}, Compare: 3.5}, 1},
		{"compare_level", SampleRequest{Op: ir.DXSampleCmpLevel, Resource: ref, UV: [4]float32{0.75, 0.75}, Compare: 5}, 0},
		{"compare_grad", SampleRequest{Op: ir.DXSampleCmpGrad, Resource: ref, UV: [4]float32{0.25, 0.25}, Compare: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.SampleGather(tt.req)
			if err != nil {
				t.Fatalf("SampleGather: %v", err)
			}
			if got.F32(0) != tt.want {
				t.Fatalf("sample = %g, want %g", got.F32(0), tt.want)
			}
		})
	}
}

func TestFixtureGather(t *testing.T) {
	f := loadFixture(t)
	got, err := f.SampleGather(SampleRequest{
		Op:       ir.DXTextureGather,
		Kind:     SampleKindOf(ir.DXTextureGather),
		Resource: ReferenceInfo{Binding: BindingSlot{Register: 0}},
		UV:       [4]float32{0.5, 0.5},
	})
	if err != nil {
		t.Fatalf("SampleGather: %v", err)
	}
	want := []float32{3, 4, 2, 1}
	for i, w := range want {
		if got.F32(i) != w {
			t.Fatalf("gather = %v, want %v", got, want)
		}
	}
}

func TestFixtureLODQuery(t *testing.T) {
	f, err := ParseFixture(`
[[resource]]
class = "srv"
kind = "Texture2D"
register = 0
width = 4
height = 4
mips = 3
comp_type = "float"
components = 1
floats = [0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0]
`)
	if err != nil {
		t.Fatalf("ParseFixture: %v", err)
	}
	tests := []struct {
		name                string
		ddx, ddy            [4]float32
		clamped, unclamped float32
	}{
		{"one_mip_down", [4]float32{0.5}, [4]float32{0, 0.25}, 1, 1},
		{"past_the_chain", [4]float32{2}, [4]float32{}, 2, 3},
		{"magnified", [4]float32{0.0625}, [4]float32{}, 0, -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.SampleGather(SampleRequest{
				Op:       ir.DXCalculateLOD,
				Kind:     SampleKindOf(ir.DXCalculateLOD),
				Resource: ReferenceInfo{Class: ir.ClassSRV},
				DDX:      tt.ddx,
				DDY:      tt.ddy,
			})
			if err != nil {
				t.Fatalf("SampleGather: %v", err)
			}
			if got.F32(0) != tt.clamped || got.F32(1) != tt.unclamped {
				t.Fatalf("lod = (%g, %g), want (%g, %g)", got.F32(0), got.F32(1), tt.clamped, tt.unclamped)
			}
		})
	}
}

func TestFixtureMath(t *testing.T) {
	f := loadFixture(t)
	got, err := f.MathIntrinsic(ir.DXExp, value.FromF32("", 3, 0))
	if err != nil {
		t.Fatalf("MathIntrinsic: %v", err)
	}
	if got.F32(0) != 8 || got.F32(1) != 1 {
		t.Fatalf("exp2 = %v", got)
	}
	if _, err := f.MathIntrinsic(ir.DXFAbs, value.FromF32("", 1)); err == nil {
		t.Fatal("non-transcendental op accepted")
	}
}

func TestFixtureDirectAndSamples(t *testing.T) {
	f := loadFixture(t)
	slot := BindingSlot{Heap: ir.HeapResource, Index: 9}
	info, err := f.ResolveDirect(slot)
	if err != nil {
		t.Fatalf("ResolveDirect: %v", err)
	}
	if info.Class != ir.ClassSRV || info.Kind != ir.KindTexture2DMS {
		t.Fatalf("ResolveDirect = %+v", info)
	}
	n, err := f.SampleCount(ir.ClassSRV, slot)
	if err != nil || n != 8 {
		t.Fatalf("SampleCount = %d, %v; want 8", n, err)
	}
	rt, _ := f.RenderTargetInfo()
	if rt.SampleCount != 4 {
		t.Fatalf("render target samples = %d, want 4", rt.SampleCount)
	}
}

func TestFixtureConfigErrors(t *testing.T) {
	_, err := ParseFixture(`
[[resource]]
class = "texture"

[[resource]]
comp_type = "fixed"
`)
	if err == nil {
		t.Fatal("bad fixture accepted")
	}
	for _, want := range []string{"resource 0", "resource 1"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

type countingAccessor struct {
	*Fixture
	fetches int
}

func (c *countingAccessor) FetchReadOnly(class ir.ResourceClass, slot BindingSlot) (*Data, error) {
	c.fetches++
	return c.Fixture.FetchReadOnly(class, slot)
}

func TestCache(t *testing.T) {
	acc := &countingAccessor{Fixture: loadFixture(t)}
	c, err := NewCache(1)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	tex := BindingSlot{Register: 0}
	for range 3 {
		if _, err := c.ReadOnly(acc, ir.ClassSRV, tex); err != nil {
			t.Fatalf("ReadOnly: %v", err)
		}
	}
	if acc.fetches != 1 {
		t.Fatalf("fetches = %d, want 1", acc.fetches)
	}
	// The cbuffer evicts the texture from a one-entry cache.
	if _, err := c.ReadOnly(acc, ir.ClassCBuffer, BindingSlot{Register: 0}); err != nil {
		t.Fatalf("ReadOnly: %v", err)
	}
	if _, err := c.ReadOnly(acc, ir.ClassSRV, tex); err != nil {
		t.Fatalf("ReadOnly: %v", err)
	}
	if acc.fetches != 3 {
		t.Fatalf("fetches after eviction = %d, want 3", acc.fetches)
	}

	uav := BindingSlot{Register: 1}
	a, _ := c.ReadWrite(acc, uav)
	a.Bytes[0] = 42
	b, _ := c.ReadWrite(acc, uav)
	if b.Bytes[0] != 42 {
		t.Fatal("session UAV copy was refetched")
	}
}

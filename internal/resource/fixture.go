package resource

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/BurntSushi/toml"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/value"
)

// BindingConfig is one [[resource]] entry of a fixture file.
type BindingConfig struct {
	Class    string `toml:"class"`
	Kind     string `toml:"kind"`
	Register uint32 `toml:"register"`
	Space    uint32 `toml:"space"`
	// Heap and Index bind the entry to a descriptor heap slot instead of a
	// register.
	Heap  string `toml:"heap"`
	Index uint32 `toml:"index"`

	CompType     string `toml:"comp_type"`
	ByteWidth    int    `toml:"byte_width"`
	Components   int    `toml:"components"`
	Stride       int    `toml:"stride"`
	ByteBuffer   bool   `toml:"byte_buffer"`
	FirstElement uint32 `toml:"first_element"`
	NumElements  uint32 `toml:"num_elements"`

	Width   uint32 `toml:"width"`
	Height  uint32 `toml:"height"`
	Depth   uint32 `toml:"depth"`
	Mips    uint32 `toml:"mips"`
	Samples uint32 `toml:"samples"`

	Words  []uint32  `toml:"words"`
	Floats []float32 `toml:"floats"`

	Bias       float32 `toml:"bias"`
	Comparison bool    `toml:"comparison"`
}

// FixtureConfig is the decoded form of a fixture file.
type FixtureConfig struct {
	RenderTarget struct {
		SampleCount uint32 `toml:"sample_count"`
	} `toml:"render_target"`
	Resources []BindingConfig `toml:"resource"`
}

type binding struct {
	info    ReferenceInfo
	data    *Data
	mips    uint32
	sampler Sampler
}

// Fixture is an in-memory Accessor. Math runs in float32 and textures are
// point sampled from mip 0 with clamped addressing.
type Fixture struct {
	bindings     map[cacheKey]*binding
	renderTarget RenderTarget
}

// NewFixture returns an empty fixture with a single-sampled render target.
func NewFixture() *Fixture {
	return &Fixture{
		bindings:     make(map[cacheKey]*binding),
		renderTarget: RenderTarget{SampleCount: 1},
	}
}

// LoadFixture reads a fixture from a TOML file.
func LoadFixture(path string) (*Fixture, error) {
	var cfg FixtureConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	f, err := FixtureFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ParseFixture reads a fixture from TOML source.
func ParseFixture(src string) (*Fixture, error) {
	var cfg FixtureConfig
	if _, err := toml.Decode(src, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return FixtureFromConfig(cfg)
}

// FixtureFromConfig builds a fixture from decoded configuration.
func FixtureFromConfig(cfg FixtureConfig) (*Fixture, error) {
	f := NewFixture()
	if cfg.RenderTarget.SampleCount > 0 {
		f.renderTarget.SampleCount = cfg.RenderTarget.SampleCount
	}
	var errs []error
	for i, bc := range cfg.Resources {
		if err := f.add(bc); err != nil {
			errs = append(errs, fmt.Errorf("resource %d: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Fixture) add(bc BindingConfig) error {
	class, err := parseClass(bc.Class)
	if err != nil {
		return err
	}
	kind, err := parseKind(bc.Kind, class)
	if err != nil {
		return err
	}
	comp, err := parseCompType(bc.CompType)
	if err != nil {
		return err
	}
	slot := BindingSlot{Register: bc.Register, Space: bc.Space}
	if bc.Heap != "" {
		heap, err := parseHeap(bc.Heap)
		if err != nil {
			return err
		}
		slot = BindingSlot{Heap: heap, Index: bc.Index}
	}

	format := ViewFormat{
		ByteWidth:  defaultInt(bc.ByteWidth, 4),
		Components: defaultInt(bc.Components, 4),
		CompType:   comp,
		Stride:     bc.Stride,
	}
	data := &Data{
		Format:       format,
		FirstElement: bc.FirstElement,
		NumElements:  bc.NumElements,
		ByteBuffer:   bc.ByteBuffer || kind == ir.KindRawBuffer,
		Texture:      kind.IsTexture(),
		Width:        bc.Width,
		Height:       bc.Height,
		Depth:        bc.Depth,
	}
	for _, w := range bc.Words {
		data.Bytes = binary.LittleEndian.AppendUint32(data.Bytes, w)
	}
	for _, x := range bc.Floats {
		data.Bytes = binary.LittleEndian.AppendUint32(data.Bytes, math.Float32bits(x))
	}

	samples := max(bc.Samples, 1)
	f.Bind(class, slot, ReferenceInfo{
		Class:       class,
		Binding:     slot,
		Kind:        kind,
		CompType:    comp,
		SampleCount: samples,
	}, data)
	b := f.bindings[cacheKey{class: class, slot: slot}]
	b.mips = max(bc.Mips, 1)
	b.sampler = Sampler{Binding: slot, Bias: bc.Bias, Comparison: bc.Comparison}
	return nil
}

// Bind installs data under class and slot, replacing any previous binding.
func (f *Fixture) Bind(class ir.ResourceClass, slot BindingSlot, info ReferenceInfo, data *Data) {
	info.Class = class
	info.Binding = slot
	if info.SampleCount == 0 {
		info.SampleCount = 1
	}
	f.bindings[cacheKey{class: class, slot: slot}] = &binding{info: info, data: data, mips: 1}
}

// SetRenderTarget replaces the render-target description.
func (f *Fixture) SetRenderTarget(rt RenderTarget) { f.renderTarget = rt }

func (f *Fixture) lookup(class ir.ResourceClass, slot BindingSlot) (*binding, error) {
	b, ok := f.bindings[cacheKey{class: class, slot: slot}]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrNotBound, class, slot)
	}
	return b, nil
}

func (f *Fixture) FetchReadOnly(class ir.ResourceClass, slot BindingSlot) (*Data, error) {
	b, err := f.lookup(class, slot)
	if err != nil {
		return nil, err
	}
	return b.data, nil
}

func (f *Fixture) FetchReadWrite(slot BindingSlot) (*Data, error) {
	b, err := f.lookup(ir.ClassUAV, slot)
	if err != nil {
		return nil, err
	}
	return b.data.Clone(), nil
}

func (f *Fixture) SampleGather(req SampleRequest) (value.Value, error) {
	b, err := f.lookup(ir.ClassSRV, req.Resource.Binding)
	if err != nil {
		return value.Value{}, err
	}
	d := b.data
	w, h := float32(max(d.Width, 1)), float32(max(d.Height, 1))
	if req.Kind == SampleLODQuery {
		return lodQuery(req, w, h, b.mips), nil
	}
	layer := uint32(0)
	if d.Depth > 1 {
		layer = clampCoord(int64(math.Floor(float64(req.UV[2]*float32(d.Depth)))), d.Depth)
		if b.info.Kind == ir.KindTexture2DArray || b.info.Kind == ir.KindTexture1DArray {
			layer = clampCoord(int64(math.RoundToEven(float64(req.UV[2]))), d.Depth)
		}
	}
	texel := func(x, y int64) value.Value {
		tx := clampCoord(x+int64(req.Offsets[0]), max(d.Width, 1))
		ty := clampCoord(y+int64(req.Offsets[1]), max(d.Height, 1))
		off, ok := d.TexelOffset(tx, ty, layer)
		if !ok {
			return value.Vector("", ElementType(d.Format), 4)
		}
		return DecodeElement(d.Format, d.Bytes[off:])
	}

	out := value.Vector("", value.Float, 4)
	switch req.Kind {
	case SampleGathered:
		x0 := int64(math.Floor(float64(req.UV[0]*w - 0.5)))
		y0 := int64(math.Floor(float64(req.UV[1]*h - 0.5)))
		quad := [4][2]int64{{x0, y0 + 1}, {x0 + 1, y0 + 1}, {x0 + 1, y0}, {x0, y0}}
		for i, q := range quad {
			t := texel(q[0], q[1])
			c := int(req.Channel)
			if req.Op == ir.DXTextureGatherCmp {
				out.SetF32(i, compareLessEqual(req.Compare, float32(t.Float(0))))
				continue
			}
			out.SetBits(i, t.Bits(c))
		}
		if req.Op == ir.DXTextureGather {
			out.Type = ElementType(d.Format)
		}
	default:
		t := texel(int64(math.Floor(float64(req.UV[0]*w))), int64(math.Floor(float64(req.UV[1]*h))))
		if req.Op.IsCompareSample() {
			out.SetF32(0, compareLessEqual(req.Compare, float32(t.Float(0))))
			return out, nil
		}
		out = t
	}
	return out, nil
}

// lodQuery computes the level of detail selected by the derivatives of the
// first two coordinates, scaled to texels of mip 0.
func lodQuery(req SampleRequest, w, h float32, mips uint32) value.Value {
	dx := math.Hypot(float64(req.DDX[0]*w), float64(req.DDX[1]*h))
	dy := math.Hypot(float64(req.DDY[0]*w), float64(req.DDY[1]*h))
	unclamped := float32(math.Log2(max(dx, dy)))
	clamped := unclamped
	if math.IsNaN(float64(clamped)) || clamped < 0 {
		clamped = 0
	}
	clamped = min(clamped, float32(max(mips, 1)-1))
	return value.FromF32("", clamped, unclamped, 0, 0)
}

func compareLessEqual(ref, texel float32) float32 {
	if ref <= texel {
		return 1
	}
	return 0
}

func clampCoord(c int64, n uint32) uint32 {
	if c < 0 {
		return 0
	}
	if c >= int64(n) {
		return n - 1
	}
	return uint32(c)
}

func (f *Fixture) MathIntrinsic(op ir.DXOp, in value.Value) (value.Value, error) {
	var fn func(float64) float64
	switch op {
	case ir.DXCos:
		fn = math.Cos
	case ir.DXSin:
		fn = math.Sin
	case ir.DXTan:
		fn = math.Tan
	case ir.DXAcos:
		fn = math.Acos
	case ir.DXAsin:
		fn = math.Asin
	case ir.DXAtan:
		fn = math.Atan
	case ir.DXHcos:
		fn = math.Cosh
	case ir.DXHsin:
		fn = math.Sinh
	case ir.DXHtan:
		fn = math.Tanh
	case ir.DXExp:
		fn = math.Exp2
	case ir.DXLog:
		fn = math.Log2
	case ir.DXSqrt:
		fn = math.Sqrt
	case ir.DXRsqrt:
		fn = func(x float64) float64 { return 1 / math.Sqrt(x) }
	default:
		return value.Value{}, fmt.Errorf("math intrinsic %s not supported", op)
	}
	out := in
	for c := 0; c < in.Len(); c++ {
		out.SetFloat(c, float64(float32(fn(float64(float32(in.Float(c)))))))
	}
	return out, nil
}

func (f *Fixture) Dimensions(class ir.ResourceClass, slot BindingSlot, mip uint32) (Dims, error) {
	b, err := f.lookup(class, slot)
	if err != nil {
		return Dims{}, err
	}
	d := b.data
	if !d.Texture {
		n := d.NumElements
		if n == 0 {
			if size := d.Format.ElementSize(); size > 0 && !d.ByteBuffer {
				n = uint32(len(d.Bytes) / size)
			} else {
				n = uint32(len(d.Bytes))
			}
		}
		return Dims{Width: n}, nil
	}
	if mip >= b.mips {
		return Dims{Mips: b.mips}, nil
	}
	dims := Dims{
		Width:  max(d.Width>>mip, 1),
		Height: max(d.Height>>mip, 1),
		Depth:  max(d.Depth, 1),
		Mips:   b.mips,
	}
	if b.info.Kind == ir.KindTexture3D {
		dims.Depth = max(d.Depth>>mip, 1)
	}
	return dims, nil
}

func (f *Fixture) SampleCount(class ir.ResourceClass, slot BindingSlot) (uint32, error) {
	b, err := f.lookup(class, slot)
	if err != nil {
		return 0, err
	}
	return b.info.SampleCount, nil
}

func (f *Fixture) RenderTargetInfo() (RenderTarget, error) {
	return f.renderTarget, nil
}

func (f *Fixture) ResolveDirect(slot BindingSlot) (ReferenceInfo, error) {
	for _, class := range []ir.ResourceClass{ir.ClassSRV, ir.ClassUAV, ir.ClassCBuffer, ir.ClassSampler} {
		if b, ok := f.bindings[cacheKey{class: class, slot: slot}]; ok {
			info := b.info
			info.Sampler = b.sampler
			return info, nil
		}
	}
	return ReferenceInfo{}, fmt.Errorf("%w: %s", ErrNotBound, slot)
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func parseClass(s string) (ir.ResourceClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "srv", "":
		return ir.ClassSRV, nil
	case "uav":
		return ir.ClassUAV, nil
	case "cbuffer", "cbv":
		return ir.ClassCBuffer, nil
	case "sampler":
		return ir.ClassSampler, nil
	default:
		return 0, fmt.Errorf("unknown resource class %q", s)
	}
}

func parseKind(s string, class ir.ResourceClass) (ir.ResourceKind, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		switch class {
		case ir.ClassCBuffer:
			return ir.KindCBuffer, nil
		case ir.ClassSampler:
			return ir.KindSampler, nil
		default:
			return ir.KindTypedBuffer, nil
		}
	}
	for k := ir.KindTexture1D; k <= ir.KindSampler; k++ {
		if strings.EqualFold(k.String(), s) {
			return k, nil
		}
	}
	return ir.KindInvalid, fmt.Errorf("unknown resource kind %q", s)
}

func parseCompType(s string) (ir.CompType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "float":
		return ir.CompFloat, nil
	case "uint":
		return ir.CompUInt, nil
	case "sint":
		return ir.CompSInt, nil
	case "unorm":
		return ir.CompUNorm, nil
	case "snorm":
		return ir.CompSNorm, nil
	case "double":
		return ir.CompDouble, nil
	case "r10g10b10a2":
		return ir.CompPackedR10G10B10A2, nil
	case "r11g11b10":
		return ir.CompPackedR11G11B10, nil
	default:
		return ir.CompInvalid, fmt.Errorf("unknown component type %q", s)
	}
}

func parseHeap(s string) (ir.HeapType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "resource", "cbv_srv_uav":
		return ir.HeapResource, nil
	case "sampler":
		return ir.HeapSampler, nil
	default:
		return ir.HeapNone, fmt.Errorf("unknown descriptor heap %q", s)
	}
}

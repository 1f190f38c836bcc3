package ir

import "fmt"

// ShaderStage is the pipeline stage a program was compiled for.
type ShaderStage uint8

const (
	StageCompute ShaderStage = iota
	StageVertex
	StagePixel
	StageGeometry
	StageHull
	StageDomain
)

func (s ShaderStage) String() string {
	switch s {
	case StageCompute:
		return "compute"
	case StageVertex:
		return "vertex"
	case StagePixel:
		return "pixel"
	case StageGeometry:
		return "geometry"
	case StageHull:
		return "hull"
	case StageDomain:
		return "domain"
	default:
		return fmt.Sprintf("ShaderStage(%d)", s)
	}
}

// Block is a basic block: a contiguous range [Start, End) of the owning
// function's instruction list.
type Block struct {
	Name  string `msgpack:"name,omitempty"`
	Start int    `msgpack:"start"`
	End   int    `msgpack:"end"`
	Preds []int  `msgpack:"preds,omitempty"`
}

// Function is a function body with a flat instruction list.
type Function struct {
	Name         string        `msgpack:"name"`
	Instructions []Instruction `msgpack:"instrs"`
	Blocks       []Block       `msgpack:"blocks"`
}

// BlockOf returns the index of the block containing instruction idx, or -1.
func (f *Function) BlockOf(idx int) int {
	for i := range f.Blocks {
		if idx >= f.Blocks[i].Start && idx < f.Blocks[i].End {
			return i
		}
	}
	return -1
}

// Successors returns the distinct successor blocks of block b in target order.
func (f *Function) Successors(b int) []int {
	blk := &f.Blocks[b]
	if blk.End <= blk.Start {
		return nil
	}
	term := &f.Instructions[blk.End-1]
	var out []int
	seen := make(map[int]struct{}, len(term.Targets))
	if term.Op != OpBr && term.Op != OpSwitch {
		return nil
	}
	for _, t := range term.Targets {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Global is a module-level variable. Id names the pointer to its storage.
type Global struct {
	Id        Id        `msgpack:"id"`
	Name      string    `msgpack:"name"`
	Type      *Type     `msgpack:"t"`
	AddrSpace AddrSpace `msgpack:"as"`
	Init      *Constant `msgpack:"init,omitempty"`
}

// ResourceClass is the binding class of a resource.
type ResourceClass uint8

const (
	ClassSRV ResourceClass = iota
	ClassUAV
	ClassCBuffer
	ClassSampler
)

func (c ResourceClass) String() string {
	switch c {
	case ClassSRV:
		return "SRV"
	case ClassUAV:
		return "UAV"
	case ClassCBuffer:
		return "CBuffer"
	case ClassSampler:
		return "Sampler"
	default:
		return fmt.Sprintf("ResourceClass(%d)", c)
	}
}

// ResourceKind is the shape of a bound resource.
type ResourceKind uint8

const (
	KindInvalid ResourceKind = iota
	KindTexture1D
	KindTexture2D
	KindTexture2DMS
	KindTexture3D
	KindTextureCube
	KindTexture1DArray
	KindTexture2DArray
	KindTexture2DMSArray
	KindTextureCubeArray
	KindTypedBuffer
	KindRawBuffer
	KindStructuredBuffer
	KindCBuffer
	KindSampler
)

var resourceKindNames = [...]string{
	"Invalid", "Texture1D", "Texture2D", "Texture2DMS", "Texture3D", "TextureCube",
	"Texture1DArray", "Texture2DArray", "Texture2DMSArray", "TextureCubeArray",
	"TypedBuffer", "RawBuffer", "StructuredBuffer", "CBuffer", "Sampler",
}

func (k ResourceKind) String() string {
	if int(k) < len(resourceKindNames) {
		return resourceKindNames[k]
	}
	return fmt.Sprintf("ResourceKind(%d)", k)
}

// IsTexture reports whether k is one of the texture shapes.
func (k ResourceKind) IsTexture() bool {
	return k >= KindTexture1D && k <= KindTextureCubeArray
}

// IsBuffer reports whether k is one of the buffer shapes.
func (k ResourceKind) IsBuffer() bool {
	return k == KindTypedBuffer || k == KindRawBuffer || k == KindStructuredBuffer
}

// HeapType selects a descriptor heap for directly indexed handles.
type HeapType uint8

const (
	HeapNone HeapType = iota
	HeapResource
	HeapSampler
)

func (h HeapType) String() string {
	switch h {
	case HeapResource:
		return "CBV_SRV_UAV"
	case HeapSampler:
		return "Sampler"
	default:
		return "NoHeap"
	}
}

// CompType is the component type of a typed resource element or a
// signature element.
type CompType uint8

const (
	CompInvalid CompType = iota
	CompSInt
	CompUInt
	CompFloat
	CompSNorm
	CompUNorm
	CompDouble
	// CompPackedR10G10B10A2 and CompPackedR11G11B10 describe packed formats
	// with one storage word per element.
	CompPackedR10G10B10A2
	CompPackedR11G11B10
)

func (c CompType) String() string {
	switch c {
	case CompSInt:
		return "SInt"
	case CompUInt:
		return "UInt"
	case CompFloat:
		return "Float"
	case CompSNorm:
		return "SNorm"
	case CompUNorm:
		return "UNorm"
	case CompDouble:
		return "Double"
	case CompPackedR10G10B10A2:
		return "R10G10B10A2"
	case CompPackedR11G11B10:
		return "R11G11B10"
	default:
		return "Invalid"
	}
}

// Resource is one entry of the program's resource binding table.
type Resource struct {
	Class ResourceClass `msgpack:"class"`
	Kind  ResourceKind  `msgpack:"kind"`
	Name  string        `msgpack:"name"`
	Space uint32        `msgpack:"space"`
	// LowerBound is the first register of the range; Count of 0 is unbounded.
	LowerBound uint32   `msgpack:"lb"`
	Count      uint32   `msgpack:"count"`
	CompType   CompType `msgpack:"ct,omitempty"`
	Stride     uint32   `msgpack:"stride,omitempty"`
	// Size is the byte size of a constant buffer.
	Size uint32 `msgpack:"size,omitempty"`
}

// Contains reports whether register reg in space lies inside the range.
func (r *Resource) Contains(space, reg uint32) bool {
	if space != r.Space || reg < r.LowerBound {
		return false
	}
	return r.Count == 0 || reg-r.LowerBound < r.Count
}

// SignatureElement is one input or output parameter of the entry point.
type SignatureElement struct {
	Name          string   `msgpack:"name"`
	SemanticIndex uint32   `msgpack:"si,omitempty"`
	Rows          uint32   `msgpack:"rows"`
	Cols          uint32   `msgpack:"cols"`
	CompType      CompType `msgpack:"ct"`
	BitWidth      uint32   `msgpack:"w,omitempty"`
	SystemValue   string   `msgpack:"sv,omitempty"`
}

// ScopeKind classifies a lexical debug scope.
type ScopeKind uint8

const (
	ScopeFile ScopeKind = iota
	ScopeFunction
	ScopeLexical
)

// Scope is a lexical scope from the debug metadata.
type Scope struct {
	Kind ScopeKind `msgpack:"k"`
	// Parent indexes Debug.Scopes; -1 for the file scope.
	Parent int    `msgpack:"parent"`
	Name   string `msgpack:"name,omitempty"`
	File   string `msgpack:"file,omitempty"`
	Line   uint32 `msgpack:"line,omitempty"`
}

// LocalVariable is a source-level variable described by debug records.
type LocalVariable struct {
	Name  string `msgpack:"name"`
	Scope int    `msgpack:"scope"`
	Type  int    `msgpack:"type"`
	Line  uint32 `msgpack:"line,omitempty"`
	Arg   uint32 `msgpack:"arg,omitempty"`
}

// DebugTypeKind classifies a debug type.
type DebugTypeKind uint8

const (
	DebugBasic DebugTypeKind = iota
	DebugVector
	DebugMatrix
	DebugArray
	DebugStruct
)

// BaseEncoding is the encoding of a basic debug type.
type BaseEncoding uint8

const (
	EncodingSigned BaseEncoding = iota
	EncodingUnsigned
	EncodingFloat
	EncodingBool
)

// MatrixLayout is the declared storage order of a matrix debug type. An
// unspecified layout is kept as is and never defaulted.
type MatrixLayout uint8

const (
	LayoutUnspecified MatrixLayout = iota
	RowMajor
	ColumnMajor
)

func (l MatrixLayout) String() string {
	switch l {
	case RowMajor:
		return "row_major"
	case ColumnMajor:
		return "column_major"
	default:
		return "unspecified"
	}
}

// DebugMember is a member of a struct debug type.
type DebugMember struct {
	Name         string `msgpack:"name"`
	Type         int    `msgpack:"type"`
	OffsetInBits uint32 `msgpack:"off"`
}

// DebugType describes the source-level type of a LocalVariable.
type DebugType struct {
	Kind       DebugTypeKind `msgpack:"k"`
	Name       string        `msgpack:"name,omitempty"`
	SizeInBits uint32        `msgpack:"size"`
	Encoding   BaseEncoding  `msgpack:"enc,omitempty"`
	// Elem indexes Debug.Types for vector, matrix and array element types.
	Elem    int           `msgpack:"elem,omitempty"`
	Dims    []uint32      `msgpack:"dims,omitempty"`
	VecSize uint32        `msgpack:"vec,omitempty"`
	Rows    uint32        `msgpack:"rows,omitempty"`
	Cols    uint32        `msgpack:"cols,omitempty"`
	Layout  MatrixLayout  `msgpack:"layout,omitempty"`
	Members []DebugMember `msgpack:"members,omitempty"`
}

// Debug is the debug metadata of a program.
type Debug struct {
	Scopes      []Scope         `msgpack:"scopes,omitempty"`
	Locals      []LocalVariable `msgpack:"locals,omitempty"`
	Types       []DebugType     `msgpack:"types,omitempty"`
	InlineSites []DebugLoc      `msgpack:"inline,omitempty"`
}

// Program is a decoded shader module.
type Program struct {
	Name       string             `msgpack:"name"`
	Stage      ShaderStage        `msgpack:"stage"`
	Globals    []Global           `msgpack:"globals,omitempty"`
	Resources  []Resource         `msgpack:"resources,omitempty"`
	Functions  []Function         `msgpack:"functions"`
	EntryPoint int                `msgpack:"entry"`
	MaxId      Id                 `msgpack:"maxid"`
	Inputs     []SignatureElement `msgpack:"inputs,omitempty"`
	Outputs    []SignatureElement `msgpack:"outputs,omitempty"`
	ThreadsX   uint32             `msgpack:"tx,omitempty"`
	ThreadsY   uint32             `msgpack:"ty,omitempty"`
	ThreadsZ   uint32             `msgpack:"tz,omitempty"`
	Debug      Debug              `msgpack:"debug"`
}

// Entry returns the entry-point function.
func (p *Program) Entry() *Function {
	if p.EntryPoint < 0 || p.EntryPoint >= len(p.Functions) {
		return nil
	}
	return &p.Functions[p.EntryPoint]
}

// ResourceByRange returns the rangeID-th resource of class c, in table order.
func (p *Program) ResourceByRange(c ResourceClass, rangeID uint32) (*Resource, bool) {
	var n uint32
	for i := range p.Resources {
		if p.Resources[i].Class != c {
			continue
		}
		if n == rangeID {
			return &p.Resources[i], true
		}
		n++
	}
	return nil, false
}

// ResourceByBinding returns the resource of class c whose range contains
// register reg in space.
func (p *Program) ResourceByBinding(c ResourceClass, space, reg uint32) (*Resource, bool) {
	for i := range p.Resources {
		if p.Resources[i].Class == c && p.Resources[i].Contains(space, reg) {
			return &p.Resources[i], true
		}
	}
	return nil, false
}

// InstructionOffsets returns the global instruction offset of every function,
// in function order.
func (p *Program) InstructionOffsets() []int {
	out := make([]int, len(p.Functions))
	off := 0
	for i := range p.Functions {
		out[i] = off
		off += len(p.Functions[i].Instructions)
	}
	return out
}

package resource

import (
	"encoding/binary"
	"math"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/value"
)

// ViewFormat is the element layout of a view.
type ViewFormat struct {
	// ByteWidth is the size of one component; packed formats use 4 and
	// store the whole element in one word.
	ByteWidth  int
	Components int
	CompType   ir.CompType
	// Stride is the element stride of structured buffers; 0 means the
	// element size.
	Stride int
}

// Packed reports whether all components share one 32-bit word.
func (f ViewFormat) Packed() bool {
	return f.CompType == ir.CompPackedR10G10B10A2 || f.CompType == ir.CompPackedR11G11B10
}

// ElementSize returns the byte size of one element.
func (f ViewFormat) ElementSize() int {
	if f.Stride > 0 {
		return f.Stride
	}
	if f.Packed() {
		return 4
	}
	return f.ByteWidth * f.Components
}

// Data is the contents of a bound view.
type Data struct {
	Format       ViewFormat
	FirstElement uint32
	// NumElements bounds buffer accesses; 0 leaves only the byte length.
	NumElements uint32
	ByteBuffer  bool

	Texture    bool
	Width      uint32
	Height     uint32
	Depth      uint32
	RowPitch   uint32
	DepthPitch uint32

	Bytes []byte
	// HiddenCounter backs the append/consume counter of a UAV.
	HiddenCounter uint32
}

// Clone returns a deep copy of d.
func (d *Data) Clone() *Data {
	out := *d
	out.Bytes = append([]byte(nil), d.Bytes...)
	return &out
}

// BufferOffset returns the byte offset of element index plus byteOffset.
// For byte-address buffers index is itself a byte address.
func (d *Data) BufferOffset(index, byteOffset uint32) (int, bool) {
	var off uint64
	switch {
	case d.ByteBuffer:
		off = uint64(d.FirstElement)*4 + uint64(index) + uint64(byteOffset)
	default:
		if d.NumElements > 0 && index >= d.NumElements {
			return 0, false
		}
		size := uint64(d.Format.ElementSize())
		off = (uint64(d.FirstElement)+uint64(index))*size + uint64(byteOffset)
	}
	if off >= uint64(len(d.Bytes)) {
		return 0, false
	}
	return int(off), true
}

// LevelTexelOffset returns the byte offset of texel (x, y, z) of a mip or
// sample level. Only level 0 is captured; any other level is out of range.
func (d *Data) LevelTexelOffset(level, x, y, z uint32) (int, bool) {
	if level != 0 {
		return 0, false
	}
	return d.TexelOffset(x, y, z)
}

// TexelOffset returns the byte offset of texel (x, y, z) of mip 0.
func (d *Data) TexelOffset(x, y, z uint32) (int, bool) {
	if x >= max(d.Width, 1) || y >= max(d.Height, 1) || z >= max(d.Depth, 1) {
		return 0, false
	}
	size := uint64(d.Format.ElementSize())
	row := uint64(d.RowPitch)
	if row == 0 {
		row = size * uint64(max(d.Width, 1))
	}
	slice := uint64(d.DepthPitch)
	if slice == 0 {
		slice = row * uint64(max(d.Height, 1))
	}
	off := uint64(z)*slice + uint64(y)*row + uint64(x)*size
	if off+size > uint64(len(d.Bytes)) {
		return 0, false
	}
	return int(off), true
}

// ElementType returns the value type an element of f decodes to.
func ElementType(f ViewFormat) value.VarType {
	switch f.CompType {
	case ir.CompUInt:
		return value.UInt
	case ir.CompSInt:
		return value.SInt
	case ir.CompDouble:
		return value.Double
	default:
		return value.Float
	}
}

// DecodeElement converts one element stored in format f into a
// four-component value. Components missing from src or from the format
// read as zero.
func DecodeElement(f ViewFormat, src []byte) value.Value {
	out := value.Vector("", ElementType(f), 4)
	if f.Packed() {
		if len(src) < 4 {
			return out
		}
		word := binary.LittleEndian.Uint32(src)
		if f.CompType == ir.CompPackedR10G10B10A2 {
			out.SetF32(0, float32(word&0x3FF)/1023)
			out.SetF32(1, float32(word>>10&0x3FF)/1023)
			out.SetF32(2, float32(word>>20&0x3FF)/1023)
			out.SetF32(3, float32(word>>30)/3)
		} else {
			out.SetF32(0, unpackSmallFloat(word&0x7FF, 6))
			out.SetF32(1, unpackSmallFloat(word>>11&0x7FF, 6))
			out.SetF32(2, unpackSmallFloat(word>>22&0x3FF, 5))
		}
		return out
	}
	w := f.ByteWidth
	for c := 0; c < f.Components && c < 4; c++ {
		if w <= 0 || (c+1)*w > len(src) {
			break
		}
		b := src[c*w : (c+1)*w]
		switch f.CompType {
		case ir.CompUInt:
			out.SetU32(c, uint32(readWord(b, w)))
		case ir.CompSInt:
			out.SetU32(c, uint32(signExtend(readWord(b, w), w)))
		case ir.CompUNorm:
			out.SetF32(c, float32(float64(readWord(b, w))/float64(maxUnsigned(w))))
		case ir.CompSNorm:
			s := signExtend(readWord(b, w), w)
			m := maxUnsigned(w) >> 1
			if s < -int64(m) {
				s = -int64(m)
			}
			out.SetF32(c, float32(float64(s)/float64(m)))
		case ir.CompDouble:
			out.SetU64(c, readWord(b, w))
		default:
			switch w {
			case 2:
				out.SetF32(c, value.HalfToFloat(uint16(readWord(b, w))))
			case 8:
				out.SetF32(c, float32(math.Float64frombits(readWord(b, w))))
			default:
				out.SetU32(c, uint32(readWord(b, w)))
			}
		}
	}
	return out
}

// EncodeElement stores the components of v into dst in format f. Extra
// components of v are ignored; dst must hold ElementSize bytes.
func EncodeElement(f ViewFormat, v value.Value, dst []byte) {
	if f.Packed() {
		if len(dst) < 4 {
			return
		}
		var word uint32
		if f.CompType == ir.CompPackedR10G10B10A2 {
			word = unormBits(componentFloat(v, 0), 1023) |
				unormBits(componentFloat(v, 1), 1023)<<10 |
				unormBits(componentFloat(v, 2), 1023)<<20 |
				unormBits(componentFloat(v, 3), 3)<<30
		} else {
			word = packSmallFloat(componentFloat(v, 0), 6) |
				packSmallFloat(componentFloat(v, 1), 6)<<11 |
				packSmallFloat(componentFloat(v, 2), 5)<<22
		}
		binary.LittleEndian.PutUint32(dst, word)
		return
	}
	w := f.ByteWidth
	for c := 0; c < f.Components && c < v.Len(); c++ {
		if w <= 0 || (c+1)*w > len(dst) {
			return
		}
		b := dst[c*w : (c+1)*w]
		switch f.CompType {
		case ir.CompUInt, ir.CompSInt:
			writeWord(b, w, v.Bits(c))
		case ir.CompUNorm:
			writeWord(b, w, uint64(unormBits(componentFloat(v, c), uint32(maxUnsigned(w)))))
		case ir.CompSNorm:
			m := float64(maxUnsigned(w) >> 1)
			x := math.Max(-1, math.Min(1, float64(componentFloat(v, c))))
			if math.IsNaN(x) {
				x = 0
			}
			writeWord(b, w, uint64(int64(math.RoundToEven(x*m))))
		case ir.CompDouble:
			writeWord(b, w, math.Float64bits(v.Float(c)))
		default:
			switch w {
			case 2:
				writeWord(b, w, uint64(value.FloatToHalf(componentFloat(v, c))))
			case 8:
				writeWord(b, w, math.Float64bits(float64(componentFloat(v, c))))
			default:
				writeWord(b, w, uint64(math.Float32bits(componentFloat(v, c))))
			}
		}
	}
}

func componentFloat(v value.Value, c int) float32 {
	if c >= v.Len() {
		return 0
	}
	switch {
	case v.Type.IsFloat():
		return float32(v.Float(c))
	case v.Type.IsSigned():
		return float32(v.Int(c))
	default:
		return float32(v.Uint(c))
	}
}

func unormBits(f float32, maxv uint32) uint32 {
	x := float64(f)
	if math.IsNaN(x) || x <= 0 {
		return 0
	}
	if x >= 1 {
		return maxv
	}
	return uint32(math.RoundToEven(x * float64(maxv)))
}

func maxUnsigned(w int) uint64 {
	if w >= 8 {
		return math.MaxUint64
	}
	return 1<<(8*uint(w)) - 1
}

func signExtend(x uint64, w int) int64 {
	shift := 64 - 8*uint(w)
	return int64(x<<shift) >> shift
}

func readWord(b []byte, w int) uint64 {
	switch w {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func writeWord(b []byte, w int, x uint64) {
	switch w {
	case 1:
		b[0] = byte(x)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(x))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(x))
	default:
		binary.LittleEndian.PutUint64(b, x)
	}
}

// unpackSmallFloat decodes the unsigned 11- and 10-bit floats of
// R11G11B10: a 5-bit exponent with bias 15 over mantBits of mantissa.
func unpackSmallFloat(bits uint32, mantBits uint) float32 {
	exp := bits >> mantBits & 0x1F
	mant := bits & (1<<mantBits - 1)
	scale := float64(uint32(1) << mantBits)
	switch exp {
	case 0:
		return float32(math.Ldexp(float64(mant)/scale, -14))
	case 0x1F:
		if mant == 0 {
			return float32(math.Inf(1))
		}
		return float32(math.NaN())
	default:
		return float32(math.Ldexp(1+float64(mant)/scale, int(exp)-15))
	}
}

func packSmallFloat(f float32, mantBits uint) uint32 {
	x := float64(f)
	switch {
	case math.IsNaN(x):
		return 0x1F<<mantBits | 1
	case x <= 0:
		return 0
	case math.IsInf(x, 1):
		return 0x1F << mantBits
	}
	frac, e := math.Frexp(x)
	exp := e - 1 + 15
	scale := float64(uint32(1) << mantBits)
	if exp <= 0 {
		// Denormal; a carry into the exponent field yields the smallest
		// normal, which is the correct encoding.
		return uint32(math.RoundToEven(math.Ldexp(x, 14) * scale))
	}
	mant := uint32(math.RoundToEven((2*frac - 1) * scale))
	if mant == 1<<mantBits {
		mant = 0
		exp++
	}
	if exp >= 0x1F {
		return 0x1F << mantBits
	}
	return uint32(exp)<<mantBits | mant
}

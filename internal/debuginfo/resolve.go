package debuginfo

import (
	"shaderdebug/internal/ir"
	"shaderdebug/internal/value"
)

// Lookup returns the current value of an Id, or false when it is not live.
type Lookup func(ir.Id) (value.Value, bool)

// Resolve builds the value of sv from the Ids it refers to. It reports
// false when any referenced Id is unavailable.
func (sv SourceVariable) Resolve(lookup Lookup) (value.Value, bool) {
	if sv.Whole {
		if len(sv.Refs) == 0 {
			return value.Value{}, false
		}
		v, ok := lookup(sv.Refs[0].Id)
		if !ok {
			return value.Value{}, false
		}
		v = v.Clone()
		v.Name = sv.Name
		return v, true
	}
	if sv.Type == value.Struct {
		out := value.Value{Name: sv.Name, Type: value.Struct, Members: make([]value.Value, len(sv.Members))}
		for i, m := range sv.Members {
			mv, ok := m.Resolve(lookup)
			if !ok {
				return value.Value{}, false
			}
			out.Members[i] = mv
		}
		return out, true
	}
	out := value.Value{Name: sv.Name, Type: sv.Type, Rows: uint8(sv.Rows), Columns: uint8(sv.Columns)}
	for k, ref := range sv.Refs {
		if k >= value.MaxComponents {
			break
		}
		src, ok := lookup(ref.Id)
		if !ok {
			return value.Value{}, false
		}
		bits, ok := componentAt(src, ref.ByteOffset)
		if !ok {
			return value.Value{}, false
		}
		out.SetBits(k, bits)
	}
	return out, true
}

// componentAt returns the scalar stored at byte off of v's packed layout.
func componentAt(v value.Value, off uint32) (uint64, bool) {
	if v.IsAggregate() {
		for _, m := range v.Members {
			size := packedSize(m)
			if off < size {
				return componentAt(m, off)
			}
			off -= size
		}
		return 0, false
	}
	w := uint32(max(v.Type.ByteSize(), 1))
	k := int(off / w)
	if off%w != 0 || k >= v.Len() {
		return 0, false
	}
	return v.Bits(k), true
}

func packedSize(v value.Value) uint32 {
	if v.IsAggregate() {
		var n uint32
		for _, m := range v.Members {
			n += packedSize(m)
		}
		return n
	}
	return uint32(max(v.Type.ByteSize(), 1) * v.Len())
}

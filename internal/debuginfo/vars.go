package debuginfo

import (
	"slices"

	"shaderdebug/internal/ir"
	"shaderdebug/internal/value"
)

// ComponentRef locates one scalar of a source variable inside the value of
// an Id: the scalar stored ByteOffset bytes into the Id's packed layout.
type ComponentRef struct {
	Id         ir.Id
	ByteOffset uint32
}

// SourceVariable is one user-visible variable, or part of one, at an
// instruction.
type SourceVariable struct {
	Name    string
	Type    value.VarType
	Rows    int
	Columns int
	// Layout is the declared storage order of a matrix. Refs of a matrix
	// are in storage order.
	Layout ir.MatrixLayout
	// Offset is the byte offset of this part within the whole variable.
	Offset uint32
	// Refs holds one entry per scalar of a scalar, vector or matrix.
	Refs []ComponentRef
	// Members holds the parts of a struct or array.
	Members []SourceVariable
	// Whole is set when the variable's type is unknown; the value is then
	// the whole value of Refs[0].Id.
	Whole bool
}

type source struct {
	set bool
	id  ir.Id
	// base is the variable offset held by byte 0 of the Id.
	base uint32
}

// varNode mirrors one node of a variable's type while mappings are applied.
type varNode struct {
	name     string
	shape    shape
	offset   uint32
	src      source
	emit     bool
	children []varNode
}

// VariablesAt returns the source variables visible when instruction idx is
// about to execute. Variables appear in order of their first mapping.
func (info *Info) VariablesAt(idx int) []SourceVariable {
	if vars, ok := info.visible[idx]; ok {
		return vars
	}
	vars := info.reconstruct(idx)
	info.visible[idx] = vars
	return vars
}

func (info *Info) reconstruct(idx int) []SourceVariable {
	var processed []Mapping
	var order []int
	for _, s := range info.enclosing(idx) {
		mappings := info.Scopes[s].Mappings
		for m, mapping := range mappings {
			if mapping.Instruction > idx {
				break
			}
			if superseded(mappings[m+1:], mapping, idx) {
				continue
			}
			processed = append(processed, mapping)
			if !slices.Contains(order, mapping.Variable) {
				order = append(order, mapping.Variable)
			}
		}
	}

	// Phase one: apply the mappings of each variable in program order to a
	// tree shaped like its type.
	roots := make(map[int]*varNode, len(order))
	for _, v := range order {
		local := &info.prog.Debug.Locals[v]
		root := &varNode{shape: info.shapeOf(local.Type)}
		for _, m := range processed {
			if m.Variable != v {
				continue
			}
			root.name = m.Name
			info.apply(root, m)
		}
		roots[v] = root
	}

	// Phase two: emit every flagged node.
	var out []SourceVariable
	for _, v := range order {
		info.emit(roots[v], &out)
	}
	return out
}

// superseded reports whether a later mapping visible at idx covers m.
func superseded(later []Mapping, m Mapping, idx int) bool {
	for _, l := range later {
		if l.Instruction > idx {
			return false
		}
		if l.Instruction > m.Instruction && l.Covers(m) {
			return true
		}
	}
	return false
}

func (info *Info) apply(n *varNode, m Mapping) {
	start := m.ByteOffset
	end := ^uint32(0)
	if m.ByteCount != 0 {
		end = m.ByteOffset + m.ByteCount
	}
	nodeEnd := n.offset + n.shape.size
	if end <= n.offset || start >= nodeEnd && n.shape.size > 0 {
		return
	}

	full := start <= n.offset && end >= nodeEnd
	if full || n.shape.kind == shapeScalar || n.shape.kind == shapeUnknown {
		base := start
		if !full {
			base = n.offset
		}
		n.src = source{set: true, id: m.Id, base: base}
		n.children = nil
		n.emit = true
		return
	}

	// Partial cover: show the parts instead of the node.
	if len(n.children) == 0 {
		for _, c := range info.children(n.shape) {
			n.children = append(n.children, varNode{
				name:   n.name + c.name,
				shape:  c.shape,
				offset: n.offset + c.offset,
				src:    n.src,
				emit:   n.emit,
			})
		}
	} else if n.emit {
		for i := range n.children {
			n.children[i].emit = true
			n.children[i].src = n.src
			n.children[i].children = nil
		}
	}
	n.emit = false
	for i := range n.children {
		info.apply(&n.children[i], m)
	}

	if n.shape.kind == shapeVector {
		n.collapse()
	}
}

// collapse folds a vector whose components all come from one contiguous
// Id back into a single node.
func (n *varNode) collapse() {
	if len(n.children) == 0 {
		return
	}
	first := n.children[0].src
	for _, c := range n.children {
		if !c.emit || !c.src.set || c.src.id != first.id || c.src.base != first.base {
			return
		}
	}
	n.src = first
	n.children = nil
	n.emit = true
}

func (info *Info) emit(n *varNode, out *[]SourceVariable) {
	if !n.emit {
		for i := range n.children {
			info.emit(&n.children[i], out)
		}
		return
	}
	if !n.src.set {
		return
	}
	*out = append(*out, info.materialise(n.name, n.shape, n.offset, n.src))
}

// materialise describes a fully mapped node of shape s.
func (info *Info) materialise(name string, s shape, offset uint32, src source) SourceVariable {
	sv := SourceVariable{
		Name:    name,
		Type:    s.scalar,
		Rows:    s.rows,
		Columns: s.cols,
		Layout:  s.layout,
		Offset:  offset,
	}
	switch s.kind {
	case shapeScalar, shapeVector, shapeMatrix:
		for k := 0; k < s.rows*s.cols; k++ {
			sv.Refs = append(sv.Refs, ComponentRef{Id: src.id, ByteOffset: offset - src.base + uint32(k)*s.elemSize})
		}
	case shapeArray, shapeStruct:
		sv.Type = value.Struct
		for _, c := range info.children(s) {
			sv.Members = append(sv.Members, info.materialise(name+c.name, c.shape, offset+c.offset, src))
		}
	default:
		sv.Type = value.Unknown
		sv.Rows, sv.Columns = 1, 1
		sv.Whole = true
		sv.Refs = []ComponentRef{{Id: src.id}}
	}
	return sv
}

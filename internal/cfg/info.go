package cfg

import (
	"slices"

	"shaderdebug/internal/ir"
)

// ExecutionPoint is a position in a function: a block and the index of an
// instruction in the function's instruction list.
type ExecutionPoint struct {
	Block       int
	Instruction int
}

// IsAfter reports whether p executes after o. Points in one block compare by
// instruction index; points in different blocks compare by reachability.
func (p ExecutionPoint) IsAfter(o ExecutionPoint, flow *ControlFlow) bool {
	if p.Block == o.Block {
		return p.Instruction > o.Instruction
	}
	return flow.IsForwardConnection(o.Block, p.Block)
}

// FunctionInfo is the static data of one function shared by every lane.
type FunctionInfo struct {
	Function *ir.Function
	// GlobalOffset is the index of the function's first instruction in the
	// program-wide instruction numbering.
	GlobalOffset int
	Flow         *ControlFlow

	// ReferencedIds lists every Id read by an instruction, ascending.
	ReferencedIds []ir.Id
	// MaxExecPoint is the last point at which each referenced Id is read.
	// Ids without an entry stay live until the function returns.
	MaxExecPoint map[ir.Id]ExecutionPoint
	// PhiReferencedIdsPerBlock lists the Ids read by the phis of each block.
	PhiReferencedIdsPerBlock map[int][]ir.Id

	// Callstacks holds the source callstack of every instruction, indexed
	// by function-local instruction index. Nil entries have no debug info.
	Callstacks [][]string

	pinned map[ir.Id]bool
}

// BuildFunctionInfo analyses fn, whose first instruction has program-wide
// index globalOffset.
func BuildFunctionInfo(fn *ir.Function, globalOffset int) *FunctionInfo {
	fi := &FunctionInfo{
		Function:                 fn,
		GlobalOffset:             globalOffset,
		Flow:                     FromFunction(fn),
		MaxExecPoint:             make(map[ir.Id]ExecutionPoint),
		PhiReferencedIdsPerBlock: make(map[int][]ir.Id),
		Callstacks:               make([][]string, len(fn.Instructions)),
		pinned:                   make(map[ir.Id]bool),
	}
	referenced := make(map[ir.Id]struct{})

	for b := range fn.Blocks {
		blk := &fn.Blocks[b]
		for i := blk.Start; i < blk.End; i++ {
			in := &fn.Instructions[i]
			// Debug records do not keep values alive on their own; their
			// extents come from scope information.
			if in.Op.IsAdministrative() {
				continue
			}
			for oi, op := range in.Operands {
				if op.Kind != ir.OperandId {
					continue
				}
				at := ExecutionPoint{Block: b, Instruction: i}
				if in.Op == ir.OpPhi && oi < len(in.Targets) {
					// An incoming value is consumed on the edge, at the end
					// of the predecessor.
					pred := in.Targets[oi]
					if pred >= 0 && pred < len(fn.Blocks) {
						at = ExecutionPoint{Block: pred, Instruction: fn.Blocks[pred].End - 1}
					}
					ids := fi.PhiReferencedIdsPerBlock[b]
					if !slices.Contains(ids, op.Id) {
						fi.PhiReferencedIdsPerBlock[b] = append(ids, op.Id)
					}
				}
				fi.ExtendLiveness(op.Id, at)
				referenced[op.Id] = struct{}{}
			}
		}
	}

	fi.ReferencedIds = make([]ir.Id, 0, len(referenced))
	for id := range referenced {
		fi.ReferencedIds = append(fi.ReferencedIds, id)
	}
	slices.Sort(fi.ReferencedIds)
	return fi
}

// ExtendLiveness keeps id alive at least until point at. A point inside a
// loop keeps the Id alive until the first uniform block after the loop, or
// for the rest of the function when the loop has no uniform exit.
func (fi *FunctionInfo) ExtendLiveness(id ir.Id, at ExecutionPoint) {
	if fi.pinned[id] {
		return
	}
	if fi.Flow.IsLoop(at.Block) {
		next := fi.Flow.NextUniformBlock(at.Block)
		if next == at.Block {
			fi.pinned[id] = true
			delete(fi.MaxExecPoint, id)
			return
		}
		at = ExecutionPoint{Block: next, Instruction: fi.Function.Blocks[next].Start}
	}
	cur, ok := fi.MaxExecPoint[id]
	if !ok || at.IsAfter(cur, fi.Flow) {
		fi.MaxExecPoint[id] = at
	}
}

// PointOf returns the execution point of function-local instruction idx.
func (fi *FunctionInfo) PointOf(idx int) ExecutionPoint {
	return ExecutionPoint{Block: fi.Function.BlockOf(idx), Instruction: idx}
}

// IsDead reports whether id is no longer needed once execution has reached
// point at.
func (fi *FunctionInfo) IsDead(id ir.Id, at ExecutionPoint) bool {
	maxPoint, ok := fi.MaxExecPoint[id]
	if !ok {
		return false
	}
	return at.IsAfter(maxPoint, fi.Flow)
}

// Callstack returns the source callstack at function-local instruction idx.
func (fi *FunctionInfo) Callstack(idx int) []string {
	if idx < 0 || idx >= len(fi.Callstacks) {
		return nil
	}
	return fi.Callstacks[idx]
}

// BlockEntry returns the first instruction of block b that is not a debug
// record, or the block's terminator when there is none.
func (fi *FunctionInfo) BlockEntry(b int) int {
	blk := &fi.Function.Blocks[b]
	for i := blk.Start; i < blk.End; i++ {
		if !fi.Function.Instructions[i].Op.IsAdministrative() {
			return i
		}
	}
	return blk.End - 1
}

// Package cfg analyses the control flow of one function: uniform, divergent,
// convergent and loop blocks, reachability between blocks, and per-Id
// liveness extents.
package cfg

import (
	"slices"

	"github.com/bits-and-blooms/bitset"
	"gonum.org/v1/gonum/graph/flow"
	"gonum.org/v1/gonum/graph/simple"

	"shaderdebug/internal/ir"
)

// Link is a control-flow edge between two blocks.
type Link struct {
	From int
	To   int
}

// Convergence pairs a divergent block with the block its lanes re-merge at.
type Convergence struct {
	Divergent  int
	Convergent int
}

// ControlFlow is the analysed block graph of one function. Block 0 is the
// entry block.
//
// A block is uniform when every path from the entry to the function exit
// passes through it and it is not part of a loop. The convergent block of a
// divergent block is the first block on every forward path leaving it; back
// edges are not followed, and paths that can never leave a loop are ignored.
type ControlFlow struct {
	n    int
	succ [][]int
	dag  [][]int

	ipdom      []int
	uniform    []int
	loops      []int
	divergent  []int
	convergent []Convergence

	isUniform []bool
	isLoop    []bool
	reach     []*bitset.BitSet
}

// New analyses a graph of blockCount blocks joined by links.
func New(blockCount int, links []Link) *ControlFlow {
	f := &ControlFlow{
		n:         blockCount,
		succ:      make([][]int, blockCount),
		isUniform: make([]bool, blockCount),
		isLoop:    make([]bool, blockCount),
		reach:     make([]*bitset.BitSet, blockCount),
	}
	for _, l := range links {
		if l.From < 0 || l.From >= blockCount || l.To < 0 || l.To >= blockCount {
			continue
		}
		if !slices.Contains(f.succ[l.From], l.To) {
			f.succ[l.From] = append(f.succ[l.From], l.To)
		}
	}
	if blockCount == 0 {
		return f
	}

	f.findBackEdges()
	f.computePostDominators()

	for b := 0; b < f.n; b++ {
		if f.IsForwardConnection(b, b) {
			f.isLoop[b] = true
			f.loops = append(f.loops, b)
		}
		if len(f.succ[b]) > 1 {
			f.divergent = append(f.divergent, b)
		}
	}

	// The entry block is always uniform; the rest of the post-dominator
	// chain from it is uniform unless it lies in a loop.
	f.markUniform(0)
	for b := f.ipdom[0]; b >= 0 && b < f.n; b = f.ipdom[b] {
		if !f.isLoop[b] {
			f.markUniform(b)
		}
	}
	slices.Sort(f.uniform)

	for _, d := range f.divergent {
		if c := f.ipdom[d]; c >= 0 && c < f.n {
			f.convergent = append(f.convergent, Convergence{Divergent: d, Convergent: c})
		}
	}
	return f
}

// FromFunction analyses the block graph of fn.
func FromFunction(fn *ir.Function) *ControlFlow {
	var links []Link
	for b := range fn.Blocks {
		for _, s := range fn.Successors(b) {
			links = append(links, Link{From: b, To: s})
		}
	}
	return New(len(fn.Blocks), links)
}

func (f *ControlFlow) markUniform(b int) {
	if !f.isUniform[b] {
		f.isUniform[b] = true
		f.uniform = append(f.uniform, b)
	}
}

// findBackEdges builds the forward graph by dropping edges that close a
// cycle in a depth-first walk from the entry.
func (f *ControlFlow) findBackEdges() {
	const (
		unseen = iota
		onStack
		done
	)
	state := make([]uint8, f.n)
	f.dag = make([][]int, f.n)

	type frame struct{ b, next int }
	walk := func(root int) {
		stack := []frame{{b: root}}
		state[root] = onStack
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next >= len(f.succ[top.b]) {
				state[top.b] = done
				stack = stack[:len(stack)-1]
				continue
			}
			to := f.succ[top.b][top.next]
			top.next++
			if state[to] == onStack {
				continue
			}
			f.dag[top.b] = append(f.dag[top.b], to)
			if state[to] == unseen {
				state[to] = onStack
				stack = append(stack, frame{b: to})
			}
		}
	}
	for b := 0; b < f.n; b++ {
		if state[b] == unseen {
			walk(b)
		}
	}
}

// computePostDominators computes immediate post-dominators as the
// dominators of the reversed forward graph, rooted at a virtual exit node n
// that every block without successors leads to. Blocks the exit cannot
// reach keep -1.
func (f *ControlFlow) computePostDominators() {
	exit := int64(f.n)
	g := simple.NewDirectedGraph()
	for b := 0; b <= f.n; b++ {
		g.AddNode(simple.Node(b))
	}
	for u := 0; u < f.n; u++ {
		for _, v := range f.dag[u] {
			g.SetEdge(g.NewEdge(simple.Node(v), simple.Node(u)))
		}
		if len(f.succ[u]) == 0 {
			g.SetEdge(g.NewEdge(simple.Node(exit), simple.Node(u)))
		}
	}
	tree := flow.Dominators(simple.Node(exit), g)

	f.ipdom = make([]int, f.n+1)
	for b := range f.ipdom {
		f.ipdom[b] = -1
	}
	f.ipdom[exit] = int(exit)
	for b := 0; b < f.n; b++ {
		if d := tree.DominatorOf(int64(b)); d != nil {
			f.ipdom[b] = int(d.ID())
		}
	}
}

// BlockCount returns the number of blocks in the graph.
func (f *ControlFlow) BlockCount() int { return f.n }

// Successors returns the distinct successors of b.
func (f *ControlFlow) Successors(b int) []int { return f.succ[b] }

func (f *ControlFlow) UniformBlocks() []int { return slices.Clone(f.uniform) }
func (f *ControlFlow) LoopBlocks() []int { return slices.Clone(f.loops) }
func (f *ControlFlow) DivergentBlocks() []int { return slices.Clone(f.divergent) }
func (f *ControlFlow) ConvergentBlocks() []Convergence { return slices.Clone(f.convergent) }

func (f *ControlFlow) IsUniform(b int) bool { return b >= 0 && b < f.n && f.isUniform[b] }
func (f *ControlFlow) IsLoop(b int) bool { return b >= 0 && b < f.n && f.isLoop[b] }

// ConvergentBlock returns the block lanes diverging at b re-merge at.
func (f *ControlFlow) ConvergentBlock(b int) (int, bool) {
	for _, c := range f.convergent {
		if c.Divergent == b {
			return c.Convergent, true
		}
	}
	return 0, false
}

// NextUniformBlock returns the uniform block reachable from from in the
// fewest steps, or from itself when none is reachable.
func (f *ControlFlow) NextUniformBlock(from int) int {
	if from < 0 || from >= f.n {
		return from
	}
	dist := make([]int, f.n)
	for i := range dist {
		dist[i] = -1
	}
	var queue []int
	for _, s := range f.succ[from] {
		if dist[s] == -1 {
			dist[s] = 0
			queue = append(queue, s)
		}
	}
	best := -1
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		if best != -1 && dist[b] > dist[best] {
			break
		}
		if f.isUniform[b] && (best == -1 || b < best) {
			best = b
		}
		for _, s := range f.succ[b] {
			if dist[s] == -1 {
				dist[s] = dist[b] + 1
				queue = append(queue, s)
			}
		}
	}
	if best == -1 {
		return from
	}
	return best
}

// IsForwardConnection reports whether to is reachable from from along a
// non-empty path, loops included.
func (f *ControlFlow) IsForwardConnection(from, to int) bool {
	if from < 0 || from >= f.n || to < 0 || to >= f.n {
		return false
	}
	if f.reach[from] == nil {
		r := bitset.New(uint(f.n))
		queue := slices.Clone(f.succ[from])
		for _, s := range queue {
			r.Set(uint(s))
		}
		for len(queue) > 0 {
			b := queue[0]
			queue = queue[1:]
			for _, s := range f.succ[b] {
				if !r.Test(uint(s)) {
					r.Set(uint(s))
					queue = append(queue, s)
				}
			}
		}
		f.reach[from] = r
	}
	return f.reach[from].Test(uint(to))
}

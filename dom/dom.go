// Package dom computes dominator and post-dominator trees of an ir.Func.
//
// The trees are snapshots: any change to the control flow of the function
// invalidates them.
package dom

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/flow"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/nickng/loopopt/ir"
)

// Tree is a dominator (or post-dominator) tree over the blocks of a Func.
type Tree struct {
	idom  map[ir.BlockID]ir.BlockID
	depth map[ir.BlockID]int
	root  ir.BlockID
}

// virtualExit is the synthetic root of the post-dominator tree, joining
// every block that ends in a return.
const virtualExit = ir.BlockID(-2)

// New computes the dominator tree of fn rooted at its entry.
func New(fn *ir.Func) *Tree {
	g := simple.NewDirectedGraph()
	for _, b := range fn.Blocks() {
		g.AddNode(simple.Node(b))
	}
	for _, b := range fn.Blocks() {
		for _, s := range fn.Succs(b) {
			setEdge(g, int64(b), int64(s))
		}
	}
	return build(g, fn.Entry())
}

// NewPost computes the post-dominator tree of fn, rooted at a virtual exit
// that every returning block flows into.
func NewPost(fn *ir.Func) *Tree {
	g := simple.NewDirectedGraph()
	exit := exitNode(fn)
	g.AddNode(simple.Node(exit))
	for _, b := range fn.Blocks() {
		g.AddNode(simple.Node(b))
	}
	for _, b := range fn.Blocks() {
		t := fn.Terminator(b)
		if t != nil && t.TermKind() == ir.TermRet {
			setEdge(g, exit, int64(b))
		}
		for _, s := range fn.Succs(b) {
			setEdge(g, int64(s), int64(b))
		}
	}
	t := build(g, ir.BlockID(exit))
	t.root = virtualExit
	// Re-label the synthetic root so callers never see the arena slot.
	for b, d := range t.idom {
		if d == ir.BlockID(exit) {
			t.idom[b] = virtualExit
		}
	}
	delete(t.idom, ir.BlockID(exit))
	delete(t.depth, ir.BlockID(exit))
	return t
}

// exitNode picks a node ID that no block of fn uses.
func exitNode(fn *ir.Func) int64 {
	return int64(fn.NumBlockSlots())
}

func setEdge(g *simple.DirectedGraph, from, to int64) {
	if from == to || g.HasEdgeFromTo(from, to) {
		return // simple graphs reject self loops; they never affect dominance.
	}
	g.SetEdge(g.NewEdge(g.Node(from), g.Node(to)))
}

func build(g graph.Directed, root ir.BlockID) *Tree {
	t := &Tree{
		idom:  make(map[ir.BlockID]ir.BlockID),
		depth: make(map[ir.BlockID]int),
		root:  root,
	}
	if root == ir.NoBlock {
		return t
	}
	dt := flow.Dominators(g.Node(int64(root)), g)
	nodes := g.Nodes()
	for nodes.Next() {
		id := nodes.Node().ID()
		if d := dt.DominatorOf(id); d != nil {
			t.idom[ir.BlockID(id)] = ir.BlockID(d.ID())
		}
	}
	t.idom[root] = ir.NoBlock
	for b := range t.idom {
		t.depthOf(b)
	}
	return t
}

func (t *Tree) depthOf(b ir.BlockID) int {
	if d, ok := t.depth[b]; ok {
		return d
	}
	p, ok := t.idom[b]
	if !ok || p == ir.NoBlock {
		t.depth[b] = 0
		return 0
	}
	d := t.depthOf(p) + 1
	t.depth[b] = d
	return d
}

// Root returns the root of the tree. The root of a post-dominator tree is a
// virtual block and compares unequal to every real block.
func (t *Tree) Root() ir.BlockID { return t.root }

// IsReachable reports whether b is part of the tree, i.e. reachable from
// the entry (or, for a post-dominator tree, reaches a return).
func (t *Tree) IsReachable(b ir.BlockID) bool {
	_, ok := t.idom[b]
	return ok
}

// Idom returns the immediate (post-)dominator of b, or NoBlock for the root
// and for blocks outside the tree.
func (t *Tree) Idom(b ir.BlockID) ir.BlockID {
	d, ok := t.idom[b]
	if !ok || d == virtualExit {
		return ir.NoBlock
	}
	return d
}

// Dominates reports whether x dominates y (post-dominates, for a tree built
// by NewPost). Every block dominates itself. A block outside the tree is
// dominated by everything, matching the convention for unreachable code.
func (t *Tree) Dominates(x, y ir.BlockID) bool {
	if x == y {
		return true
	}
	if !t.IsReachable(y) {
		return true
	}
	if !t.IsReachable(x) {
		return false
	}
	dx := t.depth[x]
	for t.depth[y] > dx {
		y = t.idom[y]
	}
	return x == y
}

// StrictlyDominates reports whether x dominates y and x != y.
func (t *Tree) StrictlyDominates(x, y ir.BlockID) bool {
	return x != y && t.Dominates(x, y)
}

// Children returns the blocks immediately dominated by b.
func (t *Tree) Children(b ir.BlockID) []ir.BlockID {
	var kids []ir.BlockID
	for x, d := range t.idom {
		if d == b && x != b {
			kids = append(kids, x)
		}
	}
	sort.Slice(kids, func(i, j int) bool { return kids[i] < kids[j] })
	return kids
}

// InstrDominates reports whether instruction x dominates instruction y:
// either x's block strictly dominates y's, or both share a block and x comes
// first.
func InstrDominates(fn *ir.Func, t *Tree, x, y ir.InstrID) bool {
	bx, by := fn.Instr(x).Block, fn.Instr(y).Block
	if bx != by {
		return t.Dominates(bx, by)
	}
	for _, id := range fn.Block(bx).Instrs {
		if id == x {
			return true
		}
		if id == y {
			return false
		}
	}
	return false
}

package loop

import (
	"sort"

	"github.com/oleiade/lane"

	"github.com/nickng/loopopt/dom"
	"github.com/nickng/loopopt/ir"
)

// Forest holds the loops of a function.
type Forest struct {
	fn       *ir.Func
	byHeader map[ir.BlockID]*Loop
}

// Discover finds the natural loops of fn using its dominator tree.
func Discover(fn *ir.Func, dt *dom.Tree) *Forest {
	f := &Forest{fn: fn, byHeader: make(map[ir.BlockID]*Loop)}
	var loops []*Loop
	for _, h := range fn.Blocks() {
		if !dt.IsReachable(h) {
			continue
		}
		var latches []ir.BlockID
		for _, p := range fn.Preds(h) {
			if dt.IsReachable(p) && dt.Dominates(h, p) {
				latches = append(latches, p)
			}
		}
		if len(latches) == 0 {
			continue
		}
		l := newLoop(fn, h)
		collect(fn, l, latches)
		l.sortBlocks()
		f.byHeader[h] = l
		loops = append(loops, l)
	}
	f.nest(loops)
	return f
}

// collect walks predecessors from the latches up to the header.
func collect(fn *ir.Func, l *Loop, latches []ir.BlockID) {
	work := lane.NewStack()
	for _, b := range latches {
		if !l.members[b] {
			l.members[b] = true
			work.Push(b)
		}
	}
	l.blocks = append(l.blocks, l.header)
	for !work.Empty() {
		b := work.Pop().(ir.BlockID)
		l.blocks = append(l.blocks, b)
		for _, p := range fn.Preds(b) {
			if !l.members[p] {
				l.members[p] = true
				work.Push(p)
			}
		}
	}
}

// nest links every loop to the smallest other loop containing its header.
func (f *Forest) nest(loops []*Loop) {
	bySize := append([]*Loop(nil), loops...)
	sort.SliceStable(bySize, func(i, j int) bool { return len(bySize[i].blocks) < len(bySize[j].blocks) })
	for _, l := range loops {
		for _, m := range bySize {
			if m != l && m.members[l.header] && len(m.blocks) >= len(l.blocks) {
				l.parent = m
				m.children = append(m.children, l)
				break
			}
		}
	}
}

// Func returns the function the forest describes.
func (f *Forest) Func() *ir.Func { return f.fn }

// TopLevel returns the outermost loops in header layout order.
func (f *Forest) TopLevel() []*Loop {
	var top []*Loop
	for _, l := range f.Loops() {
		if l.parent == nil {
			top = append(top, l)
		}
	}
	return top
}

// Loops returns every loop, parents before children, ordered by header
// layout position.
func (f *Forest) Loops() []*Loop {
	var all []*Loop
	for _, b := range f.fn.Blocks() {
		if l, ok := f.byHeader[b]; ok {
			all = append(all, l)
		}
	}
	return all
}

// Innermost returns the loops with no nested loop, ordered by header
// layout position.
func (f *Forest) Innermost() []*Loop {
	var inner []*Loop
	for _, l := range f.Loops() {
		if l.IsInnermost() {
			inner = append(inner, l)
		}
	}
	return inner
}

// LoopFor returns the innermost loop containing b, or nil.
func (f *Forest) LoopFor(b ir.BlockID) *Loop {
	var best *Loop
	for _, l := range f.byHeader {
		if l.members[b] && (best == nil || len(l.blocks) < len(best.blocks)) {
			best = l
		}
	}
	return best
}

// IsHeader reports whether b heads a loop.
func (f *Forest) IsHeader(b ir.BlockID) bool {
	_, ok := f.byHeader[b]
	return ok
}

// Merge drops gone from the forest once its body has been spliced into
// into. Every member of gone except its header and latch is re-parented to
// into, and loops nested in gone move under into.
func (f *Forest) Merge(into, gone *Loop, latch ir.BlockID) {
	for _, b := range gone.blocks {
		if b != gone.header && b != latch {
			into.addBlock(b)
		}
	}
	for _, c := range gone.children {
		c.parent = into
		into.children = append(into.children, c)
	}
	gone.children = nil
	f.Erase(gone)
}

// Erase removes l from the forest. Loops nested in l move up to l's parent;
// the blocks of l stay members of the loops enclosing it.
func (f *Forest) Erase(l *Loop) {
	delete(f.byHeader, l.header)
	p := l.parent
	if p != nil {
		for i, c := range p.children {
			if c == l {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
	}
	for _, c := range l.children {
		c.parent = p
		if p != nil {
			p.children = append(p.children, c)
		}
	}
	l.parent, l.children = nil, nil
}

// RemoveBlock drops b from every loop of the forest. Erasing a header
// erases its loop.
func (f *Forest) RemoveBlock(b ir.BlockID) {
	if l, ok := f.byHeader[b]; ok {
		f.Erase(l)
	}
	for _, l := range f.byHeader {
		l.removeBlock(b)
	}
}

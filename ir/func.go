package ir

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotInBlock  = errors.New("instruction is not in a block")
	ErrErasedBlock = errors.New("block is erased")
)

// Func is a function body: an arena of blocks and instructions plus the
// textual layout order of its live blocks. The first block of the layout is
// the entry.
type Func struct {
	Name     string
	ArgNames []string

	blocks []*Block
	instrs []*Instr
	layout []BlockID
}

// NewFunc returns an empty function with the given argument names.
func NewFunc(name string, args ...string) *Func {
	return &Func{Name: name, ArgNames: args}
}

// NumArgs returns the number of arguments.
func (f *Func) NumArgs() int { return len(f.ArgNames) }

// Block returns the block with arena index id.
func (f *Func) Block(id BlockID) *Block { return f.blocks[id] }

// Instr returns the instruction with arena index id.
func (f *Func) Instr(id InstrID) *Instr { return f.instrs[id] }

// NumBlockSlots returns the size of the block arena, including erased slots.
func (f *Func) NumBlockSlots() int { return len(f.blocks) }

// NumInstrSlots returns the size of the instruction arena, including erased
// slots.
func (f *Func) NumInstrSlots() int { return len(f.instrs) }

// Blocks returns the live blocks in layout order.
func (f *Func) Blocks() []BlockID {
	return append([]BlockID(nil), f.layout...)
}

// Entry returns the entry block, or NoBlock for an empty function.
func (f *Func) Entry() BlockID {
	if len(f.layout) == 0 {
		return NoBlock
	}
	return f.layout[0]
}

// IsLive reports whether b is a live block of f.
func (f *Func) IsLive(b BlockID) bool {
	return b >= 0 && int(b) < len(f.blocks) && !f.blocks[b].erased
}

// LayoutIndex returns the position of b in the layout, or -1.
func (f *Func) LayoutIndex(b BlockID) int {
	for i, x := range f.layout {
		if x == b {
			return i
		}
	}
	return -1
}

// NewBlock appends a new empty block to the layout.
func (f *Func) NewBlock(name string) BlockID {
	id := BlockID(len(f.blocks))
	f.blocks = append(f.blocks, &Block{ID: id, Name: name})
	f.layout = append(f.layout, id)
	return id
}

// MoveBlockBefore moves b in the layout so that it precedes pos.
func (f *Func) MoveBlockBefore(b, pos BlockID) {
	f.removeFromLayout(b)
	i := f.LayoutIndex(pos)
	if i < 0 {
		f.layout = append(f.layout, b)
		return
	}
	f.layout = append(f.layout, NoBlock)
	copy(f.layout[i+1:], f.layout[i:])
	f.layout[i] = b
}

// MoveBlockAfter moves b in the layout so that it follows pos.
func (f *Func) MoveBlockAfter(b, pos BlockID) {
	f.removeFromLayout(b)
	i := f.LayoutIndex(pos)
	if i < 0 || i == len(f.layout)-1 {
		f.layout = append(f.layout, b)
		return
	}
	f.layout = append(f.layout, NoBlock)
	copy(f.layout[i+2:], f.layout[i+1:])
	f.layout[i+1] = b
}

func (f *Func) removeFromLayout(b BlockID) {
	if i := f.LayoutIndex(b); i >= 0 {
		f.layout = append(f.layout[:i], f.layout[i+1:]...)
	}
}

// NewInstr creates a detached instruction in the arena.
func (f *Func) NewInstr(op Op, args ...Value) *Instr {
	in := &Instr{
		ID:    InstrID(len(f.instrs)),
		Op:    op,
		Args:  append([]Value(nil), args...),
		Block: NoBlock,
	}
	f.instrs = append(f.instrs, in)
	return in
}

// Append places a detached instruction at the end of block b.
func (f *Func) Append(b BlockID, id InstrID) {
	in := f.instrs[id]
	blk := f.blocks[b]
	blk.Instrs = append(blk.Instrs, id)
	in.Block = b
}

// InsertBefore places a detached instruction immediately before pos.
func (f *Func) InsertBefore(pos, id InstrID) error {
	at := f.instrs[pos]
	if at.Block == NoBlock {
		return errors.Wrapf(ErrNotInBlock, "insert before %s", Inst(pos))
	}
	blk := f.blocks[at.Block]
	i := blk.indexOf(pos)
	blk.Instrs = append(blk.Instrs, NoInstr)
	copy(blk.Instrs[i+1:], blk.Instrs[i:])
	blk.Instrs[i] = id
	f.instrs[id].Block = at.Block
	return nil
}

// InsertAfter places a detached instruction immediately after pos.
func (f *Func) InsertAfter(pos, id InstrID) error {
	at := f.instrs[pos]
	if at.Block == NoBlock {
		return errors.Wrapf(ErrNotInBlock, "insert after %s", Inst(pos))
	}
	blk := f.blocks[at.Block]
	i := blk.indexOf(pos) + 1
	blk.Instrs = append(blk.Instrs, NoInstr)
	copy(blk.Instrs[i+1:], blk.Instrs[i:])
	blk.Instrs[i] = id
	f.instrs[id].Block = at.Block
	return nil
}

// InsertAtStart places a detached instruction at the start of block b,
// after any phis when the instruction itself is not a phi.
func (f *Func) InsertAtStart(b BlockID, id InstrID) {
	blk := f.blocks[b]
	i := 0
	if f.instrs[id].Op != OpPhi {
		for i < len(blk.Instrs) && f.instrs[blk.Instrs[i]].Op == OpPhi {
			i++
		}
	}
	blk.Instrs = append(blk.Instrs, NoInstr)
	copy(blk.Instrs[i+1:], blk.Instrs[i:])
	blk.Instrs[i] = id
	f.instrs[id].Block = b
}

// Detach removes an instruction from its block but keeps it alive.
func (f *Func) Detach(id InstrID) {
	in := f.instrs[id]
	if in.Block == NoBlock {
		return
	}
	blk := f.blocks[in.Block]
	if i := blk.indexOf(id); i >= 0 {
		blk.Instrs = append(blk.Instrs[:i], blk.Instrs[i+1:]...)
	}
	in.Block = NoBlock
}

// MoveBefore moves an instruction (attached or not) immediately before pos.
func (f *Func) MoveBefore(id, pos InstrID) error {
	f.Detach(id)
	return f.InsertBefore(pos, id)
}

// Erase removes an instruction from the function for good. Its uses are
// left in place; callers replace them first.
func (f *Func) Erase(id InstrID) {
	f.Detach(id)
	f.instrs[id].erased = true
}

// Terminator returns the terminator of b, or nil if b does not end in one.
func (f *Func) Terminator(b BlockID) *Instr {
	blk := f.blocks[b]
	if len(blk.Instrs) == 0 {
		return nil
	}
	last := f.instrs[blk.Instrs[len(blk.Instrs)-1]]
	if !last.Op.IsTerminator() {
		return nil
	}
	return last
}

// Phis returns the phi instructions at the start of b.
func (f *Func) Phis(b BlockID) []InstrID {
	var phis []InstrID
	for _, id := range f.blocks[b].Instrs {
		if f.instrs[id].Op != OpPhi {
			break
		}
		phis = append(phis, id)
	}
	return phis
}

// IsSafeToSpeculate reports whether the instruction id can be executed on a
// path where it did not run before: it is pure and cannot trap.
func (f *Func) IsSafeToSpeculate(id InstrID) bool {
	in := f.instrs[id]
	if !in.Op.IsPure() {
		return false
	}
	switch in.Op {
	case OpSDiv, OpUDiv, OpSRem:
		d := in.Args[1]
		return d.IsConst() && d.Const != 0
	case OpShl, OpLShr, OpAShr:
		k := in.Args[1]
		return k.IsConst() && k.Const >= 0
	}
	return true
}

// Users returns the live instructions that use the result of id, in layout
// order.
func (f *Func) Users(id InstrID) []InstrID {
	v := Inst(id)
	var users []InstrID
	f.eachInstr(func(in *Instr) {
		if in.Uses(v) {
			users = append(users, in.ID)
		}
	})
	return users
}

// HasUsers reports whether any live instruction uses the result of id.
func (f *Func) HasUsers(id InstrID) bool {
	v := Inst(id)
	for _, b := range f.layout {
		for _, x := range f.blocks[b].Instrs {
			if f.instrs[x].Uses(v) {
				return true
			}
		}
	}
	return false
}

// ReplaceAllUsesWith rewrites every use of the result of id to v.
func (f *Func) ReplaceAllUsesWith(id InstrID, v Value) int {
	old := Inst(id)
	n := 0
	f.eachInstr(func(in *Instr) {
		for i, a := range in.Args {
			if a == old {
				in.Args[i] = v
				n++
			}
		}
	})
	return n
}

// eachInstr visits live instructions in layout order.
func (f *Func) eachInstr(visit func(*Instr)) {
	for _, b := range f.layout {
		for _, id := range f.blocks[b].Instrs {
			visit(f.instrs[id])
		}
	}
}

// Instrs returns all live instructions in layout order.
func (f *Func) Instrs() []InstrID {
	var ids []InstrID
	f.eachInstr(func(in *Instr) { ids = append(ids, in.ID) })
	return ids
}

// BlockName returns a printable label for b.
func (f *Func) BlockName(b BlockID) string {
	if b == NoBlock {
		return "<none>"
	}
	if name := f.blocks[b].Name; name != "" {
		return fmt.Sprintf("b%d.%s", b, name)
	}
	return fmt.Sprintf("b%d", b)
}

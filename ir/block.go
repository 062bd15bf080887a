package ir

// Block is a basic block: an ordered list of instructions, the last of
// which is the terminator.
type Block struct {
	ID     BlockID
	Name   string
	Instrs []InstrID

	erased bool
}

// IsErased reports whether the block has been removed from its Func.
func (b *Block) IsErased() bool { return b.erased }

// Len returns the number of instructions in the block.
func (b *Block) Len() int { return len(b.Instrs) }

func (b *Block) indexOf(id InstrID) int {
	for i, x := range b.Instrs {
		if x == id {
			return i
		}
	}
	return -1
}

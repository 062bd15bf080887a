// Package ir is a small control-flow-graph IR used by the loop optimizer.
//
// A Func is an arena of blocks and instructions addressed by stable indices
// (BlockID and InstrID). Control flow is explicit in the successor list of a
// block's terminator, and data flow in the operand list of each instruction.
// Mutation is index rewiring: erasing a block or an instruction leaves its
// arena slot in place, so an ID held by an analysis never dangles, it only
// refers to something that is no longer live.
//
// Operands are a tagged sum (Value) over constants, function arguments and
// instruction results; terminators are a tagged sum (TermKind) over
// conditional branches, unconditional branches and returns.
package ir

// Package fusion merges adjacent loops that iterate the same number of
// times into a single loop.
//
// Two loops A and B, A before B, are fused when
//
//   - control leaving A flows straight into B, and whatever runs in between
//     can be hoisted above A,
//   - their symbolic trip counts are equal,
//   - B runs whenever A runs and the other way round,
//   - no instruction of B needs a value A computes in a later iteration.
//
// The fused loop keeps the header, latch and induction variable of A and
// runs the body of B after the body of A on every iteration.
//
// A Pass repeats this until no pair is left: every fusion invalidates the
// loop forest, dominators, trip counts and dependences, so they are
// recomputed from scratch through an AnalysisProvider before the next
// candidate pair is tried.
package fusion

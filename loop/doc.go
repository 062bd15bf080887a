// Package loop discovers natural loops of an ir.Func and exposes their
// structure.
//
// Loops are found from back edges: an edge whose target dominates its
// source. The blocks of a loop are collected by walking predecessors from
// the back edge sources up to the header. Loops sharing a header are one
// loop. The loops form a forest ordered by containment, and within the
// forest by the layout position of their headers.
//
// Simplify rewrites loops into a canonical shape: a preheader, a single
// dedicated latch and dedicated exit blocks.
package loop

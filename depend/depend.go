// Package depend classifies data dependences between pairs of instructions
// of two loops.
//
// Memory accesses are compared with an affine subscript test. The address
// of every access is split into a base object and an index; indexes are
// expanded into affine functions of the canonical induction variable of
// the enclosing loop, and of values invariant in that loop. Two accesses
// to the same base touch the same element at iterations k and k' when
//
//	α·k + oSrc = α·k' + oDst
//
// so the dependence distance k - k' is (oDst - oSrc) / α. Anything the test
// cannot decide is Confused.
package depend

import (
	"fmt"

	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/loop"
	"github.com/nickng/loopopt/scev"
)

// Kind classifies a dependence.
type Kind uint8

const (
	None     Kind = iota // No dependence.
	Forward              // Both ends in the same iteration, source first.
	Anti                 // The destination needs a later iteration of the source.
	Confused             // Unknown or not provably ordered.
)

var kindNames = [...]string{None: "none", Forward: "forward", Anti: "anti", Confused: "confused"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Result is the dependence between a source and a destination instruction.
type Result struct {
	Kind        Kind
	LoopCarried bool  // The two ends are in different iterations.
	Distance    int64 // Iteration distance when known and LoopCarried.
}

func (r Result) String() string {
	if r.LoopCarried && r.Distance != 0 {
		return fmt.Sprintf("%s (distance %d)", r.Kind, r.Distance)
	}
	if r.LoopCarried {
		return fmt.Sprintf("%s (loop carried)", r.Kind)
	}
	return r.Kind.String()
}

// Oracle answers dependence queries on one function. It is a snapshot: any
// change to the function invalidates it.
type Oracle struct {
	fn          *ir.Func
	forest      *loop.Forest
	argsNoAlias bool
	ivs         map[*loop.Loop]*loop.Info
}

// Option configures an Oracle.
type Option func(*Oracle)

// ArgsNoAlias asserts that distinct arguments never refer to overlapping
// memory. Without it, two arguments may be slices of the same array.
func ArgsNoAlias(noAlias bool) Option {
	return func(o *Oracle) { o.argsNoAlias = noAlias }
}

// New returns an Oracle for the function described by forest.
func New(forest *loop.Forest, opts ...Option) *Oracle {
	o := &Oracle{
		fn:     forest.Func(),
		forest: forest,
		ivs:    make(map[*loop.Loop]*loop.Info),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Depends classifies the dependence of dst on src, where src executes
// before dst in program order. With crossLoopOnly, pairs within a single
// loop report None.
func (o *Oracle) Depends(src, dst ir.InstrID, crossLoopOnly bool) Result {
	si, di := o.fn.Instr(src), o.fn.Instr(dst)
	ls, ld := o.forest.LoopFor(si.Block), o.forest.LoopFor(di.Block)
	if crossLoopOnly && ls == ld {
		return Result{Kind: None}
	}
	if ls != nil && ls != ld && di.Uses(si.Value()) {
		// A value produced inside a loop reaches another loop: which
		// iteration's value flows is not expressible as a distance.
		return Result{Kind: Confused, LoopCarried: true}
	}
	sa, da := accessOf(si), accessOf(di)
	if sa.kind == noAccess || da.kind == noAccess {
		return Result{Kind: None}
	}
	if sa.kind == readAccess && da.kind == readAccess {
		return Result{Kind: None}
	}
	if sa.kind == opaqueAccess || da.kind == opaqueAccess {
		return Result{Kind: Confused}
	}
	sb, sidx := o.split(sa.addr)
	db, didx := o.split(da.addr)
	switch o.alias(sb, db) {
	case noAlias:
		return Result{Kind: None}
	case mayAlias:
		return Result{Kind: Confused}
	}
	return o.subscripts(sidx, ls, didx, ld)
}

type accessKind uint8

const (
	noAccess accessKind = iota
	readAccess
	writeAccess
	opaqueAccess
)

type access struct {
	kind accessKind
	addr ir.Value
}

func accessOf(in *ir.Instr) access {
	switch in.Op {
	case ir.OpLoad:
		return access{kind: readAccess, addr: in.Args[0]}
	case ir.OpStore:
		return access{kind: writeAccess, addr: in.Args[0]}
	case ir.OpCall:
		return access{kind: opaqueAccess}
	}
	return access{kind: noAccess}
}

// split returns the base object and element index of an address.
func (o *Oracle) split(addr ir.Value) (ir.Value, ir.Value) {
	if addr.IsInst() {
		if in := o.fn.Instr(addr.InstrID()); in.Op == ir.OpIndexAddr {
			return in.Args[0], in.Args[1]
		}
	}
	return addr, ir.Const(0)
}

type aliasKind uint8

const (
	noAlias aliasKind = iota
	mayAlias
	mustAlias
)

func (o *Oracle) alias(x, y ir.Value) aliasKind {
	if x == y {
		if o.isObject(x) {
			return mustAlias
		}
		return mayAlias
	}
	if !o.isObject(x) || !o.isObject(y) {
		return mayAlias
	}
	if x.IsArg() && y.IsArg() && !o.argsNoAlias {
		return mayAlias
	}
	return noAlias
}

// isObject reports whether v names a distinct memory object: an argument
// or a local allocation.
func (o *Oracle) isObject(v ir.Value) bool {
	switch v.Kind {
	case ir.ArgValue:
		return true
	case ir.InstValue:
		return o.fn.Instr(v.InstrID()).Op == ir.OpAlloc
	}
	return false
}

// iteration is an index expressed as Alpha·k + Offset, k counting the
// iterations of the enclosing loop from zero.
type iteration struct {
	Alpha  int64
	Offset scev.Affine
}

func (o *Oracle) normalise(idx ir.Value, l *loop.Loop) (iteration, bool) {
	if l == nil {
		return iteration{Offset: scev.Of(o.fn, idx, nil)}, true
	}
	info := o.induction(l)
	a := scev.Of(o.fn, idx, nil)
	var coef int64
	if info != nil {
		iv := ir.Inst(info.Phi)
		coef = a.Coef(iv)
		a = a.Without(iv)
	}
	for _, v := range a.Leaves() {
		if !l.IsInvariant(v) {
			return iteration{}, false
		}
	}
	if coef == 0 {
		return iteration{Offset: a}, true
	}
	init := scev.Of(o.fn, info.Init, nil)
	return iteration{
		Alpha:  coef * info.Step,
		Offset: a.Add(init.Scale(coef)),
	}, true
}

func (o *Oracle) induction(l *loop.Loop) *loop.Info {
	if info, ok := o.ivs[l]; ok {
		return info
	}
	info, _ := l.CanonicalIV()
	o.ivs[l] = info
	return info
}

func (o *Oracle) subscripts(sidx ir.Value, ls *loop.Loop, didx ir.Value, ld *loop.Loop) Result {
	s, ok := o.normalise(sidx, ls)
	if !ok {
		return Result{Kind: Confused}
	}
	d, ok := o.normalise(didx, ld)
	if !ok {
		return Result{Kind: Confused}
	}
	delta := d.Offset.Sub(s.Offset)
	if s.Alpha != d.Alpha || !delta.IsConst() {
		return Result{Kind: Confused}
	}
	if s.Alpha == 0 {
		if delta.Const != 0 {
			return Result{Kind: None}
		}
		// One element touched on every iteration of both loops.
		return Result{Kind: Confused, LoopCarried: true}
	}
	if delta.Const%s.Alpha != 0 {
		return Result{Kind: None}
	}
	dist := delta.Const / s.Alpha
	switch {
	case dist == 0:
		return Result{Kind: Forward}
	case dist > 0:
		return Result{Kind: Anti, LoopCarried: true, Distance: dist}
	}
	// The source ran in an earlier iteration; still reported as unordered.
	return Result{Kind: Confused, LoopCarried: true, Distance: dist}
}

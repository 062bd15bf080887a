package ssa

import (
	"go/token"

	"github.com/pkg/errors"
	"golang.org/x/tools/go/ssa"

	"github.com/nickng/loopopt/ir"
	"github.com/nickng/loopopt/loop"
)

var binOps = map[token.Token]ir.Op{
	token.ADD: ir.OpAdd,
	token.SUB: ir.OpSub,
	token.MUL: ir.OpMul,
	token.SHL: ir.OpShl,
}

var cmpPreds = map[token.Token]ir.Pred{
	token.LSS: ir.LT,
	token.LEQ: ir.LE,
	token.GTR: ir.GT,
	token.GEQ: ir.GE,
	token.EQL: ir.EQ,
	token.NEQ: ir.NE,
}

// Lower translates fn into an ir.Func and brings its loops into simplified
// form.
//
// Integer and boolean values become 64-bit integers; slices and pointers to
// arrays become array base addresses. Calls are kept as opaque side effects
// and DebugRefs are dropped. Anything else is reported as ErrUnsupported.
func Lower(fn *ssa.Function) (*ir.Func, error) {
	if len(fn.Blocks) == 0 {
		return nil, errors.Wrap(ErrNoBody, fn.Name())
	}
	if len(fn.FreeVars) > 0 {
		return nil, errors.Wrap(ErrFreeVars, fn.Name())
	}
	l := newLowerer(fn)
	if err := l.lower(); err != nil {
		return nil, errors.Wrapf(err, "lower %s", fn.Name())
	}
	loop.Simplify(l.b.Func())
	return l.b.Func(), nil
}

type lowerer struct {
	src *ssa.Function
	b   *ir.Builder

	blocks map[*ssa.BasicBlock]ir.BlockID
	params map[*ssa.Parameter]int
	vals   map[ssa.Value]ir.Value
	phis   []pendingPhi
}

// pendingPhi is a phi whose edges are lowered once every block is done.
type pendingPhi struct {
	src *ssa.Phi
	v   ir.Value
}

func newLowerer(fn *ssa.Function) *lowerer {
	names := make([]string, len(fn.Params))
	params := make(map[*ssa.Parameter]int, len(fn.Params))
	for i, p := range fn.Params {
		names[i] = p.Name()
		params[p] = i
	}
	return &lowerer{
		src:    fn,
		b:      ir.NewBuilder(fn.Name(), names...),
		blocks: make(map[*ssa.BasicBlock]ir.BlockID),
		params: params,
		vals:   make(map[ssa.Value]ir.Value),
	}
}

func (l *lowerer) lower() error {
	for _, bb := range l.src.Blocks {
		l.blocks[bb] = l.b.Block(bb.Comment)
	}
	// Operands other than phi edges are defined in dominating blocks.
	for _, bb := range l.src.DomPreorder() {
		l.b.SetBlock(l.blocks[bb])
		for _, in := range bb.Instrs {
			if err := l.instr(in); err != nil {
				return err
			}
		}
	}
	for _, phi := range l.phis {
		for i, e := range phi.src.Edges {
			arg, err := l.value(e)
			if err != nil {
				return err
			}
			l.b.AddIncoming(phi.v, arg, l.blocks[phi.src.Block().Preds[i]])
		}
	}
	return nil
}

func (l *lowerer) unsupported(in ssa.Instruction) error {
	return ErrUnsupported{Instr: in, Pos: l.src.Prog.Fset.Position(in.Pos())}
}

// value returns the lowered operand for v.
func (l *lowerer) value(v ssa.Value) (ir.Value, error) {
	switch v := v.(type) {
	case *ssa.Const:
		c, ok := constValue(v)
		if !ok {
			return ir.Value{}, errors.Errorf("unsupported constant %s", v)
		}
		return ir.Const(c), nil
	case *ssa.Parameter:
		return ir.Arg(l.params[v]), nil
	}
	if x, ok := l.vals[v]; ok {
		return x, nil
	}
	return ir.Value{}, errors.Errorf("%s is not lowered", v.Name())
}

func (l *lowerer) values(vs []ssa.Value) ([]ir.Value, error) {
	out := make([]ir.Value, len(vs))
	for i, v := range vs {
		x, err := l.value(v)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func (l *lowerer) instr(in ssa.Instruction) error {
	switch in := in.(type) {
	case *ssa.DebugRef:
		return nil

	case *ssa.Phi:
		if !isInteger(in.Type()) && !isAddress(in.Type()) {
			return l.unsupported(in)
		}
		v := l.b.Phi()
		l.phis = append(l.phis, pendingPhi{src: in, v: v})
		l.vals[in] = v
		return nil

	case *ssa.BinOp:
		return l.binOp(in)

	case *ssa.UnOp:
		x, err := l.value(in.X)
		if err != nil {
			return err
		}
		switch in.Op {
		case token.SUB:
			l.vals[in] = l.b.Neg(x)
		case token.NOT:
			l.vals[in] = l.b.Cmp(ir.EQ, x, ir.Const(0))
		case token.MUL:
			if !isInteger(in.Type()) {
				return l.unsupported(in)
			}
			l.vals[in] = l.b.Load(x)
		default:
			return l.unsupported(in)
		}
		return nil

	case *ssa.Convert:
		return l.passThrough(in, in.X, isInteger(in.Type()) && isInteger(in.X.Type()))

	case *ssa.ChangeType:
		return l.passThrough(in, in.X, true)

	case *ssa.Slice:
		return l.passThrough(in, in.X, in.Low == nil && in.High == nil && in.Max == nil)

	case *ssa.Alloc:
		n, ok := arrayLen(in.Type())
		if !ok {
			return l.unsupported(in)
		}
		l.vals[in] = l.b.Alloc(ir.Const(n))
		return nil

	case *ssa.IndexAddr:
		args, err := l.values([]ssa.Value{in.X, in.Index})
		if err != nil {
			return err
		}
		l.vals[in] = l.b.IndexAddr(args[0], args[1])
		return nil

	case *ssa.Store:
		args, err := l.values([]ssa.Value{in.Addr, in.Val})
		if err != nil {
			return err
		}
		l.b.Store(args[0], args[1])
		return nil

	case *ssa.Call:
		return l.call(in)

	case *ssa.If:
		cond, err := l.value(in.Cond)
		if err != nil {
			return err
		}
		succs := in.Block().Succs
		l.b.CondBr(cond, l.blocks[succs[0]], l.blocks[succs[1]])
		return nil

	case *ssa.Jump:
		l.b.Br(l.blocks[in.Block().Succs[0]])
		return nil

	case *ssa.Return:
		results, err := l.values(in.Results)
		if err != nil {
			return err
		}
		l.b.Ret(results...)
		return nil
	}
	return l.unsupported(in)
}

// passThrough lowers in to the value of x when ok.
func (l *lowerer) passThrough(in ssa.Instruction, x ssa.Value, ok bool) error {
	if !ok {
		return l.unsupported(in)
	}
	v, err := l.value(x)
	if err != nil {
		return err
	}
	l.vals[in.(ssa.Value)] = v
	return nil
}

func (l *lowerer) binOp(in *ssa.BinOp) error {
	args, err := l.values([]ssa.Value{in.X, in.Y})
	if err != nil {
		return err
	}
	x, y := args[0], args[1]
	unsigned := isUnsigned(in.X.Type())
	if p, ok := cmpPreds[in.Op]; ok {
		if unsigned && p != ir.EQ && p != ir.NE {
			return l.unsupported(in)
		}
		l.vals[in] = l.b.Cmp(p, x, y)
		return nil
	}
	if !isInteger(in.Type()) {
		return l.unsupported(in)
	}
	op, ok := binOps[in.Op]
	switch {
	case ok:
	case in.Op == token.QUO && unsigned:
		op = ir.OpUDiv
	case in.Op == token.QUO:
		op = ir.OpSDiv
	case in.Op == token.REM && !unsigned:
		op = ir.OpSRem
	case in.Op == token.SHR && unsigned:
		op = ir.OpLShr
	case in.Op == token.SHR:
		op = ir.OpAShr
	default:
		return l.unsupported(in)
	}
	l.vals[in] = l.b.Binary(op, x, y)
	return nil
}

// call keeps a static call as an opaque side effect.
func (l *lowerer) call(in *ssa.Call) error {
	common := in.Common()
	if common.IsInvoke() {
		return l.unsupported(in)
	}
	callee, ok := common.Value.(*ssa.Function)
	if !ok {
		return l.unsupported(in)
	}
	args, err := l.values(common.Args)
	if err != nil {
		return err
	}
	l.vals[in] = l.b.Call(callee.Name(), args...)
	return nil
}

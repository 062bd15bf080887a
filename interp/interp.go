// Package interp executes an ir.Func over 64-bit integers and a simple
// array memory. It is the reference semantics the optimizer passes are
// tested against.
package interp

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/nickng/loopopt/ir"
)

var (
	ErrStepLimit   = errors.New("step limit exceeded")
	ErrBadAddress  = errors.New("bad address")
	ErrDivByZero   = errors.New("division by zero")
	ErrBadShift    = errors.New("negative shift amount")
	ErrMalformed   = errors.New("malformed function")
	ErrArgMismatch = errors.New("argument count mismatch")
)

// DefaultStepLimit bounds the number of instructions executed by Run.
const DefaultStepLimit = 1 << 20

// Call is a call to an opaque function observed during execution.
type Call struct {
	Callee string
	Args   []int64
}

func (c Call) String() string { return fmt.Sprintf("%s%v", c.Callee, c.Args) }

// Result is the outcome of a run.
type Result struct {
	Ret   []int64
	Calls []Call
	Steps int
}

// Option configures Run.
type Option func(*machine)

// WithStepLimit sets the instruction budget of a run.
func WithStepLimit(n int) Option {
	return func(m *machine) { m.limit = n }
}

type machine struct {
	fn    *ir.Func
	mem   *Memory
	args  []int64
	vals  []int64
	limit int
	res   Result
}

// Run executes fn with the given arguments. Pointer arguments are values
// returned by mem.Alloc. Calls return zero.
func Run(fn *ir.Func, mem *Memory, args []int64, opts ...Option) (*Result, error) {
	if len(args) != fn.NumArgs() {
		return nil, errors.Wrapf(ErrArgMismatch, "%s takes %d arguments, got %d", fn.Name, fn.NumArgs(), len(args))
	}
	m := &machine{
		fn:    fn,
		mem:   mem,
		args:  args,
		vals:  make([]int64, fn.NumInstrSlots()),
		limit: DefaultStepLimit,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.run(); err != nil {
		return &m.res, errors.Wrapf(err, "run %s", fn.Name)
	}
	return &m.res, nil
}

func (m *machine) value(v ir.Value) int64 {
	switch v.Kind {
	case ir.ConstValue:
		return v.Const
	case ir.ArgValue:
		return m.args[v.Index]
	case ir.InstValue:
		return m.vals[v.InstrID()]
	}
	return 0
}

func (m *machine) run() error {
	prev, cur := ir.NoBlock, m.fn.Entry()
	for {
		if cur == ir.NoBlock || !m.fn.IsLive(cur) {
			return errors.Wrapf(ErrMalformed, "jump to block %d", cur)
		}
		instrs := m.fn.Block(cur).Instrs
		// Phis read their operands before any of them is written.
		phis := m.fn.Phis(cur)
		staged := make([]int64, len(phis))
		for i, id := range phis {
			v, ok := m.fn.Instr(id).IncomingFor(prev)
			if !ok {
				return errors.Wrapf(ErrMalformed, "%s: phi %s has no value from %s",
					m.fn.BlockName(cur), ir.Inst(id), m.fn.BlockName(prev))
			}
			staged[i] = m.value(v)
		}
		for i, id := range phis {
			m.vals[id] = staged[i]
		}
		m.res.Steps += len(phis)

		next := ir.NoBlock
		for _, id := range instrs[len(phis):] {
			m.res.Steps++
			if m.res.Steps > m.limit {
				return ErrStepLimit
			}
			in := m.fn.Instr(id)
			switch in.TermKind() {
			case ir.TermBr:
				next = in.Succs[0]
			case ir.TermCondBr:
				if m.value(in.Args[0]) != 0 {
					next = in.Succs[0]
				} else {
					next = in.Succs[1]
				}
			case ir.TermRet:
				for _, a := range in.Args {
					m.res.Ret = append(m.res.Ret, m.value(a))
				}
				return nil
			default:
				if err := m.exec(in); err != nil {
					return errors.Wrapf(err, "%s: %s", m.fn.BlockName(cur), ir.NewPrinter().FormatInstr(m.fn, id))
				}
			}
		}
		if next == ir.NoBlock {
			return errors.Wrapf(ErrMalformed, "%s: falls off the end", m.fn.BlockName(cur))
		}
		prev, cur = cur, next
	}
}

func (m *machine) exec(in *ir.Instr) error {
	arg := func(i int) int64 { return m.value(in.Args[i]) }
	var r int64
	switch in.Op {
	case ir.OpAdd:
		r = arg(0) + arg(1)
	case ir.OpSub:
		r = arg(0) - arg(1)
	case ir.OpMul:
		r = arg(0) * arg(1)
	case ir.OpSDiv, ir.OpUDiv, ir.OpSRem:
		x, y := arg(0), arg(1)
		if y == 0 {
			return ErrDivByZero
		}
		switch in.Op {
		case ir.OpSDiv:
			r = x / y
		case ir.OpUDiv:
			r = int64(uint64(x) / uint64(y))
		default:
			r = x % y
		}
	case ir.OpShl, ir.OpLShr, ir.OpAShr:
		x, y := arg(0), arg(1)
		if y < 0 {
			return ErrBadShift
		}
		switch in.Op {
		case ir.OpShl:
			r = x << uint64(y)
		case ir.OpLShr:
			r = int64(uint64(x) >> uint64(y))
		default:
			r = x >> uint64(y)
		}
	case ir.OpNeg:
		r = -arg(0)
	case ir.OpCmp:
		if in.Pred.Eval(arg(0), arg(1)) {
			r = 1
		}
	case ir.OpAlloc:
		n := arg(0)
		if n < 0 || n > maxIndex {
			return errors.Wrapf(ErrBadAddress, "alloc of %d elements", n)
		}
		r = m.mem.Alloc(int(n))
	case ir.OpIndexAddr:
		r = arg(0) + arg(1)
	case ir.OpLoad:
		v, err := m.mem.Load(arg(0))
		if err != nil {
			return err
		}
		r = v
	case ir.OpStore:
		return m.mem.Store(arg(0), arg(1))
	case ir.OpCall:
		c := Call{Callee: in.Callee}
		for i := range in.Args {
			c.Args = append(c.Args, arg(i))
		}
		m.res.Calls = append(m.res.Calls, c)
	default:
		return errors.Wrapf(ErrMalformed, "cannot execute %s", in.Op)
	}
	m.vals[in.ID] = r
	return nil
}

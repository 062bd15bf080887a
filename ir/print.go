package ir

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Printer writes the textual form of a Func.
type Printer struct {
	colored bool

	label  *color.Color
	opcode *color.Color
	value  *color.Color
}

// NewPrinter returns a plain Printer.
func NewPrinter() *Printer {
	return &Printer{}
}

// WithColor enables ANSI colours regardless of the terminal.
func (p *Printer) WithColor() *Printer {
	p.colored = true
	p.label = color.New(color.FgCyan, color.Bold)
	p.opcode = color.New(color.FgYellow)
	p.value = color.New(color.FgGreen)
	for _, c := range []*color.Color{p.label, p.opcode, p.value} {
		c.EnableColor()
	}
	return p
}

func (p *Printer) paint(c *color.Color, s string) string {
	if !p.colored {
		return s
	}
	return c.Sprint(s)
}

// Fprint writes fn to w.
func (p *Printer) Fprint(w io.Writer, fn *Func) (int64, error) {
	var buf bytes.Buffer
	args := make([]string, fn.NumArgs())
	for i := range args {
		args[i] = p.operand(fn, Arg(i))
	}
	fmt.Fprintf(&buf, "func %s(%s):\n", fn.Name, strings.Join(args, ", "))
	for _, b := range fn.layout {
		fmt.Fprintf(&buf, "%s:", p.paint(p.label, fn.BlockName(b)))
		if preds := fn.Preds(b); len(preds) > 0 {
			names := make([]string, len(preds))
			for i, pb := range preds {
				names[i] = fn.BlockName(pb)
			}
			fmt.Fprintf(&buf, "\t\t; preds: %s", strings.Join(names, ", "))
		}
		buf.WriteByte('\n')
		for _, id := range fn.blocks[b].Instrs {
			buf.WriteString("    ")
			buf.WriteString(p.instr(fn, fn.instrs[id]))
			buf.WriteByte('\n')
		}
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// FormatInstr returns the textual form of a single instruction.
func (p *Printer) FormatInstr(fn *Func, id InstrID) string {
	return p.instr(fn, fn.instrs[id])
}

func (p *Printer) operand(fn *Func, v Value) string {
	if v.Kind == ArgValue && v.Index < len(fn.ArgNames) && fn.ArgNames[v.Index] != "" {
		return p.paint(p.value, "%"+fn.ArgNames[v.Index])
	}
	return p.paint(p.value, v.String())
}

func (p *Printer) instr(fn *Func, in *Instr) string {
	var buf bytes.Buffer
	if in.Op.HasResult() {
		fmt.Fprintf(&buf, "%s = ", p.paint(p.value, Inst(in.ID).String()))
	}
	buf.WriteString(p.paint(p.opcode, in.Op.String()))
	switch in.Op {
	case OpPhi:
		for i, a := range in.Args {
			if i > 0 {
				buf.WriteByte(',')
			}
			fmt.Fprintf(&buf, " [%s, %s]", p.operand(fn, a), fn.BlockName(in.Incoming[i]))
		}
	case OpCmp:
		fmt.Fprintf(&buf, " %s %s, %s", in.Pred, p.operand(fn, in.Args[0]), p.operand(fn, in.Args[1]))
	case OpCall:
		fmt.Fprintf(&buf, " %s(%s)", in.Callee, p.operands(fn, in.Args))
	case OpBr:
		fmt.Fprintf(&buf, " %s", p.paint(p.label, fn.BlockName(in.Succs[0])))
	case OpCondBr:
		fmt.Fprintf(&buf, " %s, %s, %s", p.operand(fn, in.Args[0]),
			p.paint(p.label, fn.BlockName(in.Succs[0])), p.paint(p.label, fn.BlockName(in.Succs[1])))
	default:
		if len(in.Args) > 0 {
			buf.WriteByte(' ')
			buf.WriteString(p.operands(fn, in.Args))
		}
	}
	if in.Name != "" {
		fmt.Fprintf(&buf, "\t; %s", in.Name)
	}
	return buf.String()
}

func (p *Printer) operands(fn *Func, args []Value) string {
	s := make([]string, len(args))
	for i, a := range args {
		s[i] = p.operand(fn, a)
	}
	return strings.Join(s, ", ")
}

// WriteTo writes the plain textual form of f to w.
func (f *Func) WriteTo(w io.Writer) (int64, error) {
	return NewPrinter().Fprint(w, f)
}

func (f *Func) String() string {
	var buf bytes.Buffer
	f.WriteTo(&buf)
	return buf.String()
}

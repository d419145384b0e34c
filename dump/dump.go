// Package dump implements udon's disassembly output (spec.md §6, SPEC_FULL.md
// "dump"): a textual rendering of a lowered program's register-IR, one line
// per instruction, grouped by function.
//
// The writer shape here is grounded on jcorbin-gothird/dumper.go's vmDumper:
// a struct wrapping the thing being dumped plus an io.Writer, a Dump entry
// point, and one formatting helper per instruction shape, with column widths
// computed up front from the data rather than hardcoded.
package dump

import (
	"fmt"
	"io"
	"strings"

	"github.com/udonscript/udon/lower"
)

// Dumper renders a lowered program as human-readable disassembly.
type Dumper struct {
	prog *lower.Program
	out  io.Writer

	indexWidth int
}

// New returns a Dumper writing prog's disassembly to out.
func New(prog *lower.Program, out io.Writer) *Dumper {
	return &Dumper{prog: prog, out: out}
}

// Dump writes the full program: global initialization first (if present),
// then every function in declaration order.
func (d *Dumper) Dump() error {
	if d.prog.GlobalInit != nil {
		if err := d.dumpFunction(d.prog.GlobalInit); err != nil {
			return err
		}
	}
	for _, fn := range d.prog.Functions {
		if err := d.dumpFunction(fn); err != nil {
			return err
		}
	}
	return nil
}

// DumpFunction writes a single named function's disassembly, or reports an
// error if name is not in the program (used by `udon dump <script> <fn>`).
func (d *Dumper) DumpFunction(name string) error {
	if d.prog.GlobalInit != nil && name == d.prog.GlobalInit.Name {
		return d.dumpFunction(d.prog.GlobalInit)
	}
	idx, ok := d.prog.FuncIndex[name]
	if !ok {
		return fmt.Errorf("dump: no such function %q", name)
	}
	return d.dumpFunction(d.prog.Functions[idx])
}

func (d *Dumper) dumpFunction(fn *lower.Function) error {
	d.indexWidth = len(fmt.Sprintf("%d", len(fn.Code)))

	header := fmt.Sprintf("function %s(%s)", fn.Name, strings.Join(fn.Params, ", "))
	if fn.Variadic != "" {
		if len(fn.Params) > 0 {
			header = fmt.Sprintf("function %s(%s, ...%s)", fn.Name, strings.Join(fn.Params, ", "), fn.Variadic)
		} else {
			header = fmt.Sprintf("function %s(...%s)", fn.Name, fn.Variadic)
		}
	}
	if _, err := fmt.Fprintf(d.out, "%s  ; frame=%d\n", header, fn.FrameSize); err != nil {
		return err
	}

	for i, ins := range fn.Code {
		line := fmt.Sprintf("[% *d] %s", d.indexWidth, i, formatInstruction(ins))
		if _, err := fmt.Fprintln(d.out, line); err != nil {
			return err
		}
	}
	return nil
}

func formatSlot(s lower.Slot) string {
	if s.Depth == 0 {
		return fmt.Sprintf("r%d", s.Index)
	}
	return fmt.Sprintf("r%d@%d", s.Index, s.Depth)
}

func formatInstruction(ins lower.Instruction) string {
	switch ins.Op {
	case lower.OpNop:
		return "NOP"
	case lower.OpLoadK:
		return fmt.Sprintf("LOADK %s, %s", formatSlot(ins.Dst), ins.Literal.String())
	case lower.OpMove:
		return fmt.Sprintf("MOVE %s, %s", formatSlot(ins.Dst), formatSlot(ins.A))
	case lower.OpLoadGlobal:
		return fmt.Sprintf("LOAD_GLOBAL %s, %s(#%d)", formatSlot(ins.Dst), ins.Name, ins.GlobalSlot)
	case lower.OpStoreGlobal:
		return fmt.Sprintf("STORE_GLOBAL %s(#%d), %s", ins.Name, ins.GlobalSlot, formatSlot(ins.A))
	case lower.OpGetProp:
		return fmt.Sprintf("GET_PROP %s, %s, %s", formatSlot(ins.Dst), formatSlot(ins.A), propOperand(ins))
	case lower.OpStoreProp:
		return fmt.Sprintf("STORE_PROP %s, %s, %s", formatSlot(ins.A), propOperand(ins), formatSlot(ins.Val))
	case lower.OpAdd, lower.OpSub, lower.OpMul, lower.OpDiv, lower.OpMod, lower.OpConcat,
		lower.OpEq, lower.OpNe, lower.OpLt, lower.OpLe, lower.OpGt, lower.OpGe:
		return fmt.Sprintf("%s %s, %s, %s", ins.Op, formatSlot(ins.Dst), formatSlot(ins.A), formatSlot(ins.B))
	case lower.OpNeg, lower.OpNot, lower.OpToBool:
		return fmt.Sprintf("%s %s, %s", ins.Op, formatSlot(ins.Dst), formatSlot(ins.A))
	case lower.OpJump:
		return fmt.Sprintf("JUMP %d", ins.Target)
	case lower.OpJumpIfFalse:
		return fmt.Sprintf("JUMP_IF_FALSE %s, %d", formatSlot(ins.A), ins.Target)
	case lower.OpCall:
		return fmt.Sprintf("CALL %s, %s", formatSlot(ins.Dst), formatCallOperand(ins))
	case lower.OpMakeClosure:
		return fmt.Sprintf("MAKE_CLOSURE %s, %s", formatSlot(ins.Dst), ins.Name)
	case lower.OpReturn:
		return fmt.Sprintf("RETURN %s", formatSlot(ins.A))
	default:
		return ins.Op.String()
	}
}

func propOperand(ins lower.Instruction) string {
	if ins.Name == "[index]" {
		return formatSlot(ins.B)
	}
	return ins.Name
}

func formatCallOperand(ins lower.Instruction) string {
	var callee string
	if ins.Name != "" {
		callee = ins.Name
	} else {
		callee = formatSlot(ins.Callable)
	}

	args := fmt.Sprintf("args=[%s..%s]", formatSlot(lower.Slot{Index: ins.ArgBase}), formatSlot(lower.Slot{Index: ins.ArgBase + ins.Argc - 1}))
	if ins.Argc == 0 {
		args = "args=[]"
	}
	if len(ins.ArgNames) == 0 {
		return fmt.Sprintf("%s(%s)", callee, args)
	}
	return fmt.Sprintf("%s(%s, names=%s)", callee, args, strings.Join(ins.ArgNames, ","))
}

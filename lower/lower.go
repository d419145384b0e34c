package lower

import (
	"fmt"

	"github.com/udonscript/udon/compiler"
)

// Error reports a lowering-phase invariant violation (spec.md §7 category
// 4: "unsupported opcode / internal invariant violation, indicates a
// compiler bug"). A well-formed compiler output never triggers one.
type Error struct {
	Func    string
	Index   int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("lower: %s@%d: %s", e.Func, e.Index, e.Message)
}

// Lower translates a compiler.Program's stack-shaped functions into
// register-addressed form (spec.md §4.3). Every stack-IR instruction
// translates to exactly one register-IR instruction at the same index —
// ENTER_SCOPE/EXIT_SCOPE/POP all become NOP in place — so every jump target
// recorded by the compiler remains valid without remapping.
func Lower(prog *compiler.Program) (*Program, error) {
	out := &Program{
		FuncIndex:     prog.FuncIndex,
		Globals:       prog.Globals,
		EventHandlers: prog.EventHandlers,
	}
	for _, fn := range prog.Functions {
		lf, err := lowerFunction(fn)
		if err != nil {
			return nil, err
		}
		out.Functions = append(out.Functions, lf)
	}
	init, err := lowerFunction(prog.GlobalInit)
	if err != nil {
		return nil, err
	}
	out.GlobalInit = init
	return out, nil
}

// stackSim is the per-function evaluation-stack simulator: slot addresses
// are allocated as a pure stack discipline (spec.md §4.3 "the lowerer never
// overlaps two simultaneously-live temporaries onto the same slot; the next
// free slot only decreases on pop, only increases on push").
type stackSim struct {
	fnName string
	root   int
	next   int
	max    int
	stack  []int

	// joinDepth records, for each instruction index that is some jump's
	// target, the minimum stack length any predecessor jump reached it
	// with (spec.md §4.3 "join-point slot-depth unification by minimum
	// predecessor depth").
	joinDepth map[int]int
}

func newStackSim(fnName string, root int) *stackSim {
	return &stackSim{fnName: fnName, root: root, next: root, max: root, joinDepth: map[int]int{}}
}

func (s *stackSim) push() int {
	slot := s.next
	s.next++
	if s.next > s.max {
		s.max = s.next
	}
	s.stack = append(s.stack, slot)
	return slot
}

func (s *stackSim) pop(at int) (int, error) {
	n := len(s.stack)
	if n == 0 {
		return 0, &Error{Func: s.fnName, Index: at, Message: "stack underflow"}
	}
	slot := s.stack[n-1]
	s.stack = s.stack[:n-1]
	s.next--
	return slot, nil
}

func (s *stackSim) recordJoin(target int) {
	d := len(s.stack)
	if cur, ok := s.joinDepth[target]; !ok || d < cur {
		s.joinDepth[target] = d
	}
}

// reconcile enforces the recorded join depth at instruction index i, per
// the minimum-predecessor-depth invariant. POP lowers to NOP without
// popping the simulated stack, so a fallthrough path can arrive deeper than
// the recorded minimum; reconcile drops the excess entries.
func (s *stackSim) reconcile(i int) {
	want, ok := s.joinDepth[i]
	if !ok || want >= len(s.stack) {
		return
	}
	s.stack = s.stack[:want]
	s.next = s.root + want
}

func slot0(i int) Slot { return Slot{Depth: 0, Index: i} }

func lowerFunction(fn *compiler.Function) (*Function, error) {
	out := &Function{Name: fn.Name, Params: fn.Params, Variadic: fn.Variadic}
	out.Code = make([]Instruction, len(fn.Code))

	sim := newStackSim(fn.Name, fn.FrameSize)

	for i, ins := range fn.Code {
		sim.reconcile(i)
		reg, err := lowerInstruction(sim, i, ins)
		if err != nil {
			return nil, err
		}
		reg.Pos = ins.Pos
		out.Code[i] = reg
	}

	out.FrameSize = sim.max
	return out, nil
}

func lowerInstruction(sim *stackSim, i int, ins compiler.Instruction) (Instruction, error) {
	switch ins.Op {
	case compiler.OpPushLiteral:
		dst := sim.push()
		return Instruction{Op: OpLoadK, Dst: slot0(dst), Literal: ins.Literal}, nil

	case compiler.OpLoadLocal:
		dst := sim.push()
		return Instruction{Op: OpMove, Dst: slot0(dst), A: Slot{Depth: ins.Depth, Index: ins.Slot}}, nil

	case compiler.OpStoreLocal:
		src, err := sim.pop(i)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: OpMove, Dst: Slot{Depth: ins.Depth, Index: ins.Slot}, A: slot0(src)}, nil

	case compiler.OpLoadGlobal:
		dst := sim.push()
		return Instruction{Op: OpLoadGlobal, Dst: slot0(dst), Name: ins.Name, GlobalSlot: ins.Target}, nil

	case compiler.OpStoreGlobal:
		src, err := sim.pop(i)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: OpStoreGlobal, A: slot0(src), Name: ins.Name, GlobalSlot: ins.Target}, nil

	case compiler.OpGetProp:
		if ins.Name == "[index]" {
			idx, err := sim.pop(i)
			if err != nil {
				return Instruction{}, err
			}
			obj, err := sim.pop(i)
			if err != nil {
				return Instruction{}, err
			}
			dst := sim.push()
			return Instruction{Op: OpGetProp, Dst: slot0(dst), A: slot0(obj), B: slot0(idx), Name: ins.Name}, nil
		}
		obj, err := sim.pop(i)
		if err != nil {
			return Instruction{}, err
		}
		dst := sim.push()
		return Instruction{Op: OpGetProp, Dst: slot0(dst), A: slot0(obj), Name: ins.Name}, nil

	case compiler.OpStoreProp:
		if ins.Name == "[index]" {
			val, err := sim.pop(i)
			if err != nil {
				return Instruction{}, err
			}
			idx, err := sim.pop(i)
			if err != nil {
				return Instruction{}, err
			}
			obj, err := sim.pop(i)
			if err != nil {
				return Instruction{}, err
			}
			return Instruction{Op: OpStoreProp, A: slot0(obj), B: slot0(idx), Val: slot0(val), Name: ins.Name}, nil
		}
		val, err := sim.pop(i)
		if err != nil {
			return Instruction{}, err
		}
		obj, err := sim.pop(i)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: OpStoreProp, A: slot0(obj), Val: slot0(val), Name: ins.Name}, nil

	case compiler.OpAdd, compiler.OpSub, compiler.OpMul, compiler.OpDiv, compiler.OpMod, compiler.OpConcat,
		compiler.OpEq, compiler.OpNe, compiler.OpLt, compiler.OpLe, compiler.OpGt, compiler.OpGe:
		b, err := sim.pop(i)
		if err != nil {
			return Instruction{}, err
		}
		a, err := sim.pop(i)
		if err != nil {
			return Instruction{}, err
		}
		dst := sim.push()
		return Instruction{Op: binOp(ins.Op), Dst: slot0(dst), A: slot0(a), B: slot0(b)}, nil

	case compiler.OpNeg, compiler.OpNot, compiler.OpToBool:
		a, err := sim.pop(i)
		if err != nil {
			return Instruction{}, err
		}
		dst := sim.push()
		return Instruction{Op: unOp(ins.Op), Dst: slot0(dst), A: slot0(a)}, nil

	case compiler.OpJump:
		sim.recordJoin(ins.Target)
		return Instruction{Op: OpJump, Target: ins.Target}, nil

	case compiler.OpJumpIfFalse:
		cond, err := sim.pop(i)
		if err != nil {
			return Instruction{}, err
		}
		sim.recordJoin(ins.Target)
		return Instruction{Op: OpJumpIfFalse, A: slot0(cond), Target: ins.Target}, nil

	case compiler.OpEnterScope, compiler.OpExitScope, compiler.OpPop:
		return Instruction{Op: OpNop}, nil

	case compiler.OpCall:
		var argBase int
		if ins.Argc > 0 {
			argBase = sim.stack[len(sim.stack)-ins.Argc]
		} else {
			argBase = sim.next
		}
		for n := 0; n < ins.Argc; n++ {
			if _, err := sim.pop(i); err != nil {
				return Instruction{}, err
			}
		}
		reg := Instruction{Op: OpCall, Name: ins.Name, ArgBase: argBase, Argc: ins.Argc, ArgNames: ins.ArgNames}
		if ins.Name == "" {
			callable, err := sim.pop(i)
			if err != nil {
				return Instruction{}, err
			}
			reg.Callable = slot0(callable)
		}
		dst := sim.push()
		reg.Dst = slot0(dst)
		return reg, nil

	case compiler.OpMakeClosure:
		dst := sim.push()
		return Instruction{Op: OpMakeClosure, Dst: slot0(dst), Name: ins.Name}, nil

	case compiler.OpReturn:
		a, err := sim.pop(i)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: OpReturn, A: slot0(a)}, nil

	default:
		return Instruction{}, &Error{Func: sim.fnName, Index: i, Message: fmt.Sprintf("unsupported opcode %v", ins.Op)}
	}
}

func binOp(op compiler.Op) Op {
	switch op {
	case compiler.OpAdd:
		return OpAdd
	case compiler.OpSub:
		return OpSub
	case compiler.OpMul:
		return OpMul
	case compiler.OpDiv:
		return OpDiv
	case compiler.OpMod:
		return OpMod
	case compiler.OpConcat:
		return OpConcat
	case compiler.OpEq:
		return OpEq
	case compiler.OpNe:
		return OpNe
	case compiler.OpLt:
		return OpLt
	case compiler.OpLe:
		return OpLe
	case compiler.OpGt:
		return OpGt
	case compiler.OpGe:
		return OpGe
	}
	panic("unreachable")
}

func unOp(op compiler.Op) Op {
	switch op {
	case compiler.OpNeg:
		return OpNeg
	case compiler.OpNot:
		return OpNot
	case compiler.OpToBool:
		return OpToBool
	}
	panic("unreachable")
}

package vm

import (
	"fmt"
	"math"

	"github.com/udonscript/udon/lower"
	"github.com/udonscript/udon/value"
)

// execBinOp implements every two-operand register-IR op (spec.md §4.4
// "Numeric semantics" and the comparison/equality rules in §3).
func (vm *VM) execBinOp(frame *Frame, ins lower.Instruction) {
	a := vm.getSlot(frame, ins.A)
	b := vm.getSlot(frame, ins.B)

	var result value.Value
	switch ins.Op {
	case lower.OpAdd:
		result = vm.arith(frame, a, b, '+')
	case lower.OpSub:
		result = vm.arith(frame, a, b, '-')
	case lower.OpMul:
		result = vm.arith(frame, a, b, '*')
	case lower.OpDiv:
		result = vm.arith(frame, a, b, '/')
	case lower.OpMod:
		result = vm.arith(frame, a, b, '%')
	case lower.OpConcat:
		result = value.String(a.String() + b.String())
	case lower.OpEq:
		result = value.Bool(value.Equal(a, b))
	case lower.OpNe:
		result = value.Bool(!value.Equal(a, b))
	case lower.OpLt:
		result = value.Bool(value.Compare(a, b) < 0)
	case lower.OpLe:
		result = value.Bool(value.Compare(a, b) <= 0)
	case lower.OpGt:
		result = value.Bool(value.Compare(a, b) > 0)
	case lower.OpGe:
		result = value.Bool(value.Compare(a, b) >= 0)
	}
	vm.setSlot(frame, ins.Dst, result)
}

// arith implements +, -, *, /, % with int-int staying integral and any
// float operand widening the result to float (spec.md §4.4: "int op int ->
// int unless either operand is float"). Integer division and modulo
// truncate toward zero, which is Go's native int64 behavior; integer
// overflow wraps, also Go's native behavior (an explicitly unspecified
// point in spec.md §9 "Open Questions").
func (vm *VM) arith(frame *Frame, a, b value.Value, op byte) value.Value {
	if !a.IsNumeric() || !b.IsNumeric() {
		vm.halt(vm.rtErr(frame, fmt.Errorf("arithmetic on non-numeric operand: %v %c %v", a.Kind(), op, b.Kind())))
	}
	bothInt := a.Kind() == value.KindInt && b.Kind() == value.KindInt

	switch op {
	case '+':
		if bothInt {
			return value.Int(a.Int() + b.Int())
		}
		return value.Float(a.AsFloat() + b.AsFloat())
	case '-':
		if bothInt {
			return value.Int(a.Int() - b.Int())
		}
		return value.Float(a.AsFloat() - b.AsFloat())
	case '*':
		if bothInt {
			return value.Int(a.Int() * b.Int())
		}
		return value.Float(a.AsFloat() * b.AsFloat())
	case '/':
		if bothInt {
			if b.Int() == 0 {
				vm.halt(vm.rtErr(frame, fmt.Errorf("division by zero")))
			}
			return value.Int(a.Int() / b.Int())
		}
		bf := b.AsFloat()
		if bf == 0 {
			vm.halt(vm.rtErr(frame, fmt.Errorf("division by zero")))
		}
		return value.Float(a.AsFloat() / bf)
	case '%':
		if bothInt {
			if b.Int() == 0 {
				vm.halt(vm.rtErr(frame, fmt.Errorf("modulo by zero")))
			}
			return value.Int(a.Int() % b.Int())
		}
		bf := b.AsFloat()
		if bf == 0 {
			vm.halt(vm.rtErr(frame, fmt.Errorf("modulo by zero")))
		}
		return value.Float(math.Mod(a.AsFloat(), bf))
	}
	panic("unreachable arithmetic op")
}

func (vm *VM) execUnOp(frame *Frame, ins lower.Instruction) {
	a := vm.getSlot(frame, ins.A)
	var result value.Value
	switch ins.Op {
	case lower.OpNeg:
		if !a.IsNumeric() {
			vm.halt(vm.rtErr(frame, fmt.Errorf("negation of non-numeric operand: %v", a.Kind())))
		}
		if a.Kind() == value.KindInt {
			result = value.Int(-a.Int())
		} else {
			result = value.Float(-a.AsFloat())
		}
	case lower.OpNot:
		result = value.Bool(!a.Truthy())
	case lower.OpToBool:
		result = value.Bool(a.Truthy())
	}
	vm.setSlot(frame, ins.Dst, result)
}

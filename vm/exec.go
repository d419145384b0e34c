package vm

import (
	"fmt"

	"github.com/udonscript/udon/lower"
	"github.com/udonscript/udon/value"
)

// Run initializes globals on first use, then calls the function named entry
// with args, recovering the single vmHaltError panic that any runtime
// failure anywhere in the call tree unwinds through (spec.md §7: "errors
// propagate by unwinding to the caller of run, unchanged from the reference
// implementation").
func (vm *VM) Run(entry string, args ...value.Value) (result value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if he, ok := r.(vmHaltError); ok {
				err = he
				return
			}
			panic(r)
		}
	}()

	vm.ensureInitialized()

	idx, ok := vm.prog.FuncIndex[entry]
	if !ok {
		return value.None, fmt.Errorf("no such function %q", entry)
	}
	fn := vm.prog.Functions[idx]
	names := make([]string, len(args))
	result = vm.invokeFunction(fn, 0, args, names)
	return result, nil
}

// Init runs the module-level initializer exactly once without invoking any
// entry function, recovering a halt into a returned error. Sub-interpreters
// use this to bring a freshly imported module's globals to life before any
// forwarding call reaches it (spec.md §4.6 "Imports").
func (vm *VM) Init() (err error) {
	defer func() {
		if r := recover(); r != nil {
			if he, ok := r.(vmHaltError); ok {
				err = he
				return
			}
			panic(r)
		}
	}()
	vm.ensureInitialized()
	return nil
}

// ensureInitialized runs the module-level initializer block exactly once:
// global variable initializers and the MAKE_CLOSURE/STORE_GLOBAL pairs that
// register every declared function (spec.md §4.2 "globals").
func (vm *VM) ensureInitialized() {
	if vm.initialized {
		return
	}
	vm.initialized = true
	if vm.prog.GlobalInit != nil {
		vm.invokeFunction(vm.prog.GlobalInit, 0, nil, nil)
	}
}

// envAt walks frame's environment chain depth steps outward, per the
// register model: Depth counts enclosing function activations via the
// Environment.Parent chain set at MAKE_CLOSURE time, not the live Go call
// stack (spec.md §4.3 "Register model").
func (vm *VM) envAt(frame *Frame, depth int) *value.Environment {
	h := frame.env
	for ; depth > 0; depth-- {
		env := vm.heap.Environment(h)
		if env == nil {
			vm.halt(vm.rtErr(frame, fmt.Errorf("broken environment chain")))
		}
		h = env.Parent
	}
	env := vm.heap.Environment(h)
	if env == nil {
		vm.halt(vm.rtErr(frame, fmt.Errorf("invalid environment handle")))
	}
	return env
}

func (vm *VM) getSlot(frame *Frame, s lower.Slot) value.Value {
	return vm.envAt(frame, s.Depth).Get(s.Index)
}

func (vm *VM) setSlot(frame *Frame, s lower.Slot, v value.Value) {
	vm.envAt(frame, s.Depth).Set(s.Index, v)
}

// runFrame is the dispatch loop: it executes frame's code from ip 0 until an
// OpReturn, returning its result (spec.md §4.4 "dispatch loop").
func (vm *VM) runFrame(frame *Frame) value.Value {
	for {
		ins := frame.fn.Code[frame.ip]
		vm.logf("step %s@%d %v", frame.fn.Name, frame.ip, ins.Op)
		frame.ip++

		switch ins.Op {
		case lower.OpNop:

		case lower.OpLoadK:
			vm.setSlot(frame, ins.Dst, ins.Literal)

		case lower.OpMove:
			vm.setSlot(frame, ins.Dst, vm.getSlot(frame, ins.A))

		case lower.OpLoadGlobal:
			vm.setSlot(frame, ins.Dst, vm.globals.GetSlot(ins.GlobalSlot))

		case lower.OpStoreGlobal:
			vm.globals.SetSlot(ins.GlobalSlot, vm.getSlot(frame, ins.A))

		case lower.OpGetProp:
			vm.execGetProp(frame, ins)

		case lower.OpStoreProp:
			vm.execStoreProp(frame, ins)

		case lower.OpAdd, lower.OpSub, lower.OpMul, lower.OpDiv, lower.OpMod, lower.OpConcat,
			lower.OpEq, lower.OpNe, lower.OpLt, lower.OpLe, lower.OpGt, lower.OpGe:
			vm.execBinOp(frame, ins)

		case lower.OpNeg, lower.OpNot, lower.OpToBool:
			vm.execUnOp(frame, ins)

		case lower.OpJump:
			frame.ip = ins.Target

		case lower.OpJumpIfFalse:
			if !vm.getSlot(frame, ins.A).Truthy() {
				frame.ip = ins.Target
			}

		case lower.OpCall:
			vm.execCall(frame, ins)

		case lower.OpMakeClosure:
			vm.execMakeClosure(frame, ins)

		case lower.OpReturn:
			result := vm.getSlot(frame, ins.A)
			vm.maybeGC()
			return result

		default:
			vm.halt(vm.rtErr(frame, fmt.Errorf("unexecutable opcode %v", ins.Op)))
		}
	}
}

func (vm *VM) execCall(frame *Frame, ins lower.Instruction) {
	args := make([]value.Value, ins.Argc)
	for i := 0; i < ins.Argc; i++ {
		args[i] = vm.getSlot(frame, lower.Slot{Index: ins.ArgBase + i})
	}

	var result value.Value
	if ins.Name == "" {
		callee := vm.getSlot(frame, ins.Callable)
		result = vm.callValue(callee, args, ins.ArgNames)
	} else {
		result = vm.callNamed(ins.Name, args, ins.ArgNames)
	}
	vm.setSlot(frame, ins.Dst, result)
}

// execMakeClosure allocates a Closure capturing frame's current environment
// as its lexical parent, so a nested function's Depth>0 slot references
// resolve through the enclosing activation that was live when the closure
// was created (spec.md §3 "Closure object").
func (vm *VM) execMakeClosure(frame *Frame, ins lower.Instruction) {
	idx, ok := vm.prog.FuncIndex[ins.Name]
	if !ok {
		vm.halt(vm.rtErr(frame, fmt.Errorf("unknown function %q", ins.Name)))
	}
	vm.checkMemLimit()
	closureVal := vm.heap.ClosureValue(value.Closure{
		Name: ins.Name,
		Env:  frame.env,
		Func: value.FuncRef{Name: ins.Name, Index: idx, Valid: true},
	})
	vm.setSlot(frame, ins.Dst, closureVal)
}

func propKey(vm *VM, frame *Frame, ins lower.Instruction) value.Value {
	if ins.Name == "[index]" {
		return vm.getSlot(frame, ins.B)
	}
	return value.String(ins.Name)
}

func (vm *VM) execGetProp(frame *Frame, ins lower.Instruction) {
	obj := vm.getSlot(frame, ins.A)
	key := propKey(vm, frame, ins)
	vm.setSlot(frame, ins.Dst, vm.getProp(obj, key))
}

// getProp implements udon's only read-access sugar onto the Array object
// model (spec.md §3): a missing key reads as None rather than erroring, and
// numeric indexing into a String yields its single-byte substring.
func (vm *VM) getProp(obj, key value.Value) value.Value {
	switch obj.Kind() {
	case value.KindArray:
		arr := vm.heap.Array(obj)
		if arr == nil {
			return value.None
		}
		v, ok := arr.Get(key)
		if !ok {
			return value.None
		}
		return v
	case value.KindString:
		if key.IsNumeric() {
			s := obj.Str()
			i := int(key.AsFloat())
			if i >= 0 && i < len(s) {
				return value.String(string(s[i]))
			}
		}
		return value.None
	default:
		return value.None
	}
}

func (vm *VM) execStoreProp(frame *Frame, ins lower.Instruction) {
	obj := vm.getSlot(frame, ins.A)
	key := propKey(vm, frame, ins)
	val := vm.getSlot(frame, ins.Val)

	arr := vm.heap.Array(obj)
	if arr == nil {
		vm.halt(vm.rtErr(frame, fmt.Errorf("cannot assign a property on a %v value", obj.Kind())))
	}
	arr.Set(key, val)
}

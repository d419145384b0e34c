package vm

import (
	"fmt"

	"github.com/udonscript/udon/lower"
	"github.com/udonscript/udon/value"
)

// bindArgs routes a CALL's positional and named arguments onto fn's
// parameter slots (spec.md §4.4 "Named arguments"): an argument whose name
// matches a declared parameter is routed directly to it, the rest fill
// positionals in declaration order, and any parameters left over at the end
// collect into the variadic array when fn declares one.
func bindArgs(heap *value.Heap, fn *lower.Function, args []value.Value, names []string) ([]value.Value, error) {
	named := make(map[string]value.Value, len(args))
	var positional []value.Value

	isParam := make(map[string]bool, len(fn.Params))
	for _, p := range fn.Params {
		isParam[p] = true
	}

	for i, v := range args {
		n := ""
		if i < len(names) {
			n = names[i]
		}
		switch {
		case n == "":
			positional = append(positional, v)
		case isParam[n]:
			named[n] = v
		case fn.Variadic != "":
			positional = append(positional, v)
		default:
			return nil, fmt.Errorf("unknown named argument %q", n)
		}
	}

	slots := make([]value.Value, len(fn.Params)+boolToInt(fn.Variadic != ""))
	pi := 0
	for i, p := range fn.Params {
		if v, ok := named[p]; ok {
			slots[i] = v
			continue
		}
		if pi < len(positional) {
			slots[i] = positional[pi]
			pi++
			continue
		}
		if fn.Variadic == "" {
			return nil, fmt.Errorf("wrong argument count: missing argument %q", p)
		}
		slots[i] = value.None
	}

	if fn.Variadic != "" {
		rest := positional[pi:]
		arr := heap.ArrayValue()
		a := heap.Array(arr)
		for i, v := range rest {
			a.Set(value.Int(int64(i)), v)
		}
		slots[len(fn.Params)] = arr
	} else if pi < len(positional) {
		return nil, fmt.Errorf("wrong argument count: too many arguments")
	}

	return slots, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// splitBuiltinArgs separates CALL's flat (args, names) pair into the
// positional slice and named map a host builtin or native closure receives
// (spec.md §4.6): builtins do not participate in parameter-name routing,
// they simply see whatever the call site labeled.
func splitBuiltinArgs(args []value.Value, names []string) ([]value.Value, map[string]value.Value) {
	named := make(map[string]value.Value)
	var positional []value.Value
	for i, v := range args {
		n := ""
		if i < len(names) {
			n = names[i]
		}
		if n == "" {
			positional = append(positional, v)
		} else {
			named[n] = v
		}
	}
	return positional, named
}

// invokeFunction pushes a new frame for fn, binds args into a freshly
// allocated environment parented at capturedEnv, and runs it to completion.
func (vm *VM) invokeFunction(fn *lower.Function, capturedEnv value.Handle, args []value.Value, names []string) value.Value {
	slots, err := bindArgs(vm.heap, fn, args, names)
	vm.haltif(err)

	vm.checkMemLimit()
	envHandle := vm.heap.NewEnvironment(fn.FrameSize, capturedEnv)
	env := vm.heap.Environment(envHandle)
	for i, v := range slots {
		env.Set(i, v)
	}

	frame := &Frame{fn: fn, env: envHandle}
	vm.frames = append(vm.frames, frame)
	defer func() { vm.frames = vm.frames[:len(vm.frames)-1] }()

	return vm.runFrame(frame)
}

// invokeClosureValue dispatches through a Function value's underlying
// Closure, whether it wraps script code or a native callback (spec.md §4.4
// "dynamic callable from the callable slot").
func (vm *VM) invokeClosureValue(c *value.Closure, args []value.Value, names []string) value.Value {
	if c.Native != nil {
		positional, named := splitBuiltinArgs(args, names)
		result, err := c.Native(positional, named)
		vm.haltif(err)
		return result
	}
	if !c.Func.Valid {
		vm.halt(fmt.Errorf("closure %q has no associated code", c.Name))
	}
	fn := vm.prog.Functions[c.Func.Index]
	return vm.invokeFunction(fn, c.Env, args, names)
}

// callValue implements CALL's dynamic-resolution tier: the callable slot
// must already hold a Function value.
func (vm *VM) callValue(callee value.Value, args []value.Value, names []string) value.Value {
	if callee.Kind() != value.KindFunction {
		vm.halt(fmt.Errorf("call of non-callable value of kind %v", callee.Kind()))
	}
	c := vm.heap.Closure(callee)
	if c == nil {
		vm.halt(fmt.Errorf("call through dangling function handle"))
	}
	return vm.invokeClosureValue(c, args, names)
}

// callNamed implements CALL's static-name resolution order (spec.md §4.4):
// a script function registered under that name, then a host builtin, in
// that order. Every declared script function (nested or top-level) is also
// reachable as a global Closure value, so the static path mainly serves
// builtins and event-handler functions that are not globals.
func (vm *VM) callNamed(name string, args []value.Value, names []string) value.Value {
	if idx, ok := vm.prog.FuncIndex[name]; ok {
		fn := vm.prog.Functions[idx]
		return vm.invokeFunction(fn, 0, args, names)
	}
	if vm.builtins != nil {
		if b, ok := vm.builtins.Lookup(name); ok {
			positional, named := splitBuiltinArgs(args, names)
			result, err := b.Fn(vm, positional, named)
			vm.haltif(err)
			return result
		}
	}
	vm.halt(fmt.Errorf("missing function %q", name))
	return value.None
}

// Call implements Interpreter.Call for builtins that must invoke a Function
// value handed to them (e.g. an array-iteration callback).
func (vm *VM) Call(fn value.Value, positional []value.Value, named map[string]value.Value) (value.Value, error) {
	args, names := flattenArgs(positional, named)
	return vm.callValue(fn, args, names), nil
}

// CallNamed implements Interpreter.CallNamed, letting a builtin re-enter
// script execution by name (e.g. `import`'s sub-interpreter forwarding).
func (vm *VM) CallNamed(name string, positional []value.Value, named map[string]value.Value) (value.Value, error) {
	args, names := flattenArgs(positional, named)
	return vm.callNamed(name, args, names), nil
}

func flattenArgs(positional []value.Value, named map[string]value.Value) ([]value.Value, []string) {
	args := append([]value.Value{}, positional...)
	names := make([]string, len(positional))
	for k, v := range named {
		args = append(args, v)
		names = append(names, k)
	}
	return args, names
}

// RunEventHandlers invokes every function registered under event in
// declaration order, stopping at the first error (spec.md §4.6).
func (vm *VM) RunEventHandlers(event string) error {
	for _, idx := range vm.prog.EventHandlers[event] {
		fn := vm.prog.Functions[idx]
		if err := vm.tryInvoke(fn); err != nil {
			return err
		}
	}
	return nil
}

// tryInvoke runs fn for its side effects, converting a halt panic raised
// during its execution into a returned error scoped to this call rather
// than unwinding the whole interpreter, since a single misbehaving handler
// should not prevent the remaining handlers or the caller from proceeding.
func (vm *VM) tryInvoke(fn *lower.Function) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if he, ok := r.(vmHaltError); ok {
				err = he
				return
			}
			panic(r)
		}
	}()
	vm.invokeFunction(fn, 0, nil, nil)
	return nil
}

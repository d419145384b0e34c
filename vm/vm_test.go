package vm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udonscript/udon/compiler"
	"github.com/udonscript/udon/lower"
	"github.com/udonscript/udon/value"
	"github.com/udonscript/udon/vm"
)

// stubBuiltins is a minimal host registry for exercising the VM's static
// CALL resolution tier without depending on package host.
type stubBuiltins map[string]vm.Builtin

func (b stubBuiltins) Lookup(name string) (vm.Builtin, bool) {
	bi, ok := b[name]
	return bi, ok
}

// referenceBuiltins implements just enough of the compiler's reserved
// builtin set (array, keys, len, array_get) to run scripts that use array
// literals and foreach loops, standing in for package host/builtin in these
// VM-focused tests.
func referenceBuiltins() stubBuiltins {
	return stubBuiltins{
		"array": {Name: "array", Fn: func(it vm.Interpreter, positional []value.Value, _ map[string]value.Value) (value.Value, error) {
			arr := it.Heap().ArrayValue()
			a := it.Heap().Array(arr)
			for i, v := range positional {
				a.Set(value.Int(int64(i)), v)
			}
			return arr, nil
		}},
		"keys": {Name: "keys", Fn: func(it vm.Interpreter, positional []value.Value, _ map[string]value.Value) (value.Value, error) {
			a := it.Heap().Array(positional[0])
			out := it.Heap().ArrayValue()
			oa := it.Heap().Array(out)
			if a != nil {
				for i, k := range a.Keys() {
					oa.Set(value.Int(int64(i)), k)
				}
			}
			return out, nil
		}},
		"len": {Name: "len", Fn: func(it vm.Interpreter, positional []value.Value, _ map[string]value.Value) (value.Value, error) {
			a := it.Heap().Array(positional[0])
			if a == nil {
				return value.Int(0), nil
			}
			return value.Int(int64(a.Len())), nil
		}},
		"array_get": {Name: "array_get", Fn: func(it vm.Interpreter, positional []value.Value, _ map[string]value.Value) (value.Value, error) {
			a := it.Heap().Array(positional[0])
			if a == nil {
				return value.None, nil
			}
			v, _ := a.Get(positional[1])
			return v, nil
		}},
	}
}

func runScript(t *testing.T, src string, builtins stubBuiltins) (value.Value, error) {
	t.Helper()
	prog, err := compiler.Compile(src)
	require.NoError(t, err)
	lowered, err := lower.Lower(prog)
	require.NoError(t, err)
	machine := vm.New(lowered, vm.WithBuiltins(builtins))
	return machine.Run("main")
}

func TestVMArithmeticAndFrameSize(t *testing.T) {
	result, err := runScript(t, `function main() { var a = 1 + 2 * 3; return a }`, nil)
	require.NoError(t, err)
	require.Equal(t, value.Int(7), result)
}

func TestVMIntFloatPromotion(t *testing.T) {
	result, err := runScript(t, `function main() { return 1 + 2.5 }`, nil)
	require.NoError(t, err)
	require.Equal(t, value.KindFloat, result.Kind())
	require.InDelta(t, 3.5, result.AsFloat(), 0.0001)
}

func TestVMIntDivisionTruncates(t *testing.T) {
	result, err := runScript(t, `function main() { return 7 / 2 }`, nil)
	require.NoError(t, err)
	require.Equal(t, value.Int(3), result)
}

func TestVMDivisionByZeroHalts(t *testing.T) {
	_, err := runScript(t, `function main() { return 1 / 0 }`, nil)
	require.Error(t, err)
}

func TestVMIfElse(t *testing.T) {
	result, err := runScript(t, `function main() { var x = 0; if (x < 1) { x = 10 } else { x = 20 } return x }`, nil)
	require.NoError(t, err)
	require.Equal(t, value.Int(10), result)
}

func TestVMWhileLoopSum(t *testing.T) {
	src := `function main() {
		var i = 0
		var total = 0
		while (i < 5) {
			total = total + i
			i = i + 1
		}
		return total
	}`
	result, err := runScript(t, src, nil)
	require.NoError(t, err)
	require.Equal(t, value.Int(10), result)
}

func TestVMRecursiveFactorial(t *testing.T) {
	src := `function fact(n) {
		if (n < 2) { return 1 }
		return n * fact(n - 1)
	}
	function main() { return fact(5) }`
	result, err := runScript(t, src, nil)
	require.NoError(t, err)
	require.Equal(t, value.Int(120), result)
}

func TestVMForeachSum(t *testing.T) {
	src := `function main() {
		var xs = array(1, 2, 3, 4)
		var total = 0
		foreach (var x in xs) { total = total + x }
		return total
	}`
	result, err := runScript(t, src, referenceBuiltins())
	require.NoError(t, err)
	require.Equal(t, value.Int(10), result)
}

func TestVMForeachKeyValue(t *testing.T) {
	src := `function main() {
		var xs = array(10, 20, 30)
		var total = 0
		foreach (var k, v in xs) { total = total + k + v }
		return total
	}`
	result, err := runScript(t, src, referenceBuiltins())
	require.NoError(t, err)
	require.Equal(t, value.Int(63), result) // (0+10)+(1+20)+(2+30)
}

func TestVMClosureCounter(t *testing.T) {
	src := `function makeCounter() {
		var n = 0
		function next() {
			n = n + 1
			return n
		}
		return next
	}
	function main() {
		var counter = makeCounter()
		counter()
		counter()
		return counter()
	}`
	result, err := runScript(t, src, nil)
	require.NoError(t, err)
	require.Equal(t, value.Int(3), result)
}

func TestVMClosuresAreIndependent(t *testing.T) {
	src := `function makeCounter() {
		var n = 0
		function next() {
			n = n + 1
			return n
		}
		return next
	}
	function main() {
		var a = makeCounter()
		var b = makeCounter()
		a()
		a()
		b()
		return a() + b()
	}`
	result, err := runScript(t, src, nil)
	require.NoError(t, err)
	require.Equal(t, value.Int(5), result) // a: 1,2,3 b: 1,2 -> 3+2
}

func TestVMArrayPropertyAccess(t *testing.T) {
	result, err := runScript(t, `function main() { var xs = array(10, 20, 30); return xs[1] }`, referenceBuiltins())
	require.NoError(t, err)
	require.Equal(t, value.Int(20), result)
}

func TestVMMissingArrayKeyReadsAsNone(t *testing.T) {
	result, err := runScript(t, `function main() { var xs = array(); return xs[99] }`, referenceBuiltins())
	require.NoError(t, err)
	require.True(t, result.IsNone())
}

func TestVMCallUnknownFunctionHalts(t *testing.T) {
	_, err := runScript(t, `function main() { return missing_fn() }`, nil)
	require.Error(t, err)
}

func TestVMNamedArguments(t *testing.T) {
	src := `function greet(name, greeting) { return greeting .. " " .. name }
	function main() { return greet(greeting: "hi", name: "udon") }`
	result, err := runScript(t, src, nil)
	require.NoError(t, err)
	require.Equal(t, value.String("hi udon"), result)
}

func TestVMVariadicFunction(t *testing.T) {
	src := `function sumAll(...rest) {
		var total = 0
		foreach (var x in rest) { total = total + x }
		return total
	}
	function main() { return sumAll(1, 2, 3) }`
	result, err := runScript(t, src, referenceBuiltins())
	require.NoError(t, err)
	require.Equal(t, value.Int(6), result)
}

func TestVMHostBuiltinInvocation(t *testing.T) {
	var captured []value.Value
	builtins := stubBuiltins{
		"note": {Name: "note", Fn: func(it vm.Interpreter, positional []value.Value, _ map[string]value.Value) (value.Value, error) {
			captured = positional
			return value.None, nil
		}},
	}
	_, err := runScript(t, `function main() { note(1, 2, 3) }`, builtins)
	require.NoError(t, err)
	require.Equal(t, []value.Value{value.Int(1), value.Int(2), value.Int(3)}, captured)
}

func TestVMGCSparesGlobalsAndStillRunningClosure(t *testing.T) {
	src := `var counter = 0
	function makeCounter() {
		var n = 0
		function next() {
			n = n + 1
			return n
		}
		return next
	}
	function main() {
		counter = makeCounter()
		return counter()
	}`
	prog, err := compiler.Compile(src)
	require.NoError(t, err)
	lowered, err := lower.Lower(prog)
	require.NoError(t, err)
	machine := vm.New(lowered)
	result, err := machine.Run("main")
	require.NoError(t, err)
	require.Equal(t, value.Int(1), result)

	machine.GC(0)

	// counter is a global, so its captured environment must survive the
	// collection and a second invocation must see the incremented n.
	closureVal, ok := machine.Globals().Get("counter")
	require.True(t, ok)
	second, err := machine.Call(closureVal, nil, nil)
	require.NoError(t, err)
	require.Equal(t, value.Int(2), second)
}

package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udonscript/udon/compiler"
)

func findFunc(t *testing.T, prog *compiler.Program, name string) *compiler.Function {
	t.Helper()
	idx, ok := prog.FuncIndex[name]
	require.True(t, ok, "function %q not found", name)
	return prog.Functions[idx]
}

func TestCompileRegistersEveryTopLevelFunction(t *testing.T) {
	prog, err := compiler.Compile(`
function add(a, b) { return a + b }
function main() { return add(1, 2) }
`)
	require.NoError(t, err)
	require.Contains(t, prog.FuncIndex, "add")
	require.Contains(t, prog.FuncIndex, "main")
	// every Program carries an auto-generated global initializer.
	require.Contains(t, prog.FuncIndex, "$init")
	require.Same(t, prog.GlobalInit, findFunc(t, prog, "$init"))
}

func TestCompileFunctionParamsAndVariadic(t *testing.T) {
	prog, err := compiler.Compile(`function sum(first, ...rest) { return first }`)
	require.NoError(t, err)
	fn := findFunc(t, prog, "sum")
	require.Equal(t, []string{"first"}, fn.Params)
	require.Equal(t, "rest", fn.Variadic)
}

func TestCompileImplicitFallthroughReturnsNone(t *testing.T) {
	prog, err := compiler.Compile(`function noop() { var x = 1 }`)
	require.NoError(t, err)
	fn := findFunc(t, prog, "noop")
	require.NotEmpty(t, fn.Code)
	last := fn.Code[len(fn.Code)-1]
	require.Equal(t, compiler.OpReturn, last.Op)
	prev := fn.Code[len(fn.Code)-2]
	require.Equal(t, compiler.OpPushLiteral, prev.Op)
	require.True(t, prev.Literal.IsNone())
}

func TestCompileEventHandlerRegistration(t *testing.T) {
	prog, err := compiler.Compile(`function on:boot() { var x = 1 }`)
	require.NoError(t, err)
	idxs, ok := prog.EventHandlers["on:boot"]
	require.True(t, ok)
	require.Len(t, idxs, 1)
	require.Equal(t, "on:boot", prog.Functions[idxs[0]].Name)
}

func TestCompileConcatOperator(t *testing.T) {
	prog, err := compiler.Compile(`function main() { return "a" .. "b" }`)
	require.NoError(t, err)
	fn := findFunc(t, prog, "main")
	var sawConcat bool
	for _, ins := range fn.Code {
		if ins.Op == compiler.OpConcat {
			sawConcat = true
		}
	}
	require.True(t, sawConcat, "expected a CONCAT instruction for the .. operator")
}

func TestCompileObjectLiteralStackShape(t *testing.T) {
	prog, err := compiler.Compile(`function main() { return { a: 1, b: 2 } }`)
	require.NoError(t, err)
	fn := findFunc(t, prog, "main")
	var call *compiler.Instruction
	for i := range fn.Code {
		if fn.Code[i].Op == compiler.OpCall && fn.Code[i].Name == "__object_literal" {
			call = &fn.Code[i]
		}
	}
	require.NotNil(t, call, "expected a call to __object_literal")
	// two key/value pairs plus the trailing count argument: Argc == 2n+1.
	require.Equal(t, 5, call.Argc)
}

func TestCompilePropertyAccess(t *testing.T) {
	prog, err := compiler.Compile(`function main() { var o = { a: 1 }; return o:a }`)
	require.NoError(t, err)
	fn := findFunc(t, prog, "main")
	var sawGetProp bool
	for _, ins := range fn.Code {
		if ins.Op == compiler.OpGetProp && ins.Name == "a" {
			sawGetProp = true
		}
	}
	require.True(t, sawGetProp, "expected a GET_PROP a instruction")
}

func TestCompileTemplateTokenEmitsCallWithBody(t *testing.T) {
	prog, err := compiler.Compile(`function main() { return $html<<b>hi</b>> }`)
	require.NoError(t, err)
	fn := findFunc(t, prog, "main")
	var call *compiler.Instruction
	for i := range fn.Code {
		if fn.Code[i].Op == compiler.OpCall && fn.Code[i].Name == "html" {
			call = &fn.Code[i]
		}
	}
	require.NotNil(t, call, "expected a call to the html builtin")
}

func TestCompileReportsSyntaxError(t *testing.T) {
	_, err := compiler.Compile(`function main( { return 1 }`)
	require.Error(t, err)
	var ce *compiler.Error
	require.ErrorAs(t, err, &ce)
	require.NotZero(t, ce.Pos)
}

func TestCompileReportsUnterminatedBlock(t *testing.T) {
	_, err := compiler.Compile(`function main() { return 1`)
	require.Error(t, err)
}

func TestCompileIfElseJoinBothBranches(t *testing.T) {
	prog, err := compiler.Compile(`
function classify(x) {
	if (x < 0) {
		return "negative"
	} else {
		return "nonnegative"
	}
}
`)
	require.NoError(t, err)
	fn := findFunc(t, prog, "classify")
	var jumps int
	for _, ins := range fn.Code {
		if ins.Op == compiler.OpJump || ins.Op == compiler.OpJumpIfFalse {
			jumps++
			require.GreaterOrEqual(t, ins.Target, 0)
			require.Less(t, ins.Target, len(fn.Code))
		}
	}
	require.GreaterOrEqual(t, jumps, 2)
}

package lower_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udonscript/udon/compiler"
	"github.com/udonscript/udon/lower"
)

func compileAndLower(t *testing.T, src string) *lower.Program {
	t.Helper()
	prog, err := compiler.Compile(src)
	require.NoError(t, err)
	lowered, err := lower.Lower(prog)
	require.NoError(t, err)
	return lowered
}

func findFunc(t *testing.T, prog *lower.Program, name string) *lower.Function {
	t.Helper()
	idx, ok := prog.FuncIndex[name]
	require.True(t, ok, "function %q not found", name)
	return prog.Functions[idx]
}

func TestLowerArithmeticFrameSize(t *testing.T) {
	prog := compileAndLower(t, `function main() { var a = 1 + 2 * 3; return a }`)
	main := findFunc(t, prog, "main")
	require.NotEmpty(t, main.Code)
	require.GreaterOrEqual(t, main.FrameSize, 1)
}

func TestLowerPreservesInstructionCountAndJumpTargets(t *testing.T) {
	src := `function main() { var x = 0; if (x < 1) { x = 1 } else { x = 2 } return x }`
	stackProg, err := compiler.Compile(src)
	require.NoError(t, err)
	lowered, err := lower.Lower(stackProg)
	require.NoError(t, err)

	idx := stackProg.FuncIndex["main"]
	stackFn := stackProg.Functions[idx]
	regFn := lowered.Functions[idx]
	require.Len(t, regFn.Code, len(stackFn.Code))

	for i, ins := range stackFn.Code {
		if ins.Op == compiler.OpJump || ins.Op == compiler.OpJumpIfFalse {
			require.Equal(t, ins.Target, regFn.Code[i].Target)
		}
	}
}

func TestLowerScopeOpsBecomeNop(t *testing.T) {
	src := `function main() { var x = 0; { var y = 1; x = y } return x }`
	prog := compileAndLower(t, src)
	main := findFunc(t, prog, "main")
	sawNop := false
	for _, ins := range main.Code {
		if ins.Op == lower.OpNop {
			sawNop = true
		}
	}
	require.True(t, sawNop, "expected ENTER_SCOPE/EXIT_SCOPE to lower to NOP")
}

func TestLowerCallArgBaseContiguous(t *testing.T) {
	prog := compileAndLower(t, `function main() { print(1, 2, 3) }`)
	main := findFunc(t, prog, "main")
	found := false
	for _, ins := range main.Code {
		if ins.Op == lower.OpCall && ins.Name == "print" {
			require.Equal(t, 3, ins.Argc)
			found = true
		}
	}
	require.True(t, found, "expected a lowered CALL to print")
}

func TestLowerFunctionArgcZero(t *testing.T) {
	prog := compileAndLower(t, `function f() { return 1 } function main() { return f() }`)
	main := findFunc(t, prog, "main")
	for _, ins := range main.Code {
		if ins.Op == lower.OpCall {
			require.Equal(t, 0, ins.Argc)
		}
	}
}

package dump_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udonscript/udon/compiler"
	"github.com/udonscript/udon/dump"
	"github.com/udonscript/udon/lower"
)

func lowerSource(t *testing.T, src string) *lower.Program {
	t.Helper()
	prog, err := compiler.Compile(src)
	require.NoError(t, err)
	lowered, err := lower.Lower(prog)
	require.NoError(t, err)
	return lowered
}

func TestDumpEmitsFunctionHeaderAndIndexedInstructions(t *testing.T) {
	prog := lowerSource(t, `function add(a, b) { return a + b }`)

	var buf bytes.Buffer
	require.NoError(t, dump.New(prog, &buf).Dump())

	out := buf.String()
	require.Contains(t, out, "function add(a, b)")
	require.Contains(t, out, "[0]")
	require.Contains(t, out, "RETURN")
}

func TestDumpFunctionRejectsUnknownName(t *testing.T) {
	prog := lowerSource(t, `function main() { return 1 }`)

	var buf bytes.Buffer
	err := dump.New(prog, &buf).DumpFunction("nope")
	require.Error(t, err)
}

func TestDumpFunctionRendersOnlyRequestedFunction(t *testing.T) {
	prog := lowerSource(t, `
		function one() { return 1 }
		function two() { return 2 }
	`)

	var buf bytes.Buffer
	require.NoError(t, dump.New(prog, &buf).DumpFunction("two"))

	out := buf.String()
	require.Contains(t, out, "function two()")
	require.NotContains(t, out, "function one()")
}

func TestDumpRendersVariadicHeader(t *testing.T) {
	prog := lowerSource(t, `function sum(first, ...rest) { return first }`)

	var buf bytes.Buffer
	require.NoError(t, dump.New(prog, &buf).Dump())

	require.Contains(t, buf.String(), "function sum(first, ...rest)")
}

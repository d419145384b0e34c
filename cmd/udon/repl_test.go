package main

import (
	"bufio"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udonscript/udon/internal/logio"
)

func captureStdout(t *testing.T, f func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	f()

	require.NoError(t, w.Close())
	out, err := io.ReadAll(bufio.NewReader(r))
	require.NoError(t, err)
	return string(out)
}

func TestReplMultilineFunctionDeclarationPersists(t *testing.T) {
	r := &repl{log: &logio.Logger{}}

	out := captureStdout(t, func() {
		require.False(t, r.handleLine("function add(a, b) {"))
		require.False(t, r.handleLine("return a + b"))
		require.False(t, r.handleLine("}"))
	})
	require.Contains(t, out, "OK")
	require.Len(t, r.history, 1)
}

func TestReplClearResetsPendingInput(t *testing.T) {
	r := &repl{log: &logio.Logger{}}
	captureStdout(t, func() {
		r.handleLine("function f() {")
		require.Equal(t, 1, r.braceDepth)
		r.handleLine("clear")
	})
	require.Equal(t, 0, r.braceDepth)
	require.Zero(t, r.pending.Len())
}

func TestReplExitRequestsStop(t *testing.T) {
	r := &repl{log: &logio.Logger{}}
	var done bool
	captureStdout(t, func() { done = r.handleLine("exit") })
	require.True(t, done)
}

func TestReplEvaluatesExpressionSideEffects(t *testing.T) {
	r := &repl{log: &logio.Logger{}}
	out := captureStdout(t, func() {
		r.handleLine(`print("from repl")`)
	})
	require.Contains(t, out, "from repl")
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udonscript/udon/internal/logio"
)

func TestBuildVMRunsEntryFunction(t *testing.T) {
	var out bytes.Buffer
	log := &logio.Logger{}
	machine, err := buildVM(`function main() { return 2 + 2 }`, commonFlags{}, &out, log)
	require.NoError(t, err)

	result, err := machine.Run("main")
	require.NoError(t, err)
	require.Equal(t, "4", formatResult(result))
}

func TestBuildVMPropagatesCompileErrors(t *testing.T) {
	var out bytes.Buffer
	log := &logio.Logger{}
	_, err := buildVM(`function main( { return 1 }`, commonFlags{}, &out, log)
	require.Error(t, err)
}

func TestBuildVMWiresPrintToOutput(t *testing.T) {
	var out bytes.Buffer
	log := &logio.Logger{}
	machine, err := buildVM(`function main() { print("hello") }`, commonFlags{}, &out, log)
	require.NoError(t, err)

	_, err = machine.Run("main")
	require.NoError(t, err)
	require.Equal(t, "hello\n", out.String())
}

func TestReadScriptsConcatenatesMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.udon")
	b := filepath.Join(dir, "b.udon")
	require.NoError(t, os.WriteFile(a, []byte("function helper() { return 1 }\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("function main() { return helper() + 1 }\n"), 0o644))

	src, err := readScripts([]string{a, b})
	require.NoError(t, err)

	log := &logio.Logger{}
	var out bytes.Buffer
	machine, err := buildVM(src, commonFlags{}, &out, log)
	require.NoError(t, err)

	result, err := machine.Run("main")
	require.NoError(t, err)
	require.Equal(t, "2", formatResult(result))
}

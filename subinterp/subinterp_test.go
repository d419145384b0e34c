package subinterp_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udonscript/udon/subinterp"
	"github.com/udonscript/udon/value"
)

func writeScript(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestManagerImportAndCall(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "child.udon", `
		var exported = 41
		function bump(n) { return n + 1 }
	`)

	mgr := subinterp.NewManager(nil)
	id, err := mgr.Import(path)
	require.NoError(t, err)

	result, err := mgr.Call(id, "bump", []value.Value{value.Int(1)}, nil)
	require.NoError(t, err)
	require.Equal(t, value.Int(2), result)

	globals, err := mgr.Globals(id)
	require.NoError(t, err)
	v, ok := globals.Get("exported")
	require.True(t, ok)
	require.Equal(t, value.Int(41), v)
}

func TestManagerImportAllIsIndependentPerChild(t *testing.T) {
	dir := t.TempDir()
	pathA := writeScript(t, dir, "a.udon", `var n = 1`)
	pathB := writeScript(t, dir, "b.udon", `var n = 2`)

	mgr := subinterp.NewManager(nil)
	ids, err := mgr.ImportAll([]string{pathA, pathB})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	ga, err := mgr.Globals(ids[0])
	require.NoError(t, err)
	va, _ := ga.Get("n")
	require.Equal(t, value.Int(1), va)

	gb, err := mgr.Globals(ids[1])
	require.NoError(t, err)
	vb, _ := gb.Get("n")
	require.Equal(t, value.Int(2), vb)
}

func TestManagerCallUnknownChildErrors(t *testing.T) {
	mgr := subinterp.NewManager(nil)
	_, err := mgr.Call(7, "anything", nil, nil)
	require.Error(t, err)
}

func TestManagerImportCompileErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "broken.udon", `function f( { `)

	mgr := subinterp.NewManager(nil)
	_, err := mgr.Import(path)
	require.Error(t, err)
}

func TestManagerCloseDropsChildren(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "child.udon", `var n = 1`)

	mgr := subinterp.NewManager(nil)
	id, err := mgr.Import(path)
	require.NoError(t, err)

	mgr.Close()
	_, err = mgr.Globals(id)
	require.Error(t, err)
}

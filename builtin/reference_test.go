package builtin_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udonscript/udon/builtin"
	"github.com/udonscript/udon/compiler"
	"github.com/udonscript/udon/host"
	"github.com/udonscript/udon/lower"
	"github.com/udonscript/udon/subinterp"
	"github.com/udonscript/udon/value"
	"github.com/udonscript/udon/vm"
)

func run(t *testing.T, src string, reg *host.Registry, out *bytes.Buffer) (value.Value, error) {
	t.Helper()
	prog, err := compiler.Compile(src)
	require.NoError(t, err)
	lowered, err := lower.Lower(prog)
	require.NoError(t, err)
	opts := []vm.Option{vm.WithBuiltins(reg)}
	if out != nil {
		opts = append(opts, vm.WithOutput(out))
	}
	machine := vm.New(lowered, opts...)
	return machine.Run("main")
}

func newReferenceRegistry() *host.Registry {
	reg := host.NewRegistry()
	builtin.RegisterReference(reg)
	return reg
}

func TestArrayAndArrayGet(t *testing.T) {
	reg := newReferenceRegistry()
	result, err := run(t, `function main() { var xs = array(10, 20, 30); return array_get(xs, 1) }`, reg, nil)
	require.NoError(t, err)
	require.Equal(t, value.Int(20), result)
}

func TestKeysInsertionOrder(t *testing.T) {
	reg := newReferenceRegistry()
	src := `function main() {
		var o = { b: 1, a: 2 }
		var ks = keys(o)
		return array_get(ks, 0) .. "," .. array_get(ks, 1)
	}`
	result, err := run(t, src, reg, nil)
	require.NoError(t, err)
	require.Equal(t, value.String("b,a"), result)
}

func TestObjectLiteral(t *testing.T) {
	reg := newReferenceRegistry()
	result, err := run(t, `function main() { var o = { x: 1, y: 2 }; return o:x + o:y }`, reg, nil)
	require.NoError(t, err)
	require.Equal(t, value.Int(3), result)
}

func TestLenOnArrayAndString(t *testing.T) {
	reg := newReferenceRegistry()
	result, err := run(t, `function main() { return len(array(1, 2, 3)) + len("hi") }`, reg, nil)
	require.NoError(t, err)
	require.Equal(t, value.Int(5), result)
}

func TestArrayDeleteMissingKeyReturnsFalse(t *testing.T) {
	reg := newReferenceRegistry()
	result, err := run(t, `function main() { var xs = array(1); return array_delete(xs, 99) }`, reg, nil)
	require.NoError(t, err)
	require.Equal(t, value.Bool(false), result)
}

func TestArrayDeleteExistingKeyReturnsTrue(t *testing.T) {
	reg := newReferenceRegistry()
	result, err := run(t, `function main() { var xs = array(1, 2); return array_delete(xs, 0) }`, reg, nil)
	require.NoError(t, err)
	require.Equal(t, value.Bool(true), result)
}

func TestPrintWritesToConfiguredOutput(t *testing.T) {
	reg := newReferenceRegistry()
	var out bytes.Buffer
	_, err := run(t, `function main() { print("hello", 1, 2) }`, reg, &out)
	require.NoError(t, err)
	require.Equal(t, "hello 1 2\n", out.String())
}

func TestToJSONRendersArrayAsObject(t *testing.T) {
	reg := newReferenceRegistry()
	result, err := run(t, `function main() { var o = { a: 1, b: "x" }; return to_json(o) }`, reg, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1,"b":"x"}`, result.Str())
}

func TestHTMLBuiltinRendersFragment(t *testing.T) {
	reg := newReferenceRegistry()
	result, err := run(t, "function main() { return $html<<b>hi</b>> }", reg, nil)
	require.NoError(t, err)
	require.Contains(t, result.Str(), "<b>hi</b>")
}

func TestImportForwardsFunctionCalls(t *testing.T) {
	dir := t.TempDir()
	childPath := filepath.Join(dir, "child.udon")
	require.NoError(t, os.WriteFile(childPath, []byte(`function double(n) { return n * 2 }`), 0o644))

	reg := host.NewRegistry()
	builtin.RegisterReference(reg)
	mgr := subinterp.NewManager(reg)
	builtin.RegisterImports(reg, mgr)

	src := `function main() {
		var mod = import("` + filepath.ToSlash(childPath) + `")
		var fn = mod:double
		return fn(21)
	}`
	result, err := run(t, src, reg, nil)
	require.NoError(t, err)
	require.Equal(t, value.Int(42), result)
}

func TestRunEventHandlersInvokesRegisteredHandler(t *testing.T) {
	reg := newReferenceRegistry()
	var out bytes.Buffer
	src := `var log = ""
	function on:boot() { log = log .. "booted" }
	function main() {
		run_eventhandlers("on:boot")
		print(log)
	}`
	_, err := run(t, src, reg, &out)
	require.NoError(t, err)
	require.Equal(t, "booted\n", out.String())
}

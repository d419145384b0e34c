package builtin

import (
	"fmt"

	"github.com/udonscript/udon/host"
	"github.com/udonscript/udon/subinterp"
	"github.com/udonscript/udon/value"
	"github.com/udonscript/udon/vm"
)

// RegisterImports installs `import` and `run_eventhandlers` against mgr.
// Kept separate from RegisterReference since constructing a Manager
// requires the registry itself (to share builtins with children), so the
// caller must build the registry, the Manager, and then wire this in, in
// that order.
func RegisterImports(reg *host.Registry, mgr *subinterp.Manager) {
	reg.Register(ImportBuiltin(mgr))
	reg.Register(RunEventHandlersBuiltin())
}

// ImportBuiltin returns the `import(path)` reserved host behavior
// (spec.md §4.6): it compiles and initializes path in a fresh
// sub-interpreter owned by mgr, then returns an Array forwarding into it —
// scalar globals are copied by value, function globals become native
// closures that re-enter the child on every call, keyed by name.
//
// Array-valued globals are not forwarded: an Array's identity lives in its
// own interpreter's heap, and copying its Handle across heaps would alias
// an unrelated object in the parent's pools. A full solution would deep-copy
// or wrap such globals in their own forwarding accessor; neither is
// exercised by any SPEC_FULL.md scenario, so this is left as a documented
// limitation rather than implemented speculatively.
func ImportBuiltin(mgr *subinterp.Manager) vm.Builtin {
	return vm.Builtin{
		Name:       "import",
		Signature:  "import(path)",
		ReturnType: "array",
		Fn: func(it vm.Interpreter, positional []value.Value, _ map[string]value.Value) (value.Value, error) {
			if len(positional) != 1 || positional[0].Kind() != value.KindString {
				return value.None, fmt.Errorf("import expects a single string path")
			}
			path := positional[0].Str()

			id, err := mgr.Import(path)
			if err != nil {
				return value.None, err
			}
			globals, err := mgr.Globals(id)
			if err != nil {
				return value.None, err
			}

			out := it.Heap().ArrayValue()
			outArr := it.Heap().Array(out)
			for i := 0; i < globals.Len(); i++ {
				name := globals.Name(i)
				v := globals.GetSlot(i)
				switch v.Kind() {
				case value.KindFunction:
					forwarder := it.Heap().ClosureValue(value.Closure{
						Name: name,
						Native: func(positional []value.Value, named map[string]value.Value) (value.Value, error) {
							return mgr.Call(id, name, positional, named)
						},
					})
					outArr.Set(value.String(name), forwarder)
				case value.KindArray:
					// see doc comment: cross-heap aggregate globals are not forwarded.
				default:
					outArr.Set(value.String(name), v)
				}
			}
			return out, nil
		},
	}
}

// RunEventHandlersBuiltin returns `run_eventhandlers("on:E")` (spec.md
// §4.6), dispatching against the interpreter that owns the call.
func RunEventHandlersBuiltin() vm.Builtin {
	return vm.Builtin{
		Name:       "run_eventhandlers",
		Signature:  "run_eventhandlers(event)",
		ReturnType: "none",
		Fn: func(it vm.Interpreter, positional []value.Value, _ map[string]value.Value) (value.Value, error) {
			if len(positional) != 1 || positional[0].Kind() != value.KindString {
				return value.None, fmt.Errorf("run_eventhandlers expects a single string event name")
			}
			return value.None, it.RunEventHandlers(positional[0].Str())
		},
	}
}

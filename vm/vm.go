// Package vm executes udon's lowered register-IR program over lexical
// environment frames (spec.md §4.4), integrating with host builtins through
// the Builtins interface and collecting garbage through value.GC.
package vm

import (
	"fmt"
	"io"

	"github.com/udonscript/udon/internal/flushio"
	"github.com/udonscript/udon/lower"
	"github.com/udonscript/udon/value"
)

// Builtins is the subset of the host protocol (spec.md §4.6) the VM calls
// into directly: resolving a name to a callable and invoking it with
// positional and named arguments. Package host implements this interface;
// the VM only depends on the narrow slice it actually needs, the way
// jcorbin-gothird's VM depends only on the symbol table it needs rather than
// the whole Core.
type Builtins interface {
	Lookup(name string) (Builtin, bool)
}

// Builtin is a single registered host callback (spec.md §4.6).
type Builtin struct {
	Name       string
	Signature  string
	ReturnType string
	Fn         func(it Interpreter, positional []value.Value, named map[string]value.Value) (value.Value, error)
}

// Interpreter is the slice of VM state a builtin callback may use to
// re-enter script execution or allocate onto the correct heap (spec.md §5
// "a thread-local current interpreter pointer... passed through explicitly
// where possible"). The VM itself implements this interface.
type Interpreter interface {
	Heap() *value.Heap
	Globals() *value.Globals
	Call(fn value.Value, positional []value.Value, named map[string]value.Value) (value.Value, error)
	CallNamed(name string, positional []value.Value, named map[string]value.Value) (value.Value, error)
	RunEventHandlers(event string) error
	GC(budgetMS int)

	// Output returns the VM's configured writer (see WithOutput), the
	// target for host-visible side effects such as `print`.
	Output() flushio.WriteFlusher

	// PinValue/PinEnv root a temporary outside any frame or global, for a
	// builtin that holds a freshly allocated object across a Call/CallNamed
	// that might itself trigger a collection (spec.md §4.5 "active
	// environment-root and value-root lists"). UnpinValues/UnpinEnvs
	// truncate back to a length previously read from PinLenValues/PinLenEnvs.
	PinValue(v value.Value)
	PinEnv(h value.Handle)
	PinLenValues() int
	PinLenEnvs() int
	UnpinValues(n int)
	UnpinEnvs(n int)
}

// Frame is one live activation: its function, instruction pointer, and the
// heap environment backing its slot vector (spec.md §4.4).
type Frame struct {
	fn  *lower.Function
	ip  int
	env value.Handle
}

// vmHaltError wraps any error that unwinds the Go call stack via panic to
// the single Run entry point, grounded on jcorbin-gothird/internals.go's
// vmHaltError.
type vmHaltError struct{ error }

func (err vmHaltError) Error() string {
	if err.error != nil {
		return fmt.Sprintf("VM halted: %v", err.error)
	}
	return "VM halted"
}
func (err vmHaltError) Unwrap() error { return err.error }

// RuntimeError decorates a vm-detected failure with the failing
// instruction's function name and index (SPEC_FULL.md "Error handling":
// "runtime errors additionally carry the failing instruction's function
// name and index").
type RuntimeError struct {
	Func  string
	Index int
	Err   error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s@%d: %v", e.Func, e.Index, e.Err)
}
func (e *RuntimeError) Unwrap() error { return e.Err }

// VM is udon's virtual machine: one call stack of frames and one heap,
// constructed through functional options (SPEC_FULL.md "vm", grounded on
// jcorbin-gothird/options.go). Unlike the stack-shaped compiler output, the
// register IR has no separate evaluation stack to root for GC purposes —
// every transient value lives in a slot of some frame's Environment, so
// FrameEnvs alone covers it (spec.md §4.3's register model folds the
// evaluation stack into the activation's flat slot vector).
type VM struct {
	prog *lower.Program

	heap    *value.Heap
	globals *value.Globals

	frames []*Frame

	builtins Builtins
	out      flushio.WriteFlusher
	memLimit int
	logf     func(mess string, args ...interface{})

	// extraEnvs/extraVals root in-flight temporaries that are not yet
	// reachable from the stack or a frame, e.g. a closure's environment
	// being constructed (spec.md §4.5 "active environment-root and
	// value-root lists").
	extraEnvs []value.Handle
	extraVals []value.Value

	gcBudgetMS  int
	returnCount int
	initialized bool
}

// New constructs a VM over prog, applying opts in order.
func New(prog *lower.Program, opts ...Option) *VM {
	vm := &VM{
		prog:    prog,
		heap:    value.NewHeap(),
		globals: prog.Globals,
		out:     flushio.NewWriteFlusher(io.Discard),
		logf:    func(string, ...interface{}) {},
	}
	Options(opts...).apply(vm)
	return vm
}

func (vm *VM) Heap() *value.Heap       { return vm.heap }
func (vm *VM) Globals() *value.Globals { return vm.globals }

// halt panics with a vmHaltError, flushing output first, mirroring
// jcorbin-gothird/internals.go's VM.halt.
func (vm *VM) halt(err error) {
	if ferr := vm.out.Flush(); err == nil {
		err = ferr
	}
	err = vmHaltError{err}
	vm.logf("halt error: %v", err)
	panic(err)
}

func (vm *VM) haltif(err error) {
	if err != nil {
		vm.halt(err)
	}
}

func (vm *VM) rtErr(fn *Frame, err error) error {
	if err == nil {
		return nil
	}
	// runFrame advances ip before executing, so the failing instruction is
	// the one before it.
	return &RuntimeError{Func: fn.fn.Name, Index: fn.ip - 1, Err: err}
}

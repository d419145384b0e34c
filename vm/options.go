package vm

import "github.com/udonscript/udon/internal/flushio"

// Option configures a VM at construction time, following
// jcorbin-gothird/options.go's functional-options pattern exactly: an
// Option interface with an unexported apply method, and an Options(...)
// combinator that flattens nested option lists so a caller can build up a
// []Option incrementally and pass it through New in one call.
type Option interface {
	apply(vm *VM)
}

type optionFunc func(vm *VM)

func (f optionFunc) apply(vm *VM) { f(vm) }

type noption struct{}

func (noption) apply(*VM) {}

type options []Option

func (opts options) apply(vm *VM) {
	for _, opt := range opts {
		opt.apply(vm)
	}
}

// Options flattens any number of options (including nested Options results)
// into a single Option.
func Options(opts ...Option) Option {
	if len(opts) == 0 {
		return noption{}
	}
	return options(opts)
}

// WithBuiltins registers the host's builtin lookup table.
func WithBuiltins(b Builtins) Option {
	return optionFunc(func(vm *VM) { vm.builtins = b })
}

// WithOutput directs the VM's output (the `print` builtin writes through
// here via the Interpreter it's handed) through w, wrapped in a flusher.
func WithOutput(w interface{ Write([]byte) (int, error) }) Option {
	return optionFunc(func(vm *VM) { vm.out = flushio.NewWriteFlusher(w) })
}

// WithMemLimit bounds the heap's pool growth in bytes; zero means
// unbounded. This reuses jcorbin-gothird's memLimitOption idea against the
// GC's pools instead of a flat int slice.
func WithMemLimit(bytes int) Option {
	return optionFunc(func(vm *VM) { vm.memLimit = bytes })
}

// WithLogf installs a trace logging hook, invoked once per dispatched
// instruction when non-nil.
func WithLogf(logf func(mess string, args ...interface{})) Option {
	return optionFunc(func(vm *VM) {
		if logf != nil {
			vm.logf = logf
		}
	})
}

// WithGCBudget sets the default millisecond time budget passed to the
// collector by implicit safe-point triggers (spec.md §4.5 "Trigger").
func WithGCBudget(ms int) Option {
	return optionFunc(func(vm *VM) { vm.gcBudgetMS = ms })
}

// Output exposes the VM's configured writer, used by builtins that must
// write host output (e.g. `print`) through the same flush discipline as the
// VM's own halt path.
func (vm *VM) Output() flushio.WriteFlusher { return vm.out }

// Package host implements udon's builtin registry (spec.md §4.6): a plain
// name -> callback table the VM consults through the narrow vm.Builtins
// interface, with support for aliasing one entry under several names.
package host

import "github.com/udonscript/udon/vm"

// reservedNames are the builtins the compiler itself emits calls to
// (spec.md §4.6 "Reserved names used by the compiler"). They must be
// registered for any compiled program to run correctly; Registry does not
// enforce this itself (a host embedding a restricted subset of the
// language may not compile anything that reaches them), but Missing
// reports which of them, if any, are absent.
var reservedNames = []string{"array", "__object_literal", "keys", "len", "array_get"}

// Registry is a host's builtin table, implementing vm.Builtins.
type Registry struct {
	entries map[string]vm.Builtin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]vm.Builtin)}
}

// Register adds b under b.Name, overwriting any existing entry of the same
// name.
func (r *Registry) Register(b vm.Builtin) {
	r.entries[b.Name] = b
}

// Alias binds an additional name to the entry already registered under
// existing, so script code may call either name to reach the same
// callback. Alias panics if existing has not been registered, since an
// alias to nothing is always a host-construction bug.
func (r *Registry) Alias(alias, existing string) {
	b, ok := r.entries[existing]
	if !ok {
		panic("host: Alias: no such builtin " + existing)
	}
	b.Name = alias
	r.entries[alias] = b
}

// Lookup implements vm.Builtins.
func (r *Registry) Lookup(name string) (vm.Builtin, bool) {
	b, ok := r.entries[name]
	return b, ok
}

// Missing reports which reserved names have no registered entry.
func (r *Registry) Missing() []string {
	var missing []string
	for _, name := range reservedNames {
		if _, ok := r.entries[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Names returns every registered builtin name in no particular order;
// callers sort it if needed.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

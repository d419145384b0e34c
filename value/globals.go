package value

// Globals is a name -> value table with a stable slot index per name,
// permitting either by-name or by-slot access (spec.md §3). Globals outlive
// any single call and are never freed by the collector except by dropping
// the whole interpreter.
type Globals struct {
	names  map[string]int
	order  []string
	values []Value
}

// NewGlobals returns an empty global table.
func NewGlobals() *Globals {
	return &Globals{names: make(map[string]int)}
}

// Declare assigns name a fresh slot if it doesn't have one yet and returns
// its index. The compiler rejects a top-level `var` whose name is already a
// global; Declare itself is idempotent, returning the existing slot for a
// name it has seen before.
func (g *Globals) Declare(name string) int {
	if i, ok := g.names[name]; ok {
		return i
	}
	i := len(g.order)
	g.names[name] = i
	g.order = append(g.order, name)
	g.values = append(g.values, None)
	return i
}

// Slot returns name's slot index and whether it is declared.
func (g *Globals) Slot(name string) (int, bool) {
	i, ok := g.names[name]
	return i, ok
}

// Name returns the name declared at slot i.
func (g *Globals) Name(i int) string {
	if i < 0 || i >= len(g.order) {
		return ""
	}
	return g.order[i]
}

// Get reads a global by name.
func (g *Globals) Get(name string) (Value, bool) {
	i, ok := g.names[name]
	if !ok {
		return None, false
	}
	return g.values[i], true
}

// GetSlot reads a global by slot index.
func (g *Globals) GetSlot(i int) Value {
	if i < 0 || i >= len(g.values) {
		return None
	}
	return g.values[i]
}

// Set writes a global by name, declaring it if necessary.
func (g *Globals) Set(name string, v Value) {
	i := g.Declare(name)
	g.values[i] = v
}

// SetSlot writes a global by slot index.
func (g *Globals) SetSlot(i int, v Value) {
	if i >= 0 && i < len(g.values) {
		g.values[i] = v
	}
}

// Len returns the number of declared globals.
func (g *Globals) Len() int { return len(g.order) }

// Values returns every global value, for GC root-marking.
func (g *Globals) Values() []Value { return g.values }

package value

// slab is a paged, reusable object pool: a direct generalization of
// jcorbin-gothird/internal/mem.PagedCore from "pages of int" to "pages of
// heap object slots". Handles are 1-based indices into items so the zero
// Handle can mean "no object" throughout the value package.
type slab[T any] struct {
	items  []T
	used   []bool
	marked []bool
	free   []Handle
}

const slabPageSize = 256

func (p *slab[T]) grow(to int) {
	if to <= len(p.items) {
		return
	}
	to = (to + slabPageSize - 1) / slabPageSize * slabPageSize
	grownItems := make([]T, to)
	copy(grownItems, p.items)
	p.items = grownItems

	grownUsed := make([]bool, to)
	copy(grownUsed, p.used)
	p.used = grownUsed

	grownMarked := make([]bool, to)
	copy(grownMarked, p.marked)
	p.marked = grownMarked
}

func (p *slab[T]) alloc(v T) Handle {
	if n := len(p.free); n > 0 {
		h := p.free[n-1]
		p.free = p.free[:n-1]
		p.items[h-1] = v
		p.used[h-1] = true
		return h
	}
	oldLen := len(p.items)
	p.grow(oldLen + 1)
	idx := oldLen
	for idx < len(p.items) && p.used[idx] {
		idx++
	}
	p.items[idx] = v
	p.used[idx] = true
	return Handle(idx + 1)
}

func (p *slab[T]) get(h Handle) *T {
	i := int(h) - 1
	if h == 0 || i >= len(p.items) || !p.used[i] {
		return nil
	}
	return &p.items[i]
}

func (p *slab[T]) mark(h Handle) bool {
	i := int(h) - 1
	if h == 0 || i >= len(p.items) || !p.used[i] || p.marked[i] {
		return false
	}
	p.marked[i] = true
	return true
}

// sweep frees every unmarked, used slot and clears mark bits for the next
// cycle, returning the number of objects freed.
func (p *slab[T]) sweep() int {
	var freed int
	var zero T
	for i := range p.items {
		if !p.used[i] {
			continue
		}
		if !p.marked[i] {
			p.items[i] = zero
			p.used[i] = false
			p.free = append(p.free, Handle(i+1))
			freed++
		} else {
			p.marked[i] = false
		}
	}
	return freed
}

func (p *slab[T]) liveCount() int {
	n := 0
	for _, u := range p.used {
		if u {
			n++
		}
	}
	return n
}

// Heap owns udon's three heap object pools (environments, arrays, closures)
// per spec.md §4.5.
type Heap struct {
	envs      slab[Environment]
	arrays    slab[Array]
	closures  slab[Closure]
	collector GC
}

// NewHeap returns an empty heap.
func NewHeap() *Heap {
	h := &Heap{}
	h.collector.heap = h
	return h
}

func (h *Heap) NewArray() Handle {
	return h.arrays.alloc(*newArray())
}

func (h *Heap) NewEnvironment(size int, parent Handle) Handle {
	return h.envs.alloc(*newEnvironment(size, parent))
}

func (h *Heap) NewClosure(c Closure) Handle {
	return h.closures.alloc(c)
}

// ArrayValue allocates a fresh Array and returns its Value.
func (h *Heap) ArrayValue() Value { return arrayVal(h.NewArray()) }

// ClosureValue allocates c and returns its Value.
func (h *Heap) ClosureValue(c Closure) Value { return closureVal(h.NewClosure(c)) }

func (h *Heap) Array(v Value) *Array {
	if v.kind != KindArray {
		return nil
	}
	return h.arrays.get(v.h)
}

func (h *Heap) ArrayByHandle(han Handle) *Array { return h.arrays.get(han) }

func (h *Heap) Closure(v Value) *Closure {
	if v.kind != KindFunction {
		return nil
	}
	return h.closures.get(v.h)
}

func (h *Heap) ClosureByHandle(han Handle) *Closure { return h.closures.get(han) }

func (h *Heap) Environment(han Handle) *Environment { return h.envs.get(han) }

// GC returns the heap's collector, used by hosts to trigger collections and
// read statistics (spec.md §4.5).
func (h *Heap) GC() *GC { return &h.collector }

// Stats reports pool occupancy, useful for host diagnostics and tests.
type Stats struct {
	LiveEnvironments int
	LiveArrays       int
	LiveClosures     int
}

func (h *Heap) Stats() Stats {
	return Stats{
		LiveEnvironments: h.envs.liveCount(),
		LiveArrays:       h.arrays.liveCount(),
		LiveClosures:     h.closures.liveCount(),
	}
}

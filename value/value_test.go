package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEqualNumericPromotion(t *testing.T) {
	require.True(t, Equal(Int(2), Float(2.0)), "int and equal float must compare equal")
	require.False(t, Equal(Int(2), Int(3)))
	require.True(t, Equal(None, None))
	require.False(t, Equal(None, Int(0)))
}

func TestArrayInsertionOrder(t *testing.T) {
	a := newArray()
	a.Set(String("b"), Int(2))
	a.Set(String("a"), Int(1))
	a.Set(String("b"), Int(99)) // update in place, keeps position

	keys := a.Keys()
	require.Equal(t, []Value{String("b"), String("a")}, keys)

	v, ok := a.Get(String("b"))
	require.True(t, ok)
	require.Equal(t, Int(99).Int(), v.Int())
}

func TestArrayIntegralFloatKeyCollision(t *testing.T) {
	a := newArray()
	a.Set(Int(1), String("one"))
	v, ok := a.Get(Float(1.0))
	require.True(t, ok, "1.0 must hash to the same key as 1")
	require.Equal(t, "one", v.Str())
}

func TestArrayIdentityThroughHandle(t *testing.T) {
	h := NewHeap()
	av := h.ArrayValue()
	a := h.Array(av)
	a.Set(Int(0), Int(1))

	// Copying the Value copies the handle, not the object (spec.md P2).
	b := av
	h.Array(b).Set(Int(0), Int(9))

	got, _ := h.Array(av).Get(Int(0))
	require.Equal(t, int64(9), got.Int())
}

func TestGCMarkSweep(t *testing.T) {
	h := NewHeap()
	kept := h.ArrayValue()
	h.Array(kept).Set(Int(0), Int(1))
	_ = h.ArrayValue() // unreachable

	h.GC().Collect(Roots{Globals: []Value{kept}}, 0)
	stats := h.Stats()
	require.Equal(t, 1, stats.LiveArrays, "unreachable array must be freed")

	// Second collection with the same roots is a no-op (P7).
	h.GC().Collect(Roots{Globals: []Value{kept}}, 0)
	require.Equal(t, 1, h.Stats().LiveArrays)
}

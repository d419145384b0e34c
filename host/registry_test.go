package host_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udonscript/udon/host"
	"github.com/udonscript/udon/value"
	"github.com/udonscript/udon/vm"
)

func stub(name string) vm.Builtin {
	return vm.Builtin{
		Name: name,
		Fn: func(it vm.Interpreter, positional []value.Value, named map[string]value.Value) (value.Value, error) {
			return value.None, nil
		},
	}
}

func TestRegistryLookupAndMissing(t *testing.T) {
	reg := host.NewRegistry()
	require.ElementsMatch(t, []string{"array", "__object_literal", "keys", "len", "array_get"}, reg.Missing())

	reg.Register(stub("array"))
	missing := reg.Missing()
	require.NotContains(t, missing, "array")
	require.Contains(t, missing, "keys")

	_, ok := reg.Lookup("array")
	require.True(t, ok)
	_, ok = reg.Lookup("nope")
	require.False(t, ok)
}

func TestRegistryAliasSharesCallback(t *testing.T) {
	reg := host.NewRegistry()
	reg.Register(stub("len"))
	reg.Alias("length", "len")

	original, ok := reg.Lookup("len")
	require.True(t, ok)
	aliased, ok := reg.Lookup("length")
	require.True(t, ok)
	require.Equal(t, "length", aliased.Name)
	require.Equal(t, "len", original.Name)
}

func TestRegistryAliasPanicsOnUnknownSource(t *testing.T) {
	reg := host.NewRegistry()
	require.Panics(t, func() { reg.Alias("x", "y") })
}

func TestRegistryNamesListsEveryEntry(t *testing.T) {
	reg := host.NewRegistry()
	reg.Register(stub("a"))
	reg.Register(stub("b"))
	names := reg.Names()
	sort.Strings(names)
	require.Equal(t, []string{"a", "b"}, names)
}

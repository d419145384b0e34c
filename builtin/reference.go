// Package builtin implements udon's reference builtin library: the
// compiler's reserved names (spec.md §4.6) plus a small set of
// host-side conveniences the end-to-end scenarios in spec.md §8 exercise.
// This package is not part of the core language — spec.md §1 specifies the
// core "only by the interfaces the core uses" — it is one possible host.
package builtin

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/udonscript/udon/host"
	"github.com/udonscript/udon/value"
	"github.com/udonscript/udon/vm"
)

// RegisterCore installs the five reserved builtins the compiler itself
// emits calls to (spec.md §4.6: "the compiler emits calls to these and
// they must be present for correctness"). Any program compiled against a
// registry missing one of these will halt on first use with "missing
// function".
func RegisterCore(reg *host.Registry) {
	reg.Register(arrayBuiltin())
	reg.Register(objectLiteralBuiltin())
	reg.Register(keysBuiltin())
	reg.Register(lenBuiltin())
	reg.Register(arrayGetBuiltin())
}

// RegisterReference installs RegisterCore plus the optional reference
// builtins (spec.md §8 scenarios): print, to_json, array_delete, and the
// $html template builtin.
func RegisterReference(reg *host.Registry) {
	RegisterCore(reg)
	reg.Register(arrayDeleteBuiltin())
	reg.Register(printBuiltin())
	reg.Register(toJSONBuiltin())
	reg.Register(htmlBuiltin())
}

func arrayBuiltin() vm.Builtin {
	return vm.Builtin{
		Name:       "array",
		Signature:  "array(...values)",
		ReturnType: "array",
		Fn: func(it vm.Interpreter, positional []value.Value, _ map[string]value.Value) (value.Value, error) {
			out := it.Heap().ArrayValue()
			arr := it.Heap().Array(out)
			for i, v := range positional {
				arr.Set(value.Int(int64(i)), v)
			}
			return out, nil
		},
	}
}

// objectLiteralBuiltin implements the `{ k: v, ... }` literal's compiled
// form (spec.md §4.2 "Object literal"): the compiler pushes every value,
// then every key as a string literal, then a trailing count, and calls
// here with count*2+1 positional arguments.
func objectLiteralBuiltin() vm.Builtin {
	return vm.Builtin{
		Name:       "__object_literal",
		Signature:  "__object_literal(v1, ..., vN, k1, ..., kN, N)",
		ReturnType: "array",
		Fn: func(it vm.Interpreter, positional []value.Value, _ map[string]value.Value) (value.Value, error) {
			if len(positional) == 0 {
				return it.Heap().ArrayValue(), nil
			}
			last := positional[len(positional)-1]
			if last.Kind() != value.KindInt {
				return value.None, fmt.Errorf("__object_literal: malformed entry count")
			}
			n := int(last.Int())
			if len(positional) != 2*n+1 {
				return value.None, fmt.Errorf("__object_literal: expected %d arguments, got %d", 2*n+1, len(positional))
			}
			vals, keys := positional[:n], positional[n:2*n]

			out := it.Heap().ArrayValue()
			arr := it.Heap().Array(out)
			for i := 0; i < n; i++ {
				arr.Set(keys[i], vals[i])
			}
			return out, nil
		},
	}
}

// keysBuiltin backs both the `keys()` reserved builtin and the foreach
// desugaring (spec.md §4.2 "foreach"), returning an Array whose own keys
// are 0..n-1 holding the argument's keys in insertion order (spec.md P3).
func keysBuiltin() vm.Builtin {
	return vm.Builtin{
		Name:       "keys",
		Signature:  "keys(collection)",
		ReturnType: "array",
		Fn: func(it vm.Interpreter, positional []value.Value, _ map[string]value.Value) (value.Value, error) {
			if len(positional) != 1 {
				return value.None, fmt.Errorf("keys expects exactly one argument")
			}
			arr := it.Heap().Array(positional[0])
			out := it.Heap().ArrayValue()
			outArr := it.Heap().Array(out)
			if arr != nil {
				for i, k := range arr.Keys() {
					outArr.Set(value.Int(int64(i)), k)
				}
			}
			return out, nil
		},
	}
}

func lenBuiltin() vm.Builtin {
	return vm.Builtin{
		Name:       "len",
		Signature:  "len(collection)",
		ReturnType: "int",
		Fn: func(it vm.Interpreter, positional []value.Value, _ map[string]value.Value) (value.Value, error) {
			if len(positional) != 1 {
				return value.None, fmt.Errorf("len expects exactly one argument")
			}
			v := positional[0]
			switch v.Kind() {
			case value.KindArray:
				arr := it.Heap().Array(v)
				if arr == nil {
					return value.Int(0), nil
				}
				return value.Int(int64(arr.Len())), nil
			case value.KindString:
				return value.Int(int64(len(v.Str()))), nil
			default:
				return value.Int(0), nil
			}
		},
	}
}

func arrayGetBuiltin() vm.Builtin {
	return vm.Builtin{
		Name:       "array_get",
		Signature:  "array_get(collection, key)",
		ReturnType: "value",
		Fn: func(it vm.Interpreter, positional []value.Value, _ map[string]value.Value) (value.Value, error) {
			if len(positional) != 2 {
				return value.None, fmt.Errorf("array_get expects exactly two arguments")
			}
			arr := it.Heap().Array(positional[0])
			if arr == nil {
				return value.None, nil
			}
			v, _ := arr.Get(positional[1])
			return v, nil
		},
	}
}

// arrayDeleteBuiltin reports (false, nil) on a missing key rather than an
// error (SPEC_FULL.md open-question decision 3), mirroring array_get's
// tolerant-missing-key behavior.
func arrayDeleteBuiltin() vm.Builtin {
	return vm.Builtin{
		Name:       "array_delete",
		Signature:  "array_delete(collection, key)",
		ReturnType: "bool",
		Fn: func(it vm.Interpreter, positional []value.Value, _ map[string]value.Value) (value.Value, error) {
			if len(positional) != 2 {
				return value.None, fmt.Errorf("array_delete expects exactly two arguments")
			}
			arr := it.Heap().Array(positional[0])
			if arr == nil {
				return value.Bool(false), nil
			}
			return value.Bool(arr.Delete(positional[1])), nil
		},
	}
}

func printBuiltin() vm.Builtin {
	return vm.Builtin{
		Name:       "print",
		Signature:  "print(...values)",
		ReturnType: "none",
		Fn: func(it vm.Interpreter, positional []value.Value, _ map[string]value.Value) (value.Value, error) {
			parts := make([]string, len(positional))
			for i, v := range positional {
				parts[i] = v.String()
			}
			out := it.Output()
			if _, err := out.Write([]byte(strings.Join(parts, " ") + "\n")); err != nil {
				return value.None, err
			}
			return value.None, out.Flush()
		},
	}
}

// toJSONValue converts a runtime Value into a plain Go value suitable for
// encoding/json, rendering every Array as a JSON object (spec.md §8
// scenario 6: "integer keys rendered as JSON object keys").
func toJSONValue(heap *value.Heap, v value.Value) interface{} {
	switch v.Kind() {
	case value.KindNone:
		return nil
	case value.KindBool:
		return v.Bool()
	case value.KindInt:
		return v.Int()
	case value.KindFloat:
		return v.Float()
	case value.KindString:
		return v.Str()
	case value.KindArray:
		arr := heap.Array(v)
		if arr == nil {
			return map[string]interface{}{}
		}
		obj := make(map[string]interface{}, arr.Len())
		arr.Each(func(k, val value.Value) bool {
			obj[k.String()] = toJSONValue(heap, val)
			return true
		})
		return obj
	default:
		return nil
	}
}

func toJSONBuiltin() vm.Builtin {
	return vm.Builtin{
		Name:       "to_json",
		Signature:  "to_json(value)",
		ReturnType: "string",
		Fn: func(it vm.Interpreter, positional []value.Value, _ map[string]value.Value) (value.Value, error) {
			if len(positional) != 1 {
				return value.None, fmt.Errorf("to_json expects exactly one argument")
			}
			data, err := json.Marshal(toJSONValue(it.Heap(), positional[0]))
			if err != nil {
				return value.None, err
			}
			return value.String(string(data)), nil
		},
	}
}

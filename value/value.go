// Package value implements udon's tagged runtime value model together with
// its heap object pools and mark-and-sweep collector (spec modules "value",
// "gc"; kept in one package because the collector must walk the internal
// structure of every heap object it owns, which a split across package
// boundaries would otherwise force entirely public).
package value

import (
	"fmt"
	"math"
	"strconv"
)

// Kind tags a Value's active representation.
type Kind byte

const (
	KindNone Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindArray
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Handle is an interpreter-internal, identity-comparable reference to a
// heap-allocated object (an Array or a Closure). Handle zero never denotes a
// live object, so a zero Handle inside a zero Value safely means "no
// object".
type Handle uint32

// Value is udon's tagged dynamic value. It is small and copied by value;
// Array and Function values copy only their Handle, which is the shared
// mutable reference spec.md §3 calls for.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
	h    Handle
}

// None is the singular None value.
var None = Value{kind: KindNone}

func Int(i int64) Value        { return Value{kind: KindInt, i: i} }
func Float(f float64) Value    { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value        { return Value{kind: KindBool, b: b} }
func String(s string) Value    { return Value{kind: KindString, s: s} }
func arrayVal(h Handle) Value  { return Value{kind: KindArray, h: h} }
func closureVal(h Handle) Value { return Value{kind: KindFunction, h: h} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNone() bool  { return v.kind == KindNone }
func (v Value) Int() int64    { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) Bool() bool    { return v.b }
func (v Value) Str() string   { return v.s }
func (v Value) Handle() Handle { return v.h }

// Truthy implements the VM's truthiness rule: None and false are falsy, the
// zero values of Int/Float/String are falsy (matching the host language's
// conventional "empty is false"), everything else is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNone:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != ""
	default:
		return true
	}
}

// AsFloat widens an Int or Float value to float64; it panics on any other
// kind, which callers must guard against with Kind checks first.
func (v Value) AsFloat() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindFloat:
		return v.f
	default:
		panic(fmt.Sprintf("value: AsFloat on %v", v.kind))
	}
}

// IsNumeric reports whether v is an Int or a Float.
func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindFloat }

// Hashable reports whether v is usable as an Array key without coercion:
// Int, Bool, String, or a non-NaN Float.
func (v Value) Hashable() bool {
	switch v.kind {
	case KindInt, KindBool, KindString:
		return true
	case KindFloat:
		return !math.IsNaN(v.f)
	default:
		return false
	}
}

// String renders v for the String() method and for coercion to a map key.
// Integral floats render without a decimal point, as the text of the equal
// Int.
func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return "none"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		if v.f == math.Trunc(v.f) && !math.IsInf(v.f, 0) {
			return strconv.FormatInt(int64(v.f), 10)
		}
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindString:
		return v.s
	case KindArray:
		return fmt.Sprintf("<array %d>", v.h)
	case KindFunction:
		return fmt.Sprintf("<function %d>", v.h)
	default:
		return "<invalid>"
	}
}

// Equal implements script-level `==`: numeric-to-numeric compares
// numerically, string-to-string compares bytewise, Array/Function compare by
// handle identity, None equals only None.
func Equal(a, b Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		return a.AsFloat() == b.AsFloat()
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNone:
		return true
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindArray, KindFunction:
		return a.h == b.h
	default:
		return false
	}
}

// Compare implements script-level ordering: numeric by value, otherwise by
// string form. It returns -1, 0, or 1.
func Compare(a, b Value) int {
	if a.IsNumeric() && b.IsNumeric() {
		af, bf := a.AsFloat(), b.AsFloat()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := a.String(), b.String()
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

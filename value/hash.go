package value

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// hashKey reduces a hashable Value to a comparable Go map key. Integral
// floats hash identically to the equal Int (spec.md §3); non-hashable
// values (NaN floats) are coerced to their string form by the caller before
// insertion, per spec.md §3 "Non-hashable keys are implicitly converted to
// their string form at set time".
type hashKey struct {
	kind Kind
	u    uint64
	s    string
}

func keyOf(v Value) hashKey {
	switch v.kind {
	case KindInt:
		return hashKey{kind: KindInt, u: uint64(v.i)}
	case KindFloat:
		// Collapse integral floats onto the Int bucket so 1.0 and 1 are the
		// same key.
		if v.f == float64(int64(v.f)) {
			return hashKey{kind: KindInt, u: uint64(int64(v.f))}
		}
		return hashKey{kind: KindFloat, s: strconv.FormatFloat(v.f, 'g', -1, 64)}
	case KindBool:
		u := uint64(0)
		if v.b {
			u = 1
		}
		return hashKey{kind: KindBool, u: u}
	case KindString:
		return hashKey{kind: KindString, u: xxhash.Sum64String(v.s), s: v.s}
	default:
		// Non-hashable: key by the String() form, as normalizeKey stores it.
		return hashKey{kind: KindString, u: xxhash.Sum64String(v.String()), s: v.String()}
	}
}

// normalizeKey returns the Value that should actually be stored as an
// entry's key: hashable values are used as-is, everything else (a NaN
// Float, None, an Array or a Function) is coerced to its string form.
func normalizeKey(v Value) Value {
	if v.Hashable() {
		return v
	}
	return String(v.String())
}

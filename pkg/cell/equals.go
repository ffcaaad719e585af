package cell

import (
	"math"
	"reflect"
)

// defaultEquals is the change-detection predicate used when a cell has no
// custom equality function. It is identity-style, not structural: scalars
// compare with ==, NaN compares equal to NaN (so rewriting NaN over NaN is
// not a change), and non-comparable types always count as changed.
func defaultEquals[T any](a, b T) bool {
	switch av := any(a).(type) {
	case int:
		return av == any(b).(int)
	case int8:
		return av == any(b).(int8)
	case int16:
		return av == any(b).(int16)
	case int32:
		return av == any(b).(int32)
	case int64:
		return av == any(b).(int64)
	case uint:
		return av == any(b).(uint)
	case uint8:
		return av == any(b).(uint8)
	case uint16:
		return av == any(b).(uint16)
	case uint32:
		return av == any(b).(uint32)
	case uint64:
		return av == any(b).(uint64)
	case float32:
		bv := any(b).(float32)
		if math.IsNaN(float64(av)) && math.IsNaN(float64(bv)) {
			return true
		}
		return av == bv
	case float64:
		bv := any(b).(float64)
		if math.IsNaN(av) && math.IsNaN(bv) {
			return true
		}
		return av == bv
	case string:
		return av == any(b).(string)
	case bool:
		return av == any(b).(bool)
	default:
		return equalAny(any(a), any(b))
	}
}

// equalAny compares two erased values with the same NaN-safe identity
// semantics. It is used for snapshot matching, where dependency values of
// arbitrary element types meet as any.
func equalAny(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case float32:
		if bv, ok := b.(float32); ok {
			if math.IsNaN(float64(av)) && math.IsNaN(float64(bv)) {
				return true
			}
			return av == bv
		}
		return false
	case float64:
		if bv, ok := b.(float64); ok {
			if math.IsNaN(av) && math.IsNaN(bv) {
				return true
			}
			return av == bv
		}
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

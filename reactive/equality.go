package reactive

import "reflect"

// EqualsFunc reports whether two values should be considered the same.
// When it returns true a write is dropped and nothing is notified.
type EqualsFunc[T any] func(a, b T) bool

// StrictEqual is the default equality used by every node.
//
// Comparable values are compared with ==. Slices, maps and funcs have no ==
// in Go and are compared by identity instead: two slices are equal only when
// they share the same backing array and length, two maps when they are the
// same map, and funcs are never equal unless both are nil. Structs and arrays
// holding such values fall back to reflect.DeepEqual. Values of different
// dynamic types are never equal.
func StrictEqual[T any](a, b T) bool {
	switch av := any(a).(type) {
	case int:
		bv, ok := any(b).(int)
		return ok && av == bv
	case int64:
		bv, ok := any(b).(int64)
		return ok && av == bv
	case uint64:
		bv, ok := any(b).(uint64)
		return ok && av == bv
	case float64:
		bv, ok := any(b).(float64)
		return ok && av == bv
	case string:
		bv, ok := any(b).(string)
		return ok && av == bv
	case bool:
		bv, ok := any(b).(bool)
		return ok && av == bv
	}

	ai, bi := any(a), any(b)
	if ai == nil || bi == nil {
		return ai == nil && bi == nil
	}

	t := reflect.TypeOf(ai)
	if t != reflect.TypeOf(bi) {
		return false
	}

	switch t.Kind() {
	case reflect.Slice:
		va, vb := reflect.ValueOf(ai), reflect.ValueOf(bi)
		if va.IsNil() || vb.IsNil() {
			return va.IsNil() && vb.IsNil()
		}
		return va.Len() == vb.Len() && va.Pointer() == vb.Pointer()
	case reflect.Map:
		return reflect.ValueOf(ai).Pointer() == reflect.ValueOf(bi).Pointer()
	case reflect.Func:
		return reflect.ValueOf(ai).IsNil() && reflect.ValueOf(bi).IsNil()
	}

	if t.Comparable() {
		return comparableEqual(ai, bi)
	}
	return reflect.DeepEqual(ai, bi)
}

// comparableEqual uses == but survives interface fields that hold
// uncomparable dynamic values.
func comparableEqual(a, b any) (eq bool) {
	defer func() {
		if r := recover(); r != nil {
			eq = reflect.DeepEqual(a, b)
		}
	}()
	return a == b
}

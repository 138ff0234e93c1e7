package modstate

import "reflect"

// SameRef reports whether a and b are the same node of a state tree. Mappings
// and sequences compare by backing storage, other values by equality.
// Subtrees Update did not touch keep their identity.
func SameRef(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Type() != rb.Type() {
		return false
	}
	switch ra.Kind() {
	case reflect.Map:
		return ra.UnsafePointer() == rb.UnsafePointer()
	case reflect.Slice:
		return ra.UnsafePointer() == rb.UnsafePointer() && ra.Len() == rb.Len()
	case reflect.Pointer, reflect.Func, reflect.Chan:
		return ra.Pointer() == rb.Pointer()
	}
	if ra.Type().Comparable() {
		defer func() { _ = recover() }()
		return a == b
	}
	return false
}

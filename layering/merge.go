package layering

import "reflect"

// MergeLayers composes values ordered from strongest to weakest. Fields set in
// a stronger layer win; nil pointers, nil maps, nil slices and nil interfaces
// fall through to the next weaker layer. Maps merge key by key.
func MergeLayers[T any](layers ...T) T {
	var zero T
	if len(layers) == 0 {
		return zero
	}

	merged := cloneValue(reflect.ValueOf(&layers[len(layers)-1]).Elem())
	for i := len(layers) - 2; i >= 0; i-- {
		merged = mergeValue(reflect.ValueOf(&layers[i]).Elem(), merged)
	}
	if !merged.IsValid() {
		return zero
	}
	out := reflect.New(reflect.TypeOf(&zero).Elem()).Elem()
	out.Set(merged)
	result, _ := out.Interface().(T)
	return result
}

func mergeValue(strong, weak reflect.Value) reflect.Value {
	if !strong.IsValid() {
		return cloneValue(weak)
	}

	switch strong.Kind() {
	case reflect.Pointer:
		if strong.IsNil() {
			return cloneValue(weak)
		}
		var weakElem reflect.Value
		if weak.IsValid() && weak.Kind() == reflect.Pointer && !weak.IsNil() {
			weakElem = weak.Elem()
		}
		result := reflect.New(strong.Type().Elem())
		result.Elem().Set(mergeValue(strong.Elem(), weakElem))
		return result
	case reflect.Interface:
		if strong.IsNil() {
			return cloneValue(weak)
		}
		var weakElem reflect.Value
		if weak.IsValid() && weak.Kind() == reflect.Interface && !weak.IsNil() {
			weakElem = weak.Elem()
		}
		inner := strong.Elem()
		if weakElem.IsValid() && weakElem.Type() == inner.Type() {
			inner = mergeValue(inner, weakElem)
		} else {
			inner = cloneValue(inner)
		}
		out := reflect.New(strong.Type()).Elem()
		out.Set(inner)
		return out
	case reflect.Struct:
		result := reflect.New(strong.Type()).Elem()
		result.Set(strong)
		sameType := weak.IsValid() && weak.Type() == strong.Type()
		for i := 0; i < strong.NumField(); i++ {
			field := result.Field(i)
			if !field.CanSet() {
				continue
			}
			var weakField reflect.Value
			if sameType {
				weakField = weak.Field(i)
			}
			field.Set(mergeValue(strong.Field(i), weakField))
		}
		return result
	case reflect.Map:
		if strong.IsNil() {
			return cloneValue(weak)
		}
		result := reflect.MakeMapWithSize(strong.Type(), strong.Len())
		if weak.IsValid() && weak.Type() == strong.Type() && !weak.IsNil() {
			iter := weak.MapRange()
			for iter.Next() {
				result.SetMapIndex(iter.Key(), cloneValue(iter.Value()))
			}
		}
		iter := strong.MapRange()
		for iter.Next() {
			if existing := result.MapIndex(iter.Key()); existing.IsValid() {
				result.SetMapIndex(iter.Key(), mergeValue(iter.Value(), existing))
				continue
			}
			result.SetMapIndex(iter.Key(), cloneValue(iter.Value()))
		}
		return result
	case reflect.Slice:
		if strong.IsNil() {
			return cloneValue(weak)
		}
		return cloneValue(strong)
	default:
		return cloneValue(strong)
	}
}

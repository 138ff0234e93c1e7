package modstate

import (
	"reflect"
	"strconv"
	"strings"
)

// State is the root of the shared state tree. Nested mapping nodes are plain
// map[string]any values; State is accepted wherever a mapping is expected.
type State map[string]any

// Path locates a node in the state tree, outermost key first.
type Path []string

// ParsePath splits a dotted path ("a.b.c") into its segments. Empty segments
// are dropped.
func ParsePath(dotted string) Path {
	if dotted == "" {
		return nil
	}
	parts := strings.Split(dotted, ".")
	out := make(Path, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// String renders the path in dotted form.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Append returns a new path with segments added after p. p is never modified.
func (p Path) Append(segments ...string) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	return append(out, segments...)
}

// Kind classifies a node of the state tree.
type Kind int

const (
	// KindScalar covers every leaf value that is neither a mapping nor a
	// sequence, including nil.
	KindScalar Kind = iota
	// KindSequence covers slices and arrays. Sequences always replace on update.
	KindSequence
	// KindMapping covers map[string]any, State and any other map keyed by a
	// string type. Mappings merge on update.
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "scalar"
	}
}

// KindOf reports the shape of value.
func KindOf(value any) Kind {
	switch value.(type) {
	case nil:
		return KindScalar
	case map[string]any, State:
		return KindMapping
	case []any:
		return KindSequence
	}
	rt := reflect.TypeOf(value)
	switch rt.Kind() {
	case reflect.Slice, reflect.Array:
		return KindSequence
	case reflect.Map:
		if rt.Key().Kind() == reflect.String {
			return KindMapping
		}
		return KindScalar
	default:
		return KindScalar
	}
}

// asMapping returns value as a map[string]any when it is a mapping node.
// map[string]any and State are returned as is; other string-keyed maps are
// copied entry by entry.
func asMapping(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case State:
		return map[string]any(typed), true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	if rv.IsNil() {
		return map[string]any{}, true
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// Lookup descends path from root and reports the value found. Missing keys,
// out of range indexes and scalar intermediates end the walk with ok=false.
func Lookup(root any, path ...string) (any, bool) {
	current := root
	for _, segment := range path {
		next, ok := child(current, segment)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// Get is a convenience wrapper around Lookup on the root state.
func (s State) Get(path ...string) any {
	value, _ := Lookup(s, path...)
	return value
}

func child(node any, segment string) (any, bool) {
	switch KindOf(node) {
	case KindMapping:
		mapping, _ := asMapping(node)
		value, ok := mapping[segment]
		return value, ok
	case KindSequence:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 {
			return nil, false
		}
		if seq, ok := node.([]any); ok {
			if index >= len(seq) {
				return nil, false
			}
			return seq[index], true
		}
		rv := reflect.ValueOf(node)
		if index >= rv.Len() {
			return nil, false
		}
		return rv.Index(index).Interface(), true
	default:
		return nil, false
	}
}

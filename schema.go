package modstate

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// FieldDescriptor describes a path and the inferred type.
type FieldDescriptor struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
	Type string `json:"type"`
}

// DescribeState flattens a state tree into dotted leaf paths with their
// inferred types, sorted by path. Empty mappings and sequences are reported as
// leaves.
func DescribeState(value any) []FieldDescriptor {
	descriptors := deriveFieldDescriptors(value, "")
	if descriptors == nil {
		return []FieldDescriptor{}
	}
	sort.SliceStable(descriptors, func(i, j int) bool {
		return descriptors[i].Path < descriptors[j].Path
	})
	return descriptors
}

func deriveFieldDescriptors(value any, prefix string) []FieldDescriptor {
	if value == nil {
		if prefix == "" {
			return nil
		}
		return []FieldDescriptor{{Path: prefix, Kind: KindScalar.String(), Type: "nil"}}
	}

	switch KindOf(value) {
	case KindMapping:
		mapping, _ := asMapping(value)
		if len(mapping) == 0 {
			if prefix == "" {
				return nil
			}
			return []FieldDescriptor{{Path: prefix, Kind: KindMapping.String(), Type: "map[string]any"}}
		}
		keys := make([]string, 0, len(mapping))
		for key := range mapping {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var fields []FieldDescriptor
		for _, key := range keys {
			fields = append(fields, deriveFieldDescriptors(mapping[key], joinPath(prefix, key))...)
		}
		return fields
	case KindSequence:
		elementType := "any"
		rv := reflect.ValueOf(value)
		if rv.Len() > 0 {
			elementType = typeName(rv.Index(0).Interface())
		}
		return []FieldDescriptor{{Path: prefix, Kind: KindSequence.String(), Type: "[]" + elementType}}
	default:
		if prefix == "" {
			return nil
		}
		return []FieldDescriptor{{Path: prefix, Kind: KindScalar.String(), Type: typeName(value)}}
	}
}

func typeName(value any) string {
	if value == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", value)
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, ".")
}

// Diff reports the dotted paths whose values differ by reference between
// previous and next. Subtrees shared by both are skipped without descending.
func Diff(previous, next any) []string {
	var out []string
	diffInto(&out, "", previous, next)
	sort.Strings(out)
	return out
}

func diffInto(out *[]string, prefix string, previous, next any) {
	if SameRef(previous, next) {
		return
	}
	prevMap, prevOK := asMapping(previous)
	nextMap, nextOK := asMapping(next)
	if !prevOK || !nextOK {
		*out = append(*out, prefix)
		return
	}
	for key, value := range nextMap {
		old, ok := prevMap[key]
		if !ok {
			*out = append(*out, joinPath(prefix, key))
			continue
		}
		diffInto(out, joinPath(prefix, key), old, value)
	}
	for key := range prevMap {
		if _, ok := nextMap[key]; !ok {
			*out = append(*out, joinPath(prefix, key))
		}
	}
}

package modstate

import (
	"reflect"
	"strconv"

	"github.com/goliatone/go-modstate/layering"
)

// UpdateOption configures a single Update call.
type UpdateOption func(*updateConfig)

type updateConfig struct {
	rootDefault    any
	hasRootDefault bool
}

// WithRootDefault seeds the first path segment with value when it is absent
// from the state before descending. The value is deep copied so the caller's
// declaration never becomes part of the tree.
func WithRootDefault(value any) UpdateOption {
	return func(cfg *updateConfig) {
		if value == nil {
			return
		}
		cfg.rootDefault = value
		cfg.hasRootDefault = true
	}
}

func applyUpdateOptions(opts []UpdateOption) updateConfig {
	cfg := updateConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Update returns a new state where the node at path has been merged with or
// replaced by value. Only the nodes on the root-to-leaf spine are copied; every
// other subtree is shared with state. A nil state is treated as empty.
//
// When both value and the existing leaf are mappings the result is their
// shallow union with value's keys winning. Any other combination replaces the
// leaf outright. A numeric segment addresses a sequence element; indexes past
// the end pad the copied sequence with nil. Intermediate segments that hold a
// scalar, or a sequence addressed by a non-numeric segment, are replaced with a
// fresh mapping.
func Update(state State, path Path, value any, opts ...UpdateOption) (State, error) {
	if len(path) == 0 {
		return nil, ErrMalformedPath
	}
	cfg := applyUpdateOptions(opts)

	root := cloneMapping(state)
	if cfg.hasRootDefault {
		if existing, ok := root[path[0]]; !ok || existing == nil {
			root[path[0]] = layering.Clone(cfg.rootDefault)
		}
	}

	root[path[0]] = rewrite(root[path[0]], path[1:], value)
	return State(root), nil
}

// rewrite returns the replacement for node after applying value at path below
// it. node itself is never modified.
func rewrite(node any, path Path, value any) any {
	if len(path) == 0 {
		return mergeOrReplace(node, value)
	}
	key := path[0]

	switch KindOf(node) {
	case KindMapping:
		mapping, _ := asMapping(node)
		clone := cloneMapping(mapping)
		clone[key] = rewrite(clone[key], path[1:], value)
		return clone
	case KindSequence:
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 {
			break
		}
		seq := cloneSequence(node)
		for len(seq) <= index {
			seq = append(seq, nil)
		}
		seq[index] = rewrite(seq[index], path[1:], value)
		return seq
	}

	fresh := map[string]any{}
	fresh[key] = rewrite(nil, path[1:], value)
	return fresh
}

func mergeOrReplace(existing, value any) any {
	incoming, ok := asMapping(value)
	if !ok {
		return value
	}
	current, ok := asMapping(existing)
	if !ok {
		return incoming
	}
	merged := make(map[string]any, len(current)+len(incoming))
	for key, v := range current {
		merged[key] = v
	}
	for key, v := range incoming {
		merged[key] = v
	}
	return merged
}

func cloneMapping(src map[string]any) map[string]any {
	out := make(map[string]any, len(src)+1)
	for key, value := range src {
		out[key] = value
	}
	return out
}

// cloneSequence copies the elements of a slice or array into a new []any.
func cloneSequence(node any) []any {
	if seq, ok := node.([]any); ok {
		out := make([]any, len(seq), len(seq)+1)
		copy(out, seq)
		return out
	}
	rv := reflect.ValueOf(node)
	out := make([]any, rv.Len(), rv.Len()+1)
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

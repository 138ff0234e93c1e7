package modstate

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ModuleKey is the stable identity token of a module declaration.
type ModuleKey string

// Namespace is the top-level state key a module instance owns.
type Namespace string

const namespaceTag = "@Module-"

// FormatNamespace renders the namespace for a registry sequence and prefix.
func FormatNamespace(prefix string, seq int) Namespace {
	return Namespace(namespaceTag + prefix + "-" + strconv.Itoa(seq))
}

// ParseNamespace splits a namespace produced by FormatNamespace back into its
// prefix and sequence.
func ParseNamespace(ns Namespace) (prefix string, seq int, ok bool) {
	raw, found := strings.CutPrefix(string(ns), namespaceTag)
	if !found {
		return "", 0, false
	}
	idx := strings.LastIndex(raw, "-")
	if idx < 0 {
		return "", 0, false
	}
	seq, err := strconv.Atoi(raw[idx+1:])
	if err != nil || seq < 0 {
		return "", 0, false
	}
	return raw[:idx], seq, true
}

// Registry assigns sequence numbers to module keys in first-seen order. Entries
// are never reassigned or removed except through Reset.
type Registry struct {
	mu  sync.RWMutex
	seq map[ModuleKey]int
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{seq: make(map[ModuleKey]int)}
}

// Register returns the sequence for key, allocating the next one on first use.
func (r *Registry) Register(key ModuleKey) int {
	r.mu.RLock()
	seq, ok := r.seq[key]
	r.mu.RUnlock()
	if ok {
		return seq
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seq == nil {
		r.seq = make(map[ModuleKey]int)
	}
	if seq, ok := r.seq[key]; ok {
		return seq
	}
	seq = len(r.seq)
	r.seq[key] = seq
	return seq
}

// Sequence reports the sequence assigned to key without allocating.
func (r *Registry) Sequence(key ModuleKey) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seq, ok := r.seq[key]
	return seq, ok
}

// NameFor returns the namespace for key and prefix, registering key if needed.
func (r *Registry) NameFor(key ModuleKey, prefix string) Namespace {
	return FormatNamespace(prefix, r.Register(key))
}

// Len returns the number of registered keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.seq)
}

// Keys returns registered keys ordered by sequence.
func (r *Registry) Keys() []ModuleKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]ModuleKey, 0, len(r.seq))
	for key := range r.seq {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return r.seq[keys[i]] < r.seq[keys[j]]
	})
	return keys
}

// Reset drops every registration. Only test harnesses should call it.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq = make(map[ModuleKey]int)
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// NameFor returns the namespace for key and prefix in the process-wide registry.
func NameFor(key ModuleKey, prefix string) Namespace {
	return defaultRegistry.NameFor(key, prefix)
}

// ResetRegistry clears the process-wide registry. Intended for tests.
func ResetRegistry() {
	defaultRegistry.Reset()
}

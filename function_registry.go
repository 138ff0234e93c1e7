package modstate

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Function is a callable exposed to selector expressions.
type Function func(args ...any) (any, error)

// FunctionRegistry stores selector functions keyed by case-insensitive name.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]Function),
	}
}

// Register stores fn under name. Names are unique ignoring case.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("modstate: function %q is nil", name)
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return fmt.Errorf("modstate: function name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("modstate: function %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

// Merge registers every function of other that r does not already hold.
func (r *FunctionRegistry) Merge(other *FunctionRegistry) {
	if other == nil || other == r {
		return
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function, len(other.functions))
	}
	for name, fn := range other.functions {
		if _, exists := r.functions[name]; !exists {
			r.functions[name] = fn
		}
	}
}

// Clone returns a shallow copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	clone := NewFunctionRegistry()
	clone.Merge(r)
	return clone
}

// Call executes the function registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("modstate: function registry is nil")
	}
	r.mu.RLock()
	fn := r.functions[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("modstate: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StateFunctions returns a registry with helpers for walking slice values:
//
//	dig(value, "a.b.0")        value at a dotted path, or nil
//	coalesce(a, b, ...)        first non-nil argument
//	kind(value)                "mapping", "sequence" or "scalar"
func StateFunctions() *FunctionRegistry {
	r := NewFunctionRegistry()
	_ = r.Register("dig", func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("modstate: dig expects 2 arguments, got %d", len(args))
		}
		path, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("modstate: dig path must be a string, got %T", args[1])
		}
		value, _ := Lookup(args[0], ParsePath(path)...)
		return value, nil
	})
	_ = r.Register("coalesce", func(args ...any) (any, error) {
		for _, arg := range args {
			if arg != nil {
				return arg, nil
			}
		}
		return nil, nil
	})
	_ = r.Register("kind", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("modstate: kind expects 1 argument, got %d", len(args))
		}
		return KindOf(args[0]).String(), nil
	})
	return r
}

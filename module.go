package modstate

import (
	"sort"
	"sync/atomic"

	"github.com/goliatone/go-modstate/layering"
)

// Module declares a consumer-defined slice of the shared state: its identity
// token, the value seeded the first time its slice is observed empty, and the
// modules it depends on.
type Module struct {
	Key          ModuleKey
	DefaultState any
	Dependencies []Dependency
}

// Validate reports declaration errors that would make the module unusable.
func (m *Module) Validate() error {
	if m == nil {
		return ErrModuleRequired
	}
	if m.Key == "" {
		return ErrModuleKeyRequired
	}
	for _, dep := range m.Dependencies {
		if dep.Module == nil {
			return moduleError("validate", m.Key, "", ErrModuleRequired)
		}
	}
	return nil
}

// Dependency names a module included by another module, optionally under a
// prefix and optionally without read access.
type Dependency struct {
	Module    *Module
	Prefix    string
	WriteOnly bool
}

// DependsOn declares a plain dependency on m.
func DependsOn(m *Module) Dependency {
	return Dependency{Module: m}
}

// DependsOnPrefixed declares a dependency on m stored under prefix.
func DependsOnPrefixed(m *Module, prefix string) Dependency {
	return Dependency{Module: m, Prefix: prefix}
}

// DependsOnWriteOnly declares a dependency that may only dispatch updates.
func DependsOnWriteOnly(m *Module, prefix string) Dependency {
	return Dependency{Module: m, Prefix: prefix, WriteOnly: true}
}

// InstanceConfig carries everything needed to construct an Instance.
type InstanceConfig struct {
	Module          *Module
	Namespace       Namespace
	Slice           any
	Dependencies    map[Namespace]*Instance
	WriteOnly       bool
	Dispatcher      Dispatcher
	Registry        *Registry
	Evaluator       Evaluator
	EvaluatorLogger EvaluatorLogger
}

// Instance is a module bound to one snapshot of its namespace slice. It is
// never updated in place: writes are dispatched and become visible through
// the next instance built from the new state.
type Instance struct {
	module     *Module
	namespace  Namespace
	slice      any
	deps       map[Namespace]*Instance
	writeOnly  bool
	dispatcher Dispatcher
	registry   *Registry
	evaluator  Evaluator
	logger     EvaluatorLogger
	seeded     atomic.Bool
}

// NewInstance constructs an Instance. Construction has no side effects; call
// EnsureInitialized to seed the module's default state.
func NewInstance(cfg InstanceConfig) (*Instance, error) {
	if err := cfg.Module.Validate(); err != nil {
		return nil, err
	}
	if cfg.Dispatcher == nil {
		return nil, moduleError("new instance", cfg.Module.Key, cfg.Namespace, ErrDispatcherRequired)
	}
	registry := cfg.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = registry.NameFor(cfg.Module.Key, "")
	}

	inst := &Instance{
		module:     cfg.Module,
		namespace:  ns,
		deps:       make(map[Namespace]*Instance, len(cfg.Dependencies)),
		writeOnly:  cfg.WriteOnly,
		dispatcher: cfg.Dispatcher,
		registry:   registry,
		evaluator:  cfg.Evaluator,
		logger:     cfg.EvaluatorLogger,
	}
	if !cfg.WriteOnly {
		inst.slice = cfg.Slice
	}
	for name, dep := range cfg.Dependencies {
		if dep != nil {
			inst.deps[name] = dep
		}
	}
	if inst.logger == nil {
		inst.logger = noopEvaluatorLogger{}
	}
	return inst, nil
}

// Module returns the declaration the instance was built from.
func (i *Instance) Module() *Module {
	return i.module
}

// Namespace returns the top-level key the instance reads and writes.
func (i *Instance) Namespace() Namespace {
	return i.namespace
}

// WriteOnly reports whether reads are rejected.
func (i *Instance) WriteOnly() bool {
	return i.writeOnly
}

// Dispatcher returns the dispatch capability the instance writes through.
func (i *Instance) Dispatcher() Dispatcher {
	return i.dispatcher
}

// Dependencies returns the namespaces of the included module instances,
// sorted.
func (i *Instance) Dependencies() []Namespace {
	out := make([]Namespace, 0, len(i.deps))
	for ns := range i.deps {
		out = append(out, ns)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// GetState returns the instance's slice, or the value at subPath below it.
// When the slice is absent the module's default state is read instead. A
// missing key anywhere along subPath yields nil without error.
func (i *Instance) GetState(subPath ...string) (any, error) {
	if i.writeOnly {
		return nil, moduleError("get state", i.module.Key, i.namespace, ErrInvalidOperation)
	}
	base := i.current()
	if len(subPath) == 0 {
		return base, nil
	}
	value, ok := Lookup(base, subPath...)
	if !ok {
		return nil, nil
	}
	return value, nil
}

func (i *Instance) current() any {
	if i.slice != nil {
		return i.slice
	}
	return i.module.DefaultState
}

// SetState dispatches an update of value at subPath below the instance's
// namespace. The result is not visible on this instance.
func (i *Instance) SetState(value any, subPath ...string) error {
	path := Path{string(i.namespace)}.Append(subPath...)
	env, err := NewEnvelope(path, value, WithRootDefault(i.module.DefaultState))
	if err != nil {
		return moduleError("set state", i.module.Key, i.namespace, err)
	}
	if err := i.dispatcher.Dispatch(env); err != nil {
		return moduleError("set state", i.module.Key, i.namespace, err)
	}
	return nil
}

// GetModule returns the included instance of m under prefix. Only modules
// declared in the owning module's dependency list are available.
func (i *Instance) GetModule(m *Module, prefix string) (*Instance, error) {
	if m == nil {
		return nil, moduleError("get module", i.module.Key, i.namespace, ErrModuleRequired)
	}
	ns, ok := i.dependencyName(m.Key, prefix)
	if ok {
		if dep, found := i.deps[ns]; found {
			return dep, nil
		}
	}
	return nil, &ModuleError{
		Op:        "get module",
		Module:    m.Key,
		Namespace: ns,
		Err:       ErrMissingDependency,
	}
}

// dependencyName resolves the namespace of a dependency without allocating a
// new registry entry for keys that were never registered.
func (i *Instance) dependencyName(key ModuleKey, prefix string) (Namespace, bool) {
	seq, ok := i.registry.Sequence(key)
	if !ok {
		return "", false
	}
	return FormatNamespace(prefix, seq), true
}

// EnsureInitialized seeds the module's default state when the instance is
// readable, its slice is absent and the module declares a default. It reports
// whether a seed update was dispatched. Repeated calls on the same instance
// dispatch at most once.
func (i *Instance) EnsureInitialized() (bool, error) {
	if i.writeOnly || i.slice != nil || i.module.DefaultState == nil {
		return false, nil
	}
	if !i.seeded.CompareAndSwap(false, true) {
		return false, nil
	}
	if err := i.SetState(layering.Clone(i.module.DefaultState)); err != nil {
		i.seeded.Store(false)
		return false, err
	}
	return true, nil
}

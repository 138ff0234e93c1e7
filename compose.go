package modstate

import (
	"fmt"
	"strings"
)

// SliceReader returns the current value stored under a namespace in the
// canonical state, or nil when absent.
type SliceReader interface {
	Slice(ns Namespace) any
}

// SliceReaderFunc adapts a function to SliceReader.
type SliceReaderFunc func(ns Namespace) any

// Slice implements SliceReader.
func (f SliceReaderFunc) Slice(ns Namespace) any {
	if f == nil {
		return nil
	}
	return f(ns)
}

// StateReader reads slices straight out of a State value.
func StateReader(state State) SliceReader {
	return SliceReaderFunc(func(ns Namespace) any {
		return state[string(ns)]
	})
}

// ComposerOption configures a Composer.
type ComposerOption func(*composerConfig)

type composerConfig struct {
	registry  *Registry
	evaluator Evaluator
	logger    EvaluatorLogger
	cache     ProgramCache
	functions *FunctionRegistry

	stateFunctions bool
}

// WithRegistry uses registry instead of the process-wide one.
func WithRegistry(registry *Registry) ComposerOption {
	return func(cfg *composerConfig) {
		cfg.registry = registry
	}
}

// WithEvaluator sets the selector evaluator handed to every instance.
func WithEvaluator(e Evaluator) ComposerOption {
	return func(cfg *composerConfig) {
		cfg.evaluator = e
	}
}

// WithEvaluatorLogger attaches an evaluator logger to every instance.
func WithEvaluatorLogger(logger EvaluatorLogger) ComposerOption {
	return func(cfg *composerConfig) {
		if logger == nil {
			cfg.logger = noopEvaluatorLogger{}
			return
		}
		cfg.logger = logger
	}
}

// WithProgramCache registers a program cache for the default evaluator.
func WithProgramCache(cache ProgramCache) ComposerOption {
	return func(cfg *composerConfig) {
		cfg.cache = cache
	}
}

// WithFunctionRegistry exposes registry functions to the default evaluator.
func WithFunctionRegistry(registry *FunctionRegistry) ComposerOption {
	return func(cfg *composerConfig) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithCustomFunction registers fn under name for the default evaluator.
func WithCustomFunction(name string, fn Function) ComposerOption {
	return func(cfg *composerConfig) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		_ = cfg.functions.Register(name, fn)
	}
}

// WithStateFunctions exposes the dig, coalesce and kind helpers to the default
// evaluator. Functions registered under the same names take precedence.
func WithStateFunctions() ComposerOption {
	return func(cfg *composerConfig) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		cfg.stateFunctions = true
	}
}

// Composer resolves module declarations into instances bound to the slices
// currently held by a SliceReader.
type Composer struct {
	dispatcher Dispatcher
	reader     SliceReader
	cfg        composerConfig
}

// NewComposer constructs a Composer. reader may be nil, in which case every
// slice is treated as absent.
func NewComposer(dispatcher Dispatcher, reader SliceReader, opts ...ComposerOption) (*Composer, error) {
	if dispatcher == nil {
		return nil, ErrDispatcherRequired
	}
	cfg := composerConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.registry == nil {
		cfg.registry = DefaultRegistry()
	}
	if cfg.logger == nil {
		cfg.logger = noopEvaluatorLogger{}
	}
	if cfg.stateFunctions {
		cfg.functions.Merge(StateFunctions())
	}
	if cfg.evaluator == nil {
		var exprOpts []ExprEvaluatorOption
		if cfg.cache != nil {
			exprOpts = append(exprOpts, ExprWithProgramCache(cfg.cache))
		}
		if cfg.functions != nil {
			exprOpts = append(exprOpts, ExprWithFunctionRegistry(cfg.functions))
		}
		cfg.evaluator = NewExprEvaluator(exprOpts...)
	}
	return &Composer{dispatcher: dispatcher, reader: reader, cfg: cfg}, nil
}

// Registry returns the registry namespaces are allocated from.
func (c *Composer) Registry() *Registry {
	return c.cfg.registry
}

// NameFor returns the namespace of m under prefix.
func (c *Composer) NameFor(m *Module, prefix string) Namespace {
	return c.cfg.registry.NameFor(m.Key, prefix)
}

// ResolveOption configures a single Build or Resolve call.
type ResolveOption func(*resolveConfig)

type resolveConfig struct {
	prefix    string
	writeOnly bool
}

// WithPrefix resolves the module under prefix.
func WithPrefix(prefix string) ResolveOption {
	return func(cfg *resolveConfig) {
		cfg.prefix = prefix
	}
}

// AsWriteOnly resolves the root module without read access.
func AsWriteOnly() ResolveOption {
	return func(cfg *resolveConfig) {
		cfg.writeOnly = true
	}
}

func applyResolveOptions(opts []ResolveOption) resolveConfig {
	cfg := resolveConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Build constructs the instance for m and every module it depends on,
// dependencies first. It dispatches nothing.
func (c *Composer) Build(m *Module, opts ...ResolveOption) (*Instance, error) {
	cfg := applyResolveOptions(opts)
	pass := c.newPass()
	return pass.build(m, cfg.prefix, cfg.writeOnly)
}

// Resolve builds the instance graph for m and then seeds default state for
// every readable instance whose slice is absent, dependencies first.
func (c *Composer) Resolve(m *Module, opts ...ResolveOption) (*Instance, error) {
	cfg := applyResolveOptions(opts)
	pass := c.newPass()
	root, err := pass.build(m, cfg.prefix, cfg.writeOnly)
	if err != nil {
		return nil, err
	}
	for _, inst := range pass.order {
		if _, err := inst.EnsureInitialized(); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// Namespaces lists every namespace reachable from m under prefix, dependencies
// first and the root last.
func (c *Composer) Namespaces(m *Module, opts ...ResolveOption) ([]Namespace, error) {
	inst, err := c.Build(m, opts...)
	if err != nil {
		return nil, err
	}
	seen := map[Namespace]struct{}{}
	var out []Namespace
	var walk func(*Instance)
	walk = func(current *Instance) {
		for _, ns := range current.Dependencies() {
			walk(current.deps[ns])
		}
		if _, ok := seen[current.namespace]; ok {
			return
		}
		seen[current.namespace] = struct{}{}
		out = append(out, current.namespace)
	}
	walk(inst)
	return out, nil
}

func (c *Composer) newPass() *buildPass {
	return &buildPass{
		composer: c,
		visiting: map[Namespace]bool{},
		built:    map[buildKey]*Instance{},
	}
}

type buildKey struct {
	ns        Namespace
	writeOnly bool
}

// buildPass memoizes instances for one resolution so shared dependencies are
// constructed once.
type buildPass struct {
	composer *Composer
	visiting map[Namespace]bool
	stack    []Namespace
	built    map[buildKey]*Instance
	order    []*Instance
}

func (p *buildPass) build(m *Module, prefix string, writeOnly bool) (*Instance, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	c := p.composer
	ns := c.cfg.registry.NameFor(m.Key, prefix)
	key := buildKey{ns: ns, writeOnly: writeOnly}
	if inst, ok := p.built[key]; ok {
		return inst, nil
	}
	if p.visiting[ns] {
		chain := make([]string, 0, len(p.stack)+1)
		for _, name := range p.stack {
			chain = append(chain, string(name))
		}
		chain = append(chain, string(ns))
		return nil, moduleError("resolve", m.Key, ns, fmt.Errorf("%w: %s", ErrCyclicDependency, strings.Join(chain, " -> ")))
	}

	p.visiting[ns] = true
	p.stack = append(p.stack, ns)
	deps := make(map[Namespace]*Instance, len(m.Dependencies))
	for _, dep := range m.Dependencies {
		child, err := p.build(dep.Module, dep.Prefix, dep.WriteOnly)
		if err != nil {
			return nil, err
		}
		if existing, ok := deps[child.namespace]; ok && !existing.writeOnly {
			continue
		}
		deps[child.namespace] = child
	}
	p.stack = p.stack[:len(p.stack)-1]
	delete(p.visiting, ns)

	var slice any
	if !writeOnly && c.reader != nil {
		slice = c.reader.Slice(ns)
	}
	inst, err := NewInstance(InstanceConfig{
		Module:          m,
		Namespace:       ns,
		Slice:           slice,
		Dependencies:    deps,
		WriteOnly:       writeOnly,
		Dispatcher:      c.dispatcher,
		Registry:        c.cfg.registry,
		Evaluator:       c.cfg.evaluator,
		EvaluatorLogger: c.cfg.logger,
	})
	if err != nil {
		return nil, err
	}
	p.built[key] = inst
	p.order = append(p.order, inst)
	return inst, nil
}

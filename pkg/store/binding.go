package store

import (
	"fmt"
	"sync"

	"github.com/goliatone/go-modstate"
)

// Binding keeps a resolved module graph in step with a MemoryStore. It hands
// out the same Instance for as long as every bound slice is unchanged and
// builds a new one after any of them changes.
type Binding struct {
	store      *MemoryStore
	composer   *modstate.Composer
	module     *modstate.Module
	opts       []modstate.ResolveOption
	namespaces []modstate.Namespace

	mu        sync.Mutex
	inst      *modstate.Instance
	slices    []any
	notified  *modstate.Instance
	listeners map[uint64]func(*modstate.Instance)
	nextID    uint64
	closed    bool

	unsubscribe func()
}

// Bind resolves module against store, seeding default state for every module
// in its graph, and subscribes to the bound namespaces. composer must dispatch
// into and read from store.
func Bind(store *MemoryStore, composer *modstate.Composer, module *modstate.Module, opts ...modstate.ResolveOption) (*Binding, error) {
	if store == nil {
		return nil, fmt.Errorf("store: bind: store is required")
	}
	if composer == nil {
		return nil, fmt.Errorf("store: bind: composer is required")
	}
	namespaces, err := composer.Namespaces(module, opts...)
	if err != nil {
		return nil, fmt.Errorf("store: bind: %w", err)
	}
	if _, err := composer.Resolve(module, opts...); err != nil {
		return nil, fmt.Errorf("store: bind: %w", err)
	}

	b := &Binding{
		store:      store,
		composer:   composer,
		module:     module,
		opts:       append([]modstate.ResolveOption(nil), opts...),
		namespaces: namespaces,
		listeners:  map[uint64]func(*modstate.Instance){},
	}
	bound := make(map[modstate.Namespace]struct{}, len(namespaces))
	for _, ns := range namespaces {
		bound[ns] = struct{}{}
	}
	b.unsubscribe = store.Subscribe("", func(ns modstate.Namespace, _, _ any) {
		if _, ok := bound[ns]; ok {
			b.notify()
		}
	})
	if _, err := b.Instance(); err != nil {
		b.unsubscribe()
		return nil, err
	}
	return b, nil
}

// Namespaces lists the namespaces the binding watches, dependencies first.
func (b *Binding) Namespaces() []modstate.Namespace {
	return append([]modstate.Namespace(nil), b.namespaces...)
}

// Instance returns the module instance for the store's current state.
func (b *Binding) Instance() (*modstate.Instance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

func (b *Binding) current() (*modstate.Instance, error) {
	slices := make([]any, len(b.namespaces))
	for i, ns := range b.namespaces {
		slices[i] = b.store.Slice(ns)
	}
	if b.inst != nil && sameSlices(b.slices, slices) {
		return b.inst, nil
	}
	inst, err := b.composer.Build(b.module, b.opts...)
	if err != nil {
		return nil, fmt.Errorf("store: bind: %w", err)
	}
	b.inst = inst
	b.slices = slices
	return inst, nil
}

func sameSlices(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !modstate.SameRef(a[i], b[i]) {
			return false
		}
	}
	return true
}

// OnChange registers fn to receive the new Instance after a bound slice
// changes. The returned function removes it.
func (b *Binding) OnChange(fn func(*modstate.Instance)) func() {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *Binding) notify() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	inst, err := b.current()
	if err != nil || inst == b.notified || len(b.listeners) == 0 {
		b.mu.Unlock()
		return
	}
	b.notified = inst
	fns := make([]func(*modstate.Instance), 0, len(b.listeners))
	for id := uint64(0); id < b.nextID; id++ {
		if fn, ok := b.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(inst)
	}
}

// Close stops watching the store.
func (b *Binding) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.listeners = map[uint64]func(*modstate.Instance){}
	b.mu.Unlock()
	b.unsubscribe()
}

// MapSlices picks the slices stored under namespaces from state. Absent
// namespaces map to nil.
func MapSlices(state modstate.State, namespaces ...modstate.Namespace) map[modstate.Namespace]any {
	out := make(map[modstate.Namespace]any, len(namespaces))
	for _, ns := range namespaces {
		out[ns] = state[string(ns)]
	}
	return out
}

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-modstate"
	"github.com/goliatone/go-modstate/pkg/activity"
)

// ErrStoreClosed is returned by Dispatch after Close.
var ErrStoreClosed = errors.New("store: closed")

// ForeignKind labels actions that are not modstate envelopes in log events.
const ForeignKind = "foreign"

// Listener is called after a dispatch changed the slice stored under ns.
type Listener func(ns modstate.Namespace, previous, next any)

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithConfig applies runtime settings.
func WithConfig(cfg Config) Option {
	return func(s *MemoryStore) {
		s.cfg = cfg
	}
}

// WithReducer runs r after modstate.Reduce for every action. Reducers handle
// actions foreign to modstate; envelopes have already been applied when they
// run.
func WithReducer(r modstate.Reducer) Option {
	return func(s *MemoryStore) {
		if r != nil {
			s.extra = append(s.extra, r)
		}
	}
}

// WithLogger records every dispatch.
func WithLogger(logger DispatchLogger) Option {
	return func(s *MemoryStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithActivityHooks emits seeded/updated events to hooks when activity is
// enabled in the store's Config.
func WithActivityHooks(hooks ...activity.ActivityHook) Option {
	return func(s *MemoryStore) {
		s.hooks = append(s.hooks, hooks...)
	}
}

// WithInitialState starts the store from state instead of an empty root.
func WithInitialState(state modstate.State) Option {
	return func(s *MemoryStore) {
		s.state = state
	}
}

// WithClock overrides the time source used for traces and events.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// MemoryStore owns a canonical state tree in memory. Dispatches are applied
// one at a time in call order; listeners run after the store lock is released
// and may dispatch again.
type MemoryStore struct {
	cfg    Config
	extra  []modstate.Reducer
	logger DispatchLogger
	hooks  activity.Hooks
	now    func() time.Time

	reducer modstate.Reducer
	emitter *activity.Emitter

	mu        sync.RWMutex
	state     modstate.State
	history   []modstate.UpdateTrace
	head      int
	listeners map[uint64]subscription
	nextID    uint64
	closed    bool
}

type subscription struct {
	ns modstate.Namespace
	fn Listener
}

// NewMemoryStore constructs a store. Without WithConfig, DefaultConfig is used.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		cfg:       DefaultConfig(),
		logger:    noopDispatchLogger{},
		now:       time.Now,
		listeners: map[uint64]subscription{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.state == nil {
		s.state = modstate.State{}
	}
	reducers := append([]modstate.Reducer{modstate.Reduce}, s.extra...)
	s.reducer = modstate.ChainReducers(reducers...)
	s.emitter = s.newEmitter()
	return s
}

// Dispatch implements modstate.Dispatcher.
func (s *MemoryStore) Dispatch(action any) error {
	return s.DispatchContext(context.Background(), action)
}

// DispatchContext applies action and notifies listeners. ctx is handed to
// activity hooks. Hook errors are returned after the new state has been
// committed.
func (s *MemoryStore) DispatchContext(ctx context.Context, action any) error {
	start := s.now()
	env, isEnvelope := modstate.AsEnvelope(action)
	event := DispatchLogEvent{Kind: ForeignKind}
	if isEnvelope {
		event.Kind = env.Kind
		event.EnvelopeID = env.ID
		event.Path = env.Payload.Path.String()
	}

	c, err := s.commit(action, env, isEnvelope, start)
	if err != nil {
		event.Err = err
		s.logger.LogDispatch(event)
		return err
	}
	before, after, changed := c.before, c.after, c.changed
	listeners, emitter := c.listeners, c.emitter

	event.Changed = changed
	event.Duration = s.now().Sub(start)

	var errs []error
	if isEnvelope && len(env.Payload.Path) > 0 {
		if err := emit(ctx, emitter, env, before, after, start); err != nil {
			errs = append(errs, err)
		}
	}
	event.Err = errors.Join(errs...)
	s.logger.LogDispatch(event)

	for _, ns := range changed {
		previous, next := before[string(ns)], after[string(ns)]
		for _, sub := range listeners {
			if sub.ns == "" || sub.ns == ns {
				sub.fn(ns, previous, next)
			}
		}
	}
	return event.Err
}

type commitResult struct {
	before    modstate.State
	after     modstate.State
	changed   []modstate.Namespace
	listeners []subscription
	emitter   *activity.Emitter
}

// commit reduces action under the write lock. The lock is released even when
// a reducer panics, leaving the previous state in place.
func (s *MemoryStore) commit(action any, env modstate.Envelope, isEnvelope bool, start time.Time) (commitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return commitResult{}, ErrStoreClosed
	}
	before := s.state
	after := s.reducer(before, action)
	if after == nil {
		after = modstate.State{}
	}
	s.state = after
	if isEnvelope {
		s.record(modstate.NewUpdateTrace(env, before, after, start))
	}
	return commitResult{
		before:    before,
		after:     after,
		changed:   changedNamespaces(before, after),
		listeners: s.snapshotListeners(),
		emitter:   s.emitter,
	}, nil
}

func emit(ctx context.Context, emitter *activity.Emitter, env modstate.Envelope, before, after modstate.State, at time.Time) error {
	if !emitter.Enabled() {
		return nil
	}
	root := env.Payload.Path[0]
	previous, next := before[root], after[root]
	if modstate.SameRef(previous, next) {
		return nil
	}
	input := activity.StateEventInput{
		Namespace:  root,
		Path:       env.Payload.Path.String(),
		EnvelopeID: env.ID,
		Changed:    modstate.Diff(previous, next),
		OldValue:   previous,
		NewValue:   next,
		OccurredAt: at,
	}
	if previous == nil {
		return emitter.Emit(ctx, activity.BuildStateSeededEvent(input))
	}
	return emitter.Emit(ctx, activity.BuildStateUpdatedEvent(input))
}

func (s *MemoryStore) record(trace modstate.UpdateTrace) {
	size := s.cfg.HistorySize
	if size <= 0 {
		return
	}
	if len(s.history) < size {
		s.history = append(s.history, trace)
		return
	}
	s.history[s.head] = trace
	s.head = (s.head + 1) % size
}

func (s *MemoryStore) snapshotListeners() []subscription {
	if len(s.listeners) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]subscription, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.listeners[id])
	}
	return out
}

// changedNamespaces lists top-level keys whose value changed identity, sorted.
func changedNamespaces(before, after modstate.State) []modstate.Namespace {
	var out []modstate.Namespace
	for key, next := range after {
		if !modstate.SameRef(before[key], next) {
			out = append(out, modstate.Namespace(key))
		}
	}
	for key := range before {
		if _, ok := after[key]; !ok {
			out = append(out, modstate.Namespace(key))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// State returns the current root. The returned tree is shared and must be
// treated as read-only.
func (s *MemoryStore) State() modstate.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Slice implements modstate.SliceReader.
func (s *MemoryStore) Slice(ns modstate.Namespace) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state[string(ns)]
}

// Describe flattens the slice under ns into field descriptors.
func (s *MemoryStore) Describe(ns modstate.Namespace) []modstate.FieldDescriptor {
	return modstate.DescribeState(s.Slice(ns))
}

// Subscribe registers fn for changes to ns. An empty ns receives every
// changed namespace. The returned function removes the subscription.
func (s *MemoryStore) Subscribe(ns modstate.Namespace, fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = subscription{ns: ns, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// History returns the retained update traces, oldest first.
func (s *MemoryStore) History() []modstate.UpdateTrace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.historyLocked()
}

func (s *MemoryStore) historyLocked() []modstate.UpdateTrace {
	out := make([]modstate.UpdateTrace, 0, len(s.history))
	if len(s.history) < s.cfg.HistorySize {
		return append(out, s.history...)
	}
	out = append(out, s.history[s.head:]...)
	return append(out, s.history[:s.head]...)
}

// Config returns the settings the store runs with.
func (s *MemoryStore) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Reconfigure swaps the runtime settings. Shrinking HistorySize keeps the most
// recent traces; activity settings apply from the next dispatch.
func (s *MemoryStore) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	traces := s.historyLocked()
	if len(traces) > cfg.HistorySize {
		traces = traces[len(traces)-cfg.HistorySize:]
	}
	s.history = append([]modstate.UpdateTrace(nil), traces...)
	s.head = 0
	s.cfg = cfg
	s.emitter = s.newEmitter()
	return nil
}

func (s *MemoryStore) newEmitter() *activity.Emitter {
	return activity.NewEmitter(s.hooks, activity.Config{
		Enabled:    s.cfg.ActivityEnabled,
		Channel:    s.cfg.ActivityChannel,
		Namespaces: s.cfg.ActivityNamespaces,
	})
}

// Close rejects further dispatches and drops every listener.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.listeners = map[uint64]subscription{}
	return nil
}

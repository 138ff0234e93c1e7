package modstate

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

type mapCache struct {
	mu    sync.Mutex
	items map[string]any
	sets  int
}

func (c *mapCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *mapCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = map[string]any{}
	}
	c.items[key] = value
	c.sets++
}

func selectInstance(t *testing.T, slice any, opts ...ComposerOption) *Instance {
	t.Helper()
	store := &testStore{state: State{}}
	composer := newTestComposer(t, store, opts...)
	m := &Module{Key: "select", DefaultState: map[string]any{"count": 0}}
	ns := composer.NameFor(m, "")
	if slice != nil {
		store.state[string(ns)] = slice
	}
	inst, err := composer.Build(m)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return inst
}

func TestSelectWithExpr(t *testing.T) {
	inst := selectInstance(t, map[string]any{"count": 2, "items": []any{1, 2, 3}})

	cases := []struct {
		expr string
		args map[string]any
		want any
	}{
		{"count * 2", nil, 4},
		{"state.count + args.n", map[string]any{"n": 3}, 5},
		{"len(items)", nil, 3},
		{"namespace == '@Module--0'", nil, true},
	}
	for _, tc := range cases {
		got, err := inst.Select(tc.expr, tc.args)
		if err != nil {
			t.Fatalf("select %q: %v", tc.expr, err)
		}
		if got != tc.want {
			t.Fatalf("select %q = %#v, want %#v", tc.expr, got, tc.want)
		}
	}
}

func TestSelectUsesDefaultStateWhenSliceAbsent(t *testing.T) {
	inst := selectInstance(t, nil)
	got, err := inst.Select("count", nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected default count 0, got %#v", got)
	}
}

func TestSelectWithCustomFunctionAndCache(t *testing.T) {
	cache := &mapCache{}
	inst := selectInstance(t, map[string]any{"count": 4},
		WithProgramCache(cache),
		WithCustomFunction("double", func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("double takes one argument")
			}
			n, ok := args[0].(int)
			if !ok {
				return nil, fmt.Errorf("double expects int, got %T", args[0])
			}
			return n * 2, nil
		}),
	)

	for i := 0; i < 2; i++ {
		got, err := inst.Select("double(count)", nil)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if got != 8 {
			t.Fatalf("expected 8, got %#v", got)
		}
	}
	if cache.sets != 1 {
		t.Fatalf("expected one compiled program cached, got %d", cache.sets)
	}
}

func TestSelectWithCEL(t *testing.T) {
	inst := selectInstance(t, map[string]any{"count": 2, "name": "ada"}, WithEvaluator(NewCELEvaluator()))

	got, err := inst.Select("count + 1", nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got != int64(3) {
		t.Fatalf("expected 3, got %#v", got)
	}

	got, err = inst.Select("state.name == 'ada' && args.flag", map[string]any{"flag": true})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got != true {
		t.Fatalf("expected true, got %#v", got)
	}
}

func TestSelectWithCELCallFunction(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("greet", func(args ...any) (any, error) {
		return fmt.Sprintf("hello %v", args[0]), nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	inst := selectInstance(t, map[string]any{"name": "ada"},
		WithEvaluator(NewCELEvaluator(CELWithFunctionRegistry(registry))))

	got, err := inst.Select("call('greet', [name])", nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got != "hello ada" {
		t.Fatalf("unexpected result %#v", got)
	}
}

func TestSelectErrors(t *testing.T) {
	inst := selectInstance(t, map[string]any{"count": 1})

	_, err := inst.Select("", nil)
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError for empty expression, got %v", err)
	}

	_, err = inst.Select("count +", nil)
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %v", err)
	}
	if evalErr.Engine != "expr" || evalErr.Namespace != inst.Namespace() || evalErr.Expr != "count +" {
		t.Fatalf("unexpected error metadata %+v", evalErr)
	}

	noEval := &Instance{module: &Module{Key: "m"}, namespace: "ns", logger: noopEvaluatorLogger{}}
	if _, err := noEval.Select("1", nil); !errors.Is(err, ErrNoEvaluator) {
		t.Fatalf("expected ErrNoEvaluator, got %v", err)
	}
}

func TestSelectLogsEvaluations(t *testing.T) {
	var events []EvaluatorLogEvent
	inst := selectInstance(t, map[string]any{"count": 1},
		WithEvaluatorLogger(EvaluatorLoggerFunc(func(event EvaluatorLogEvent) {
			events = append(events, event)
		})))

	_, _ = inst.Select("count", nil)
	_, _ = inst.Select("count +", nil)

	if len(events) != 2 {
		t.Fatalf("expected 2 log events, got %d", len(events))
	}
	if events[0].Engine != "expr" || events[0].Err != nil || events[0].Namespace != inst.Namespace() {
		t.Fatalf("unexpected success event %+v", events[0])
	}
	if events[1].Err == nil {
		t.Fatalf("expected failure to be logged")
	}
}

func TestSlogEvaluatorLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	inst := selectInstance(t, map[string]any{"count": 1}, WithEvaluatorLogger(NewSlogEvaluatorLogger(logger)))

	_, _ = inst.Select("count", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected debug success filtered at warn level, got %q", buf.String())
	}
	_, _ = inst.Select("count +", nil)
	out := buf.String()
	if !strings.Contains(out, "modstate select failed") || !strings.Contains(out, "engine=expr") {
		t.Fatalf("unexpected log output %q", out)
	}
}

func TestCompiledSelector(t *testing.T) {
	for name, evaluator := range map[string]Evaluator{
		"expr": NewExprEvaluator(),
		"cel":  NewCELEvaluator(),
	} {
		t.Run(name, func(t *testing.T) {
			compiled, err := evaluator.Compile("state.v > 1")
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			for slice, want := range map[int]bool{1: false, 5: true} {
				got, err := compiled.Evaluate(SelectContext{Slice: map[string]any{"v": slice}})
				if err != nil {
					t.Fatalf("evaluate: %v", err)
				}
				if got != want {
					t.Fatalf("v=%d: expected %v, got %#v", slice, want, got)
				}
			}
		})
	}
}

func TestJSEvaluatorAvailability(t *testing.T) {
	evaluator := NewJSEvaluator()
	if !jsEvaluatorAvailable() {
		if evaluator != nil {
			t.Fatalf("expected nil evaluator without js_eval tag")
		}
		return
	}
	got, err := evaluator.Evaluate(SelectContext{Slice: map[string]any{"n": 2}}, "n * 3")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if fmt.Sprint(got) != "6" {
		t.Fatalf("expected 6, got %#v", got)
	}
}

func TestSelectContextBindings(t *testing.T) {
	bindings := SelectContext{
		Slice:     map[string]any{"state": "shadowed", "count": 1},
		Namespace: "ns",
	}.bindings()

	if bindings["count"] != 1 {
		t.Fatalf("expected slice keys exposed, got %#v", bindings)
	}
	if _, ok := bindings["state"].(map[string]any); !ok {
		t.Fatalf("expected reserved name state to keep the slice, got %#v", bindings["state"])
	}
	if bindings["namespace"] != "ns" {
		t.Fatalf("unexpected namespace binding %#v", bindings["namespace"])
	}
}

func TestFunctionRegistry(t *testing.T) {
	r := NewFunctionRegistry()
	fn := func(args ...any) (any, error) { return len(args), nil }
	if err := r.Register("Count", fn); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("count", fn); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := r.Register("", fn); err == nil {
		t.Fatalf("expected empty name to fail")
	}
	if got, err := r.Call("COUNT", 1, 2); err != nil || got != 2 {
		t.Fatalf("unexpected call result %#v %v", got, err)
	}
	if _, err := r.Call("missing"); err == nil {
		t.Fatalf("expected missing function error")
	}
	clone := r.Clone()
	_ = clone.Register("extra", fn)
	if len(r.Names()) != 1 || len(clone.Names()) != 2 {
		t.Fatalf("expected clone to be independent")
	}
}

func TestSelectWithStateFunctions(t *testing.T) {
	inst := selectInstance(t,
		map[string]any{"profile": map[string]any{"tags": []any{"a", "b"}}},
		WithCustomFunction("kind", func(args ...any) (any, error) { return "custom", nil }),
		WithStateFunctions(),
	)

	cases := []struct {
		expr string
		want any
	}{
		{`dig(state, "profile.tags.1")`, "b"},
		{`dig(state, "profile.missing")`, nil},
		{`coalesce(nil, dig(state, "profile.tags.0"), "z")`, "a"},
		{`kind(profile)`, "custom"},
	}
	for _, tc := range cases {
		got, err := inst.Select(tc.expr, nil)
		if err != nil {
			t.Fatalf("select %q: %v", tc.expr, err)
		}
		if got != tc.want {
			t.Fatalf("select %q: expected %#v, got %#v", tc.expr, tc.want, got)
		}
	}
}

func TestStateFunctionsArguments(t *testing.T) {
	r := StateFunctions()
	if _, err := r.Call("dig", map[string]any{}); err == nil {
		t.Fatalf("expected arity error")
	}
	if _, err := r.Call("dig", map[string]any{}, 3); err == nil {
		t.Fatalf("expected path type error")
	}
	if got, _ := r.Call("kind", []any{}); got != "sequence" {
		t.Fatalf("expected sequence kind, got %#v", got)
	}

	merged := NewFunctionRegistry()
	_ = merged.Register("dig", func(args ...any) (any, error) { return "mine", nil })
	merged.Merge(r)
	if got, _ := merged.Call("dig"); got != "mine" {
		t.Fatalf("expected existing function kept on merge, got %#v", got)
	}
	if len(merged.Names()) != 3 {
		t.Fatalf("expected merged names, got %v", merged.Names())
	}
}

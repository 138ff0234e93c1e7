package modstate

import (
	"errors"
	"testing"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(Path{"mod", "count"}, 1)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if env.Kind != CallbackKind {
		t.Fatalf("expected kind %q, got %q", CallbackKind, env.Kind)
	}
	if env.ID == "" {
		t.Fatalf("expected envelope id")
	}
	if env.Payload.Path.String() != "mod.count" || env.Payload.Value != 1 {
		t.Fatalf("unexpected payload: %+v", env.Payload)
	}

	if _, err := NewEnvelope(nil, 1); !errors.Is(err, ErrMalformedPath) {
		t.Fatalf("expected ErrMalformedPath, got %v", err)
	}
}

func TestEnvelopeCapturesPath(t *testing.T) {
	path := Path{"mod", "count"}
	env, err := NewEnvelope(path, 1)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	path[1] = "other"

	next := Reduce(State{}, env)
	if next.Get("mod", "count") != 1 {
		t.Fatalf("expected captured path to be used, got %#v", next)
	}
}

func TestEnvelopeIsReusable(t *testing.T) {
	env, err := NewEnvelope(Path{"mod"}, map[string]any{"b": 2})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	first := Reduce(State{"mod": map[string]any{"a": 1}}, env)
	second := Reduce(State{"mod": map[string]any{"c": 3}}, env)

	if first.Get("mod", "a") != 1 || first.Get("mod", "b") != 2 || first.Get("mod", "c") != nil {
		t.Fatalf("unexpected first result %#v", first)
	}
	if second.Get("mod", "c") != 3 || second.Get("mod", "b") != 2 || second.Get("mod", "a") != nil {
		t.Fatalf("unexpected second result %#v", second)
	}
}

func TestReducePassesForeignActionsThrough(t *testing.T) {
	state := State{"a": 1}
	for _, action := range []any{nil, "string", 42, Envelope{Kind: "OTHER"}, Envelope{Kind: CallbackKind}, (*Envelope)(nil)} {
		if got := Reduce(state, action); !SameRef(got, state) {
			t.Fatalf("expected %#v to pass through", action)
		}
	}
}

func TestReduceNilState(t *testing.T) {
	got := Reduce(nil, "ignored")
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty state, got %#v", got)
	}

	env, _ := NewEnvelope(Path{"a"}, 1)
	if got := Reduce(nil, &env); got["a"] != 1 {
		t.Fatalf("expected pointer envelope applied to empty state, got %#v", got)
	}
}

func TestChainReducers(t *testing.T) {
	counter := func(state State, action any) State {
		if action != "inc" {
			return state
		}
		n, _ := state["n"].(int)
		next := State{}
		for k, v := range state {
			next[k] = v
		}
		next["n"] = n + 1
		return next
	}
	reducer := ChainReducers(Reduce, nil, counter)

	env, _ := NewEnvelope(Path{"mod"}, "x")
	state := reducer(nil, env)
	state = reducer(state, "inc")

	if state["mod"] != "x" || state["n"] != 1 {
		t.Fatalf("unexpected chained state %#v", state)
	}
}

func TestDispatchFunc(t *testing.T) {
	var got any
	d := DispatchFunc(func(action any) error {
		got = action
		return nil
	})
	if err := d.Dispatch("x"); err != nil || got != "x" {
		t.Fatalf("unexpected dispatch result %v %#v", err, got)
	}

	var empty DispatchFunc
	if err := empty.Dispatch("x"); !errors.Is(err, ErrDispatcherRequired) {
		t.Fatalf("expected ErrDispatcherRequired, got %v", err)
	}
}

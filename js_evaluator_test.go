//go:build js_eval

package modstate

import (
	"testing"
	"time"
)

func TestJSEvaluatorSelect(t *testing.T) {
	functions := NewFunctionRegistry()
	_ = functions.Register("twice", func(args ...any) (any, error) {
		n, _ := args[0].(int64)
		return n * 2, nil
	})
	inst := selectInstance(t, map[string]any{"count": 4},
		WithEvaluator(NewJSEvaluator(JSWithFunctionRegistry(functions), JSWithProgramCache(&mapCache{}))),
	)

	got, err := inst.Select("count + args.n", map[string]any{"n": 1})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got != int64(5) {
		t.Fatalf("expected 5, got %#v", got)
	}
	if got, err := inst.Select(`call("twice", count)`, nil); err != nil || got != int64(8) {
		t.Fatalf("expected 8 from call, got %#v %v", got, err)
	}
}

func TestJSEvaluatorTimeout(t *testing.T) {
	inst := selectInstance(t, map[string]any{"count": 1},
		WithEvaluator(NewJSEvaluator(JSWithTimeout(20*time.Millisecond))),
	)

	_, err := inst.Select("(function(){ while (true) {} })()", nil)
	if err == nil {
		t.Fatalf("expected runaway selector to be interrupted")
	}
}

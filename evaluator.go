package modstate

import "time"

// SelectContext carries the inputs a selector expression is evaluated against.
type SelectContext struct {
	Slice     any
	Namespace Namespace
	Args      map[string]any
	Now       *time.Time
}

func (ctx SelectContext) withDefaults() SelectContext {
	if ctx.Now == nil {
		now := time.Now()
		ctx.Now = &now
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	return ctx
}

func (ctx SelectContext) timestamp() time.Time {
	return *ctx.withDefaults().Now
}

// bindings returns the variables visible to an expression: state, namespace,
// args and now, plus the slice's top-level keys when it is a mapping.
func (ctx SelectContext) bindings() map[string]any {
	env := map[string]any{
		"state":     ctx.Slice,
		"namespace": string(ctx.Namespace),
		"args":      ctx.Args,
		"now":       ctx.timestamp(),
	}
	if mapping, ok := asMapping(ctx.Slice); ok {
		for key, value := range mapping {
			if _, reserved := env[key]; reserved {
				continue
			}
			env[key] = value
		}
	}
	return env
}

// Evaluator executes selector expressions against a module slice.
type Evaluator interface {
	Evaluate(ctx SelectContext, expr string) (any, error)
	Compile(expr string) (CompiledSelector, error)
}

// CompiledSelector is a reusable selector program.
type CompiledSelector interface {
	Evaluate(ctx SelectContext) (any, error)
}

// ProgramCache stores compiled programs keyed by expression.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

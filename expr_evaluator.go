package modstate

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// ExprEvaluatorOption configures an expr evaluator instance.
type ExprEvaluatorOption func(*exprEvaluator)

// ExprWithProgramCache shares compiled programs through cache under
// "expr:"-prefixed keys.
func ExprWithProgramCache(cache ProgramCache) ExprEvaluatorOption {
	return func(e *exprEvaluator) {
		e.cache = cache
	}
}

// ExprWithFunctionRegistry exposes a copy of registry to selectors. Each
// function is callable by name and through call(name, ...).
func ExprWithFunctionRegistry(registry *FunctionRegistry) ExprEvaluatorOption {
	return func(e *exprEvaluator) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

// ExprWithOptions appends raw expr compile options, such as operator
// overloads, to every compilation.
func ExprWithOptions(opts ...exprlang.Option) ExprEvaluatorOption {
	return func(e *exprEvaluator) {
		e.extra = append(e.extra, opts...)
	}
}

// exprEvaluator runs selectors with github.com/expr-lang/expr. It is the
// default evaluator of a Composer.
type exprEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
	extra    []exprlang.Option
}

// NewExprEvaluator constructs an Evaluator backed by expr-lang/expr.
func NewExprEvaluator(opts ...ExprEvaluatorOption) Evaluator {
	e := &exprEvaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Engine names the evaluator in log events and errors.
func (e *exprEvaluator) Engine() string {
	return "expr"
}

func (e *exprEvaluator) Evaluate(ctx SelectContext, expression string) (any, error) {
	ctx = ctx.withDefaults()
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, wrapEvaluationError("expr", expression, ctx.Namespace, err)
	}
	return e.run(ctx, expression, program)
}

func (e *exprEvaluator) Compile(expression string) (CompiledSelector, error) {
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, wrapEvaluationError("expr", expression, "", err)
	}
	return &exprCompiledSelector{evaluator: e, program: program, expression: expression}, nil
}

func (e *exprEvaluator) run(ctx SelectContext, expression string, program *exprvm.Program) (any, error) {
	result, err := exprlang.Run(program, ctx.bindings())
	if err != nil {
		return nil, wrapEvaluationError("expr", expression, ctx.Namespace, err)
	}
	return result, nil
}

func (e *exprEvaluator) loadOrCompile(expression string) (*exprvm.Program, error) {
	if expression == "" {
		return nil, fmt.Errorf("expression must not be empty")
	}
	key := "expr:" + expression
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*exprvm.Program); ok {
				return program, nil
			}
		}
	}
	program, err := exprlang.Compile(expression, e.compileOptions()...)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return program, nil
}

// compileOptions leaves the environment untyped: slices are arbitrary trees,
// so every identifier is resolved at run time.
func (e *exprEvaluator) compileOptions() []exprlang.Option {
	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	if e.registry != nil {
		registry := e.registry
		options = append(options, exprlang.Function("call", func(arguments ...any) (any, error) {
			if len(arguments) == 0 {
				return nil, fmt.Errorf("call expects a function name")
			}
			name, ok := arguments[0].(string)
			if !ok {
				return nil, fmt.Errorf("call expects a string function name, got %T", arguments[0])
			}
			return registry.Call(name, arguments[1:]...)
		}))
		for _, name := range registry.Names() {
			fn := name
			options = append(options, exprlang.Function(fn, func(arguments ...any) (any, error) {
				return registry.Call(fn, arguments...)
			}))
		}
	}
	return append(options, e.extra...)
}

type exprCompiledSelector struct {
	evaluator  *exprEvaluator
	program    *exprvm.Program
	expression string
}

func (s *exprCompiledSelector) Evaluate(ctx SelectContext) (any, error) {
	return s.evaluator.run(ctx.withDefaults(), s.expression, s.program)
}

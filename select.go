package modstate

import (
	"fmt"
	"time"
)

// Select evaluates expr against the instance's slice (or its default state
// when the slice is absent). Write-only instances cannot select.
func (i *Instance) Select(expr string, args map[string]any) (any, error) {
	if i.writeOnly {
		return nil, moduleError("select", i.module.Key, i.namespace, ErrInvalidOperation)
	}
	if expr == "" {
		return nil, wrapEvaluationError("", expr, i.namespace, fmt.Errorf("expression must not be empty"))
	}
	if i.evaluator == nil {
		return nil, moduleError("select", i.module.Key, i.namespace, ErrNoEvaluator)
	}
	ctx := SelectContext{
		Slice:     i.current(),
		Namespace: i.namespace,
		Args:      args,
	}.withDefaults()

	start := time.Now()
	value, err := i.evaluator.Evaluate(ctx, expr)
	err = wrapEvaluationError(evaluatorEngineName(i.evaluator), expr, i.namespace, err)
	i.logger.LogEvaluation(EvaluatorLogEvent{
		Engine:    evaluatorEngineName(i.evaluator),
		Expr:      expr,
		Namespace: i.namespace,
		Duration:  time.Since(start),
		Err:       err,
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// EngineNamer is implemented by evaluators that report their engine name in
// log events and errors.
type EngineNamer interface {
	Engine() string
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	if namer, ok := e.(EngineNamer); ok {
		return namer.Engine()
	}
	return "custom"
}

package modstate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidOperation indicates a read on a write-only module instance.
	ErrInvalidOperation = errors.New("modstate: invalid operation")
	// ErrMissingDependency indicates a module lookup for a dependency that was
	// never declared.
	ErrMissingDependency = errors.New("modstate: missing dependency")
	// ErrMalformedPath indicates an update with a zero-length path.
	ErrMalformedPath = errors.New("modstate: path must not be empty")
	// ErrCyclicDependency indicates a module that transitively depends on itself.
	ErrCyclicDependency = errors.New("modstate: cyclic dependency")
	// ErrModuleRequired indicates a nil module declaration.
	ErrModuleRequired = errors.New("modstate: module is required")
	// ErrModuleKeyRequired indicates a module declared without a key.
	ErrModuleKeyRequired = errors.New("modstate: module key is required")
	// ErrDispatcherRequired indicates an instance or composer built without a
	// dispatcher.
	ErrDispatcherRequired = errors.New("modstate: dispatcher is required")
	// ErrNoEvaluator indicates a selector could not find an evaluator.
	ErrNoEvaluator = errors.New("modstate: evaluator not configured")
)

// ModuleError carries the module context of a failed operation.
type ModuleError struct {
	Op        string
	Module    ModuleKey
	Namespace Namespace
	Err       error
}

func (e *ModuleError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("modstate: ")
	b.WriteString(e.Op)
	if e.Module != "" {
		fmt.Fprintf(&b, " module=%s", e.Module)
	}
	if e.Namespace != "" {
		fmt.Fprintf(&b, " namespace=%q", string(e.Namespace))
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *ModuleError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func moduleError(op string, key ModuleKey, ns Namespace, err error) error {
	if err == nil {
		return nil
	}
	var modErr *ModuleError
	if errors.As(err, &modErr) {
		if modErr.Module == "" {
			modErr.Module = key
		}
		if modErr.Namespace == "" {
			modErr.Namespace = ns
		}
		return err
	}
	return &ModuleError{Op: op, Module: key, Namespace: ns, Err: err}
}

// EvaluationError captures selector metadata alongside the originating error.
type EvaluationError struct {
	Engine    string
	Expr      string
	Namespace Namespace
	Err       error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("modstate: %s selector %s namespace=%q: %v", e.Engine, describeExpression(e.Expr), string(e.Namespace), e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEvaluationError(engine, expr string, ns Namespace, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Namespace == "" {
			evalErr.Namespace = ns
		}
		return evalErr
	}

	return &EvaluationError{
		Engine:    engine,
		Expr:      expr,
		Namespace: ns,
		Err:       err,
	}
}

package modstate

import (
	"context"
	"log/slog"
	"time"
)

// EvaluatorLogEvent describes a selector evaluation for logging.
type EvaluatorLogEvent struct {
	Engine    string
	Expr      string
	Namespace Namespace
	Duration  time.Duration
	Err       error
}

// EvaluatorLogger records selector evaluations.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

// LogEvaluation implements EvaluatorLogger.
func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvaluatorLogger struct{}

func (noopEvaluatorLogger) LogEvaluation(EvaluatorLogEvent) {}

// NewSlogEvaluatorLogger writes successful evaluations at debug level and
// failures at warn level. A nil logger uses slog.Default.
func NewSlogEvaluatorLogger(logger *slog.Logger) EvaluatorLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return EvaluatorLoggerFunc(func(event EvaluatorLogEvent) {
		attrs := []slog.Attr{
			slog.String("engine", event.Engine),
			slog.String("expr", event.Expr),
			slog.String("namespace", string(event.Namespace)),
			slog.Duration("duration", event.Duration),
		}
		if event.Err != nil {
			attrs = append(attrs, slog.Any("error", event.Err))
			logger.LogAttrs(context.Background(), slog.LevelWarn, "modstate select failed", attrs...)
			return
		}
		logger.LogAttrs(context.Background(), slog.LevelDebug, "modstate select", attrs...)
	})
}

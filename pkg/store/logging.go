package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/goliatone/go-modstate"
)

// DispatchLogEvent describes one action applied by a MemoryStore.
type DispatchLogEvent struct {
	EnvelopeID string
	Kind       string
	Path       string
	Changed    []modstate.Namespace
	Duration   time.Duration
	Err        error
}

// DispatchLogger records applied actions.
type DispatchLogger interface {
	LogDispatch(DispatchLogEvent)
}

// DispatchLoggerFunc adapts plain functions to DispatchLogger.
type DispatchLoggerFunc func(DispatchLogEvent)

// LogDispatch implements DispatchLogger.
func (fn DispatchLoggerFunc) LogDispatch(event DispatchLogEvent) {
	if fn == nil {
		return
	}
	fn(event)
}

type noopDispatchLogger struct{}

func (noopDispatchLogger) LogDispatch(DispatchLogEvent) {}

// NewSlogLogger writes dispatch events to logger. Successful dispatches are
// logged at debug, failures at error.
func NewSlogLogger(logger *slog.Logger) DispatchLogger {
	if logger == nil {
		return noopDispatchLogger{}
	}
	return DispatchLoggerFunc(func(event DispatchLogEvent) {
		attrs := []slog.Attr{
			slog.String("kind", event.Kind),
			slog.Duration("duration", event.Duration),
		}
		if event.EnvelopeID != "" {
			attrs = append(attrs, slog.String("envelope_id", event.EnvelopeID))
		}
		if event.Path != "" {
			attrs = append(attrs, slog.String("path", event.Path))
		}
		if len(event.Changed) > 0 {
			changed := make([]string, len(event.Changed))
			for i, ns := range event.Changed {
				changed[i] = string(ns)
			}
			attrs = append(attrs, slog.Any("changed", changed))
		}
		if event.Err != nil {
			attrs = append(attrs, slog.Any("error", event.Err))
			logger.LogAttrs(context.Background(), slog.LevelError, "modstate dispatch failed", attrs...)
			return
		}
		logger.LogAttrs(context.Background(), slog.LevelDebug, "modstate dispatch", attrs...)
	})
}

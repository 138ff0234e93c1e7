package activity

import (
	"context"
	"strings"
)

// DefaultChannel is applied to events emitted without a channel.
const DefaultChannel = "state"

// Config controls how a store emits state events.
type Config struct {
	Enabled bool
	Channel string
	// Namespaces restricts emission to the listed namespaces. Empty emits for
	// every namespace.
	Namespaces []string
}

// Emitter fans out state events to hooks while applying defaults.
type Emitter struct {
	hooks   Hooks
	enabled bool
	channel string
}

// NewEmitter constructs an emitter from hooks and configuration. Nil hooks are
// dropped.
func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	var active Hooks
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		active = append(active, ForNamespaces(hook, cfg.Namespaces...))
	}
	return &Emitter{
		hooks:   active,
		enabled: cfg.Enabled && len(active) > 0,
		channel: channel,
	}
}

// Enabled reports whether emissions should be attempted.
func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled
}

// Emit forwards event to all hooks, filling in the default channel.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	return e.hooks.Notify(ctx, event)
}

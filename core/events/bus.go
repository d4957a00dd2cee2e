// Package events provides a small publish/subscribe bus for engine lifecycle
// notifications such as schema activation and pipeline completion.
package events

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Event names published by the engine.
const (
	SchemaActivated  = "schema.activated"
	SchemaFailed     = "schema.failed"
	SchemaCleared    = "schema.cleared"
	PipelineExecuted = "pipeline.executed"
	PipelineFailed   = "pipeline.failed"
	ConfigReloaded   = "config.reloaded"
)

// Event represents a published event.
type Event struct {
	// Name is the event name (e.g., "schema.activated").
	Name string

	// Source is the component that emitted the event ("injector", "pipeline").
	Source string

	// Subject identifies what the event is about: a bundle name or pipeline id.
	Subject string

	// Data contains the event payload.
	Data map[string]any
}

// Handler is a function that processes an event.
type Handler func(ctx context.Context, event Event) error

// Bus is a simple publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event.
// Supports wildcard subscriptions:
//   - "schema.activated" - exact match
//   - "schema.*" - all schema events
//   - "*" - all events
func (b *Bus) Subscribe(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// Publish emits an event to all matching handlers.
// Handlers are called synchronously in registration order, exact matches first.
// A handler error is logged and does not stop the others.
func (b *Bus) Publish(ctx context.Context, event Event) {
	matched := b.match(event.Name)

	b.logger.Debug().
		Str("event", event.Name).
		Str("source", event.Source).
		Str("subject", event.Subject).
		Int("handlers", len(matched)).
		Msg("event emitted")

	for _, handler := range matched {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Msg("event handler error")
		}
	}
}

// PublishAsync emits an event asynchronously.
// The function returns immediately; handlers run in a goroutine.
func (b *Bus) PublishAsync(ctx context.Context, event Event) {
	go b.Publish(ctx, event)
}

// HasSubscribers checks if any handlers are registered for an event.
func (b *Bus) HasSubscribers(event string) bool {
	return len(b.match(event)) > 0
}

// match collects handlers under the read lock so handlers may subscribe.
func (b *Bus) match(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []Handler
	matched = append(matched, b.handlers[name]...)
	if group, _, ok := strings.Cut(name, "."); ok {
		matched = append(matched, b.handlers[group+".*"]...)
	}
	if name != "*" {
		matched = append(matched, b.handlers["*"]...)
	}
	return matched
}

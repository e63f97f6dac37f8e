// Package events provides the in-process event bus the workflow modules
// communicate over: the sessions and calls services publish lifecycle
// events (session created, call terminal, report ready) and side-effect
// modules such as notification subscribe to them. Event definitions live
// in internal/events; this package carries only the infrastructure.
package events

import (
	"context"
	"time"
)

// Event is implemented by every published event.
type Event interface {
	// EventName returns the stable name handlers subscribe on,
	// e.g. "sessions.report.ready".
	EventName() string
	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time
}

// BaseEvent is embedded by concrete events to satisfy OccurredAt.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a base event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler processes events of a specific type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to subscribed handlers.
type Bus interface {
	// Publish sends an event to all handlers registered for its name.
	// Handlers run asynchronously; publishers never block on side effects
	// like email delivery.
	Publish(ctx context.Context, event Event)

	// PublishSync sends an event and waits for all handlers to complete.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler for the given event name, as returned
	// by Event.EventName().
	Subscribe(eventName string, handler Handler)
}

package domain

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sri0013/vnf-project/internal/pkg/logger"
)

// EventHandler processes a domain event.
type EventHandler func(ctx context.Context, event *DomainEvent) error

// EventDispatcher routes domain events to registered handlers.
// A nil dispatcher drops every event.
type EventDispatcher struct {
	handlers map[EventType][]EventHandler
	mu       sync.RWMutex
}

// NewEventDispatcher creates a new EventDispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Register registers a handler for a specific event type.
func (d *EventDispatcher) Register(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// Dispatch dispatches an event to all registered handlers.
// Handlers run sequentially; a failing handler is logged and the rest still run.
func (d *EventDispatcher) Dispatch(ctx context.Context, event *DomainEvent) error {
	if d == nil || event == nil {
		return nil
	}
	d.mu.RLock()
	handlers := d.handlers[event.EventType]
	d.mu.RUnlock()

	if len(handlers) == 0 {
		logger.Debug("No handlers registered for event type",
			zap.String("event_type", string(event.EventType)),
			zap.String("event_id", event.EventID),
		)
		return nil
	}

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			logger.Error("Event handler failed",
				zap.String("event_type", string(event.EventType)),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("handler for %s failed: %w", event.EventType, err)
			}
		}
	}

	return firstErr
}

// Publish builds and dispatches an event. Build and handler errors are
// logged, never returned: events are a side channel of the control loops.
func (d *EventDispatcher) Publish(ctx context.Context, eventType EventType, aggregateType, aggregateID string, payload interface{}) {
	if d == nil {
		return
	}
	event, err := NewEvent(eventType, aggregateType, aggregateID, payload)
	if err != nil {
		logger.Warn("Build domain event failed",
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
		return
	}
	_ = d.Dispatch(ctx, event)
}

// RegisterAll registers one handler for several event types.
func (d *EventDispatcher) RegisterAll(handler EventHandler, eventTypes ...EventType) {
	for _, t := range eventTypes {
		d.Register(t, handler)
	}
}

// Package event_bus is a small synchronous in-process dispatcher. Services
// publish domain events on it; cross-cutting subscribers (the audit
// recorder) react without the services knowing about them.
package event_bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// EventType identifies a kind of domain event.
type EventType string

// Event is the envelope carried on the bus. Data is `any` so unrelated
// payload types can share one bus.
type Event struct {
	ctx       context.Context
	Type      EventType
	Timestamp time.Time
	Data      any
}

func NewEvent(ctx context.Context, eventType EventType, data any) Event {
	return Event{
		ctx:       ctx,
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Context returns the context the event was published under. Handlers use
// it for cancellation and for request-scoped values such as the acting user.
func (e Event) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// EventT is the typed envelope delivered to typed handlers.
type EventT[T any] struct {
	ctx       context.Context
	Type      EventType
	Timestamp time.Time
	Data      T
}

func (e EventT[T]) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

type handler func(Event) error

// EventBus dispatches events to subscribers synchronously, in registration
// order, during Publish.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType]map[uint64]handler
	order       map[EventType][]uint64
	nextID      uint64
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType]map[uint64]handler),
		order:       make(map[EventType][]uint64),
	}
}

// Subscribe registers a handler for eventType and returns a function that
// removes it again.
func (eb *EventBus) Subscribe(eventType EventType, h func(Event) error) (unsubscribe func()) {
	eb.mu.Lock()
	eb.nextID++
	id := eb.nextID
	if eb.subscribers[eventType] == nil {
		eb.subscribers[eventType] = make(map[uint64]handler)
	}
	eb.subscribers[eventType][id] = h
	eb.order[eventType] = append(eb.order[eventType], id)
	eb.mu.Unlock()

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		if handlers := eb.subscribers[eventType]; handlers != nil {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(eb.subscribers, eventType)
				delete(eb.order, eventType)
			}
		}
	}
}

// SubscribeTyped registers a handler expecting payload type T. A free
// function because Go methods cannot carry their own type parameters. Events
// whose payload is not a T are skipped.
func SubscribeTyped[T any](eb *EventBus, eventType EventType, h func(EventT[T]) error) (unsubscribe func()) {
	return eb.Subscribe(eventType, func(e Event) error {
		payload, ok := e.Data.(T)
		if !ok {
			log.Debugf("event bus: payload for %s is %T, handler wants %T, skipping", eventType, e.Data, *new(T))
			return nil
		}
		return h(EventT[T]{ctx: e.ctx, Type: e.Type, Timestamp: e.Timestamp, Data: payload})
	})
}

// Publish invokes every handler registered for e.Type. Handler errors do not
// stop dispatch; they are collected and returned joined. A panicking handler
// is recovered and reported as an error.
func (eb *EventBus) Publish(e Event) error {
	if err := e.Context().Err(); err != nil {
		return fmt.Errorf("event %s: context cancelled before publish: %w", e.Type, err)
	}

	eb.mu.RLock()
	ids := eb.order[e.Type]
	handlers := make([]handler, 0, len(ids))
	for _, id := range ids {
		if h, ok := eb.subscribers[e.Type][id]; ok {
			handlers = append(handlers, h)
		}
	}
	eb.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := e.Context().Err(); err != nil {
			errs = append(errs, fmt.Errorf("context cancelled during dispatch: %w", err))
			break
		}
		if err := eb.invoke(h, e); err != nil {
			log.Errorf("event bus: handler error for %s: %v", e.Type, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (eb *EventBus) invoke(h handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic for event %s: %v", e.Type, r)
		}
	}()
	return h(e)
}

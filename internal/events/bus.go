// Package events carries engine notifications to in-process listeners
// such as the websocket hub.
package events

import (
	"sync"
	"time"
)

// EventType labels what happened.
type EventType string

const (
	EventDecision       EventType = "DECISION"
	EventPassCompleted  EventType = "PASS_COMPLETED"
	EventSelection      EventType = "SELECTION"
	EventBreakerTripped EventType = "BREAKER_TRIPPED"
	EventBreakerReset   EventType = "BREAKER_RESET"
	EventError          EventType = "ERROR"
)

// Event is one engine notification.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles events. Subscribers run on their own goroutines,
// so a slow consumer never stalls the engine.
type Subscriber func(Event)

// Bus fans events out to per-type and catch-all subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event type.
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event type.
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish delivers the event to all matching subscribers without
// blocking the caller.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishDecision publishes one emitted trade decision.
func (b *Bus) PublishDecision(id, index, direction string, score float64, multiplier int) {
	b.Publish(Event{
		Type: EventDecision,
		Data: map[string]interface{}{
			"id":         id,
			"index":      index,
			"direction":  direction,
			"score":      score,
			"multiplier": multiplier,
		},
	})
}

// PublishPassCompleted publishes the outcome of one evaluation pass.
func (b *Bus) PublishPassCompleted(indices, decisions int, took time.Duration) {
	b.Publish(Event{
		Type: EventPassCompleted,
		Data: map[string]interface{}{
			"indices":   indices,
			"decisions": decisions,
			"took_ms":   took.Milliseconds(),
		},
	})
}

// PublishSelection publishes the winning index of a selection pass.
func (b *Bus) PublishSelection(index, reason string, score float64) {
	b.Publish(Event{
		Type: EventSelection,
		Data: map[string]interface{}{
			"index":  index,
			"reason": reason,
			"score":  score,
		},
	})
}

// PublishBreakerTripped publishes a breaker trip.
func (b *Bus) PublishBreakerTripped(reason string) {
	b.Publish(Event{
		Type: EventBreakerTripped,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishBreakerReset publishes a breaker reset.
func (b *Bus) PublishBreakerReset() {
	b.Publish(Event{
		Type: EventBreakerReset,
		Data: map[string]interface{}{},
	})
}

// PublishError publishes a non-fatal engine error.
func (b *Bus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{Type: EventError, Data: data})
}

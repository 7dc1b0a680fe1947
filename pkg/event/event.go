// Package event fans run progress out to in-process listeners and websocket
// clients. Events carry small payloads; full runs are fetched over HTTP.
package event

import (
	"log/slog"
	"sync"

	"github.com/choraleia/analyst/pkg/utils"
)

// Event is the interface all event types must implement.
type Event interface {
	// EventName returns the unique name for this event type (e.g., "run.finished")
	EventName() string
}

// Listener is a callback function for handling events.
type Listener func(Event)

type subscription struct {
	id uint64
	fn Listener
}

// Emitter manages event subscriptions and dispatching. It is safe for
// concurrent use; listeners run on the emitting goroutine.
type Emitter struct {
	mu     sync.RWMutex
	nextID uint64
	named  map[string][]subscription
	all    []subscription
	logger *slog.Logger
}

func NewEmitter() *Emitter {
	return &Emitter{
		named:  make(map[string][]subscription),
		logger: utils.GetLogger(),
	}
}

// On subscribes to a specific event type.
// Returns an unsubscribe function.
func (e *Emitter) On(eventName string, fn Listener) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.named[eventName] = append(e.named[eventName], subscription{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.named[eventName] = without(e.named[eventName], id)
	}
}

// OnAny subscribes to all events.
func (e *Emitter) OnAny(fn Listener) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.all = append(e.all, subscription{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.all = without(e.all, id)
	}
}

// Emit dispatches an event to the listeners of its name, then to the
// wildcard listeners.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	specific := append([]subscription(nil), e.named[ev.EventName()]...)
	all := append([]subscription(nil), e.all...)
	e.mu.RUnlock()

	e.logger.Debug("Emitting event", "event", ev.EventName(), "specific", len(specific), "wildcard", len(all))

	for _, s := range specific {
		s.fn(ev)
	}
	for _, s := range all {
		s.fn(ev)
	}
}

// ListenerCount returns the number of subscriptions, wildcard ones included.
func (e *Emitter) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := len(e.all)
	for _, subs := range e.named {
		n += len(subs)
	}
	return n
}

func without(subs []subscription, id uint64) []subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

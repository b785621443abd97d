package bus

import (
	"sync"

	"github.com/astrohub/astrohub-core/internal/metrics"
)

// Type identifies a category of event on the bus.
type Type string

// Event is implemented by every payload published on the bus.
// Payload types live with the packages that produce them (see internal/device).
type Event interface {
	EventType() Type
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block for extended periods.
type Handler func(Event)

// Logger is the logging interface used by the Bus.
type Logger interface {
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// Subscription is a handle returned by Subscribe, used to unsubscribe.
type Subscription struct {
	eventType Type
	id        uint64
}

// Bus is a synchronous in-process event bus.
//
// Handlers for a given event type are invoked in subscription order.
// All methods are safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]entry
	nextID   uint64
	logger   Logger
}

// entry pairs a handler with its subscription id for ordered removal.
type entry struct {
	id      uint64
	handler Handler
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[Type][]entry),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger used to report panicking handlers.
func (b *Bus) SetLogger(logger Logger) {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// Subscribe registers a handler for the given event type.
// The returned Subscription is the handle for Unsubscribe.
func (b *Bus) Subscribe(t Type, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[t] = append(b.handlers[t], entry{id: b.nextID, handler: h})
	return Subscription{eventType: t, id: b.nextID}
}

// Unsubscribe removes a previously registered handler.
// Unsubscribing a handle that is not (or no longer) registered is a no-op.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.handlers[sub.eventType]
	for i, e := range entries {
		if e.id == sub.id {
			b.handlers[sub.eventType] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every handler subscribed to its type,
// in subscription order. A panicking handler does not prevent delivery
// to the handlers after it.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	entries := make([]entry, len(b.handlers[ev.EventType()]))
	copy(entries, b.handlers[ev.EventType()])
	logger := b.logger
	b.mu.RUnlock()

	metrics.IncEventPublished(string(ev.EventType()))
	for _, e := range entries {
		b.dispatch(e.handler, ev, logger)
	}
}

// dispatch invokes a single handler with panic isolation.
func (b *Bus) dispatch(h Handler, ev Event, logger Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panic recovered",
				"event_type", string(ev.EventType()),
				"panic", r,
			)
		}
	}()
	h(ev)
}

// SubscriberCount returns the number of handlers for the given event type.
func (b *Bus) SubscriberCount(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t])
}

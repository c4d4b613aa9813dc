package pool

import (
	"fmt"
	"time"
)

// EventType identifies a pool event.
type EventType int

const (
	// EventAcquired is emitted when an acquisition is satisfied.
	EventAcquired EventType = iota
	// EventReleased is emitted when a connection is released.
	EventReleased
	// EventAcquireTimeout is emitted when a queued acquisition expires.
	EventAcquireTimeout
	// EventCreated is emitted when the factory produced a connection.
	EventCreated
	// EventDestroyed is emitted when a connection leaves the pool.
	EventDestroyed
	// EventValidationFailed is emitted when a probe fails or times out.
	EventValidationFailed
)

// String returns the event name.
func (t EventType) String() string {
	switch t {
	case EventAcquired:
		return "acquired"
	case EventReleased:
		return "released"
	case EventAcquireTimeout:
		return "acquire-timeout"
	case EventCreated:
		return "created"
	case EventDestroyed:
		return "destroyed"
	case EventValidationFailed:
		return "validation-failed"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event describes something that happened to a pool.
type Event struct {
	Type     EventType
	Endpoint string
	// ConnID is the record ID, empty for events without a connection.
	ConnID string
	// Err carries the cause for timeouts and validation failures.
	Err error
	At  time.Time
}

// Observer receives pool events. OnEvent is called without the pool lock
// held, in the order events occurred for a single operation.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent calls f(e).
func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}

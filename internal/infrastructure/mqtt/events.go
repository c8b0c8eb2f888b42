package mqtt

import "time"

// EventKind identifies a session lifecycle transition.
type EventKind int

// Session lifecycle events, emitted exactly once per transition.
const (
	// EventConnecting is emitted when Connect starts the initial attempt.
	EventConnecting EventKind = iota

	// EventConnected is emitted on every connect acknowledgement, initial or renewed.
	EventConnected

	// EventReconnecting is emitted before each automatic reconnect attempt.
	EventReconnecting

	// EventConnectionLost is emitted when an established connection drops.
	EventConnectionLost

	// EventError is emitted when the initial connection is refused or times out.
	EventError

	// EventClosed is emitted once, when the session is closed.
	EventClosed
)

// String returns the lowercase event name.
func (k EventKind) String() string {
	switch k {
	case EventConnecting:
		return "connecting"
	case EventConnected:
		return "connected"
	case EventReconnecting:
		return "reconnecting"
	case EventConnectionLost:
		return "connection_lost"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is a single session lifecycle notification.
type Event struct {
	Kind EventKind
	At   time.Time

	// Err is set for EventConnectionLost and EventError.
	Err error

	// Terminal is set on EventConnectionLost when the session will not
	// reconnect on its own.
	Terminal bool
}

// EventHandler receives session lifecycle events.
type EventHandler func(Event)

// MessageHandler receives inbound publishes.
//
// Handlers run on the session's delivery goroutine in broker order.
// They must not block, and must not wait on a Publish from the same session.
type MessageHandler func(topic string, payload []byte)

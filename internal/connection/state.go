package connection

import (
	"github.com/nerrad567/gpio-remote/internal/infrastructure/mqtt"
	"github.com/nerrad567/gpio-remote/internal/liveness"
)

// State is the presented connection status.
type State int

const (
	Connecting State = iota
	Connected
	Reconnecting
	Errored
	Disconnected
)

// String returns the presented status label.
func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	case Errored:
		return "Errored"
	case Disconnected:
		return "Disconnected"
	default:
		return "Invalid"
	}
}

// Terminal reports whether s can only be left by opening a new session.
func (s State) Terminal() bool {
	return s == Errored || s == Disconnected
}

// Transition returns the state after ev.
func Transition(from State, ev mqtt.Event) State {
	if ev.Kind == mqtt.EventClosed {
		return Disconnected
	}
	if from.Terminal() {
		return from
	}

	switch ev.Kind {
	case mqtt.EventConnecting:
		if from == Connecting {
			return Connecting
		}
	case mqtt.EventConnected:
		return Connected
	case mqtt.EventReconnecting:
		return Reconnecting
	case mqtt.EventConnectionLost:
		if ev.Terminal {
			return Disconnected
		}
		return Reconnecting
	case mqtt.EventError:
		return Errored
	}
	return from
}

// Decision is the outcome of the command gate.
type Decision int

const (
	Blocked Decision = iota
	Allowed
)

// String returns "allowed" or "blocked".
func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "blocked"
}

// Gate allows commands only while connected to a reachable device.
func Gate(state State, device liveness.State) Decision {
	if state == Connected && device == liveness.Reachable {
		return Allowed
	}
	return Blocked
}

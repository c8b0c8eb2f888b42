package liveness

import (
	"strings"
	"time"
)

// State is the derived reachability of the device.
type State int

const (
	// Unknown means no evidence either way, e.g. before the first tick or
	// while the session is reconnecting.
	Unknown State = iota
	Reachable
	Unreachable
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Reachable:
		return "reachable"
	case Unreachable:
		return "unreachable"
	default:
		return "invalid"
	}
}

// InputKind is one of the reducer's inputs.
type InputKind int

const (
	// Heartbeat is an "online" or "heartbeat" status message.
	Heartbeat InputKind = iota
	// Offline is an explicit "offline" status message.
	Offline
	// Tick is the periodic timeout evaluation.
	Tick
	// Suspend marks the session as reconnecting.
	Suspend
	// Resume marks the session as connected again.
	Resume
)

// Input is a reducer input observed at a point in time.
type Input struct {
	Kind InputKind
	At   time.Time
}

// Snapshot is the reducer state.
type Snapshot struct {
	State State

	// LastSeenAt is the time of the most recent heartbeat; zero when none.
	LastSeenAt time.Time

	// Suspended is set while the session is reconnecting.
	Suspended bool
}

// Reduce applies one input.
//
//   - Heartbeat records LastSeenAt and reports Reachable.
//   - Offline reports Unreachable immediately.
//   - Tick reports Unreachable when LastSeenAt is unset or more than timeout
//     before the tick. It never upgrades the state.
//   - Suspend forces Unknown and clears LastSeenAt. Messages and ticks are
//     ignored until Resume.
func Reduce(s Snapshot, in Input, timeout time.Duration) Snapshot {
	switch in.Kind {
	case Suspend:
		return Snapshot{State: Unknown, Suspended: true}
	case Resume:
		s.Suspended = false
		return s
	}

	if s.Suspended {
		return s
	}

	switch in.Kind {
	case Heartbeat:
		s.LastSeenAt = in.At
		s.State = Reachable
	case Offline:
		s.State = Unreachable
	case Tick:
		if s.LastSeenAt.IsZero() || in.At.Sub(s.LastSeenAt) > timeout {
			s.State = Unreachable
		}
	}
	return s
}

// Classify maps a status-topic payload to a reducer input. Other payloads are
// not liveness evidence and report false.
func Classify(payload []byte) (InputKind, bool) {
	switch strings.TrimSpace(string(payload)) {
	case "online", "heartbeat":
		return Heartbeat, true
	case "offline":
		return Offline, true
	default:
		return 0, false
	}
}

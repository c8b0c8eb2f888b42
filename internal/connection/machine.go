package connection

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gpio-remote/internal/infrastructure/mqtt"
	"github.com/nerrad567/gpio-remote/internal/liveness"
)

// Status is the presented status of one client.
type Status struct {
	State           State
	Liveness        liveness.State
	LastSeenAt      time.Time
	CommandsAllowed bool
}

// MarshalJSON renders states by name.
func (s Status) MarshalJSON() ([]byte, error) {
	out := struct {
		State           string     `json:"state"`
		Liveness        string     `json:"liveness"`
		LastSeenAt      *time.Time `json:"last_seen_at,omitempty"`
		CommandsAllowed bool       `json:"commands_allowed"`
	}{
		State:           s.State.String(),
		Liveness:        s.Liveness.String(),
		CommandsAllowed: s.CommandsAllowed,
	}
	if !s.LastSeenAt.IsZero() {
		out.LastSeenAt = &s.LastSeenAt
	}
	return json.Marshal(out)
}

// same reports whether two statuses present identically.
func (s Status) same(o Status) bool {
	return s.State == o.State && s.Liveness == o.Liveness && s.CommandsAllowed == o.CommandsAllowed
}

// StatusHandler receives each new presented status.
type StatusHandler func(Status)

// Machine tracks the connection state of one session and combines it with the
// session's liveness monitor.
//
// While the session is reconnecting the monitor is suspended, which forces
// liveness to Unknown. A renewed connect resumes it.
type Machine struct {
	monitor *liveness.Monitor

	state State
	mu    sync.Mutex

	// applyMu serialises event application.
	applyMu sync.Mutex

	last     Status
	notifyMu sync.Mutex

	handlers  []StatusHandler
	handlerMu sync.RWMutex
}

// NewMachine returns a machine in the Connecting state bound to monitor.
func NewMachine(monitor *liveness.Monitor) *Machine {
	m := &Machine{
		monitor: monitor,
		state:   Connecting,
	}
	m.last = m.Status()
	monitor.OnChange(func(liveness.Snapshot) {
		m.notify()
	})
	return m
}

// HandleEvent applies a session event. It has the mqtt.EventHandler signature.
func (m *Machine) HandleEvent(ev mqtt.Event) {
	m.applyMu.Lock()

	m.mu.Lock()
	prev := m.state
	next := Transition(prev, ev)
	m.state = next
	m.mu.Unlock()

	// The monitor is driven outside mu: its change handlers read Status.
	switch {
	case next == Connected && prev != Connected:
		m.monitor.Resume()
	case next != Connected && prev == Connected,
		next.Terminal() && !prev.Terminal():
		m.monitor.Suspend()
	}

	m.applyMu.Unlock()

	m.notify()
}

// State returns the current connection state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns the presented status.
func (m *Machine) Status() Status {
	state := m.State()
	snap := m.monitor.Snapshot()
	return Status{
		State:           state,
		Liveness:        snap.State,
		LastSeenAt:      snap.LastSeenAt,
		CommandsAllowed: Gate(state, snap.State) == Allowed,
	}
}

// OnChange registers a handler called whenever the presented status changes.
// Handlers may call Status but must not feed events back into the Machine.
func (m *Machine) OnChange(h StatusHandler) {
	if h == nil {
		return
	}
	m.handlerMu.Lock()
	m.handlers = append(m.handlers, h)
	m.handlerMu.Unlock()
}

func (m *Machine) notify() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	st := m.Status()
	if st.same(m.last) {
		return
	}
	m.last = st

	m.handlerMu.RLock()
	handlers := append([]StatusHandler(nil), m.handlers...)
	m.handlerMu.RUnlock()

	for _, h := range handlers {
		h(st)
	}
}

package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gpio-remote/internal/connection"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/mqtt"
)

// Management commands understood by the backend.
const (
	CommandAdd    = "add_rule"
	CommandDelete = "delete_rule"
	CommandList   = "get_list"
)

const managementQoS byte = 1

// Publisher publishes one message and waits for the broker acknowledgement.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte) error
}

// StateProvider reports the current connection state.
type StateProvider interface {
	State() connection.State
}

// request is the management message envelope.
type request struct {
	Command string `json:"command"`
	Rule    *Rule  `json:"rule,omitempty"`
	RuleID  RuleID `json:"rule_id,omitempty"`
}

// Manager publishes rule management requests. Unlike device commands these
// only need a connected session; device liveness is irrelevant.
type Manager struct {
	pub   Publisher
	state StateProvider
	topic string
}

// NewManager returns a manager publishing on the management topic.
func NewManager(pub Publisher, state StateProvider, topic string) *Manager {
	return &Manager{pub: pub, state: state, topic: topic}
}

// Add validates r and asks the backend to store it. Any id on r is dropped.
func (m *Manager) Add(ctx context.Context, r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.ID = ""
	return m.send(ctx, request{Command: CommandAdd, Rule: &r})
}

// Delete asks the backend to remove the rule with id.
func (m *Manager) Delete(ctx context.Context, id RuleID) error {
	if id == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidRule)
	}
	return m.send(ctx, request{Command: CommandDelete, RuleID: id})
}

// RequestList asks the backend to republish the rule list.
func (m *Manager) RequestList(ctx context.Context) error {
	return m.send(ctx, request{Command: CommandList})
}

func (m *Manager) send(ctx context.Context, req request) error {
	if st := m.state.State(); st != connection.Connected {
		return fmt.Errorf("%w: connection %s", mqtt.ErrNotConnected, st)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", req.Command, err)
	}
	return m.pub.Publish(ctx, m.topic, payload, managementQoS)
}

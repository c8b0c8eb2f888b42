package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nerrad567/gpio-remote/internal/audit"
	"github.com/nerrad567/gpio-remote/internal/connection"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/mqtt"
)

// CommandQoS is the QoS of every application publish.
const CommandQoS byte = 1

// Publisher publishes one message and waits for the broker acknowledgement.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte) error
}

// StatusProvider returns the presented status the gate is evaluated on.
type StatusProvider interface {
	Status() connection.Status
}

// Ack describes a published command.
type Ack struct {
	Topic   string
	Payload string
	QoS     byte
	At      time.Time
}

// Config holds the identity and device a Dispatcher acts for.
type Config struct {
	// User is recorded in the audit log for each command.
	User string

	// Device is the device id used to build GPIO topics.
	Device string

	// Clock defaults to time.Now.
	Clock func() time.Time

	Logger *slog.Logger
}

// Dispatcher publishes commands through the gate.
type Dispatcher struct {
	pub    Publisher
	status StatusProvider
	sink   audit.Sink
	user   string
	topics mqtt.Topics
	now    func() time.Time
	logger *slog.Logger
}

// NewDispatcher wires a dispatcher. A nil sink discards audit records.
func NewDispatcher(pub Publisher, status StatusProvider, sink audit.Sink, cfg Config) *Dispatcher {
	if sink == nil {
		sink = audit.Discard
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		pub:    pub,
		status: status,
		sink:   sink,
		user:   cfg.User,
		topics: mqtt.Topics{Device: cfg.Device},
		now:    now,
		logger: logger,
	}
}

// Dispatch publishes payload on topic if the gate allows it.
//
// A blocked gate returns ErrDeviceUnreachable. A publish failure is
// returned unchanged and nothing is recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, topic, payload string) (Ack, error) {
	st := d.status.Status()
	if connection.Gate(st.State, st.Liveness) == connection.Blocked {
		d.logger.Warn("command blocked",
			"topic", topic,
			"state", st.State.String(),
			"liveness", st.Liveness.String(),
		)
		return Ack{}, fmt.Errorf("%w: connection %s, device %s",
			ErrDeviceUnreachable, st.State, st.Liveness)
	}

	if err := d.pub.Publish(ctx, topic, []byte(payload), CommandQoS); err != nil {
		d.logger.Error("command publish failed", "topic", topic, "error", err)
		return Ack{}, err
	}

	d.sink.Submit(audit.Record{Topic: topic, Message: payload, User: d.user})
	d.logger.Info("command sent", "topic", topic, "payload", payload)

	return Ack{Topic: topic, Payload: payload, QoS: CommandQoS, At: d.now()}, nil
}

// SetGPIO switches a pin on the configured device.
func (d *Dispatcher) SetGPIO(ctx context.Context, pin int, on bool) (Ack, error) {
	if pin < 0 {
		return Ack{}, fmt.Errorf("%w: %d", ErrInvalidPin, pin)
	}
	payload := mqtt.PinOff
	if on {
		payload = mqtt.PinOn
	}
	return d.Dispatch(ctx, d.topics.GPIOSet(pin), payload)
}

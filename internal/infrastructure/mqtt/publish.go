package mqtt

import (
	"context"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a non-retained message and waits for the broker acknowledgement.
//
// The connected check and the enqueue happen under the same lock that the
// lifecycle handlers take, so a publish is never sent on a session that has
// already been marked lost or closed.
//
// The wait ends when the broker acknowledges, the publish timeout expires,
// ctx is done, or the session is closed (ErrDisconnected).
//
// Example:
//
//	topic := mqtt.Topics{Device: "esp32_02"}.GPIOSet(2)
//	err := session.Publish(ctx, topic, []byte("ON"), 1)
func (s *Session) Publish(ctx context.Context, topic string, payload []byte, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	s.connMu.RLock()
	if s.closed {
		s.connMu.RUnlock()
		return ErrDisconnected
	}
	if !s.connected || !s.client.IsConnectionOpen() {
		s.connMu.RUnlock()
		return ErrNotConnected
	}
	token := s.client.Publish(topic, qos, false, payload)
	s.connMu.RUnlock()

	return s.awaitPublish(ctx, token)
}

// PublishString is a convenience method that publishes a string payload.
func (s *Session) PublishString(ctx context.Context, topic, payload string, qos byte) error {
	return s.Publish(ctx, topic, []byte(payload), qos)
}

func (s *Session) awaitPublish(ctx context.Context, token pahomqtt.Token) error {
	timeout := publishTimeout(s.cfg)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: %w", ErrPublishFailed, err)
		}
		return nil
	case <-s.done:
		return ErrDisconnected
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrPublishFailed, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, timeout)
	}
}

package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe tracks a topic filter and subscribes to it.
//
// Subscribe does not block and never fails the caller: the filter is sent now
// if the session is connected and replayed on every later connect, and broker
// failures are logged. Inbound publishes arrive through OnMessage handlers.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "esp32_02/gpio/+/state"
//   - # (multi-level): "esp32_02/#"
func (s *Session) Subscribe(topic string) {
	if topic == "" {
		if logger := s.getLogger(); logger != nil {
			logger.Warn("MQTT subscribe ignored", "error", ErrInvalidTopic)
		}
		return
	}

	qos := s.subscribeQoS()

	s.subMu.Lock()
	s.subscriptions[topic] = qos
	s.subMu.Unlock()

	if !s.IsConnected() {
		return
	}
	s.sendSubscribe(topic, qos)
}

// Unsubscribe stops tracking topic and, when connected, unsubscribes from the broker.
func (s *Session) Unsubscribe(topic string) {
	s.subMu.Lock()
	delete(s.subscriptions, topic)
	s.subMu.Unlock()

	if !s.IsConnected() {
		return
	}
	s.watchToken(s.client.Unsubscribe(topic), "unsubscribe", topic)
}

// restoreSubscriptions re-subscribes to all tracked topics after connect.
func (s *Session) restoreSubscriptions() {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for topic, qos := range s.subscriptions {
		s.sendSubscribe(topic, qos)
	}
}

func (s *Session) sendSubscribe(topic string, qos byte) {
	s.watchToken(s.client.Subscribe(topic, qos, s.handleMessage), "subscribe", topic)
}

// watchToken logs a failed or timed-out broker operation without blocking the caller.
func (s *Session) watchToken(token pahomqtt.Token, op, topic string) {
	timeout := publishTimeout(s.cfg)
	go func() {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		var err error
		select {
		case <-token.Done():
			err = token.Error()
		case <-timer.C:
			err = fmt.Errorf("timeout after %v", timeout)
		case <-s.done:
			return
		}
		if err == nil {
			return
		}
		if logger := s.getLogger(); logger != nil {
			logger.Warn("MQTT "+op+" failed",
				"topic", topic,
				"error", fmt.Errorf("%w: %w", ErrSubscribeFailed, err),
			)
		}
	}()
}

func (s *Session) subscribeQoS() byte {
	if s.cfg.QoS < 0 || s.cfg.QoS > maxQoS {
		return 1
	}
	return byte(s.cfg.QoS)
}

// SubscriptionCount returns the number of tracked subscriptions.
func (s *Session) SubscriptionCount() int {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subscriptions)
}

// HasSubscription checks if a subscription exists for the given topic.
//
// Note: This checks only the exact topic string, not pattern matching.
func (s *Session) HasSubscription(topic string) bool {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	_, exists := s.subscriptions[topic]
	return exists
}

package audit

import (
	"testing"

	"github.com/nerrad567/gpio-remote/internal/infrastructure/mqtt"
)

type fakeSubscriber struct {
	topics   []string
	handlers []mqtt.MessageHandler
}

func (s *fakeSubscriber) Subscribe(topic string)          { s.topics = append(s.topics, topic) }
func (s *fakeSubscriber) OnMessage(h mqtt.MessageHandler) { s.handlers = append(s.handlers, h) }

func (s *fakeSubscriber) deliver(topic, payload string) {
	for _, h := range s.handlers {
		h(topic, []byte(payload))
	}
}

func TestListener_RecordsMatchingTraffic(t *testing.T) {
	var got []Record
	l := NewListener(SinkFunc(func(rec Record) { got = append(got, rec) }),
		[]string{"esp32_02/#", "sistema/#"}, "", nil)

	sub := &fakeSubscriber{}
	l.Attach(sub)

	if len(sub.topics) != 2 || sub.topics[0] != "esp32_02/#" || sub.topics[1] != "sistema/#" {
		t.Errorf("subscribed = %v", sub.topics)
	}

	sub.deliver("esp32_02/sensor/dht11", `{"temperature":21.5}`)
	sub.deliver("other/topic", "ignored")
	sub.deliver("sistema/regras/lista", "[]")

	if len(got) != 2 {
		t.Fatalf("recorded %d messages, want 2", len(got))
	}
	if got[0].Topic != "esp32_02/sensor/dht11" || got[0].Message != `{"temperature":21.5}` {
		t.Errorf("got[0] = %+v", got[0])
	}
	for _, rec := range got {
		if rec.User != ListenerUser {
			t.Errorf("User = %q, want %q", rec.User, ListenerUser)
		}
	}
}

func TestListener_CustomUser(t *testing.T) {
	var got Record
	l := NewListener(SinkFunc(func(rec Record) { got = rec }), []string{"#"}, "ops", nil)

	l.HandleMessage("esp32_02/status", []byte("online"))

	if got.User != "ops" {
		t.Errorf("User = %q, want ops", got.User)
	}
}

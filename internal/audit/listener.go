package audit

import (
	"log/slog"

	"github.com/nerrad567/gpio-remote/internal/infrastructure/mqtt"
)

// ListenerUser is the user recorded for traffic captured by a Listener.
const ListenerUser = "backend-listener"

// Subscriber is the part of an MQTT session a Listener needs.
type Subscriber interface {
	Subscribe(topic string)
	OnMessage(h mqtt.MessageHandler)
}

// Listener records every inbound message on a set of topic filters.
type Listener struct {
	sink    Sink
	filters []string
	user    string
	logger  *slog.Logger
}

// NewListener returns a listener feeding sink. An empty user falls back to
// ListenerUser.
func NewListener(sink Sink, filters []string, user string, logger *slog.Logger) *Listener {
	if user == "" {
		user = ListenerUser
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Listener{
		sink:    sink,
		filters: append([]string(nil), filters...),
		user:    user,
		logger:  logger,
	}
}

// Attach registers the listener on s and subscribes every filter.
func (l *Listener) Attach(s Subscriber) {
	s.OnMessage(l.HandleMessage)
	for _, f := range l.filters {
		s.Subscribe(f)
	}
	l.logger.Info("audit listener attached", "topics", l.filters, "user", l.user)
}

// HandleMessage records one message if its topic matches a filter.
func (l *Listener) HandleMessage(topic string, payload []byte) {
	if !l.matches(topic) {
		return
	}
	l.sink.Submit(Record{Topic: topic, Message: string(payload), User: l.user})
}

func (l *Listener) matches(topic string) bool {
	for _, f := range l.filters {
		if mqtt.TopicMatches(f, topic) {
			return true
		}
	}
	return false
}

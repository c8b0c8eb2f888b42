// Package mqtttest provides an in-memory paho client for tests.
//
// The fake records every call and lets a test drive the broker side:
// acknowledge or refuse connects, fail or hold publishes, deliver inbound
// messages and fire lifecycle callbacks.
package mqtttest

import (
	"errors"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Published is one recorded publish call.
type Published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// Client is a fake pahomqtt.Client.
type Client struct {
	mu sync.Mutex

	opts *pahomqtt.ClientOptions

	open bool

	// ConnectErr makes Connect fail with this error.
	connectErr error
	// holdConnect makes Connect return a token that never completes.
	holdConnect bool

	publishErr  error
	holdPublish bool
	held        []*Token

	published   []Published
	subscribed  []string
	unsubscribe []string
	handlers    map[string]pahomqtt.MessageHandler
	retained    map[string][]byte

	connects    int
	disconnects int
}

// NewClient returns a disconnected fake.
func NewClient() *Client {
	return &Client{
		handlers: make(map[string]pahomqtt.MessageHandler),
		retained: make(map[string][]byte),
	}
}

// Factory returns a constructor compatible with mqtt.WithClientFactory that
// hands out c after capturing the session's options.
func (c *Client) Factory() func(*pahomqtt.ClientOptions) pahomqtt.Client {
	return func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
		c.mu.Lock()
		c.opts = opts
		c.mu.Unlock()
		return c
	}
}

// Options returns the options the session built.
func (c *Client) Options() *pahomqtt.ClientOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// =============================================================================
// Test controls
// =============================================================================

// RefuseConnect makes the next Connect calls fail with err.
func (c *Client) RefuseConnect(err error) {
	c.mu.Lock()
	c.connectErr = err
	c.mu.Unlock()
}

// HoldConnect makes Connect return a token that never completes.
func (c *Client) HoldConnect() {
	c.mu.Lock()
	c.holdConnect = true
	c.mu.Unlock()
}

// FailPublish makes publishes complete with err.
func (c *Client) FailPublish(err error) {
	c.mu.Lock()
	c.publishErr = err
	c.mu.Unlock()
}

// HoldPublish makes publishes return tokens that stay pending.
func (c *Client) HoldPublish() {
	c.mu.Lock()
	c.holdPublish = true
	c.mu.Unlock()
}

// ReleasePublishes completes every held publish token with err.
func (c *Client) ReleasePublishes(err error) {
	c.mu.Lock()
	held := c.held
	c.held = nil
	c.holdPublish = false
	c.mu.Unlock()

	for _, t := range held {
		t.Complete(err)
	}
}

// FireConnect simulates paho's OnConnect callback after a (re)connect.
func (c *Client) FireConnect() {
	c.mu.Lock()
	c.open = true
	opts := c.opts
	c.mu.Unlock()

	if opts != nil && opts.OnConnect != nil {
		opts.OnConnect(c)
	}
}

// DropConnection simulates a broker-side connection loss.
func (c *Client) DropConnection(err error) {
	c.mu.Lock()
	c.open = false
	opts := c.opts
	c.mu.Unlock()

	if opts != nil && opts.OnConnectionLost != nil {
		opts.OnConnectionLost(c, err)
	}
}

// FireReconnecting simulates paho's OnReconnecting callback.
func (c *Client) FireReconnecting() {
	c.mu.Lock()
	opts := c.opts
	c.mu.Unlock()

	if opts != nil && opts.OnReconnecting != nil {
		opts.OnReconnecting(c, opts)
	}
}

// Deliver routes an inbound publish to the handler of the first matching
// subscription, or to the default publish handler. It reports whether any
// handler received the message.
func (c *Client) Deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	var handler pahomqtt.MessageHandler
	for filter, h := range c.handlers {
		if Match(filter, topic) {
			handler = h
			break
		}
	}
	if handler == nil && c.opts != nil {
		handler = c.opts.DefaultPublishHandler
	}
	c.mu.Unlock()

	if handler == nil {
		return false
	}
	handler(c, &Message{topic: topic, payload: payload})
	return true
}

// Published returns a copy of every recorded publish.
func (c *Client) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// PublishCount returns the number of publish calls.
func (c *Client) PublishCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

// Subscribed returns every topic passed to Subscribe, in call order.
func (c *Client) Subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscribed...)
}

// Unsubscribed returns every topic passed to Unsubscribe, in call order.
func (c *Client) Unsubscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.unsubscribe...)
}

// Connects returns the number of Connect calls.
func (c *Client) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// Disconnects returns the number of Disconnect calls.
func (c *Client) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// =============================================================================
// pahomqtt.Client
// =============================================================================

// IsConnected implements pahomqtt.Client.
func (c *Client) IsConnected() bool {
	return c.IsConnectionOpen()
}

// IsConnectionOpen implements pahomqtt.Client.
func (c *Client) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Connect implements pahomqtt.Client.
func (c *Client) Connect() pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connects++
	if c.holdConnect {
		return NewToken()
	}
	if c.connectErr != nil {
		return DoneToken(c.connectErr)
	}
	c.open = true
	return DoneToken(nil)
}

// Disconnect implements pahomqtt.Client.
func (c *Client) Disconnect(_ uint) {
	c.mu.Lock()
	c.open = false
	c.disconnects++
	c.mu.Unlock()
}

// Publish implements pahomqtt.Client.
func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = append([]byte(nil), p...)
	case string:
		body = []byte(p)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.published = append(c.published, Published{Topic: topic, QoS: qos, Retained: retained, Payload: body})
	if !c.open {
		return DoneToken(errors.New("not connected"))
	}
	if c.holdPublish {
		t := NewToken()
		c.held = append(c.held, t)
		return t
	}
	return DoneToken(c.publishErr)
}

// Retain stores payload as the retained message of topic. Like a broker,
// every later Subscribe whose filter matches topic receives it before
// Subscribe returns.
func (c *Client) Retain(topic string, payload []byte) {
	c.mu.Lock()
	c.retained[topic] = payload
	c.mu.Unlock()
}

// Subscribe implements pahomqtt.Client.
func (c *Client) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	c.subscribed = append(c.subscribed, topic)
	if callback != nil {
		c.handlers[topic] = callback
	}
	var matched []*Message
	for retainedTopic, payload := range c.retained {
		if Match(topic, retainedTopic) {
			matched = append(matched, &Message{topic: retainedTopic, payload: payload})
		}
	}
	c.mu.Unlock()

	if callback != nil {
		for _, msg := range matched {
			callback(c, msg)
		}
	}
	return DoneToken(nil)
}

// SubscribeMultiple implements pahomqtt.Client.
func (c *Client) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	for topic, qos := range filters {
		c.Subscribe(topic, qos, callback)
	}
	return DoneToken(nil)
}

// Unsubscribe implements pahomqtt.Client.
func (c *Client) Unsubscribe(topics ...string) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, topic := range topics {
		c.unsubscribe = append(c.unsubscribe, topic)
		delete(c.handlers, topic)
	}
	return DoneToken(nil)
}

// AddRoute implements pahomqtt.Client.
func (c *Client) AddRoute(topic string, callback pahomqtt.MessageHandler) {
	c.mu.Lock()
	c.handlers[topic] = callback
	c.mu.Unlock()
}

// OptionsReader implements pahomqtt.Client.
func (c *Client) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// =============================================================================
// Token and Message
// =============================================================================

// Token is a fake pahomqtt.Token completed by the test.
type Token struct {
	once sync.Once
	done chan struct{}
	mu   sync.Mutex
	err  error
}

// NewToken returns a pending token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// DoneToken returns a token already completed with err.
func DoneToken(err error) *Token {
	t := NewToken()
	t.Complete(err)
	return t
}

// Complete finishes the token. Later calls are ignored.
func (t *Token) Complete(err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.done)
	})
}

// Wait implements pahomqtt.Token.
func (t *Token) Wait() bool {
	<-t.done
	return true
}

// WaitTimeout implements pahomqtt.Token.
func (t *Token) WaitTimeout(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

// Done implements pahomqtt.Token.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Error implements pahomqtt.Token.
func (t *Token) Error() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Message is a fake pahomqtt.Message.
type Message struct {
	topic   string
	payload []byte
}

// NewMessage returns an inbound message.
func NewMessage(topic string, payload []byte) *Message {
	return &Message{topic: topic, payload: payload}
}

func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return 1 }
func (m *Message) Retained() bool    { return false }
func (m *Message) Topic() string     { return m.topic }
func (m *Message) MessageID() uint16 { return 0 }
func (m *Message) Payload() []byte   { return m.payload }
func (m *Message) Ack()              {}

// Match reports whether topic matches the MQTT filter, honouring + and #.
func Match(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}

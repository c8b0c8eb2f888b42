package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gpio-remote/internal/credentials"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/config"
)

// Session is one MQTT session against one broker deployment.
//
// A Session surfaces broker lifecycle as Events, routes every inbound publish
// through a single dispatch point, and replays tracked subscriptions on every
// connect.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Event and message handlers must not call Close.
type Session struct {
	client      pahomqtt.Client
	options     *pahomqtt.ClientOptions
	cfg         config.SessionConfig
	endpoint    string
	clientID    string
	statusTopic string

	// subscriptions tracks filters for replay on connect.
	subscriptions map[string]byte
	subMu         sync.RWMutex

	// connMu guards connected and closed. Publish holds the read lock across
	// the connected check and the enqueue.
	connected bool
	closed    bool
	connMu    sync.RWMutex

	// done is closed by Close and releases every waiter.
	done      chan struct{}
	closeOnce sync.Once

	eventHandlers   []EventHandler
	messageHandlers []MessageHandler
	handlerMu       sync.RWMutex

	// emitMu serialises event delivery so handlers observe transitions in order.
	emitMu sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex

	now func() time.Time

	factory ClientFactory
	noWill  bool
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

// ClientFactory builds the underlying paho client from prepared options.
type ClientFactory func(opts *pahomqtt.ClientOptions) pahomqtt.Client

// Option configures a Session.
type Option func(*Session)

// WithClientFactory replaces pahomqtt.NewClient. Tests use it to inject fakes.
func WithClientFactory(factory ClientFactory) Option {
	return func(s *Session) {
		s.factory = factory
	}
}

// WithoutLastWill connects without registering the device-offline will. An
// unclean drop of such a session leaves the device status topic untouched.
func WithoutLastWill() Option {
	return func(s *Session) {
		s.noWill = true
	}
}

// WithLogger sets the session logger.
func WithLogger(logger Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithClock sets the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// New prepares a session for creds without connecting.
//
// It fails with credentials.ErrConfiguration if any credential field is empty
// or the endpoint template has no {deployment} placeholder.
func New(creds credentials.Credentials, cfg config.SessionConfig, device config.DeviceConfig, opts ...Option) (*Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if !strings.Contains(cfg.EndpointTemplate, deploymentPlaceholder) {
		return nil, fmt.Errorf("%w: endpoint template %q has no %s placeholder",
			credentials.ErrConfiguration, cfg.EndpointTemplate, deploymentPlaceholder)
	}
	statusTopic := device.StatusTopicOrDefault()
	if statusTopic == "/status" {
		return nil, fmt.Errorf("%w: device id is required", credentials.ErrConfiguration)
	}

	s := &Session{
		cfg:           cfg,
		endpoint:      Endpoint(cfg.EndpointTemplate, creds.Deployment),
		clientID:      newClientID(cfg.ClientIDPrefix),
		statusTopic:   statusTopic,
		subscriptions: make(map[string]byte),
		done:          make(chan struct{}),
		now:           time.Now,
	}

	s.options = buildClientOptions(cfg, s.endpoint, s.clientID, creds)

	s.options.SetOnConnectHandler(func(_ pahomqtt.Client) {
		s.handleConnect()
	})
	s.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.handleConnectionLost(err)
	})
	s.options.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		s.handleReconnecting()
	})
	s.options.SetDefaultPublishHandler(s.handleMessage)

	for _, opt := range opts {
		opt(s)
	}
	if !s.noWill {
		configureLWT(s.options, statusTopic)
	}
	if s.factory != nil {
		s.client = s.factory(s.options)
	} else {
		s.client = pahomqtt.NewClient(s.options)
	}

	return s, nil
}

// Connect performs the initial connection attempt.
//
// The wait is bounded by ctx and the configured connect timeout. A refused,
// timed-out, or cancelled attempt emits EventError and returns an error
// wrapping ErrConnectionFailed. The handle is then unusable and should be closed.
func (s *Session) Connect(ctx context.Context) error {
	if s.isClosed() {
		return ErrDisconnected
	}

	s.emit(Event{Kind: EventConnecting})

	timeout := connectTimeout(s.cfg)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	token := s.client.Connect()

	var err error
	select {
	case <-token.Done():
		if tokenErr := token.Error(); tokenErr != nil {
			err = fmt.Errorf("%w: %w", ErrConnectionFailed, tokenErr)
		}
	case <-timer.C:
		err = fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, timeout)
	case <-ctx.Done():
		err = fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	case <-s.done:
		return ErrDisconnected
	}

	if err != nil {
		s.emit(Event{Kind: EventError, Err: err})
		return err
	}

	// The paho OnConnect callback runs asynchronously and may not have
	// executed yet. Whichever of the two arrives first reports the connect.
	s.handleConnect()
	return nil
}

// handleConnect marks the session connected, emits EventConnected and then
// replays subscriptions. A second call for the same connection is a no-op.
func (s *Session) handleConnect() {
	s.connMu.Lock()
	if s.closed || s.connected || !s.client.IsConnectionOpen() {
		s.connMu.Unlock()
		return
	}
	s.connected = true
	s.connMu.Unlock()

	// Handlers observe EventConnected before any replayed subscription delivers.
	s.emit(Event{Kind: EventConnected})
	s.restoreSubscriptions()
}

// handleConnectionLost is called by paho when an established connection drops.
func (s *Session) handleConnectionLost(err error) {
	s.connMu.Lock()
	if s.closed {
		s.connMu.Unlock()
		return
	}
	s.connected = false
	s.connMu.Unlock()

	if logger := s.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "endpoint", s.endpoint, "error", err)
	}

	s.emit(Event{Kind: EventConnectionLost, Err: err, Terminal: !s.cfg.AutoReconnect})
}

// handleReconnecting is called by paho before each reconnect attempt.
func (s *Session) handleReconnecting() {
	if s.isClosed() {
		return
	}
	s.emit(Event{Kind: EventReconnecting})
}

// handleMessage is the single dispatch point for inbound publishes.
func (s *Session) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	s.handlerMu.RLock()
	handlers := append([]MessageHandler(nil), s.messageHandlers...)
	s.handlerMu.RUnlock()

	topic, payload := msg.Topic(), msg.Payload()
	for _, h := range handlers {
		s.deliverMessage(h, topic, payload)
	}
}

func (s *Session) deliverMessage(h MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			if logger := s.getLogger(); logger != nil {
				logger.Error("MQTT handler panic recovered",
					"topic", topic,
					"panic", r,
				)
			}
		}
	}()
	h(topic, payload)
}

// emit stamps ev and delivers it to every event handler in registration order.
func (s *Session) emit(ev Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	if ev.At.IsZero() {
		ev.At = s.now()
	}

	s.handlerMu.RLock()
	handlers := append([]EventHandler(nil), s.eventHandlers...)
	s.handlerMu.RUnlock()

	for _, h := range handlers {
		s.deliverEvent(h, ev)
	}
}

func (s *Session) deliverEvent(h EventHandler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			if logger := s.getLogger(); logger != nil {
				logger.Error("MQTT event handler panic recovered",
					"event", ev.Kind.String(),
					"panic", r,
				)
			}
		}
	}()
	h(ev)
}

// OnEvent registers an event handler. Handlers are kept until Close.
func (s *Session) OnEvent(h EventHandler) {
	if h == nil {
		return
	}
	s.handlerMu.Lock()
	s.eventHandlers = append(s.eventHandlers, h)
	s.handlerMu.Unlock()
}

// OnMessage registers a message handler. Each inbound publish reaches each
// handler exactly once.
func (s *Session) OnMessage(h MessageHandler) {
	if h == nil {
		return
	}
	s.handlerMu.Lock()
	s.messageHandlers = append(s.messageHandlers, h)
	s.handlerMu.Unlock()
}

// Close disconnects and releases the session. It emits EventClosed, releases
// pending publish waiters with ErrDisconnected and drops all handlers.
// Calling Close more than once is safe.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.connMu.Lock()
		s.closed = true
		s.connected = false
		s.connMu.Unlock()

		close(s.done)

		if s.client != nil {
			s.client.Disconnect(defaultDisconnectQuiesce)
		}

		s.emit(Event{Kind: EventClosed})

		s.handlerMu.Lock()
		s.eventHandlers = nil
		s.messageHandlers = nil
		s.handlerMu.Unlock()
	})
	return nil
}

// HealthCheck reports ErrNotConnected unless the session is connected.
func (s *Session) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !s.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (s *Session) IsConnected() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.connected && !s.closed && s.client.IsConnectionOpen()
}

// ClientID returns the broker client identifier of this session.
func (s *Session) ClientID() string {
	return s.clientID
}

// Endpoint returns the broker URL of this session.
func (s *Session) Endpoint() string {
	return s.endpoint
}

// StatusTopic returns the device status topic used for the last will.
func (s *Session) StatusTopic() string {
	return s.statusTopic
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (s *Session) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Session) isClosed() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.closed
}

package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nerrad567/gpio-remote/internal/audit"
	"github.com/nerrad567/gpio-remote/internal/command"
	"github.com/nerrad567/gpio-remote/internal/connection"
	"github.com/nerrad567/gpio-remote/internal/credentials"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/config"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/mqtt"
	"github.com/nerrad567/gpio-remote/internal/liveness"
	"github.com/nerrad567/gpio-remote/internal/rules"
	"github.com/nerrad567/gpio-remote/internal/telemetry"
)

// Options configures a Client.
type Options struct {
	Session  config.SessionConfig
	Device   config.DeviceConfig
	Liveness config.LivenessConfig
	Topics   config.TopicsConfig

	// Sink receives one audit record per published command. Nil discards.
	Sink audit.Sink

	// Points receives telemetry points for inbound device messages. Nil
	// disables recording.
	Points telemetry.PointWriter

	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	// Clock drives liveness and timestamps. Default: liveness.SystemClock.
	Clock liveness.Clock

	// ClientFactory replaces the paho client constructor.
	ClientFactory mqtt.ClientFactory
}

// FromConfig copies the client sections of cfg into Options.
func FromConfig(cfg *config.Config) Options {
	return Options{
		Session:  cfg.Session,
		Device:   cfg.Device,
		Liveness: cfg.Liveness,
		Topics:   cfg.Topics,
	}
}

// DashboardHandler receives each parsed dashboard snapshot.
type DashboardHandler func(telemetry.Dashboard)

// Client is one connected GPIO remote.
type Client struct {
	session    *mqtt.Session
	monitor    *liveness.Monitor
	machine    *connection.Machine
	dispatcher *command.Dispatcher
	rules      *rules.Manager
	catalog    *rules.Catalog
	board      *telemetry.GPIOBoard
	recorder   *telemetry.Recorder
	logger     *slog.Logger

	dashboardTopic string

	mu        sync.RWMutex
	dashboard telemetry.Dashboard
	hasDash   bool

	dashHandlers []DashboardHandler
	msgHandlers  []mqtt.MessageHandler
	handlerMu    sync.RWMutex

	changedMu sync.Mutex
	changed   chan struct{}

	runCtx    context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closed    chan struct{}
}

// New builds a client for creds without connecting.
func New(creds credentials.Credentials, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := opts.Clock
	if clock == nil {
		clock = liveness.SystemClock{}
	}

	sessionOpts := []mqtt.Option{
		mqtt.WithLogger(logger),
		mqtt.WithClock(clock.Now),
	}
	if opts.ClientFactory != nil {
		sessionOpts = append(sessionOpts, mqtt.WithClientFactory(opts.ClientFactory))
	}
	session, err := mqtt.New(creds, opts.Session, opts.Device, sessionOpts...)
	if err != nil {
		return nil, err
	}

	monitor := liveness.NewMonitor(liveness.Config{
		StatusTopic:  session.StatusTopic(),
		Timeout:      opts.Liveness.Timeout,
		TickInterval: opts.Liveness.TickInterval,
		Clock:        clock,
	})
	machine := connection.NewMachine(monitor)

	c := &Client{
		session: session,
		monitor: monitor,
		machine: machine,
		dispatcher: command.NewDispatcher(session, machine, opts.Sink, command.Config{
			User:   creds.Identity,
			Device: opts.Device.ID,
			Clock:  clock.Now,
			Logger: logger,
		}),
		rules:          rules.NewManager(session, machine, opts.Topics.RuleManage),
		catalog:        rules.NewCatalog(opts.Topics.RuleList, logger),
		board:          telemetry.NewGPIOBoard(opts.Device.ID, opts.Device.Pins),
		logger:         logger,
		dashboardTopic: opts.Topics.Dashboard,
		changed:        make(chan struct{}),
		closed:         make(chan struct{}),
	}
	c.runCtx, c.cancel = context.WithCancel(context.Background())
	if opts.Points != nil {
		c.recorder = telemetry.NewRecorder(opts.Points, logger)
	}

	machine.OnChange(c.statusChanged)
	session.OnEvent(c.logEvent)
	session.OnEvent(machine.HandleEvent)
	session.OnMessage(c.route)

	topics := mqtt.Topics{Device: opts.Device.ID}
	for _, topic := range []string{
		session.StatusTopic(),
		topics.AllGPIOStates(),
		opts.Topics.Dashboard,
		opts.Topics.RuleList,
	} {
		if topic != "" {
			session.Subscribe(topic)
		}
	}
	if opts.Points != nil {
		session.Subscribe(topics.AllSensors())
	}

	return c, nil
}

// Open builds a client, connects it and requests the rule list.
//
// A failed connect leaves nothing running and the error is returned.
func Open(ctx context.Context, creds credentials.Credentials, opts Options) (*Client, error) {
	c, err := New(creds, opts)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	if c.catalog.Topic() != "" {
		if err := c.rules.RequestList(ctx); err != nil {
			c.logger.Warn("rule list request failed", "error", err)
		}
	}
	return c, nil
}

// Connect opens the session and starts the liveness monitor.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	if err := c.session.Connect(ctx); err != nil {
		return err
	}

	c.monitor.Start(c.runCtx)
	return nil
}

// Close stops the monitor and closes the session. It is idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.session.Close()
		c.monitor.Stop()
		c.cancel()
	})
	return err
}

// route is the single inbound dispatch point.
func (c *Client) route(topic string, payload []byte) {
	c.monitor.Observe(topic, payload)
	c.board.HandleMessage(topic, payload)
	c.catalog.HandleMessage(topic, payload)

	if topic == c.dashboardTopic {
		c.handleDashboard(payload)
	}
	if c.recorder != nil {
		c.recorder.HandleMessage(topic, payload)
	}

	c.handlerMu.RLock()
	handlers := append([]mqtt.MessageHandler(nil), c.msgHandlers...)
	c.handlerMu.RUnlock()
	for _, h := range handlers {
		h(topic, payload)
	}
}

func (c *Client) handleDashboard(payload []byte) {
	d, err := telemetry.ParseDashboard(payload)
	if err != nil {
		c.logger.Warn("ignoring malformed dashboard", "error", err)
		return
	}

	c.mu.Lock()
	c.dashboard = d
	c.hasDash = true
	c.mu.Unlock()

	c.handlerMu.RLock()
	handlers := append([]DashboardHandler(nil), c.dashHandlers...)
	c.handlerMu.RUnlock()
	for _, h := range handlers {
		h(d)
	}
}

func (c *Client) logEvent(ev mqtt.Event) {
	switch ev.Kind {
	case mqtt.EventConnected:
		c.logger.Info("connected", "client_id", c.session.ClientID())
	case mqtt.EventConnectionLost, mqtt.EventError:
		c.logger.Warn("connection event", "event", ev.Kind.String(), "error", ev.Err)
	case mqtt.EventReconnecting:
		c.logger.Info("reconnecting")
	}
}

// statusChanged wakes WaitAllowed callers.
func (c *Client) statusChanged(connection.Status) {
	c.changedMu.Lock()
	close(c.changed)
	c.changed = make(chan struct{})
	c.changedMu.Unlock()
}

// Dispatch publishes payload to topic through the command gate.
func (c *Client) Dispatch(ctx context.Context, topic, payload string) (command.Ack, error) {
	return c.dispatcher.Dispatch(ctx, topic, payload)
}

// SetGPIO switches a device pin.
func (c *Client) SetGPIO(ctx context.Context, pin int, on bool) (command.Ack, error) {
	return c.dispatcher.SetGPIO(ctx, pin, on)
}

// Status returns the presented connection status.
func (c *Client) Status() connection.Status {
	return c.machine.Status()
}

// OnStatus registers a handler for presented status changes.
func (c *Client) OnStatus(h connection.StatusHandler) {
	c.machine.OnChange(h)
}

// WaitAllowed blocks until commands are allowed, the connection ends or ctx
// is done.
func (c *Client) WaitAllowed(ctx context.Context) (connection.Status, error) {
	for {
		c.changedMu.Lock()
		ch := c.changed
		c.changedMu.Unlock()

		st := c.Status()
		if st.CommandsAllowed {
			return st, nil
		}
		if st.State.Terminal() {
			return st, fmt.Errorf("%w: %s", ErrTerminal, st.State)
		}

		select {
		case <-ch:
		case <-c.closed:
			return c.Status(), ErrClosed
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

// OnMessage registers a handler called for every inbound message after the
// client's own consumers.
func (c *Client) OnMessage(h mqtt.MessageHandler) {
	if h == nil {
		return
	}
	c.handlerMu.Lock()
	c.msgHandlers = append(c.msgHandlers, h)
	c.handlerMu.Unlock()
}

// OnDashboard registers a handler for each parsed dashboard snapshot.
func (c *Client) OnDashboard(h DashboardHandler) {
	if h == nil {
		return
	}
	c.handlerMu.Lock()
	c.dashHandlers = append(c.dashHandlers, h)
	c.handlerMu.Unlock()
}

// Dashboard returns the latest dashboard snapshot.
func (c *Client) Dashboard() (telemetry.Dashboard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dashboard, c.hasDash
}

// Rules returns the rule manager.
func (c *Client) Rules() *rules.Manager { return c.rules }

// Catalog returns the rule-list snapshot.
func (c *Client) Catalog() *rules.Catalog { return c.catalog }

// Board returns the GPIO pin view.
func (c *Client) Board() *telemetry.GPIOBoard { return c.board }

// Session returns the underlying MQTT session.
func (c *Client) Session() *mqtt.Session { return c.session }

// HealthCheck verifies the session is connected.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.session.HealthCheck(ctx)
}

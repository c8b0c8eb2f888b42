package liveness

import (
	"context"
	"sync"
	"time"
)

// Default timing.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultTickInterval = 5 * time.Second
)

// Config configures a Monitor.
type Config struct {
	// StatusTopic is the device status topic. Messages on other topics are ignored.
	StatusTopic string

	// Timeout is how long a heartbeat keeps the device Reachable.
	// Default: 10 seconds.
	Timeout time.Duration

	// TickInterval is the period of the timeout evaluation.
	// Default: 5 seconds.
	TickInterval time.Duration

	// Clock stamps heartbeats and ticks. Default: SystemClock.
	Clock Clock
}

// ChangeHandler receives the snapshot after each state change.
type ChangeHandler func(Snapshot)

// Monitor derives device liveness from status messages and a periodic tick.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Change handlers run synchronously, in order, and may call Snapshot but
//     must not feed inputs back into the Monitor.
type Monitor struct {
	statusTopic string
	timeout     time.Duration
	interval    time.Duration
	clock       Clock

	// mu guards snap, the one value shared by the message and tick paths.
	snap Snapshot
	mu   sync.Mutex

	// applyMu serialises reduce-and-notify so handlers see changes in order.
	applyMu sync.Mutex

	handlers  []ChangeHandler
	handlerMu sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  bool
	startMu  sync.Mutex
}

// NewMonitor creates a monitor in the Unknown state.
func NewMonitor(cfg Config) *Monitor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	return &Monitor{
		statusTopic: cfg.StatusTopic,
		timeout:     timeout,
		interval:    interval,
		clock:       clock,
		done:        make(chan struct{}),
	}
}

// Observe feeds an inbound message. It has the mqtt.MessageHandler signature.
func (m *Monitor) Observe(topic string, payload []byte) {
	if topic != m.statusTopic {
		return
	}
	kind, ok := Classify(payload)
	if !ok {
		return
	}
	m.apply(kind)
}

// Tick evaluates the timeout now.
func (m *Monitor) Tick() {
	m.apply(Tick)
}

// Suspend forces Unknown while the session is reconnecting.
func (m *Monitor) Suspend() {
	m.apply(Suspend)
}

// Resume re-enables message and tick evaluation.
func (m *Monitor) Resume() {
	m.apply(Resume)
}

// Snapshot returns the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// State returns the current state value.
func (m *Monitor) State() State {
	return m.Snapshot().State
}

// Timeout returns the heartbeat timeout in effect.
func (m *Monitor) Timeout() time.Duration {
	return m.timeout
}

// OnChange registers a handler fired only when State changes.
func (m *Monitor) OnChange(h ChangeHandler) {
	if h == nil {
		return
	}
	m.handlerMu.Lock()
	m.handlers = append(m.handlers, h)
	m.handlerMu.Unlock()
}

func (m *Monitor) apply(kind InputKind) {
	m.applyMu.Lock()
	defer m.applyMu.Unlock()

	m.mu.Lock()
	prev := m.snap
	next := Reduce(prev, Input{Kind: kind, At: m.clock.Now()}, m.timeout)
	m.snap = next
	m.mu.Unlock()

	if next.State == prev.State {
		return
	}

	m.handlerMu.RLock()
	handlers := append([]ChangeHandler(nil), m.handlers...)
	m.handlerMu.RUnlock()

	for _, h := range handlers {
		h(next)
	}
}

// Start begins the periodic tick until ctx is done or Stop is called.
// Calling Start more than once has no further effect.
func (m *Monitor) Start(ctx context.Context) {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.started {
		return
	}
	m.started = true

	m.wg.Add(1)
	go m.tickLoop(ctx)
}

// Stop ends the tick loop and waits for it to exit.
// Safe to call multiple times (uses sync.Once).
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
	})
}

func (m *Monitor) tickLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

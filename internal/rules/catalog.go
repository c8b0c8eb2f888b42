package rules

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// ChangeHandler receives each new rule snapshot.
type ChangeHandler func([]Rule)

// Catalog holds the latest rule list published by the backend.
type Catalog struct {
	topic  string
	logger *slog.Logger

	mu     sync.RWMutex
	rules  []Rule
	loaded bool

	ready     chan struct{}
	readyOnce sync.Once

	handlers  []ChangeHandler
	handlerMu sync.RWMutex
}

// NewCatalog returns an empty catalog fed by messages on topic.
func NewCatalog(topic string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{
		topic:  topic,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Topic returns the rule-list topic.
func (c *Catalog) Topic() string { return c.topic }

// HandleMessage replaces the snapshot when topic is the rule-list topic.
// Malformed payloads are logged and leave the previous snapshot in place.
func (c *Catalog) HandleMessage(topic string, payload []byte) {
	if topic != c.topic {
		return
	}

	var rules []Rule
	if err := json.Unmarshal(payload, &rules); err != nil {
		c.logger.Warn("ignoring malformed rule list", "topic", topic, "error", err)
		return
	}
	if rules == nil {
		rules = []Rule{}
	}

	c.mu.Lock()
	c.rules = rules
	c.loaded = true
	c.mu.Unlock()

	c.readyOnce.Do(func() { close(c.ready) })

	c.handlerMu.RLock()
	handlers := append([]ChangeHandler(nil), c.handlers...)
	c.handlerMu.RUnlock()
	for _, h := range handlers {
		h(c.Rules())
	}
}

// Rules returns a copy of the current snapshot. Nil until the first list
// arrives.
func (c *Catalog) Rules() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil
	}
	return append([]Rule{}, c.rules...)
}

// Loaded reports whether a snapshot has been received.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// OnChange registers a handler for new snapshots.
func (c *Catalog) OnChange(h ChangeHandler) {
	c.handlerMu.Lock()
	c.handlers = append(c.handlers, h)
	c.handlerMu.Unlock()
}

// Wait blocks until the first snapshot arrives or ctx is done.
func (c *Catalog) Wait(ctx context.Context) ([]Rule, error) {
	select {
	case <-c.ready:
		return c.Rules(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

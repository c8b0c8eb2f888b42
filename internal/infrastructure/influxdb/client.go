package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gpio-remote/internal/infrastructure/config"
)

const (
	pingTimeout        = 5 * time.Second
	defaultBatchSize   = 100
	defaultFlushPeriod = 10 * time.Second
)

// DeviceTag is the tag every stored telemetry point carries.
const DeviceTag = "device_id"

// Option configures a Client.
type Option func(*Client)

// WithDefaultDevice tags points written without a device_id tag with id.
func WithDefaultDevice(id string) Option {
	return func(c *Client) { c.defaultDevice = id }
}

// Stats counts what happened to the points handed to WritePointAt.
type Stats struct {
	Queued  int64
	Dropped int64
	Failed  int64
}

// Client queues device telemetry into one InfluxDB v2 bucket.
//
// Writes never block: points are batched by the library and batch failures
// arrive through the SetOnError callback. Safe for concurrent use.
type Client struct {
	client        influxdb2.Client
	writeAPI      api.WriteAPI
	bucket        string
	defaultDevice string

	mu      sync.RWMutex
	open    bool
	onError func(err error)

	queued  atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// Connect pings the server with the configured token and opens the batched
// write API for cfg.Org and cfg.Bucket. It returns ErrDisabled when
// cfg.Enabled is false.
func Connect(cfg config.InfluxDBConfig, opts ...Option) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize) // #nosec G115 -- checked positive
	}
	flush := defaultFlushPeriod
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batch).
			SetFlushInterval(uint(flush.Milliseconds()))) // #nosec G115 -- positive

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	switch {
	case err != nil:
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnectionFailed, cfg.URL, err)
	case !healthy:
		client.Close()
		return nil, fmt.Errorf("%w: %s is not healthy", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
		open:     true,
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.watchErrors(c.writeAPI.Errors())
	return c, nil
}

func (c *Client) watchErrors(errs <-chan error) {
	for err := range errs {
		c.failed.Add(1)

		c.mu.RLock()
		cb := c.onError
		c.mu.RUnlock()
		if cb != nil {
			cb(fmt.Errorf("%w: bucket %s: %w", ErrWriteFailed, c.bucket, err))
		}
	}
}

// SetOnError sets the callback for failed batches. Its errors wrap
// ErrWriteFailed.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// Stats returns the write counters.
func (c *Client) Stats() Stats {
	return Stats{
		Queued:  c.queued.Load(),
		Dropped: c.dropped.Load(),
		Failed:  c.failed.Load(),
	}
}

// IsConnected reports whether Close has not yet been called.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	healthy, err := c.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check: server not healthy")
	}
	return nil
}

// Flush sends buffered points now. No-op after Close.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writeAPI.Flush()
	}
}

// Close sends buffered points and releases the client. Safe on nil and
// safe to call twice.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	c.mu.Lock()
	wasOpen := c.open
	c.open = false
	c.mu.Unlock()

	if wasOpen {
		c.writeAPI.Flush()
		c.client.Close()
	}
	return nil
}

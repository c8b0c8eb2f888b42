package influxdb_test

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gpio-remote/internal/infrastructure/config"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records /api/v2/write bodies.
type fakeInflux struct {
	*httptest.Server

	mu      sync.Mutex
	writes  []string
	queries []string
	status  int
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{status: http.StatusNoContent}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body) //nolint:errcheck // Test server
			f.mu.Lock()
			f.writes = append(f.writes, string(body))
			f.queries = append(f.queries, r.URL.RawQuery)
			status := f.status
			f.mu.Unlock()
			if status != http.StatusNoContent {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"code":"invalid","message":"bad point"}`))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func (f *fakeInflux) setStatus(status int) {
	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
}

// waitForBody polls until the recorded writes contain want.
func (f *fakeInflux) waitForBody(want string) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(f.body(), want) {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func (f *fakeInflux) query() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return ""
	}
	return f.queries[0]
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "gpioremote",
		Bucket:        "sensors",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	srv := newFakeInflux(t)

	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := influxdb.Connect(testConfig(url))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	srv := newFakeInflux(t)
	cfg := testConfig(srv.URL)
	cfg.BatchSize = 0
	cfg.FlushInterval = -1

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false with default batch settings")
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWritePointAt(t *testing.T) {
	srv := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	ts := time.Unix(1767225600, 0)
	client.WritePointAt("dht11",
		map[string]string{"device_id": "esp32_02"},
		map[string]any{"temperature": 21.5},
		ts)
	client.Flush()

	want := "dht11,device_id=esp32_02 temperature=21.5 1767225600000000000"
	if !srv.waitForBody(want) {
		t.Errorf("write body = %q, want containing %q", srv.body(), want)
	}
	if q := srv.query(); !strings.Contains(q, "bucket=sensors") || !strings.Contains(q, "org=gpioremote") {
		t.Errorf("write query = %q, want org and bucket", q)
	}
}

func TestWritePointAt_EmptyFieldsSkipped(t *testing.T) {
	srv := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WritePointAt("dht11", map[string]string{"device_id": "esp32_02"}, nil, time.Now())
	client.Flush()

	if body := srv.body(); body != "" {
		t.Errorf("write body = %q, want nothing written", body)
	}
}

func TestWriteErrorCallback(t *testing.T) {
	srv := newFakeInflux(t)
	srv.setStatus(http.StatusBadRequest)

	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	errs := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	client.WritePointAt("ldr", map[string]string{"device_id": "esp32_02"}, map[string]any{"ldr_raw": 812}, time.Now())
	client.Flush()

	select {
	case err := <-errs:
		if !errors.Is(err, influxdb.ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
		if got := client.Stats().Failed; got < 1 {
			t.Errorf("Stats().Failed = %d, want at least 1", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write error callback not invoked")
	}
}

func TestWritePointAt_DefaultDevice(t *testing.T) {
	srv := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(srv.URL), influxdb.WithDefaultDevice("esp32_02"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	tags := map[string]string{"pin": "gpio2"}
	client.WritePointAt("gpio_state", tags, map[string]any{"state": "ON"}, time.Unix(1767225600, 0))
	client.Flush()

	want := `gpio_state,device_id=esp32_02,pin=gpio2 state="ON" 1767225600000000000`
	if !srv.waitForBody(want) {
		t.Errorf("write body = %q, want containing %q", srv.body(), want)
	}
	if _, ok := tags[influxdb.DeviceTag]; ok {
		t.Error("WritePointAt() modified the caller's tags")
	}
}

func TestWritePointAt_MissingDeviceDropped(t *testing.T) {
	srv := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WritePointAt("ldr", nil, map[string]any{"ldr_raw": 812}, time.Now())
	client.Flush()

	if body := srv.body(); body != "" {
		t.Errorf("write body = %q, want nothing written", body)
	}
	if got := client.Stats(); got.Dropped != 1 || got.Queued != 0 {
		t.Errorf("Stats() = %+v, want 1 dropped", got)
	}
}

func TestWritePointAt_NonFiniteFieldsRemoved(t *testing.T) {
	srv := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	tags := map[string]string{"device_id": "esp32_02"}
	client.WritePointAt("bmp280", tags, map[string]any{"temperature": math.NaN(), "pressure": 1009.5}, time.Unix(1767225600, 0))
	client.WritePointAt("bmp280", tags, map[string]any{"temperature": math.Inf(1)}, time.Unix(1767225601, 0))
	client.Flush()

	want := "bmp280,device_id=esp32_02 pressure=1009.5 1767225600000000000"
	if !srv.waitForBody(want) {
		t.Errorf("write body = %q, want containing %q", srv.body(), want)
	}
	if strings.Contains(srv.body(), "temperature") {
		t.Errorf("write body = %q, want non-finite temperature removed", srv.body())
	}
	if got := client.Stats(); got.Queued != 1 || got.Dropped != 1 {
		t.Errorf("Stats() = %+v, want 1 queued and 1 dropped", got)
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestClose(t *testing.T) {
	srv := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.WritePointAt("mq135", map[string]string{"device_id": "esp32_02"}, map[string]any{"ppm": 412.0}, time.Now())
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if !srv.waitForBody("mq135,device_id=esp32_02 ppm=412") {
		t.Errorf("pending write not flushed on Close(), body = %q", srv.body())
	}

	// Writes after close are dropped.
	client.WritePointAt("mq135", nil, map[string]any{"ppm": 1.0}, time.Now())
	client.Flush()
	if got := client.Stats(); got.Queued != 1 || got.Dropped != 1 {
		t.Errorf("Stats() after Close() = %+v, want 1 queued and 1 dropped", got)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close() = %v, want ErrNotConnected", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client = %v, want nil", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() on nil client = true")
	}
}

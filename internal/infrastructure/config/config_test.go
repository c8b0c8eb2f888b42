package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
session:
  connect_timeout: 2s
  client_id_prefix: "cli_"
device:
  id: "esp32_07"
  pins: [2, 4]
liveness:
  timeout: 20s
  tick_interval: 2s
database:
  driver: "sqlite3"
  path: "/tmp/test.db"
api:
  port: 9090
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.ID != "esp32_07" {
		t.Errorf("Device.ID = %q, want %q", cfg.Device.ID, "esp32_07")
	}
	if cfg.Session.ConnectTimeout != 2*time.Second {
		t.Errorf("Session.ConnectTimeout = %v, want 2s", cfg.Session.ConnectTimeout)
	}
	if cfg.Session.ClientIDPrefix != "cli_" {
		t.Errorf("Session.ClientIDPrefix = %q, want %q", cfg.Session.ClientIDPrefix, "cli_")
	}
	if cfg.Liveness.Timeout != 20*time.Second {
		t.Errorf("Liveness.Timeout = %v, want 20s", cfg.Liveness.Timeout)
	}
	if len(cfg.Device.Pins) != 2 || cfg.Device.Pins[1] != 4 {
		t.Errorf("Device.Pins = %v, want [2 4]", cfg.Device.Pins)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}

	// Untouched sections keep their defaults.
	if cfg.Topics.RuleList != "sistema/regras/lista" {
		t.Errorf("Topics.RuleList = %q, want default", cfg.Topics.RuleList)
	}
	if cfg.Session.PublishTimeout != 5*time.Second {
		t.Errorf("Session.PublishTimeout = %v, want 5s", cfg.Session.PublishTimeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
device:
  id: ""
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty device.id, got nil")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	t.Setenv("GPIOREMOTE_DEVICE_ID", "esp32_09")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Device.ID != "esp32_09" {
		t.Errorf("Device.ID = %q, want %q", cfg.Device.ID, "esp32_09")
	}
}

func TestLoadOrDefault_InvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if _, err := LoadOrDefault(configPath); err == nil {
		t.Error("LoadOrDefault() expected error for invalid YAML, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}, wantErr: false},
		{name: "missing deployment placeholder", mutate: func(c *Config) { c.Session.EndpointTemplate = "wss://broker:8084/mqtt" }, wantErr: true},
		{name: "zero connect timeout", mutate: func(c *Config) { c.Session.ConnectTimeout = 0 }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.Session.QoS = 3 }, wantErr: true},
		{name: "missing device ID", mutate: func(c *Config) { c.Device.ID = "" }, wantErr: true},
		{name: "zero liveness timeout", mutate: func(c *Config) { c.Liveness.Timeout = 0 }, wantErr: true},
		{name: "zero tick interval", mutate: func(c *Config) { c.Liveness.TickInterval = 0 }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: true},
		{name: "postgres without DSN", mutate: func(c *Config) { c.Database.Driver = "postgres" }, wantErr: true},
		{
			name: "postgres with DSN",
			mutate: func(c *Config) {
				c.Database.Driver = "postgres"
				c.Database.DSN = "postgres://localhost/logs?sslmode=disable"
			},
			wantErr: false,
		},
		{name: "unknown sink", mutate: func(c *Config) { c.Audit.Sink = "kafka" }, wantErr: true},
		{name: "nats sink without subject", mutate: func(c *Config) { c.Audit.Sink = "nats"; c.Audit.NATS.Subject = "" }, wantErr: true},
		{name: "zero buffer", mutate: func(c *Config) { c.Audit.BufferSize = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GPIOREMOTE_DEVICE_ID", "esp32_99")
	t.Setenv("GPIOREMOTE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GPIOREMOTE_API_PORT", "9191")
	t.Setenv("GPIOREMOTE_API_BACKEND_URL", "http://backend:8080")
	t.Setenv("GPIOREMOTE_LISTENER_PASSWORD", "listener-secret")
	t.Setenv("GPIOREMOTE_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Device.ID != "esp32_99" {
		t.Errorf("Device.ID = %q, want %q", cfg.Device.ID, "esp32_99")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.API.Port != 9191 {
		t.Errorf("API.Port = %d, want 9191", cfg.API.Port)
	}
	if cfg.API.BackendURL != "http://backend:8080" {
		t.Errorf("API.BackendURL = %q, want %q", cfg.API.BackendURL, "http://backend:8080")
	}
	if cfg.Listener.Password != "listener-secret" {
		t.Errorf("Listener.Password = %q, want %q", cfg.Listener.Password, "listener-secret")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyEnvOverrides_BadPortIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("GPIOREMOTE_API_PORT", "not-a-number")

	applyEnvOverrides(cfg)

	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want 8080", cfg.API.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Session.ConnectTimeout != 4*time.Second {
		t.Errorf("defaultConfig Session.ConnectTimeout = %v, want 4s", cfg.Session.ConnectTimeout)
	}
	if cfg.Liveness.Timeout != 10*time.Second {
		t.Errorf("defaultConfig Liveness.Timeout = %v, want 10s", cfg.Liveness.Timeout)
	}
	if cfg.Liveness.TickInterval != 5*time.Second {
		t.Errorf("defaultConfig Liveness.TickInterval = %v, want 5s", cfg.Liveness.TickInterval)
	}
	if cfg.Session.QoS != 1 {
		t.Errorf("defaultConfig Session.QoS = %d, want 1", cfg.Session.QoS)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig Validate() error = %v", err)
	}
}

func TestDeviceConfig_StatusTopicOrDefault(t *testing.T) {
	if got := (DeviceConfig{ID: "esp32_02"}).StatusTopicOrDefault(); got != "esp32_02/status" {
		t.Errorf("StatusTopicOrDefault() = %q, want %q", got, "esp32_02/status")
	}
	if got := (DeviceConfig{ID: "esp32_02", StatusTopic: "lab/status"}).StatusTopicOrDefault(); got != "lab/status" {
		t.Errorf("StatusTopicOrDefault() = %q, want %q", got, "lab/status")
	}
}

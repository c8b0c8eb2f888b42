package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for gpioremote.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Session     SessionConfig     `yaml:"session"`
	Device      DeviceConfig      `yaml:"device"`
	Liveness    LivenessConfig    `yaml:"liveness"`
	Topics      TopicsConfig      `yaml:"topics"`
	Credentials CredentialsConfig `yaml:"credentials"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Database    DatabaseConfig    `yaml:"database"`
	Audit       AuditConfig       `yaml:"audit"`
	Listener    ListenerConfig    `yaml:"listener"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// SessionConfig contains MQTT session settings shared by every client session.
type SessionConfig struct {
	// EndpointTemplate is the broker URL with a {deployment} placeholder.
	EndpointTemplate string `yaml:"endpoint_template"`

	// ClientIDPrefix is prepended to a random 8 hex character suffix.
	ClientIDPrefix string `yaml:"client_id_prefix"`

	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	PublishTimeout       time.Duration `yaml:"publish_timeout"`
	KeepAlive            time.Duration `yaml:"keep_alive"`
	AutoReconnect        bool          `yaml:"auto_reconnect"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`

	// QoS is used for application publishes and subscriptions.
	QoS int `yaml:"qos"`
}

// DeviceConfig identifies the remote microcontroller.
type DeviceConfig struct {
	ID string `yaml:"id"`

	// StatusTopic defaults to "<id>/status" when empty.
	StatusTopic string `yaml:"status_topic"`

	// Pins lists the GPIO pins whose state reports are tracked.
	Pins []int `yaml:"pins"`
}

// StatusTopicOrDefault returns the configured status topic or "<id>/status".
func (d DeviceConfig) StatusTopicOrDefault() string {
	if d.StatusTopic != "" {
		return d.StatusTopic
	}
	return d.ID + "/status"
}

// LivenessConfig contains device heartbeat tracking settings.
type LivenessConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	TickInterval time.Duration `yaml:"tick_interval"`
}

// TopicsConfig names the backend-owned topics.
type TopicsConfig struct {
	RuleManage string `yaml:"rule_manage"`
	RuleList   string `yaml:"rule_list"`
	Dashboard  string `yaml:"dashboard"`
}

// CredentialsConfig controls the local credential cache.
type CredentialsConfig struct {
	// CachePath defaults to <user config dir>/gpioremote/session_token when empty.
	CachePath string `yaml:"cache_path"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// BackendURL is where clients send audit records and read the log history.
	BackendURL string `yaml:"backend_url"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket status stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// DatabaseConfig contains audit store settings.
type DatabaseConfig struct {
	// Driver is "sqlite3" or "postgres".
	Driver string `yaml:"driver"`

	// Path is the SQLite database file.
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// DSN is the Postgres connection string.
	DSN string `yaml:"dsn"`
}

// AuditConfig selects where dispatched commands are recorded.
type AuditConfig struct {
	// Sink is one of "http", "database", "nats" or "none".
	Sink       string     `yaml:"sink"`
	BufferSize int        `yaml:"buffer_size"`
	NATS       NATSConfig `yaml:"nats"`
}

// NATSConfig contains NATS connection settings for audit fan-out.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// ListenerConfig configures the backend MQTT listener run by "serve".
type ListenerConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Topics     []string `yaml:"topics"`
	User       string   `yaml:"user"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	Deployment string   `yaml:"deployment"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GPIOREMOTE_SECTION_KEY
// For example: GPIOREMOTE_DEVICE_ID, GPIOREMOTE_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to defaults (plus environment
// overrides) when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg = defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			EndpointTemplate:     "wss://{deployment}.ala.us-east-1.emqxsl.com:8084/mqtt",
			ClientIDPrefix:       "web_client_",
			ConnectTimeout:       4 * time.Second,
			PublishTimeout:       5 * time.Second,
			KeepAlive:            60 * time.Second,
			AutoReconnect:        true,
			MaxReconnectInterval: 30 * time.Second,
			QoS:                  1,
		},
		Device: DeviceConfig{
			ID:   "esp32_02",
			Pins: []int{2},
		},
		Liveness: LivenessConfig{
			Timeout:      10 * time.Second,
			TickInterval: 5 * time.Second,
		},
		Topics: TopicsConfig{
			RuleManage: "sistema/regras/gerenciar",
			RuleList:   "sistema/regras/lista",
			Dashboard:  "sistema/dashboard/status",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type"},
			},
			BackendURL: "http://localhost:8080",
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Database: DatabaseConfig{
			Driver:      "sqlite3",
			Path:        "./data/gpioremote.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Audit: AuditConfig{
			Sink:       "http",
			BufferSize: 64,
			NATS: NATSConfig{
				URL:     "nats://127.0.0.1:4222",
				Subject: "gpioremote.audit",
			},
		},
		Listener: ListenerConfig{
			Topics: []string{"esp32_02/#", "sistema/#"},
			User:   "backend-listener",
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "sensors",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GPIOREMOTE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Session
	if v := os.Getenv("GPIOREMOTE_SESSION_ENDPOINT_TEMPLATE"); v != "" {
		cfg.Session.EndpointTemplate = v
	}

	// Device
	if v := os.Getenv("GPIOREMOTE_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	// Credentials
	if v := os.Getenv("GPIOREMOTE_CREDENTIALS_CACHE_PATH"); v != "" {
		cfg.Credentials.CachePath = v
	}

	// API
	if v := os.Getenv("GPIOREMOTE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GPIOREMOTE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("GPIOREMOTE_API_BACKEND_URL"); v != "" {
		cfg.API.BackendURL = v
	}

	// Database
	if v := os.Getenv("GPIOREMOTE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("GPIOREMOTE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GPIOREMOTE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Audit
	if v := os.Getenv("GPIOREMOTE_AUDIT_SINK"); v != "" {
		cfg.Audit.Sink = v
	}
	if v := os.Getenv("GPIOREMOTE_AUDIT_NATS_URL"); v != "" {
		cfg.Audit.NATS.URL = v
	}

	// Listener broker credentials
	if v := os.Getenv("GPIOREMOTE_LISTENER_USERNAME"); v != "" {
		cfg.Listener.Username = v
	}
	if v := os.Getenv("GPIOREMOTE_LISTENER_PASSWORD"); v != "" {
		cfg.Listener.Password = v
	}
	if v := os.Getenv("GPIOREMOTE_LISTENER_DEPLOYMENT"); v != "" {
		cfg.Listener.Deployment = v
	}

	// InfluxDB
	if v := os.Getenv("GPIOREMOTE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("GPIOREMOTE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Session validation
	if !strings.Contains(c.Session.EndpointTemplate, "{deployment}") {
		errs = append(errs, "session.endpoint_template must contain {deployment}")
	}
	if c.Session.ConnectTimeout <= 0 {
		errs = append(errs, "session.connect_timeout must be positive")
	}
	if c.Session.PublishTimeout <= 0 {
		errs = append(errs, "session.publish_timeout must be positive")
	}
	if c.Session.QoS < 0 || c.Session.QoS > 2 {
		errs = append(errs, "session.qos must be 0, 1, or 2")
	}

	// Device validation
	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	// Liveness validation
	if c.Liveness.Timeout <= 0 {
		errs = append(errs, "liveness.timeout must be positive")
	}
	if c.Liveness.TickInterval <= 0 {
		errs = append(errs, "liveness.tick_interval must be positive")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Database validation
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite3")
		}
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for postgres")
		}
	default:
		errs = append(errs, "database.driver must be sqlite3 or postgres")
	}

	// Audit validation
	switch c.Audit.Sink {
	case "http", "database", "none":
	case "nats":
		if c.Audit.NATS.URL == "" || c.Audit.NATS.Subject == "" {
			errs = append(errs, "audit.nats.url and audit.nats.subject are required for the nats sink")
		}
	default:
		errs = append(errs, "audit.sink must be http, database, nats or none")
	}
	if c.Audit.BufferSize < 1 {
		errs = append(errs, "audit.buffer_size must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// ListenAddr returns the API listen address in host:port form.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

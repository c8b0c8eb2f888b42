package mqtt

import (
	"crypto/tls"
	"net/url"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/gpio-remote/internal/credentials"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout applies when the config leaves it unset.
	defaultConnectTimeout = 4 * time.Second

	// defaultPublishTimeout applies when the config leaves it unset.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12

	// deploymentPlaceholder is substituted in the endpoint template.
	deploymentPlaceholder = "{deployment}"

	// clientIDSuffixLen is the number of random hex characters in a client ID.
	clientIDSuffixLen = 8

	// offlinePayload is the last-will payload announced on abrupt session loss.
	offlinePayload = "offline"
)

// Endpoint substitutes the deployment into template.
//
// Example:
//
//	Endpoint("wss://{deployment}.emqxsl.com:8084/mqtt", "k1d2") // "wss://k1d2.emqxsl.com:8084/mqtt"
func Endpoint(template, deployment string) string {
	return strings.ReplaceAll(template, deploymentPlaceholder, deployment)
}

// newClientID returns prefix followed by 8 random hex characters.
func newClientID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + id[:clientIDSuffixLen]
}

// buildClientOptions creates paho MQTT options for one session.
//
// This configures:
//   - Broker URL from the endpoint template
//   - Client ID for identification
//   - Username/password from the credentials
//   - Auto-reconnect (optional) without initial connect retry
//   - TLS for wss:// and ssl:// endpoints
//   - Clean session mode and in-order delivery
func buildClientOptions(cfg config.SessionConfig, endpoint, clientID string, creds credentials.Credentials) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(endpoint)
	opts.SetClientID(clientID)
	opts.SetUsername(creds.Identity)
	opts.SetPassword(creds.Secret)

	// Clean session - start fresh on connect (no persistent session on broker)
	opts.SetCleanSession(true)

	// The initial attempt is bounded by the connect timeout and reported as an
	// error; only established sessions reconnect automatically.
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(cfg.AutoReconnect)
	if cfg.MaxReconnectInterval > 0 {
		opts.SetMaxReconnectInterval(cfg.MaxReconnectInterval)
	}

	opts.SetConnectTimeout(connectTimeout(cfg))

	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	opts.SetOrderMatters(true)

	if isSecure(endpoint) {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// configureLWT registers the device-offline last will.
//
// The broker publishes it if this session drops uncleanly, so other
// observers of the status topic learn that this client disappeared.
//
// Payload: "offline"
// QoS: 1 (at least once)
// Retained: true (new subscribers see last status)
func configureLWT(opts *pahomqtt.ClientOptions, statusTopic string) {
	opts.SetWill(statusTopic, offlinePayload, 1, true)
}

func isSecure(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "wss", "ssl", "tls", "mqtts":
		return true
	}
	return false
}

func connectTimeout(cfg config.SessionConfig) time.Duration {
	if cfg.ConnectTimeout > 0 {
		return cfg.ConnectTimeout
	}
	return defaultConnectTimeout
}

func publishTimeout(cfg config.SessionConfig) time.Duration {
	if cfg.PublishTimeout > 0 {
		return cfg.PublishTimeout
	}
	return defaultPublishTimeout
}

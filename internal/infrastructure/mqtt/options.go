package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/fanbridge/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when the config leaves the connect timeout unset.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is used when the config leaves the publish timeout unset.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// minReconnectDelay is the floor for every wait between connection attempts.
	minReconnectDelay = config.MinReconnectDelay * time.Second

	// defaultMaxReconnectDelay caps the backoff when the config leaves it unset.
	defaultMaxReconnectDelay = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 1

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12

	// clientIDPrefix is prepended to generated client identifiers.
	clientIDPrefix = "fanbridge-"
)

// resolveClientID returns the configured client id, or a random one when unset.
func resolveClientID(cfg config.MQTTConfig) string {
	if cfg.Broker.ClientID != "" {
		return cfg.Broker.ClientID
	}
	return clientIDPrefix + uuid.NewString()[:8]
}

func secondsOr(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}

// buildClientOptions creates paho MQTT options from bridge config.
//
// Automatic reconnection is disabled: the Client's supervisor loop owns the
// reconnect schedule so it can restore subscriptions before reporting CONNECTED.
func buildClientOptions(cfg config.MQTTConfig, clientID string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	opts.SetClientID(clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// No persistent session; subscriptions are re-issued on every connect.
	opts.SetCleanSession(true)
	opts.SetResumeSubs(false)

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(secondsOr(cfg.Timeouts.Connect, defaultConnectTimeout))
	opts.SetWriteTimeout(secondsOr(cfg.Timeouts.Publish, defaultPublishTimeout))
	opts.SetKeepAlive(secondsOr(cfg.Timeouts.KeepAlive, defaultKeepAlive))

	// Telemetry for one topic must be applied in arrival order.
	opts.SetOrderMatters(true)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	if cfg.StatusTopic != "" {
		configureLWT(opts, cfg.StatusTopic, clientID)
	}

	return opts
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The broker publishes the will (retained, QoS 1) if the bridge drops
// without a clean disconnect.
func configureLWT(opts *pahomqtt.ClientOptions, topic, clientID string) {
	opts.SetWill(topic, string(buildStatusPayload("offline", clientID, "unexpected_disconnect")), 1, true)
}

// statusPayload is the JSON body published on the bridge status topic.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func buildStatusPayload(status, clientID, reason string) []byte {
	// Marshalling a struct of strings cannot fail.
	data, _ := json.Marshal(statusPayload{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return data
}

// buildOnlinePayload creates the JSON payload for online status messages.
func buildOnlinePayload(clientID string) []byte {
	return buildStatusPayload("online", clientID, "")
}

// buildOfflinePayload creates the JSON payload for graceful offline status.
func buildOfflinePayload(clientID string) []byte {
	return buildStatusPayload("offline", clientID, "graceful_shutdown")
}

// newReconnectBackOff builds the exponential schedule used between
// connection attempts. It never gives up on its own.
func newReconnectBackOff(cfg config.MQTTReconnectConfig) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = max(secondsOr(cfg.InitialDelay, minReconnectDelay), minReconnectDelay)
	b.MaxInterval = max(secondsOr(cfg.MaxDelay, defaultMaxReconnectDelay), b.InitialInterval)
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// clampDelay applies the reconnect floor to a backoff value.
func clampDelay(d time.Duration) time.Duration {
	if d == backoff.Stop || d < minReconnectDelay {
		return minReconnectDelay
	}
	return d
}

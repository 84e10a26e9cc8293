package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Core status values.
const (
	statusOnline  = "online"
	statusOffline = "offline"
	statusLost    = "unexpected_disconnect"
)

// StatusTopic returns the retained topic on which the core with clientID
// announces whether it is online.
//
// Example: fleetcore/status/fleetcore-01
func StatusTopic(clientID string) string {
	return "fleetcore/status/" + clientID
}

// buildClientOptions creates paho MQTT options from the MQTT config section.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Replies are correlated in memory; a persistent session would only
	// redeliver replies nobody waits for.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	// Each subscription handler is already wrapped with recovery; ordered
	// delivery would serialise slow reply handling behind lifecycle events.
	opts.SetOrderMatters(false)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The broker publishes it, retained at QoS 1, if the core disconnects
// without a graceful Close.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	opts.SetWill(StatusTopic(clientID), string(buildStatusPayload(clientID, statusLost, time.Now())), 1, true)
}

type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Timestamp string `json:"timestamp"`
}

// buildStatusPayload creates the JSON payload for core status messages.
func buildStatusPayload(clientID, status string, at time.Time) []byte {
	data, _ := json.Marshal(statusPayload{ //nolint:errchkjson // plain strings always marshal
		Status:    status,
		ClientID:  clientID,
		Timestamp: at.UTC().Format(time.RFC3339),
	})
	return data
}

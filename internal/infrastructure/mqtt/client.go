package mqtt

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fleet/internal/management/transport"
)

// Client wraps paho.mqtt.golang as a device management transport.
//
// It implements transport.Client: received messages are handed to
// subscribers as transport.Message values carrying the original-topic,
// enqueued-timestamp, transport-qos and connection-id headers.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	clock   clock.Clock

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected tracks current connection state. connectionID changes on
	// every (re)connect.
	connected    bool
	connectionID string
	connMu       sync.RWMutex

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	filter  string
	qos     byte
	handler transport.Handler
}

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures Last Will and Testament (LWT) for offline detection
//  3. Sets up auto-reconnect with exponential backoff
//  4. Attempts initial connection with timeout
//  5. Publishes online status to the core status topic
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	c.options.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	c.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	c.options.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT reconnecting", "client_id", cfg.Broker.ClientID)
		}
	})

	c.client = pahomqtt.NewClient(c.options)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have executed
	// yet, so mark the client connected here as well.
	c.markConnected()

	return c, nil
}

// newClient builds an unconnected client around cfg.
func newClient(cfg config.MQTTConfig) *Client {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:           cfg,
		options:       opts,
		clock:         clock.WallClock,
		subscriptions: make(map[string]subscription),
	}
	c.client = pahomqtt.NewClient(opts)
	return c
}

// markConnected records a live connection, issuing a new connection id the
// first time it is called after a disconnect.
func (c *Client) markConnected() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if !c.connected || c.connectionID == "" {
		c.connectionID = uuid.NewString()
	}
	c.connected = true
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.markConnected()

	c.restoreSubscriptions()
	c.publishStatus(statusOnline)

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes to all tracked filters after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		// Errors here surface again on the next reconnect.
		c.client.Subscribe(sub.filter, sub.qos, c.wrapHandler(sub.handler))
	}
}

// publishStatus publishes the core's retained status message.
func (c *Client) publishStatus(status string) {
	token := c.client.Publish(StatusTopic(c.cfg.Broker.ClientID), byte(c.cfg.QoS), true,
		buildStatusPayload(c.cfg.Broker.ClientID, status, c.clock.Now()))
	token.WaitTimeout(defaultPublishTimeout)
}

// Close gracefully disconnects from the MQTT broker.
//
// A graceful offline status is published first so it can be told apart from
// the LWT crash status. Connection already closed is not an error.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishStatus(statusOffline)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// ConnectionID returns the identifier of the current broker connection,
// or "" before the first connect.
func (c *Client) ConnectionID() string {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connectionID
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, handler panics are recovered silently.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler adapts a transport.Handler to paho, with panic recovery.
func (c *Client) wrapHandler(handler transport.Handler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		handler(c.toMessage(msg))
	}
}

// toMessage converts a received paho message. MQTT 3.1.1 carries no user
// properties, so every header is synthesised on receipt.
func (c *Client) toMessage(msg pahomqtt.Message) transport.Message {
	headers := transport.Headers{
		transport.HeaderOriginalTopic:     msg.Topic(),
		transport.HeaderEnqueuedTimestamp: strconv.FormatInt(c.clock.Now().UnixMilli(), 10),
		transport.HeaderQoS:               strconv.Itoa(int(msg.Qos())),
	}
	if id := c.ConnectionID(); id != "" {
		headers[transport.HeaderConnectionID] = id
	}
	return transport.NewMessage(msg.Topic(), headers, msg.Payload())
}

var _ transport.Client = (*Client)(nil)

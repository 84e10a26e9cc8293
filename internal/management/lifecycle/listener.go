package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"github.com/nerrad567/gray-logic-fleet/internal/device"
	"github.com/nerrad567/gray-logic-fleet/internal/dialect/agent"
	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
	"github.com/nerrad567/gray-logic-fleet/internal/management/transport"
	"github.com/nerrad567/gray-logic-fleet/internal/management/wire"
)

// Logger defines the logging interface used by the Listener.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Devices is the part of *device.Registry the listener writes to.
type Devices interface {
	Find(ctx context.Context, scopeID, deviceID string) (*device.Device, error)
	Ensure(ctx context.Context, d *device.Device) (*device.Device, error)
	UpsertConnection(ctx context.Context, key device.Key, conn device.Connection) (*device.Device, error)
}

// Listener keeps device connection records in step with the lifecycle
// events agents publish.
type Listener struct {
	cfg     agent.Config
	client  transport.Client
	adapter *wire.Adapter
	devices Devices
	clock   clock.Clock
	logger  Logger

	mu      sync.Mutex
	ctx     context.Context
	started bool

	handled atomic.Int64
}

// New creates a Listener. adapter must resolve the agent translators.
func New(cfg agent.Config, client transport.Client, adapter *wire.Adapter, devices Devices, clk clock.Clock) *Listener {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Listener{
		cfg:     cfg,
		client:  client,
		adapter: adapter,
		devices: devices,
		clock:   clk,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the listener.
func (l *Listener) SetLogger(logger Logger) {
	l.logger = logger
}

// Start subscribes to lifecycle events. ctx bounds the registry writes made
// from the subscription.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}
	if err := l.client.Subscribe(l.cfg.LifecycleFilter(), l.handle); err != nil {
		return fmt.Errorf("subscribing to lifecycle events: %w", err)
	}
	l.ctx = ctx
	l.started = true
	l.logger.Info("listening for device lifecycle events", "filter", l.cfg.LifecycleFilter())
	return nil
}

// Stop drops the subscription.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return nil
	}
	l.started = false
	return l.client.Unsubscribe(l.cfg.LifecycleFilter())
}

func (l *Listener) handle(msg transport.Message) {
	defer l.handled.Add(1)

	l.mu.Lock()
	ctx := l.ctx
	l.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	env, in, err := l.adapter.ToDomain(msg,
		wire.Route{Dialect: agent.EncodingJSON.DataType(), Domain: message.TypeData},
		wire.ConnectionContext{}, l.clock.Now())
	if err != nil {
		l.logger.Warn("unreadable lifecycle event dropped", "destination", msg.Destination, "error", err)
		return
	}
	data, ok := env.(*message.Data)
	if !ok || len(data.Semantic) != 2 {
		l.logger.Warn("unexpected lifecycle message dropped", "topic", in.Topic)
		return
	}

	if err := l.Apply(ctx, agent.Event(data.Semantic[1]), data, in.ConnectionID); err != nil {
		l.logger.Warn("lifecycle event not applied",
			"topic", in.Topic, "scope_id", data.ScopeID, "device_id", data.DeviceID, "error", err)
	}
}

// ErrUnknownEvent is returned by Apply for an event it does not handle.
var ErrUnknownEvent = errors.New("lifecycle: unknown event")

// Apply records one lifecycle event. BIRTH creates the device when it is
// unknown; other events for unknown devices are ignored. Events older than
// the one already recorded are ignored.
func (l *Listener) Apply(ctx context.Context, ev agent.Event, data *message.Data, connectionID string) error {
	key := device.Key{ScopeID: data.ScopeID, ID: data.DeviceID}
	at := eventTime(data)

	var status device.ConnectionStatus
	switch ev {
	case agent.EventBirth:
		status = device.StatusConnected
		if _, err := l.devices.Ensure(ctx, birthDevice(data)); err != nil {
			return fmt.Errorf("registering %s: %w", key, err)
		}
	case agent.EventDisconnect:
		status = device.StatusDisconnected
	case agent.EventLWT, agent.EventMissing:
		status = device.StatusMissing
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev)
	}

	existing, err := l.devices.Find(ctx, key.ScopeID, key.ID)
	if errors.Is(err, device.ErrDeviceNotFound) {
		l.logger.Debug("lifecycle event for unknown device ignored", "device", key.String(), "event", ev)
		return nil
	}
	if err != nil {
		return err
	}
	if prev := existing.Connection; prev != nil && at.Before(prev.LastEventOn) {
		l.logger.Debug("stale lifecycle event ignored", "device", key.String(), "event", ev,
			"event_on", at, "last_event_on", prev.LastEventOn)
		return nil
	}

	conn := device.Connection{
		ID:          connectionID,
		Status:      status,
		LastEventOn: at,
	}
	if ev == agent.EventBirth {
		conn.ClientIP, _ = data.Payload.Metrics.Text(agent.MetricConnectionIP)
		conn.Protocol, _ = data.Payload.Metrics.Text(agent.MetricProtocol)
	}
	if _, err := l.devices.UpsertConnection(ctx, key, conn); err != nil {
		return fmt.Errorf("updating connection of %s: %w", key, err)
	}
	l.logger.Info("device connection changed", "device", key.String(), "event", ev, "status", status)
	return nil
}

func birthDevice(data *message.Data) *device.Device {
	m := data.Payload.Metrics
	d := &device.Device{ScopeID: data.ScopeID, ID: data.DeviceID}
	d.DisplayName, _ = m.Text(agent.MetricDisplayName)
	d.Model, _ = m.Text(agent.MetricModel)
	d.FirmwareVersion, _ = m.Text(agent.MetricFirmwareVersion)

	encoding, _ := m.Text(agent.MetricPayloadEncoding)
	enc, err := agent.ParseEncoding(encoding)
	if err != nil {
		enc = agent.EncodingJSON
	}
	d.Dialect = enc.DialectName()
	return d
}

// eventTime prefers the device's own timestamp over the broker's.
func eventTime(data *message.Data) time.Time {
	if !data.SentOn.IsZero() {
		return data.SentOn
	}
	return data.ReceivedOn
}

// Handled returns the number of lifecycle messages processed so far.
func (l *Listener) Handled() int64 {
	return l.handled.Load()
}

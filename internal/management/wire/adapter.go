package wire

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
	"github.com/nerrad567/gray-logic-fleet/internal/management/translator"
	"github.com/nerrad567/gray-logic-fleet/internal/management/transport"
)

// maxBodySize caps the declared body length the adapter will allocate for.
const maxBodySize = 16 << 20

// Destination prefixes added by brokers that route MQTT traffic through
// queues. They are stripped when the original-topic header is missing.
var legacyPrefixes = []string{"topic://", "queue://", "VirtualTopic."}

// Errors returned by the adapter.
var (
	// ErrBodyTruncated is returned in strict mode when fewer bytes are
	// readable than the transport declared.
	ErrBodyTruncated = errors.New("wire: body shorter than declared length")

	// ErrBodyTooLarge is returned when the declared length exceeds the limit.
	ErrBodyTooLarge = errors.New("wire: body too large")

	// ErrNotEnvelope is returned when the second hop does not produce a
	// message.Envelope.
	ErrNotEnvelope = errors.New("wire: translated value is not a message envelope")

	// ErrNoTopic is returned when neither the header nor the destination
	// yields a topic.
	ErrNoTopic = errors.New("wire: message has no topic")
)

// MessageKind distinguishes platform control traffic from device telemetry.
type MessageKind int

// Message kinds.
const (
	KindTelemetry MessageKind = iota
	KindControl
)

func (k MessageKind) String() string {
	if k == KindControl {
		return "CONTROL"
	}
	return "TELEMETRY"
}

// Logger is the logging interface used by the Adapter.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config configures an Adapter.
type Config struct {
	// Classifier is the reserved first topic segment of control traffic,
	// without the trailing "/".
	Classifier string

	// StrictBodyLength makes ReadBody fail on a short body instead of
	// returning the partial buffer with a warning.
	StrictBodyLength bool
}

// Inbound is the metadata extracted from a raw transport message.
type Inbound struct {
	Kind MessageKind

	// Topic is the normalised original topic.
	Topic string

	// Stripped is Topic without the classifier prefix.
	Stripped string

	EnqueuedOn   time.Time
	ConnectionID string
	QoS          message.QoS
}

// Route names the two representations an inbound message passes through.
type Route struct {
	Dialect translator.Type
	Domain  translator.Type
}

// ConnectionContext identifies the connection a message arrived on. It
// fills addressing fields a translated message left empty.
type ConnectionContext struct {
	ScopeID      string
	DeviceID     string
	ConnectionID string
}

// Adapter extracts metadata from raw transport messages and drives the
// wire -> dialect -> domain translation.
type Adapter struct {
	cfg      Config
	prefix   string
	registry *translator.Registry
	logger   Logger
}

// New creates an Adapter resolving translators from registry.
func New(cfg Config, registry *translator.Registry) *Adapter {
	prefix := ""
	if cfg.Classifier != "" {
		prefix = strings.TrimSuffix(cfg.Classifier, "/") + "/"
	}
	return &Adapter{
		cfg:      cfg,
		prefix:   prefix,
		registry: registry,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the adapter.
func (a *Adapter) SetLogger(logger Logger) {
	a.logger = logger
}

// Inspect extracts topic, kind, enqueue time, connection id and QoS from msg.
// fallback is used when the enqueued-timestamp header is absent.
func (a *Adapter) Inspect(msg transport.Message, fallback time.Time) Inbound {
	topic := a.OriginalTopic(msg)
	kind, stripped := a.Classify(topic)

	in := Inbound{
		Kind:       kind,
		Topic:      topic,
		Stripped:   stripped,
		EnqueuedOn: fallback,
		QoS:        message.QoSUnset,
	}

	if ms, ok := msg.Headers.Int(transport.HeaderEnqueuedTimestamp); ok {
		in.EnqueuedOn = time.UnixMilli(ms).UTC()
	}

	if id, ok := msg.Headers.Get(transport.HeaderConnectionID); ok {
		in.ConnectionID = id
	} else {
		a.logger.Debug("message without connection id", "topic", topic)
	}

	if level, ok := msg.Headers.Int(transport.HeaderQoS); ok {
		in.QoS = message.QoSFromLevel(int(level))
	}

	return in
}

// OriginalTopic returns the pre-routing topic of msg with "/" separators.
//
// The original-topic header wins; without it the topic is derived from the
// transport destination.
func (a *Adapter) OriginalTopic(msg transport.Message) string {
	if topic, ok := msg.Headers.Get(transport.HeaderOriginalTopic); ok {
		return NormalizeTopic(topic)
	}

	dest := msg.Destination
	for _, p := range legacyPrefixes {
		dest = strings.TrimPrefix(dest, p)
	}
	return NormalizeTopic(dest)
}

// NormalizeTopic converts a dot-encoded topic ("a.b.c") to "/" separators.
// Topics that already contain "/" are returned unchanged so dots inside a
// segment survive.
func NormalizeTopic(topic string) string {
	if strings.Contains(topic, "/") {
		return topic
	}
	return strings.ReplaceAll(topic, ".", "/")
}

// Classify strips the classifier prefix. A topic carrying it is control
// traffic; anything else is telemetry and is returned unchanged.
func (a *Adapter) Classify(topic string) (MessageKind, string) {
	if a.prefix != "" && strings.HasPrefix(topic, a.prefix) {
		return KindControl, strings.TrimPrefix(topic, a.prefix)
	}
	return KindTelemetry, topic
}

// ReadBody reads exactly msg.Length bytes from msg.Body.
//
// When the transport delivers fewer bytes than it declared, the partial
// buffer is returned and a warning logged, unless StrictBodyLength is set.
// A negative Length means unknown; the body is read to EOF.
func (a *Adapter) ReadBody(msg transport.Message) ([]byte, error) {
	if msg.Body == nil {
		return nil, nil
	}
	if msg.Length < 0 {
		return io.ReadAll(io.LimitReader(msg.Body, maxBodySize))
	}
	if msg.Length > maxBodySize {
		return nil, fmt.Errorf("%w: declared %d bytes, limit %d", ErrBodyTooLarge, msg.Length, maxBodySize)
	}

	buf := make([]byte, msg.Length)
	n, err := io.ReadFull(msg.Body, buf)
	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		if a.cfg.StrictBodyLength {
			return nil, fmt.Errorf("%w: declared %d bytes, read %d", ErrBodyTruncated, msg.Length, n)
		}
		a.logger.Warn("message body shorter than declared length",
			"destination", msg.Destination,
			"declared", msg.Length,
			"read", n,
		)
		return buf[:n], nil
	default:
		return nil, fmt.Errorf("reading message body: %w", err)
	}
}

// Frame reads msg into a transport.Frame addressed by its original topic.
func (a *Adapter) Frame(msg transport.Message, fallback time.Time) (transport.Frame, Inbound, error) {
	in := a.Inspect(msg, fallback)
	if in.Topic == "" {
		return transport.Frame{}, in, ErrNoTopic
	}
	body, err := a.ReadBody(msg)
	if err != nil {
		return transport.Frame{}, in, err
	}
	return transport.Frame{
		Topic:   in.Topic,
		Payload: body,
		Headers: msg.Headers.Clone(),
	}, in, nil
}

// ToDialect performs the first hop: raw message to the dialect
// representation dialect.
func (a *Adapter) ToDialect(msg transport.Message, dialect translator.Type, fallback time.Time) (any, Inbound, error) {
	frame, in, err := a.Frame(msg, fallback)
	if err != nil {
		return nil, in, err
	}
	d, err := a.registry.Translate(transport.TypeFrame, dialect, frame)
	if err != nil {
		return nil, in, fmt.Errorf("decoding %s: %w", dialect, err)
	}
	return d, in, nil
}

// ToDomain performs both hops and returns the domain envelope.
//
// Scope and device left empty by the translators are back-filled from conn;
// QoS and ReceivedOn are stamped from the transport metadata.
func (a *Adapter) ToDomain(msg transport.Message, route Route, conn ConnectionContext, fallback time.Time) (message.Envelope, Inbound, error) {
	d, in, err := a.ToDialect(msg, route.Dialect, fallback)
	if err != nil {
		return nil, in, err
	}

	v, err := a.registry.Translate(route.Dialect, route.Domain, d)
	if err != nil {
		return nil, in, fmt.Errorf("translating %s to %s: %w", route.Dialect, route.Domain, err)
	}
	env, ok := v.(message.Envelope)
	if !ok {
		return nil, in, fmt.Errorf("%w: %T", ErrNotEnvelope, v)
	}

	h := env.Head()
	if h.ScopeID == "" {
		h.ScopeID = conn.ScopeID
	}
	if h.DeviceID == "" {
		h.DeviceID = conn.DeviceID
	}
	if in.ConnectionID == "" {
		in.ConnectionID = conn.ConnectionID
	}
	h.QoS = in.QoS
	h.ReceivedOn = in.EnqueuedOn

	return env, in, nil
}

// Decode is ToDialect with a typed result.
func Decode[D any](a *Adapter, msg transport.Message, dialect translator.Type, fallback time.Time) (D, Inbound, error) {
	var zero D
	v, in, err := a.ToDialect(msg, dialect, fallback)
	if err != nil {
		return zero, in, err
	}
	d, ok := v.(D)
	if !ok {
		return zero, in, fmt.Errorf("%w: %s decoded to %T", translator.ErrTypeMismatch, dialect, v)
	}
	return d, in, nil
}

package agent

import (
	"context"
	"fmt"
	"io"
	"maps"
	"sync"

	"github.com/juju/clock"

	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
	"github.com/nerrad567/gray-logic-fleet/internal/management/transport"
	"github.com/nerrad567/gray-logic-fleet/internal/management/wire"
)

// Handler answers one request addressed to a simulated agent. The
// simulator fills in the reply's addressing fields.
type Handler func(Request) Response

// Simulator is an in-process agent. It answers requests for the
// applications it has handlers for and announces itself with BIRTH and DC
// lifecycle events. It backs loopback deployments and end-to-end tests.
type Simulator struct {
	cfg      Config
	enc      Encoding
	client   transport.Client
	scope    string
	clientID string
	clock    clock.Clock
	logger   Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	birth    message.Metrics
	started  bool
}

// Logger is the logging interface used by the Simulator.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// NewSimulator creates a simulated agent that speaks enc.
func NewSimulator(cfg Config, enc Encoding, client transport.Client, scope, clientID string, clk clock.Clock) *Simulator {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Simulator{
		cfg:      cfg,
		enc:      enc,
		client:   client,
		scope:    scope,
		clientID: clientID,
		clock:    clk,
		logger:   noopLogger{},
		handlers: make(map[string]Handler),
		birth:    message.Metrics{},
	}
}

// SetLogger sets the logger for the simulator.
func (s *Simulator) SetLogger(logger Logger) {
	s.logger = logger
}

// Handle registers h for the application appID, e.g. "CMD-V1".
func (s *Simulator) Handle(appID string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[appID] = h
}

// SetBirthMetric adds a metric to the BIRTH announcement.
func (s *Simulator) SetBirthMetric(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.birth[name] = value
}

// Start subscribes for requests and publishes BIRTH.
func (s *Simulator) Start(ctx context.Context) error {
	if err := s.client.Subscribe(s.cfg.RequestFilter(s.scope, s.clientID), s.handleRequest); err != nil {
		return fmt.Errorf("simulator %s/%s: %w", s.scope, s.clientID, err)
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return s.Birth(ctx)
}

// Stop publishes DC and drops the request subscription.
func (s *Simulator) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return nil
	}

	dcErr := s.publishLifecycle(ctx, EventDisconnect, nil)
	if err := s.client.Unsubscribe(s.cfg.RequestFilter(s.scope, s.clientID)); err != nil {
		return err
	}
	return dcErr
}

// Birth publishes a BIRTH event carrying the birth metrics and the
// simulator's payload encoding.
func (s *Simulator) Birth(ctx context.Context) error {
	s.mu.RLock()
	metrics := maps.Clone(s.birth)
	s.mu.RUnlock()
	metrics[MetricPayloadEncoding] = string(s.enc)
	return s.publishLifecycle(ctx, EventBirth, metrics)
}

// Lifecycle events are always JSON so a listener can read them before it
// knows the agent's encoding.
func (s *Simulator) publishLifecycle(ctx context.Context, ev Event, metrics message.Metrics) error {
	frame, err := encodeData(s.cfg, EncodingJSON.codec(), Data{
		Scope:    s.scope,
		ClientID: s.clientID,
		Control:  true,
		Channel:  []string{lifecycleApp, string(ev)},
		SentOn:   s.clock.Now(),
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, frame.Topic, frame.Payload, transport.Headers{transport.HeaderQoS: "1"})
}

func (s *Simulator) handleRequest(msg transport.Message) {
	body, err := io.ReadAll(msg.Body)
	if err != nil {
		s.logger.Warn("simulator: unreadable request", "destination", msg.Destination, "error", err)
		return
	}
	topic := wire.NormalizeTopic(msg.Destination)
	if t, ok := msg.Headers.Get(transport.HeaderOriginalTopic); ok {
		topic = wire.NormalizeTopic(t)
	}
	levels, _ := s.cfg.split(topic)
	if len(levels) > 2 && levels[2] == lifecycleApp {
		return
	}

	c := s.enc.codec()
	req, err := decodeRequest(s.cfg, c, transport.Frame{Topic: topic, Payload: body})
	if err != nil {
		s.logger.Warn("simulator: malformed request", "topic", topic, "error", err)
		return
	}

	s.mu.RLock()
	h, ok := s.handlers[req.App]
	s.mu.RUnlock()

	var resp Response
	if ok {
		resp = h(req)
	} else {
		resp = Response{Code: message.CodeNotFound, ExceptionMessage: "no application " + req.App}
	}
	resp.Scope = req.Scope
	resp.RequesterID = req.RequesterID
	resp.App = req.App
	resp.RequestID = req.RequestID
	if resp.Code == "" {
		resp.Code = message.CodeAccepted
	}
	if resp.SentOn.IsZero() {
		resp.SentOn = s.clock.Now()
	}

	frame, err := encodeResponse(s.cfg, c, resp)
	if err != nil {
		s.logger.Warn("simulator: cannot encode reply", "request_id", req.RequestID, "error", err)
		return
	}
	if err := s.client.Publish(context.Background(), frame.Topic, frame.Payload, nil); err != nil {
		s.logger.Warn("simulator: reply publish failed", "request_id", req.RequestID, "error", err)
		return
	}
	s.logger.Debug("simulator: replied", "request_id", req.RequestID, "code", resp.Code)
}

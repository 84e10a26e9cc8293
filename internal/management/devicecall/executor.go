package devicecall

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
	"github.com/nerrad567/gray-logic-fleet/internal/management/translator"
	"github.com/nerrad567/gray-logic-fleet/internal/management/transport"
	"github.com/nerrad567/gray-logic-fleet/internal/management/wire"
)

// Logger defines the logging interface used by the Executor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Dialect names the request and response representations of one device
// dialect. Both must have translators to and from transport.TypeFrame.
type Dialect struct {
	Request  translator.Type
	Response translator.Type
}

// Correlated is implemented by dialect requests that carry the identifier
// their reply will be correlated by.
type Correlated interface {
	CorrelationID() string
}

// Config configures an Executor.
type Config struct {
	// ReplyFilter is the subscription filter that receives device replies.
	ReplyFilter string

	// Correlate extracts the correlation id from a reply topic.
	Correlate func(topic string) (string, bool)

	// QoS is stamped on requests whose frame does not set transport-qos.
	QoS message.QoS
}

// Executor publishes dialect requests and waits for their correlated replies.
//
// Every Send registers its own pending call; calls never wait on each other
// and the pending map lock is held only to insert or remove an entry.
// Replies arrive on transport goroutines. A reply, the deadline, a publish
// failure and caller cancellation race to claim the call; the loser's
// outcome is dropped.
type Executor struct {
	cfg      Config
	client   transport.Client
	registry *translator.Registry
	adapter  *wire.Adapter
	clock    clock.Clock
	metrics  *Metrics
	logger   Logger

	mu      sync.Mutex
	pending map[string]*pendingCall
	closed  bool

	subMu      sync.Mutex
	subscribed bool
}

// New creates an Executor. Call Start before the first Send to subscribe
// for replies; Send subscribes lazily if Start was skipped.
func New(cfg Config, client transport.Client, registry *translator.Registry, adapter *wire.Adapter, clk clock.Clock) *Executor {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Executor{
		cfg:      cfg,
		client:   client,
		registry: registry,
		adapter:  adapter,
		clock:    clk,
		logger:   noopLogger{},
		pending:  make(map[string]*pendingCall),
	}
}

// SetLogger sets the logger for the executor.
func (e *Executor) SetLogger(logger Logger) {
	e.logger = logger
}

// SetMetrics sets the metrics collector for the executor.
func (e *Executor) SetMetrics(m *Metrics) {
	e.metrics = m
}

// Start subscribes to the reply filter.
func (e *Executor) Start(_ context.Context) error {
	return e.ensureSubscribed()
}

func (e *Executor) ensureSubscribed() error {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	if e.subscribed {
		return nil
	}
	if err := e.client.Subscribe(e.cfg.ReplyFilter, e.handleReply); err != nil {
		return err
	}
	e.subscribed = true
	e.logger.Info("subscribed for device replies", "filter", e.cfg.ReplyFilter)
	return nil
}

// Send publishes request and waits up to timeout for the correlated reply,
// returned in dialect.Response representation.
//
// Returns ErrTimeout when the deadline passes, *SendError when publishing
// fails and ctx.Err() when the caller gives up first.
func (e *Executor) Send(ctx context.Context, dialect Dialect, request any, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}

	frame, err := e.encode(dialect, request)
	if err != nil {
		return nil, err
	}
	corr, ok := request.(Correlated)
	if !ok || corr.CorrelationID() == "" {
		return nil, fmt.Errorf("%w: %T", ErrNoCorrelation, request)
	}

	if err := e.ensureSubscribed(); err != nil {
		return nil, err
	}

	// Registered before publishing so a fast reply finds its call.
	start := e.clock.Now()
	call := newPendingCall(corr.CorrelationID(), dialect.Response, start)
	if err := e.register(call); err != nil {
		return nil, err
	}

	timer := e.clock.AfterFunc(timeout, func() {
		if call.claim() {
			e.remove(call)
			e.metrics.observe(OutcomeTimeout, timeout)
			e.logger.Debug("device call timed out", "request_id", call.id, "timeout", timeout)
			call.resolve(outcome{err: fmt.Errorf("%w after %s", ErrTimeout, timeout)})
		}
	})

	if err := e.publish(ctx, frame); err != nil {
		timer.Stop()
		call.claim()
		e.remove(call)
		e.metrics.count(OutcomeSendFailed)
		return nil, &SendError{Err: err}
	}

	select {
	case out := <-call.result:
		timer.Stop()
		return out.value, out.err
	case <-ctx.Done():
		if call.claim() {
			timer.Stop()
			e.remove(call)
			e.metrics.observe(OutcomeCancelled, e.clock.Now().Sub(start))
			return nil, ctx.Err()
		}
		// Another party resolved the call first; its value is already buffered.
		out := <-call.result
		return out.value, out.err
	}
}

// SendAndForget publishes request and returns once the transport has
// acknowledged the publish. It does not wait for, or expect, a reply: a nil
// error means delivery was attempted, not that the device acted on it.
func (e *Executor) SendAndForget(ctx context.Context, dialect Dialect, request any) error {
	frame, err := e.encode(dialect, request)
	if err != nil {
		return err
	}
	if err := e.publish(ctx, frame); err != nil {
		e.metrics.count(OutcomeSendFailed)
		return &SendError{Err: err}
	}
	e.metrics.count(OutcomeForgotten)
	return nil
}

// IsConnected reports the transport connection state. It is meant for
// health checks; the call path relies on the device registry instead.
func (e *Executor) IsConnected() bool {
	return e.client.IsConnected()
}

// Pending returns the number of calls awaiting a reply.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Close fails every pending call with ErrClosed and drops the reply
// subscription. Sends after Close fail with ErrClosed.
func (e *Executor) Close() error {
	e.mu.Lock()
	e.closed = true
	calls := make([]*pendingCall, 0, len(e.pending))
	for _, c := range e.pending {
		calls = append(calls, c)
	}
	e.mu.Unlock()

	for _, c := range calls {
		if c.claim() {
			e.remove(c)
			c.resolve(outcome{err: ErrClosed})
		}
	}

	e.subMu.Lock()
	defer e.subMu.Unlock()
	if e.subscribed {
		e.subscribed = false
		return e.client.Unsubscribe(e.cfg.ReplyFilter)
	}
	return nil
}

func (e *Executor) encode(dialect Dialect, request any) (transport.Frame, error) {
	v, err := e.registry.Translate(dialect.Request, transport.TypeFrame, request)
	if err != nil {
		return transport.Frame{}, err
	}
	frame, ok := v.(transport.Frame)
	if !ok {
		return transport.Frame{}, fmt.Errorf("%w: %s encoded to %T", translator.ErrTypeMismatch, dialect.Request, v)
	}
	return frame, nil
}

func (e *Executor) publish(ctx context.Context, frame transport.Frame) error {
	headers := frame.Headers.Clone()
	if _, ok := headers.Get(transport.HeaderQoS); !ok {
		if level, ok := e.cfg.QoS.Level(); ok {
			headers[transport.HeaderQoS] = strconv.Itoa(int(level))
		}
	}
	return e.client.Publish(ctx, frame.Topic, frame.Payload, headers)
}

func (e *Executor) register(call *pendingCall) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if _, exists := e.pending[call.id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCorrelation, call.id)
	}
	e.pending[call.id] = call
	e.metrics.pendingAdd(1)
	return nil
}

// remove deletes call from the pending map if it is still the entry for
// its id.
func (e *Executor) remove(call *pendingCall) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if current, ok := e.pending[call.id]; ok && current == call {
		delete(e.pending, call.id)
		e.metrics.pendingAdd(-1)
	}
}

func (e *Executor) lookup(id string) *pendingCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending[id]
}

// handleReply runs on a transport goroutine for every message on the reply
// filter.
func (e *Executor) handleReply(msg transport.Message) {
	received := e.clock.Now()

	frame, in, err := e.adapter.Frame(msg, received)
	if err != nil {
		e.logger.Warn("unreadable device reply dropped", "destination", msg.Destination, "error", err)
		return
	}

	id, ok := e.cfg.Correlate(in.Topic)
	if !ok {
		e.logger.Warn("reply without correlation id dropped", "topic", in.Topic)
		return
	}

	call := e.lookup(id)
	if call == nil {
		e.metrics.count(OutcomeLateReply)
		e.logger.Info("late or unknown reply dropped", "request_id", id, "topic", in.Topic)
		return
	}

	reply, decodeErr := e.registry.Translate(transport.TypeFrame, call.responseType, frame)
	if decodeErr != nil {
		decodeErr = fmt.Errorf("decoding reply %s: %w", id, decodeErr)
	}

	if !call.claim() {
		e.metrics.count(OutcomeLateReply)
		e.logger.Info("reply lost race with deadline, dropped", "request_id", id)
		return
	}
	e.remove(call)
	e.metrics.observe(OutcomeReplied, received.Sub(call.sentAt))
	call.resolve(outcome{value: reply, err: decodeErr})
}

package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"

	"github.com/nerrad567/gray-logic-fleet/internal/device"
	"github.com/nerrad567/gray-logic-fleet/internal/management/devicecall"
	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
	"github.com/nerrad567/gray-logic-fleet/internal/management/translator"
	"github.com/nerrad567/gray-logic-fleet/internal/management/transport"
)

// Logger defines the logging interface used by the Caller.
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

// DeviceFinder looks up the device a request is addressed to.
// *device.Registry implements it.
type DeviceFinder interface {
	Find(ctx context.Context, scopeID, deviceID string) (*device.Device, error)
}

// Sender delivers dialect requests to devices. *devicecall.Executor
// implements it.
type Sender interface {
	Send(ctx context.Context, dialect devicecall.Dialect, request any, timeout time.Duration) (any, error)
	SendAndForget(ctx context.Context, dialect devicecall.Dialect, request any) error
}

// Options is one call. It is a plain value: build a new one per call.
type Options struct {
	Request *message.Request

	// Timeout bounds the wait for the reply. Zero selects the caller's
	// default; SendAndForget ignores it.
	Timeout time.Duration
}

// Record describes a completed call for observers. Request is the stamped
// copy that was sent, or the caller's request if a precondition failed
// before stamping. Response is nil unless the call succeeded.
type Record struct {
	Request       *message.Request
	Response      *message.Response
	Err           error
	Dialect       string
	Elapsed       time.Duration
	FireAndForget bool
}

// Observer is notified after every call. Observers run synchronously on the
// calling goroutine and must not block.
type Observer interface {
	ObserveCall(ctx context.Context, rec Record)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, rec Record)

// ObserveCall calls f(ctx, rec).
func (f ObserverFunc) ObserveCall(ctx context.Context, rec Record) { f(ctx, rec) }

// Deps are the collaborators of a Caller.
type Deps struct {
	Devices     DeviceFinder
	Translators *translator.Registry
	Executor    Sender

	// Dialects maps a device's reported dialect name to its request and
	// response representations.
	Dialects map[string]devicecall.Dialect

	// DefaultDialect is used for devices that report no dialect.
	DefaultDialect string

	// DefaultTimeout applies when Options.Timeout is zero.
	DefaultTimeout time.Duration

	Clock     clock.Clock
	Logger    Logger
	Observers []Observer
}

// ErrMissingDependency is returned by New when a required collaborator is nil.
var ErrMissingDependency = errors.New("call: missing dependency")

// Caller sends domain requests to devices and returns domain responses.
// It is safe for concurrent use; it holds no per-call state.
type Caller struct {
	devices        DeviceFinder
	translators    *translator.Registry
	executor       Sender
	dialects       map[string]devicecall.Dialect
	defaultDialect string
	defaultTimeout time.Duration
	clock          clock.Clock
	logger         Logger
	observers      []Observer
}

// New creates a Caller.
func New(d Deps) (*Caller, error) {
	switch {
	case d.Devices == nil:
		return nil, fmt.Errorf("%w: device finder", ErrMissingDependency)
	case d.Translators == nil:
		return nil, fmt.Errorf("%w: translator registry", ErrMissingDependency)
	case d.Executor == nil:
		return nil, fmt.Errorf("%w: executor", ErrMissingDependency)
	case d.DefaultTimeout <= 0:
		return nil, fmt.Errorf("%w: default timeout must be positive", ErrMissingDependency)
	}

	dialects := make(map[string]devicecall.Dialect, len(d.Dialects))
	for name, dl := range d.Dialects {
		dialects[name] = dl
	}

	c := &Caller{
		devices:        d.Devices,
		translators:    d.Translators,
		executor:       d.Executor,
		dialects:       dialects,
		defaultDialect: d.DefaultDialect,
		defaultTimeout: d.DefaultTimeout,
		clock:          d.Clock,
		logger:         d.Logger,
		observers:      append([]Observer(nil), d.Observers...),
	}
	if c.clock == nil {
		c.clock = clock.WallClock
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	return c, nil
}

// DefaultTimeout returns the timeout used when Options.Timeout is zero.
func (c *Caller) DefaultTimeout() time.Duration {
	return c.defaultTimeout
}

// Send delivers opts.Request to its device and waits for the reply,
// translated into opts.Request.ResponseType.
//
// Every failure is an *Error except transport faults (*transport.Error),
// which are returned unchanged, and the caller's own context error.
func (c *Caller) Send(ctx context.Context, opts Options) (*message.Response, error) {
	start := c.clock.Now()
	rec := Record{Request: opts.Request}

	resp, err := c.send(ctx, opts, &rec)

	rec.Response, rec.Err, rec.Elapsed = resp, err, c.clock.Now().Sub(start)
	c.notify(ctx, rec)
	return resp, err
}

// SendAndForget runs the same preconditions and translation as Send and
// returns once the transport accepted the publish. A nil error means
// delivery was attempted; it does not confirm the device acted on it.
func (c *Caller) SendAndForget(ctx context.Context, opts Options) error {
	start := c.clock.Now()
	rec := Record{Request: opts.Request, FireAndForget: true}

	err := c.sendAndForget(ctx, opts, &rec)

	rec.Err, rec.Elapsed = err, c.clock.Now().Sub(start)
	c.notify(ctx, rec)
	return err
}

func (c *Caller) send(ctx context.Context, opts Options, rec *Record) (*message.Response, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.defaultTimeout
	}

	req, route, name, err := c.prepare(ctx, opts)
	if err != nil {
		return nil, err
	}
	rec.Request, rec.Dialect = req, name

	encode, err := c.resolve(req, name, req.Type, route.Request)
	if err != nil {
		return nil, err
	}
	// Resolved before publishing so a reply we cannot decode is never
	// requested in the first place.
	decode, err := c.resolve(req, name, route.Response, req.ResponseType)
	if err != nil {
		return nil, err
	}

	dialectReq, err := encode(req)
	if err != nil {
		return nil, c.sendError(req, name, fmt.Errorf("translating request: %w", err))
	}

	c.logger.Debug("sending device request",
		"scope_id", req.ScopeID, "device_id", req.DeviceID,
		"app", req.Channel.AppID(), "method", req.Channel.Method, "timeout", timeout)

	dialectResp, err := c.executor.Send(ctx, route, dialectReq, timeout)
	if err != nil {
		return nil, c.classify(err, req, name, timeout)
	}

	out, err := decode(dialectResp)
	if err != nil {
		return nil, c.sendError(req, name, fmt.Errorf("translating response: %w", err))
	}
	resp, ok := out.(*message.Response)
	if !ok || resp == nil {
		return nil, c.sendError(req, name, fmt.Errorf("%w: %s translated to %T", translator.ErrTypeMismatch, req.ResponseType, out))
	}

	// Devices may omit their own address; the reply belongs to the request's device.
	if resp.ScopeID == "" {
		resp.ScopeID = req.ScopeID
	}
	if resp.DeviceID == "" {
		resp.DeviceID = req.DeviceID
	}
	if resp.ReceivedOn.IsZero() {
		resp.ReceivedOn = c.clock.Now()
	}
	return resp, nil
}

func (c *Caller) sendAndForget(ctx context.Context, opts Options, rec *Record) error {
	req, route, name, err := c.prepare(ctx, opts)
	if err != nil {
		return err
	}
	rec.Request, rec.Dialect = req, name

	encode, err := c.resolve(req, name, req.Type, route.Request)
	if err != nil {
		return err
	}
	dialectReq, err := encode(req)
	if err != nil {
		return c.sendError(req, name, fmt.Errorf("translating request: %w", err))
	}

	if err := c.executor.SendAndForget(ctx, route, dialectReq); err != nil {
		return c.classify(err, req, name, 0)
	}
	return nil
}

// prepare runs the preconditions in order, picks the device's dialect and
// returns a stamped copy of the request.
func (c *Caller) prepare(ctx context.Context, opts Options) (*message.Request, devicecall.Dialect, string, error) {
	req := opts.Request
	if err := message.Validate(req); err != nil {
		e := &Error{Kind: KindInvalidArgument, Err: err}
		if req != nil {
			e.ScopeID, e.DeviceID = req.ScopeID, req.DeviceID
		}
		return nil, devicecall.Dialect{}, "", e
	}
	if opts.Timeout < 0 {
		return nil, devicecall.Dialect{}, "", &Error{
			Kind: KindInvalidArgument, ScopeID: req.ScopeID, DeviceID: req.DeviceID,
			Err: fmt.Errorf("negative timeout %s", opts.Timeout),
		}
	}

	dev, err := c.devices.Find(ctx, req.ScopeID, req.DeviceID)
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		return nil, devicecall.Dialect{}, "", &Error{Kind: KindDeviceNotFound, ScopeID: req.ScopeID, DeviceID: req.DeviceID, Err: err}
	case err != nil:
		return nil, devicecall.Dialect{}, "", &Error{Kind: KindUnknown, ScopeID: req.ScopeID, DeviceID: req.DeviceID, Err: fmt.Errorf("looking up device: %w", err)}
	case dev.Connection == nil:
		return nil, devicecall.Dialect{}, "", &Error{Kind: KindDeviceNeverConnected, ScopeID: req.ScopeID, DeviceID: req.DeviceID}
	case dev.Connection.Status != device.StatusConnected:
		return nil, devicecall.Dialect{}, "", &Error{Kind: KindDeviceNotConnected, ScopeID: req.ScopeID, DeviceID: req.DeviceID, Status: dev.Connection.Status}
	}

	name := dev.Dialect
	if name == "" {
		name = c.defaultDialect
	}
	route, ok := c.dialects[name]
	if !ok {
		return nil, devicecall.Dialect{}, "", &Error{Kind: KindUnsupportedTranslation, ScopeID: req.ScopeID, DeviceID: req.DeviceID, Dialect: name}
	}

	stamped := req.Clone()
	stamped.SentOn = c.clock.Now()
	return stamped, route, name, nil
}

func (c *Caller) resolve(req *message.Request, dialect string, source, target translator.Type) (func(any) (any, error), error) {
	fn, err := c.translators.Resolve(source, target)
	if err == nil {
		return fn, nil
	}
	if errors.Is(err, translator.ErrNotFound) {
		return nil, &Error{
			Kind: KindUnsupportedTranslation, ScopeID: req.ScopeID, DeviceID: req.DeviceID,
			Source: source, Target: target, Dialect: dialect, Err: err,
		}
	}
	return nil, c.sendError(req, dialect, err)
}

// classify maps an executor failure to the caller taxonomy.
func (c *Caller) classify(err error, req *message.Request, dialect string, timeout time.Duration) error {
	var sendErr *devicecall.SendError
	var notFound *translator.NotFoundError

	switch {
	case errors.Is(err, devicecall.ErrTimeout):
		c.logger.Warn("device call timed out", "scope_id", req.ScopeID, "device_id", req.DeviceID, "timeout", timeout)
		return &Error{Kind: KindTimeout, ScopeID: req.ScopeID, DeviceID: req.DeviceID, Timeout: timeout, Dialect: dialect, Err: err}
	case errors.As(err, &sendErr):
		return c.sendError(req, dialect, sendErr)
	case transport.IsTransportError(err):
		return err
	case errors.As(err, &notFound):
		return &Error{
			Kind: KindUnsupportedTranslation, ScopeID: req.ScopeID, DeviceID: req.DeviceID,
			Source: notFound.Source, Target: notFound.Target, Dialect: dialect, Err: err,
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return c.sendError(req, dialect, err)
}

func (c *Caller) sendError(req *message.Request, dialect string, err error) error {
	c.logger.Warn("device call failed", "scope_id", req.ScopeID, "device_id", req.DeviceID, "error", err)
	return &Error{Kind: KindSendError, ScopeID: req.ScopeID, DeviceID: req.DeviceID, Dialect: dialect, Request: req, Err: err}
}

func (c *Caller) notify(ctx context.Context, rec Record) {
	for _, o := range c.observers {
		o.ObserveCall(ctx, rec)
	}
}

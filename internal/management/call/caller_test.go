package call

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/nerrad567/gray-logic-fleet/internal/device"
	"github.com/nerrad567/gray-logic-fleet/internal/management/devicecall"
	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
	"github.com/nerrad567/gray-logic-fleet/internal/management/translator"
	"github.com/nerrad567/gray-logic-fleet/internal/management/transport"
	"github.com/nerrad567/gray-logic-fleet/internal/management/wire"
)

const (
	typeDomainRequest  translator.Type = "test/domain-request"
	typeDomainResponse translator.Type = "test/domain-response"
	typeDialectReq     translator.Type = "test/dialect-request"
	typeDialectResp    translator.Type = "test/dialect-response"

	testDialectName = "test"
)

var testRoute = devicecall.Dialect{Request: typeDialectReq, Response: typeDialectResp}

type dialectRequest struct {
	ID     string
	Scope  string
	Device string
	App    string
	Body   []byte
}

func (r dialectRequest) CorrelationID() string { return r.ID }

type dialectResponse struct {
	ID     string
	Scope  string
	Device string
	Code   string
	Body   []byte
}

// registerTestTranslators registers a symmetric domain<->dialect pair.
// The response translator leaves scope and device empty when omitScope is
// set, to exercise back-filling.
func registerTestTranslators(reg *translator.Registry, omitScope bool) {
	translator.MustRegister(reg, typeDomainRequest, typeDialectReq, func(r *message.Request) (dialectRequest, error) {
		return dialectRequest{
			ID:     r.Channel.ResourcePath(),
			Scope:  r.ScopeID,
			Device: r.DeviceID,
			App:    r.Channel.AppID(),
			Body:   r.Payload.Body,
		}, nil
	})
	translator.MustRegister(reg, typeDialectResp, typeDomainResponse, func(r dialectResponse) (*message.Response, error) {
		resp := &message.Response{
			Type:    typeDomainResponse,
			Code:    message.ResponseCode(r.Code),
			Payload: message.Payload{Body: r.Body},
		}
		if !omitScope {
			resp.ScopeID, resp.DeviceID = r.Scope, r.Device
		}
		return resp, nil
	})
}

// ============================================================================
// Fakes
// ============================================================================

type fakeFinder struct {
	devices map[device.Key]*device.Device
	err     error
}

func (f *fakeFinder) Find(_ context.Context, scopeID, deviceID string) (*device.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.devices[device.Key{ScopeID: scopeID, ID: deviceID}]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (f *fakeFinder) add(scope, id string, status device.ConnectionStatus) {
	d := &device.Device{ScopeID: scope, ID: id, Dialect: testDialectName}
	if status != "" {
		d.Connection = &device.Connection{Status: status}
	}
	f.devices[d.Key()] = d
}

// spySender records every call and answers from reply.
type spySender struct {
	mu      sync.Mutex
	sends   int
	forgets int
	last    any
	reply   func(req any) (any, error)
	forget  error
}

func (s *spySender) Send(_ context.Context, dialect devicecall.Dialect, request any, _ time.Duration) (any, error) {
	s.mu.Lock()
	s.sends++
	s.last = request
	reply := s.reply
	s.mu.Unlock()

	if dialect != testRoute {
		return nil, fmt.Errorf("unexpected dialect %+v", dialect)
	}
	if reply == nil {
		return echoReply(request)
	}
	return reply(request)
}

func (s *spySender) SendAndForget(_ context.Context, _ devicecall.Dialect, request any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgets++
	s.last = request
	return s.forget
}

func (s *spySender) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sends + s.forgets
}

func echoReply(request any) (any, error) {
	r := request.(dialectRequest)
	return dialectResponse{ID: r.ID, Scope: r.Scope, Device: r.Device, Code: "ACCEPTED", Body: r.Body}, nil
}

type fixture struct {
	finder *fakeFinder
	spy    *spySender
	clock  *testclock.Clock
	caller *Caller
	seen   []Record
}

func newFixture(t *testing.T, omitScope bool) *fixture {
	t.Helper()

	reg := translator.NewRegistry()
	registerTestTranslators(reg, omitScope)
	reg.Seal()

	f := &fixture{
		finder: &fakeFinder{devices: make(map[device.Key]*device.Device)},
		spy:    &spySender{},
		clock:  testclock.NewClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)),
	}
	c, err := New(Deps{
		Devices:        f.finder,
		Translators:    reg,
		Executor:       f.spy,
		Dialects:       map[string]devicecall.Dialect{testDialectName: testRoute},
		DefaultDialect: testDialectName,
		DefaultTimeout: 30 * time.Second,
		Clock:          f.clock,
		Observers: []Observer{ObserverFunc(func(_ context.Context, rec Record) {
			f.seen = append(f.seen, rec)
		})},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.caller = c
	return f
}

func testRequest(scope, id string) *message.Request {
	return &message.Request{
		Header:       message.Header{ScopeID: scope, DeviceID: id},
		Type:         typeDomainRequest,
		ResponseType: typeDomainResponse,
		Channel:      message.Channel{AppName: "CMD", AppVersion: "V1", Method: message.MethodExecute, Resources: []string{"req-1"}},
		Payload:      message.Payload{Body: []byte("uptime")},
	}
}

// ============================================================================
// Construction
// ============================================================================

func TestNew_MissingDependencies(t *testing.T) {
	reg := translator.NewRegistry()
	base := Deps{Devices: &fakeFinder{}, Translators: reg, Executor: &spySender{}, DefaultTimeout: time.Second}

	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"no devices", func(d *Deps) { d.Devices = nil }},
		{"no translators", func(d *Deps) { d.Translators = nil }},
		{"no executor", func(d *Deps) { d.Executor = nil }},
		{"no default timeout", func(d *Deps) { d.DefaultTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base
			tt.mutate(&d)
			if _, err := New(d); !errors.Is(err, ErrMissingDependency) {
				t.Errorf("New() error = %v, want ErrMissingDependency", err)
			}
		})
	}
}

// ============================================================================
// Preconditions
// ============================================================================

func TestPreconditions_NeverReachExecutor(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(f *fakeFinder)
		request    func() *message.Request
		timeout    time.Duration
		wantKind   Kind
		wantStatus device.ConnectionStatus
	}{
		{
			name:     "nil request",
			request:  func() *message.Request { return nil },
			wantKind: KindInvalidArgument,
		},
		{
			name: "missing device id",
			request: func() *message.Request {
				r := testRequest("acme", "")
				return r
			},
			wantKind: KindInvalidArgument,
		},
		{
			name: "unknown method",
			request: func() *message.Request {
				r := testRequest("acme", "gw")
				r.Channel.Method = "PATCH"
				return r
			},
			wantKind: KindInvalidArgument,
		},
		{
			name:     "negative timeout",
			setup:    func(f *fakeFinder) { f.add("acme", "gw", device.StatusConnected) },
			request:  func() *message.Request { return testRequest("acme", "gw") },
			timeout:  -time.Second,
			wantKind: KindInvalidArgument,
		},
		{
			name:     "device not found",
			request:  func() *message.Request { return testRequest("acme", "ghost") },
			wantKind: KindDeviceNotFound,
		},
		{
			name:     "never connected",
			setup:    func(f *fakeFinder) { f.add("acme", "gw", "") },
			request:  func() *message.Request { return testRequest("acme", "gw") },
			wantKind: KindDeviceNeverConnected,
		},
		{
			name:       "disconnected",
			setup:      func(f *fakeFinder) { f.add("acme", "gw", device.StatusDisconnected) },
			request:    func() *message.Request { return testRequest("acme", "gw") },
			wantKind:   KindDeviceNotConnected,
			wantStatus: device.StatusDisconnected,
		},
		{
			name:       "missing",
			setup:      func(f *fakeFinder) { f.add("acme", "gw", device.StatusMissing) },
			request:    func() *message.Request { return testRequest("acme", "gw") },
			wantKind:   KindDeviceNotConnected,
			wantStatus: device.StatusMissing,
		},
	}

	for _, tt := range tests {
		for _, forget := range []bool{false, true} {
			name := tt.name + "/send"
			if forget {
				name = tt.name + "/send-and-forget"
			}
			t.Run(name, func(t *testing.T) {
				f := newFixture(t, false)
				if tt.setup != nil {
					tt.setup(f.finder)
				}

				var err error
				opts := Options{Request: tt.request(), Timeout: tt.timeout}
				if forget {
					err = f.caller.SendAndForget(context.Background(), opts)
				} else {
					_, err = f.caller.Send(context.Background(), opts)
				}

				if got := KindOf(err); got != tt.wantKind {
					t.Fatalf("KindOf(%v) = %s, want %s", err, got, tt.wantKind)
				}
				if f.spy.calls() != 0 {
					t.Errorf("executor invoked %d times, want 0", f.spy.calls())
				}
				var ce *Error
				if errors.As(err, &ce) && ce.Status != tt.wantStatus {
					t.Errorf("Status = %q, want %q", ce.Status, tt.wantStatus)
				}
			})
		}
	}
}

func TestPreconditions_Order(t *testing.T) {
	// A request that is invalid AND addressed to an unknown device reports
	// the first failing precondition.
	f := newFixture(t, false)
	r := testRequest("acme", "ghost")
	r.Channel.AppName = ""

	_, err := f.caller.Send(context.Background(), Options{Request: r})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestPreconditions_RegistryFailure(t *testing.T) {
	f := newFixture(t, false)
	f.finder.err = errors.New("database is locked")

	_, err := f.caller.Send(context.Background(), Options{Request: testRequest("acme", "gw")})
	if KindOf(err) != KindUnknown {
		t.Errorf("KindOf() = %s, want Unknown", KindOf(err))
	}
	if f.spy.calls() != 0 {
		t.Error("executor invoked after registry failure")
	}
}

// ============================================================================
// Send
// ============================================================================

func TestSend_RoundTripKeepsAddress(t *testing.T) {
	for _, omit := range []bool{false, true} {
		t.Run(fmt.Sprintf("omitScope=%v", omit), func(t *testing.T) {
			f := newFixture(t, omit)
			rng := rand.New(rand.NewPCG(1, 2))

			for i := range 25 {
				scope := fmt.Sprintf("scope-%d", rng.IntN(1000))
				id := fmt.Sprintf("dev-%d", i)
				f.finder.add(scope, id, device.StatusConnected)

				resp, err := f.caller.Send(context.Background(), Options{Request: testRequest(scope, id)})
				if err != nil {
					t.Fatalf("Send() error = %v", err)
				}
				if resp.ScopeID != scope || resp.DeviceID != id {
					t.Fatalf("response address = %s/%s, want %s/%s", resp.ScopeID, resp.DeviceID, scope, id)
				}
			}
		})
	}
}

func TestSend_StampsCopyNotOriginal(t *testing.T) {
	f := newFixture(t, false)
	f.finder.add("acme", "gw", device.StatusConnected)

	req := testRequest("acme", "gw")
	resp, err := f.caller.Send(context.Background(), Options{Request: req})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !req.SentOn.IsZero() {
		t.Error("Send() mutated the caller's request")
	}
	if string(resp.Payload.Body) != "uptime" || resp.Code != message.CodeAccepted {
		t.Errorf("response = %+v", resp)
	}
	if resp.ReceivedOn.IsZero() {
		t.Error("ReceivedOn not stamped")
	}

	if len(f.seen) != 1 {
		t.Fatalf("observer saw %d records, want 1", len(f.seen))
	}
	rec := f.seen[0]
	if rec.Request == req || !rec.Request.SentOn.Equal(f.clock.Now()) {
		t.Errorf("observer request = %+v, want stamped copy", rec.Request)
	}
	if rec.Response != resp || rec.Err != nil || rec.Dialect != testDialectName {
		t.Errorf("record = %+v", rec)
	}
}

func TestSend_ErrorMapping(t *testing.T) {
	transportErr := &transport.Error{Op: "subscribe", Destination: "$ctl/+/core/+/REPLY/#", Err: transport.ErrNotConnected}

	tests := []struct {
		name      string
		reply     func(any) (any, error)
		timeout   time.Duration
		wantKind  Kind
		wantIs    error
		unchanged bool
	}{
		{
			name:     "executor timeout",
			reply:    func(any) (any, error) { return nil, fmt.Errorf("%w after 5s", devicecall.ErrTimeout) },
			timeout:  5 * time.Second,
			wantKind: KindTimeout,
			wantIs:   ErrTimeout,
		},
		{
			name:     "publish failure",
			reply:    func(any) (any, error) { return nil, &devicecall.SendError{Err: transportErr} },
			wantKind: KindSendError,
			wantIs:   ErrSendError,
		},
		{
			name:      "bare transport error propagates unchanged",
			reply:     func(any) (any, error) { return nil, transportErr },
			unchanged: true,
		},
		{
			name:      "caller cancellation propagates unchanged",
			reply:     func(any) (any, error) { return nil, context.Canceled },
			unchanged: true,
		},
		{
			name: "reply translator missing",
			reply: func(any) (any, error) {
				return nil, &translator.NotFoundError{Source: transport.TypeFrame, Target: typeDialectResp}
			},
			wantKind: KindUnsupportedTranslation,
			wantIs:   ErrUnsupportedTranslation,
		},
		{
			name:     "executor closed",
			reply:    func(any) (any, error) { return nil, devicecall.ErrClosed },
			wantKind: KindSendError,
			wantIs:   devicecall.ErrClosed,
		},
		{
			name:     "reply of unexpected type",
			reply:    func(any) (any, error) { return "not a dialect response", nil },
			wantKind: KindSendError,
			wantIs:   translator.ErrTypeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			f.finder.add("acme", "gw", device.StatusConnected)
			cause := errors.New("unset")
			f.spy.reply = func(req any) (any, error) {
				v, err := tt.reply(req)
				cause = err
				return v, err
			}

			_, err := f.caller.Send(context.Background(), Options{Request: testRequest("acme", "gw"), Timeout: tt.timeout})
			if tt.unchanged {
				if err != cause {
					t.Fatalf("error = %#v, want the executor's error unchanged", err)
				}
				return
			}
			if KindOf(err) != tt.wantKind {
				t.Fatalf("KindOf(%v) = %s, want %s", err, KindOf(err), tt.wantKind)
			}
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.wantIs)
			}

			var ce *Error
			errors.As(err, &ce)
			switch ce.Kind {
			case KindTimeout:
				if ce.Timeout != tt.timeout {
					t.Errorf("Timeout = %s, want %s", ce.Timeout, tt.timeout)
				}
			case KindSendError:
				if ce.Request == nil || ce.Request.SentOn.IsZero() {
					t.Errorf("SendError.Request = %+v, want the stamped request", ce.Request)
				}
			}
		})
	}
}

func TestSend_DefaultTimeout(t *testing.T) {
	f := newFixture(t, false)
	f.finder.add("acme", "gw", device.StatusConnected)

	var got time.Duration
	f.caller.executor = senderFunc(func(_ context.Context, _ devicecall.Dialect, req any, timeout time.Duration) (any, error) {
		got = timeout
		return echoReply(req)
	})

	if _, err := f.caller.Send(context.Background(), Options{Request: testRequest("acme", "gw")}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got != f.caller.DefaultTimeout() {
		t.Errorf("executor timeout = %s, want default %s", got, f.caller.DefaultTimeout())
	}
}

type senderFunc func(ctx context.Context, d devicecall.Dialect, req any, timeout time.Duration) (any, error)

func (f senderFunc) Send(ctx context.Context, d devicecall.Dialect, req any, timeout time.Duration) (any, error) {
	return f(ctx, d, req, timeout)
}

func (f senderFunc) SendAndForget(context.Context, devicecall.Dialect, any) error { return nil }

func TestSend_UnsupportedTranslation(t *testing.T) {
	t.Run("unknown dialect", func(t *testing.T) {
		f := newFixture(t, false)
		f.finder.add("acme", "gw", device.StatusConnected)
		f.finder.devices[device.Key{ScopeID: "acme", ID: "gw"}].Dialect = "legacy/xml"

		_, err := f.caller.Send(context.Background(), Options{Request: testRequest("acme", "gw")})
		var ce *Error
		if !errors.As(err, &ce) || ce.Kind != KindUnsupportedTranslation || ce.Dialect != "legacy/xml" {
			t.Fatalf("error = %v, want UnsupportedTranslation for legacy/xml", err)
		}
		if f.spy.calls() != 0 {
			t.Error("executor invoked for unknown dialect")
		}
	})

	t.Run("request type without translator", func(t *testing.T) {
		f := newFixture(t, false)
		f.finder.add("acme", "gw", device.StatusConnected)
		req := testRequest("acme", "gw")
		req.Type = "test/unregistered"

		_, err := f.caller.Send(context.Background(), Options{Request: req})
		var ce *Error
		if !errors.As(err, &ce) || ce.Kind != KindUnsupportedTranslation {
			t.Fatalf("error = %v, want UnsupportedTranslation", err)
		}
		if ce.Source != "test/unregistered" || ce.Target != typeDialectReq {
			t.Errorf("error names %s -> %s", ce.Source, ce.Target)
		}
		if !strings.Contains(err.Error(), "test/unregistered") || !strings.Contains(err.Error(), string(typeDialectReq)) {
			t.Errorf("Error() = %q, want both types named", err.Error())
		}
		if f.spy.calls() != 0 {
			t.Error("executor invoked without a request translator")
		}
	})

	t.Run("response type without translator is caught before sending", func(t *testing.T) {
		f := newFixture(t, false)
		f.finder.add("acme", "gw", device.StatusConnected)
		req := testRequest("acme", "gw")
		req.ResponseType = "test/unregistered-response"

		_, err := f.caller.Send(context.Background(), Options{Request: req})
		if !errors.Is(err, ErrUnsupportedTranslation) {
			t.Fatalf("error = %v, want ErrUnsupportedTranslation", err)
		}
		if f.spy.calls() != 0 {
			t.Error("request was sent although its reply could not be decoded")
		}
	})
}

// ============================================================================
// SendAndForget
// ============================================================================

func TestSendAndForget(t *testing.T) {
	f := newFixture(t, false)
	f.finder.add("acme", "gw", device.StatusConnected)

	if err := f.caller.SendAndForget(context.Background(), Options{Request: testRequest("acme", "gw")}); err != nil {
		t.Fatalf("SendAndForget() error = %v", err)
	}
	if f.spy.forgets != 1 || f.spy.sends != 0 {
		t.Errorf("forgets=%d sends=%d, want 1/0", f.spy.forgets, f.spy.sends)
	}
	if dr, ok := f.spy.last.(dialectRequest); !ok || dr.Device != "gw" {
		t.Errorf("executor got %#v", f.spy.last)
	}
	if len(f.seen) != 1 || !f.seen[0].FireAndForget {
		t.Errorf("observer records = %+v", f.seen)
	}

	f.spy.forget = &devicecall.SendError{Err: transport.ErrNotConnected}
	err := f.caller.SendAndForget(context.Background(), Options{Request: testRequest("acme", "gw")})
	if !errors.Is(err, ErrSendError) || !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("error = %v, want SendError wrapping ErrNotConnected", err)
	}
}

// ============================================================================
// Full stack over the loopback broker
// ============================================================================

func TestCaller_OverLoopback(t *testing.T) {
	reg := translator.NewRegistry()
	registerTestTranslators(reg, true)
	translator.MustRegister(reg, typeDialectReq, transport.TypeFrame, func(r dialectRequest) (transport.Frame, error) {
		return transport.Frame{
			Topic:   fmt.Sprintf("$ctl/%s/%s/%s/EXEC/%s", r.Scope, r.Device, r.App, r.ID),
			Payload: r.Body,
		}, nil
	})
	translator.MustRegister(reg, transport.TypeFrame, typeDialectResp, func(fr transport.Frame) (dialectResponse, error) {
		return dialectResponse{ID: path.Base(fr.Topic), Code: "ACCEPTED", Body: fr.Payload}, nil
	})
	reg.Seal()

	lb := transport.NewLoopback(nil, "conn-core")
	defer lb.Close() //nolint:errcheck // test cleanup

	exec := devicecall.New(devicecall.Config{
		ReplyFilter: "$ctl/+/core/+/REPLY/#",
		Correlate: func(topic string) (string, bool) {
			_, id, ok := strings.Cut(topic, "/REPLY/")
			return id, ok && id != ""
		},
	}, lb, reg, wire.New(wire.Config{Classifier: "$ctl"}, reg), nil)
	if err := exec.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer exec.Close() //nolint:errcheck // test cleanup

	// The device answers "<body>!" on the reply topic.
	err := lb.Subscribe("$ctl/acme/gw/CMD-V1/EXEC/+", func(m transport.Message) {
		body := make([]byte, m.Length)
		_, _ = m.Body.Read(body)
		_ = lb.Publish(context.Background(), "$ctl/acme/core/CMD-V1/REPLY/"+path.Base(m.Destination), append(body, '!'), nil)
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	finder := &fakeFinder{devices: make(map[device.Key]*device.Device)}
	finder.add("acme", "gw", device.StatusConnected)

	caller, err := New(Deps{
		Devices:        finder,
		Translators:    reg,
		Executor:       exec,
		Dialects:       map[string]devicecall.Dialect{testDialectName: testRoute},
		DefaultTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := caller.Send(context.Background(), Options{Request: testRequest("acme", "gw")})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if string(resp.Payload.Body) != "uptime!" {
		t.Errorf("Body = %q, want uptime!", resp.Payload.Body)
	}
	if resp.ScopeID != "acme" || resp.DeviceID != "gw" {
		t.Errorf("address = %s/%s, want back-filled acme/gw", resp.ScopeID, resp.DeviceID)
	}

	lb.SetConnected(false)
	_, err = caller.Send(context.Background(), Options{Request: testRequest("acme", "gw")})
	if !errors.Is(err, ErrSendError) || !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("error = %v, want SendError wrapping transport.ErrNotConnected", err)
	}
}

// ============================================================================
// Error type
// ============================================================================

func TestKind_HTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindInvalidArgument, 400},
		{KindDeviceNotFound, 404},
		{KindDeviceNeverConnected, 409},
		{KindDeviceNotConnected, 409},
		{KindTimeout, 504},
		{KindSendError, 500},
		{KindUnsupportedTranslation, 500},
		{KindUnknown, 500},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestKind_Retryable(t *testing.T) {
	for _, k := range []Kind{KindSendError, KindTimeout} {
		if !k.Retryable() {
			t.Errorf("%s.Retryable() = false", k)
		}
	}
	for _, k := range []Kind{KindInvalidArgument, KindDeviceNotFound, KindUnsupportedTranslation} {
		if k.Retryable() {
			t.Errorf("%s.Retryable() = true", k)
		}
	}
}

func TestError_IsOnlyItsOwnSentinel(t *testing.T) {
	err := error(&Error{Kind: KindTimeout, Timeout: time.Second, Err: devicecall.ErrTimeout})
	if !errors.Is(err, ErrTimeout) {
		t.Error("errors.Is(ErrTimeout) = false")
	}
	if errors.Is(err, ErrSendError) {
		t.Error("errors.Is(ErrSendError) = true")
	}
	if !errors.Is(err, devicecall.ErrTimeout) {
		t.Error("cause not reachable through Unwrap")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("KindOf(plain) != Unknown")
	}
}

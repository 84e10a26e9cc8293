package devicecall

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/juju/clock/testclock"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
	"github.com/nerrad567/gray-logic-fleet/internal/management/translator"
	"github.com/nerrad567/gray-logic-fleet/internal/management/transport"
	"github.com/nerrad567/gray-logic-fleet/internal/management/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	typeTestRequest  translator.Type = "test/request"
	typeTestResponse translator.Type = "test/response"
)

var testDialect = Dialect{Request: typeTestRequest, Response: typeTestResponse}

type testRequest struct {
	ID     string
	Device string
	Body   string
}

func (r testRequest) CorrelationID() string { return r.ID }

type testResponse struct {
	ID   string
	Body string
}

type harness struct {
	lb   *transport.Loopback
	exec *Executor
}

func newHarness(t *testing.T, clk clock.Clock) *harness {
	t.Helper()

	reg := translator.NewRegistry()
	translator.MustRegister(reg, typeTestRequest, transport.TypeFrame, func(r testRequest) (transport.Frame, error) {
		return transport.Frame{
			Topic:   fmt.Sprintf("sys/acme/%s/TEST-V1/EXEC/%s", r.Device, r.ID),
			Payload: []byte(r.Body),
		}, nil
	})
	translator.MustRegister(reg, transport.TypeFrame, typeTestResponse, func(f transport.Frame) (testResponse, error) {
		return testResponse{ID: path.Base(f.Topic), Body: string(f.Payload)}, nil
	})
	reg.Seal()

	lb := transport.NewLoopback(clk, "conn-1")
	t.Cleanup(func() { _ = lb.Close() })

	cfg := Config{
		ReplyFilter: "sys/+/core/+/REPLY/#",
		Correlate: func(topic string) (string, bool) {
			_, id, ok := strings.Cut(topic, "/REPLY/")
			return id, ok && id != ""
		},
		QoS: message.QoSAtLeastOnce,
	}
	exec := New(cfg, lb, reg, wire.New(wire.Config{Classifier: "sys"}, reg), clk)
	exec.SetMetrics(NewMetrics())
	if err := exec.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = exec.Close() })

	return &harness{lb: lb, exec: exec}
}

// device subscribes a fake device that answers each request with reply(body).
// Returning ok=false leaves the request unanswered.
func (h *harness) device(t *testing.T, id string, reply func(requestID, body string) (string, bool)) {
	t.Helper()
	err := h.lb.Subscribe("sys/acme/"+id+"/TEST-V1/EXEC/+", func(m transport.Message) {
		requestID := path.Base(m.Destination)
		body := make([]byte, m.Length)
		_, _ = m.Body.Read(body)

		answer, ok := reply(requestID, string(body))
		if !ok {
			return
		}
		_ = h.lb.Publish(context.Background(), "sys/acme/core/TEST-V1/REPLY/"+requestID, []byte(answer), nil)
	})
	if err != nil {
		t.Fatalf("device Subscribe() error = %v", err)
	}
}

func echo(_ string, body string) (string, bool) { return "echo:" + body, true }

func silent(string, string) (string, bool) { return "", false }

// ============================================================================
// Reply path
// ============================================================================

func TestSend_ReturnsCorrelatedReply(t *testing.T) {
	h := newHarness(t, nil)
	h.device(t, "gw-1", echo)

	got, err := h.exec.Send(context.Background(), testDialect, testRequest{ID: "r-1", Device: "gw-1", Body: "ls"}, 5*time.Second)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	resp, ok := got.(testResponse)
	if !ok {
		t.Fatalf("Send() = %T, want testResponse", got)
	}
	if resp.ID != "r-1" || resp.Body != "echo:ls" {
		t.Errorf("Send() = %+v", resp)
	}
	if n := h.exec.Pending(); n != 0 {
		t.Errorf("Pending() = %d, want 0", n)
	}
}

func TestSend_StampsRequestQoS(t *testing.T) {
	h := newHarness(t, nil)

	qos := make(chan string, 1)
	h.lb.SetPublishHook(func(_ string, _ []byte, headers transport.Headers) error {
		select {
		case qos <- headers[transport.HeaderQoS]:
		default:
		}
		return nil
	})

	if err := h.exec.SendAndForget(context.Background(), testDialect, testRequest{ID: "r-1", Device: "gw-1"}); err != nil {
		t.Fatalf("SendAndForget() error = %v", err)
	}
	if got := <-qos; got != "1" {
		t.Errorf("transport-qos = %q, want 1", got)
	}
}

func TestSend_ConcurrentCallsResolveIndependently(t *testing.T) {
	h := newHarness(t, nil)
	h.device(t, "gw-1", func(id, _ string) (string, bool) { return id, true })
	h.device(t, "gw-2", func(id, _ string) (string, bool) { return id, true })

	var g errgroup.Group
	for i := range 50 {
		g.Go(func() error {
			id := fmt.Sprintf("r-%d", i)
			device := []string{"gw-1", "gw-2"}[i%2]
			got, err := h.exec.Send(context.Background(), testDialect, testRequest{ID: id, Device: device}, 5*time.Second)
			if err != nil {
				return err
			}
			if body := got.(testResponse).Body; body != id {
				return fmt.Errorf("call %s got reply for %s", id, body)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if n := h.exec.Pending(); n != 0 {
		t.Errorf("Pending() = %d, want 0", n)
	}
}

func TestSend_DuplicateCorrelation(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	h := newHarness(t, clk)
	h.device(t, "gw-1", silent)

	done := make(chan error, 1)
	go func() {
		_, err := h.exec.Send(context.Background(), testDialect, testRequest{ID: "dup", Device: "gw-1"}, time.Minute)
		done <- err
	}()
	if err := clk.WaitAdvance(0, time.Second, 1); err != nil {
		t.Fatalf("first call never armed its deadline: %v", err)
	}

	_, err := h.exec.Send(context.Background(), testDialect, testRequest{ID: "dup", Device: "gw-1"}, time.Minute)
	if !errors.Is(err, ErrDuplicateCorrelation) {
		t.Errorf("second Send() error = %v, want ErrDuplicateCorrelation", err)
	}

	clk.Advance(time.Minute)
	if err := <-done; !errors.Is(err, ErrTimeout) {
		t.Errorf("first Send() error = %v, want ErrTimeout", err)
	}
}

// ============================================================================
// Timeout
// ============================================================================

func TestSend_TimesOutNoEarlierThanDeadline(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	h := newHarness(t, clk)
	h.device(t, "gw-1", silent)

	const timeout = 30 * time.Second
	done := make(chan error, 1)
	go func() {
		_, err := h.exec.Send(context.Background(), testDialect, testRequest{ID: "r-1", Device: "gw-1"}, timeout)
		done <- err
	}()

	if err := clk.WaitAdvance(timeout-time.Millisecond, time.Second, 1); err != nil {
		t.Fatalf("WaitAdvance() error = %v", err)
	}
	select {
	case err := <-done:
		t.Fatalf("Send() returned %v before the deadline", err)
	case <-time.After(50 * time.Millisecond):
	}

	clk.Advance(time.Millisecond)
	select {
	case err := <-done:
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("Send() error = %v, want ErrTimeout", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send() did not return after the deadline")
	}

	if n := h.exec.Pending(); n != 0 {
		t.Errorf("Pending() after timeout = %d, want 0", n)
	}
}

func TestSend_LateReplyDropped(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	h := newHarness(t, clk)
	h.device(t, "gw-1", silent)

	done := make(chan error, 1)
	go func() {
		_, err := h.exec.Send(context.Background(), testDialect, testRequest{ID: "r-late", Device: "gw-1"}, time.Second)
		done <- err
	}()
	if err := clk.WaitAdvance(time.Second, time.Second, 1); err != nil {
		t.Fatalf("WaitAdvance() error = %v", err)
	}
	if err := <-done; !errors.Is(err, ErrTimeout) {
		t.Fatalf("Send() error = %v, want ErrTimeout", err)
	}

	// The device answers after the caller gave up.
	if err := h.lb.Publish(context.Background(), "sys/acme/core/TEST-V1/REPLY/r-late", []byte("late"), nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	h.lb.Drain()

	if n := h.exec.Pending(); n != 0 {
		t.Errorf("Pending() = %d, want 0", n)
	}
}

// TestSend_ReplyDeadlineRace delivers the reply and fires the deadline at
// the same moment. Every call must observe exactly one of the two outcomes.
func TestSend_ReplyDeadlineRace(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	h := newHarness(t, clk)

	const timeout = time.Second
	h.device(t, "gw-1", func(string, string) (string, bool) {
		go clk.Advance(timeout)
		return "ok", true
	})

	var replied, timedOut int
	for i := range 200 {
		got, err := h.exec.Send(context.Background(), testDialect, testRequest{ID: fmt.Sprintf("race-%d", i), Device: "gw-1"}, timeout)
		switch {
		case err == nil:
			if got.(testResponse).Body != "ok" {
				t.Fatalf("iteration %d: unexpected reply %+v", i, got)
			}
			replied++
		case errors.Is(err, ErrTimeout):
			if got != nil {
				t.Fatalf("iteration %d: timeout carried a value %+v", i, got)
			}
			timedOut++
		default:
			t.Fatalf("iteration %d: unexpected error %v", i, err)
		}
	}
	h.lb.Drain()

	if replied+timedOut != 200 {
		t.Errorf("outcomes = %d, want 200", replied+timedOut)
	}
	if n := h.exec.Pending(); n != 0 {
		t.Errorf("Pending() = %d, want 0", n)
	}
	t.Logf("replied=%d timed_out=%d", replied, timedOut)
}

// ============================================================================
// Send failures and cancellation
// ============================================================================

func TestSend_PublishFailureLeavesNoPendingCall(t *testing.T) {
	h := newHarness(t, nil)
	refused := errors.New("broker refused")
	h.lb.SetPublishHook(func(string, []byte, transport.Headers) error { return refused })

	_, err := h.exec.Send(context.Background(), testDialect, testRequest{ID: "r-1", Device: "gw-1"}, time.Minute)

	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("Send() error = %v, want *SendError", err)
	}
	if !errors.Is(err, refused) {
		t.Errorf("SendError should wrap the transport cause, got %v", err)
	}
	if n := h.exec.Pending(); n != 0 {
		t.Errorf("Pending() = %d, want 0", n)
	}
}

func TestSendAndForget_ReturnsOnPublishAck(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	h := newHarness(t, clk)
	h.device(t, "gw-1", silent)

	done := make(chan error, 1)
	go func() {
		done <- h.exec.SendAndForget(context.Background(), testDialect, testRequest{ID: "f-1", Device: "gw-1"})
	}()

	// The test clock never advances: returning proves no deadline was awaited.
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SendAndForget() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("SendAndForget() blocked")
	}
	if n := h.exec.Pending(); n != 0 {
		t.Errorf("Pending() = %d, want 0", n)
	}
}

func TestSendAndForget_PublishFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.lb.SetConnected(false)

	err := h.exec.SendAndForget(context.Background(), testDialect, testRequest{ID: "f-1", Device: "gw-1"})

	var sendErr *SendError
	if !errors.As(err, &sendErr) || !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("SendAndForget() error = %v, want *SendError wrapping ErrNotConnected", err)
	}
}

func TestSend_ContextCancelled(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	h := newHarness(t, clk)
	h.device(t, "gw-1", silent)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.exec.Send(ctx, testDialect, testRequest{ID: "r-1", Device: "gw-1"}, time.Minute)
		done <- err
	}()
	if err := clk.WaitAdvance(0, time.Second, 1); err != nil {
		t.Fatalf("WaitAdvance() error = %v", err)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Send() error = %v, want context.Canceled", err)
	}
	if n := h.exec.Pending(); n != 0 {
		t.Errorf("Pending() = %d, want 0", n)
	}
}

func TestSend_Validation(t *testing.T) {
	h := newHarness(t, nil)

	if _, err := h.exec.Send(context.Background(), testDialect, testRequest{ID: "r", Device: "d"}, 0); !errors.Is(err, ErrInvalidTimeout) {
		t.Errorf("zero timeout error = %v", err)
	}
	if _, err := h.exec.Send(context.Background(), testDialect, testRequest{Device: "d"}, time.Second); !errors.Is(err, ErrNoCorrelation) {
		t.Errorf("missing id error = %v", err)
	}
	unknown := Dialect{Request: "test/unknown", Response: typeTestResponse}
	if _, err := h.exec.Send(context.Background(), unknown, testRequest{ID: "r"}, time.Second); !errors.Is(err, translator.ErrNotFound) {
		t.Errorf("unknown dialect error = %v", err)
	}
}

func TestClose_FailsPendingCalls(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	h := newHarness(t, clk)
	h.device(t, "gw-1", silent)

	done := make(chan error, 1)
	go func() {
		_, err := h.exec.Send(context.Background(), testDialect, testRequest{ID: "r-1", Device: "gw-1"}, time.Minute)
		done <- err
	}()
	if err := clk.WaitAdvance(0, time.Second, 1); err != nil {
		t.Fatalf("WaitAdvance() error = %v", err)
	}

	if err := h.exec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Fatalf("Send() error = %v, want ErrClosed", err)
	}

	_, err := h.exec.Send(context.Background(), testDialect, testRequest{ID: "r-2", Device: "gw-1"}, time.Minute)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
}

func TestIsConnected_FollowsTransport(t *testing.T) {
	h := newHarness(t, nil)
	if !h.exec.IsConnected() {
		t.Error("IsConnected() = false with connected transport")
	}
	h.lb.SetConnected(false)
	if h.exec.IsConnected() {
		t.Error("IsConnected() = true with disconnected transport")
	}
}

// failingSubscriber refuses subscriptions with a transport error.
type failingSubscriber struct {
	*transport.Loopback
	subscribes atomic.Int32
}

func (f *failingSubscriber) Subscribe(filter string, _ transport.Handler) error {
	f.subscribes.Add(1)
	return &transport.Error{Op: "subscribe", Destination: filter, Err: transport.ErrNotConnected}
}

func TestSend_SubscribeFailureIsTransportError(t *testing.T) {
	reg := translator.NewRegistry()
	translator.MustRegister(reg, typeTestRequest, transport.TypeFrame, func(r testRequest) (transport.Frame, error) {
		return transport.Frame{Topic: "sys/acme/" + r.Device + "/TEST-V1/EXEC/" + r.ID}, nil
	})
	lb := transport.NewLoopback(nil, "")
	defer lb.Close()
	client := &failingSubscriber{Loopback: lb}

	exec := New(Config{ReplyFilter: "sys/+/core/+/REPLY/#"}, client, reg, wire.New(wire.Config{Classifier: "sys"}, reg), nil)

	_, err := exec.Send(context.Background(), testDialect, testRequest{ID: "r-1", Device: "gw-1"}, time.Second)
	if !transport.IsTransportError(err) {
		t.Fatalf("Send() error = %v, want *transport.Error", err)
	}
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		t.Error("subscribe failure must not be reported as SendError")
	}
	if client.subscribes.Load() != 1 {
		t.Errorf("subscribes = %d, want 1", client.subscribes.Load())
	}
}

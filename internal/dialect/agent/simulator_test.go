package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/device"
	"github.com/nerrad567/gray-logic-fleet/internal/management/call"
	"github.com/nerrad567/gray-logic-fleet/internal/management/devicecall"
	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
	"github.com/nerrad567/gray-logic-fleet/internal/management/transport"
	"github.com/nerrad567/gray-logic-fleet/internal/management/wire"
)

type staticFinder struct {
	devices map[device.Key]*device.Device
}

func (f staticFinder) Find(_ context.Context, scopeID, deviceID string) (*device.Device, error) {
	d, ok := f.devices[device.Key{ScopeID: scopeID, ID: deviceID}]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

type stack struct {
	lb     *transport.Loopback
	caller *call.Caller
}

// newStack wires a caller to the loopback broker with one connected device
// per encoding: gw-json and gw-cbor in scope acme.
func newStack(t *testing.T) *stack {
	t.Helper()
	reg := newTestRegistry(t)
	lb := transport.NewLoopback(nil, "conn-1")
	t.Cleanup(func() { _ = lb.Close() })

	exec := devicecall.New(devicecall.Config{
		ReplyFilter: testCfg.ReplyFilter(),
		Correlate:   Correlate,
		QoS:         message.QoSAtLeastOnce,
	}, lb, reg, wire.New(wire.Config{Classifier: testCfg.Classifier}, reg), nil)
	if err := exec.Start(context.Background()); err != nil {
		t.Fatalf("executor Start() error = %v", err)
	}
	t.Cleanup(func() { _ = exec.Close() })

	finder := staticFinder{devices: make(map[device.Key]*device.Device)}
	for _, enc := range Encodings() {
		d := &device.Device{
			ScopeID:    "acme",
			ID:         "gw-" + string(enc),
			Dialect:    enc.DialectName(),
			Connection: &device.Connection{Status: device.StatusConnected},
		}
		finder.devices[d.Key()] = d
	}

	caller, err := call.New(call.Deps{
		Devices:        finder,
		Translators:    reg,
		Executor:       exec,
		Dialects:       Dialects(),
		DefaultDialect: DefaultDialect,
		DefaultTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("call.New() error = %v", err)
	}
	return &stack{lb: lb, caller: caller}
}

func (s *stack) startSimulator(t *testing.T, enc Encoding) *Simulator {
	t.Helper()
	sim := NewSimulator(testCfg, enc, s.lb, "acme", "gw-"+string(enc), nil)
	sim.Handle("CMD-V1", func(r Request) Response {
		if r.Verb != VerbExec {
			return Response{Code: message.CodeBadRequest}
		}
		return Response{
			Metrics: message.Metrics{"command.exit.code": 0},
			Body:    []byte(strings.ToUpper(string(r.Body))),
		}
	})
	if err := sim.Start(context.Background()); err != nil {
		t.Fatalf("simulator Start() error = %v", err)
	}
	t.Cleanup(func() { _ = sim.Stop(context.Background()) })
	return sim
}

func TestSimulator_AnswersThroughCaller(t *testing.T) {
	s := newStack(t)

	for _, enc := range Encodings() {
		t.Run(string(enc), func(t *testing.T) {
			s.startSimulator(t, enc)

			req := domainRequest()
			req.DeviceID = "gw-" + string(enc)
			resp, err := s.caller.Send(context.Background(), call.Options{Request: req})
			if err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			if resp.Code != message.CodeAccepted {
				t.Errorf("Code = %s, want ACCEPTED", resp.Code)
			}
			if string(resp.Payload.Body) != "UPTIME" {
				t.Errorf("Body = %q, want UPTIME", resp.Payload.Body)
			}
			if resp.ScopeID != "acme" || resp.DeviceID != req.DeviceID {
				t.Errorf("address = %s/%s", resp.ScopeID, resp.DeviceID)
			}
			if n, ok := resp.Payload.Metrics.Int("command.exit.code"); !ok || n != 0 {
				t.Errorf("command.exit.code = %v", resp.Payload.Metrics["command.exit.code"])
			}
		})
	}
}

func TestSimulator_UnknownApplication(t *testing.T) {
	s := newStack(t)
	s.startSimulator(t, EncodingJSON)

	req := domainRequest()
	req.DeviceID = "gw-json"
	req.Channel.AppName = "KEYS"
	resp, err := s.caller.Send(context.Background(), call.Options{Request: req})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.Code != message.CodeNotFound {
		t.Errorf("Code = %s, want NOT_FOUND", resp.Code)
	}
}

func TestSimulator_NoAgentTimesOut(t *testing.T) {
	s := newStack(t)

	req := domainRequest()
	req.DeviceID = "gw-cbor"
	_, err := s.caller.Send(context.Background(), call.Options{Request: req, Timeout: 50 * time.Millisecond})
	if !errors.Is(err, call.ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", err)
	}
}

func TestSimulator_LifecycleEvents(t *testing.T) {
	lb := transport.NewLoopback(nil, "")
	defer lb.Close() //nolint:errcheck // test cleanup

	var mu sync.Mutex
	var events []Data
	done := make(chan struct{}, 2)
	err := lb.Subscribe(testCfg.LifecycleFilter(), func(m transport.Message) {
		body := make([]byte, m.Length)
		_, _ = m.Body.Read(body)
		d, err := decodeData(testCfg, EncodingJSON.codec(), transport.Frame{Topic: m.Destination, Payload: body})
		if err != nil {
			t.Errorf("decodeData() error = %v", err)
			return
		}
		mu.Lock()
		events = append(events, d)
		mu.Unlock()
		done <- struct{}{}
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	sim := NewSimulator(testCfg, EncodingCBOR, lb, "acme", "gw-9", nil)
	sim.SetBirthMetric(MetricFirmwareVersion, "2.4.1")
	if err := sim.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-done
	if err := sim.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	birth, _ := events[0].Lifecycle()
	dc, _ := events[1].Lifecycle()
	if birth != EventBirth || dc != EventDisconnect {
		t.Errorf("events = %s, %s, want BIRTH, DC", birth, dc)
	}
	if enc, _ := events[0].Metrics.Text(MetricPayloadEncoding); enc != "cbor" {
		t.Errorf("payload_encoding = %q, want cbor", enc)
	}
	if fw, _ := events[0].Metrics.Text(MetricFirmwareVersion); fw != "2.4.1" {
		t.Errorf("firmware_version = %q", fw)
	}
	if lb.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d after Stop, want 1", lb.SubscriptionCount())
	}
}

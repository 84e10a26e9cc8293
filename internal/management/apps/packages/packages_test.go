package packages

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/management/apps"
	"github.com/nerrad567/gray-logic-fleet/internal/management/call"
	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
	"github.com/nerrad567/gray-logic-fleet/internal/management/transport"
)

var target = apps.Target{ScopeID: "acme", DeviceID: "gw-01"}

type stubCaller struct {
	resp      *message.Response
	forgetErr error
	sends     int
	forgets   int
	got       *message.Request
}

func (s *stubCaller) Send(_ context.Context, opts call.Options) (*message.Response, error) {
	s.sends++
	s.got = opts.Request
	return s.resp, nil
}

func (s *stubCaller) SendAndForget(_ context.Context, opts call.Options) error {
	s.forgets++
	s.got = opts.Request
	return s.forgetErr
}

var download = Download{
	URI:         "https://repo.example.com/dp/agent-1.3.0.dp",
	Name:        "agent",
	Version:     "1.3.0",
	Install:     true,
	RebootDelay: 5 * time.Second,
	BlockSize:   4096,
}

func TestInstall(t *testing.T) {
	c := &stubCaller{resp: &message.Response{Code: message.CodeAccepted}}

	jobID, err := New(c).Install(context.Background(), target, download, 0)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	m := c.got.Payload.Metrics
	if m[MetricJobID] != jobID || jobID == "" {
		t.Errorf("job id metric = %v, returned %q", m[MetricJobID], jobID)
	}
	if m[MetricURI] != download.URI || m[MetricInstall] != true || m[MetricRebootDelay] != int64(5000) || m[MetricBlockSize] != 4096 {
		t.Errorf("metrics = %v", m)
	}
	if _, ok := m[MetricUsername]; ok {
		t.Error("credentials sent without a username")
	}
	if c.got.Channel.ResourcePath() != "download" || c.got.Channel.Method != message.MethodExecute {
		t.Errorf("channel = %+v", c.got.Channel)
	}
}

func TestInstallAsync(t *testing.T) {
	c := &stubCaller{}
	jobID, err := New(c).InstallAsync(context.Background(), target, download)
	if err != nil {
		t.Fatalf("InstallAsync() error = %v", err)
	}
	if c.forgets != 1 || c.sends != 0 || jobID == "" {
		t.Errorf("forgets=%d sends=%d job=%q", c.forgets, c.sends, jobID)
	}

	fail := &stubCaller{forgetErr: &transport.Error{Op: "publish", Err: transport.ErrNotConnected}}
	if _, err := New(fail).InstallAsync(context.Background(), target, download); !transport.IsTransportError(err) {
		t.Errorf("error = %v, want transport error passed through", err)
	}
}

func TestInstall_Validation(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Download)
		want error
	}{
		{"relative uri", func(d *Download) { d.URI = "/dp/agent.dp" }, ErrInvalidURI},
		{"file scheme", func(d *Download) { d.URI = "file:///tmp/agent.dp" }, ErrInvalidURI},
		{"missing version", func(d *Download) { d.Version = "" }, ErrMissingName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := download
			tt.mod(&d)
			c := &stubCaller{}
			if _, err := New(c).Install(context.Background(), target, d, 0); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if c.sends+c.forgets != 0 {
				t.Error("request sent despite invalid input")
			}
		})
	}
}

func TestUninstall(t *testing.T) {
	c := &stubCaller{resp: &message.Response{Code: message.CodeAccepted}}
	u := Uninstall{Name: "agent", Version: "1.2.0", Reboot: true}

	if _, err := New(c).Uninstall(context.Background(), target, u, 0); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}
	if c.got.Channel.ResourcePath() != "uninstall" || c.got.Payload.Metrics[MetricReboot] != true {
		t.Errorf("request = %+v", c.got)
	}

	if _, err := New(c).UninstallAsync(context.Background(), target, u); err != nil {
		t.Fatalf("UninstallAsync() error = %v", err)
	}
	if c.forgets != 1 {
		t.Errorf("forgets = %d, want 1", c.forgets)
	}

	if _, err := New(c).Uninstall(context.Background(), target, Uninstall{Name: "agent"}, 0); !errors.Is(err, ErrMissingName) {
		t.Errorf("error = %v, want ErrMissingName", err)
	}
}

func TestList(t *testing.T) {
	c := &stubCaller{resp: &message.Response{
		Code:    message.CodeAccepted,
		Payload: message.Payload{Body: []byte(`{"packages":[{"name":"agent","version":"1.2.0","bundles":[{"name":"org.acme.agent","version":"1.2.0"}]}]}`)},
	}}
	pkgs, err := New(c).List(context.Background(), target, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(pkgs) != 1 || len(pkgs[0].Bundles) != 1 {
		t.Errorf("packages = %+v", pkgs)
	}
}

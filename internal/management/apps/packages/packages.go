// Package packages installs and removes deployment packages on devices
// (DEPLOY-V2).
//
// Downloads can take far longer than any reply timeout, so Install and
// Uninstall have fire-and-forget variants: the device reports progress
// through its own notifications instead of the reply.
package packages

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-fleet/internal/management/apps"
	"github.com/nerrad567/gray-logic-fleet/internal/management/call"
	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
)

// Descriptor identifies the package operations of DEPLOY-V2.
var Descriptor = apps.Descriptor{
	Name:     "DEPLOY",
	Version:  "V2",
	Request:  "packages/request",
	Response: "packages/response",
}

// Metric names of package operations.
const (
	MetricJobID         = "dp.job.id"
	MetricURI           = "dp.uri"
	MetricName          = "dp.name"
	MetricVersion       = "dp.version"
	MetricInstall       = "dp.install"
	MetricReboot        = "dp.reboot"
	MetricRebootDelay   = "dp.reboot.delay"
	MetricSystemUpdate  = "dp.install.system.update"
	MetricVerifierURI   = "dp.install.verifier.uri"
	MetricUsername      = "dp.username"
	MetricPassword      = "dp.password"
	MetricBlockSize     = "dp.download.block.size"
	MetricNotifyBlock   = "dp.download.notify.block.size"
	MetricTimeout       = "dp.download.timeout"
	MetricResumeEnabled = "dp.download.resume"
)

const (
	resourcePackages  = "packages"
	resourceDownload  = "download"
	resourceUninstall = "uninstall"
)

// Errors returned before a request is sent.
var (
	ErrInvalidURI  = errors.New("packages: download URI must be absolute http(s) or ftp")
	ErrMissingName = errors.New("packages: package name and version are required")
)

// Package is one deployment package installed on a device.
type Package struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Bundles []Bundle `json:"bundles,omitempty"`
}

// Bundle is a bundle contained in a package.
type Bundle struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Download describes a package to download and, optionally, install.
type Download struct {
	URI     string
	Name    string
	Version string

	// Install installs the package once the download completes.
	Install bool

	Reboot      bool
	RebootDelay time.Duration

	SystemUpdate bool
	VerifierURI  string

	Username string
	Password string

	// BlockSize and NotifyBlockSize are in bytes; zero leaves the device default.
	BlockSize       int
	NotifyBlockSize int
	Timeout         time.Duration
	Resume          bool
}

// Uninstall describes a package to remove.
type Uninstall struct {
	Name        string
	Version     string
	Reboot      bool
	RebootDelay time.Duration
}

// Service manages packages through a Caller.
type Service struct {
	caller apps.Caller
}

// New creates a packages Service.
func New(caller apps.Caller) *Service {
	return &Service{caller: caller}
}

// List returns the packages installed on the target device.
func (s *Service) List(ctx context.Context, target apps.Target, timeout time.Duration) ([]Package, error) {
	req := Descriptor.NewRequest(target, message.MethodRead, resourcePackages)
	resp, err := Descriptor.Do(ctx, s.caller, req, timeout)
	if err != nil {
		return nil, err
	}
	var out struct {
		Packages []Package `json:"packages"`
	}
	if err := apps.DecodeBody(resp, &out); err != nil {
		return nil, err
	}
	return out.Packages, nil
}

// Install asks the device to download, and optionally install, d and waits
// for the device to accept the job. It returns the job ID.
func (s *Service) Install(ctx context.Context, target apps.Target, d Download, timeout time.Duration) (string, error) {
	req, jobID, err := downloadRequest(target, d)
	if err != nil {
		return "", err
	}
	if _, err := Descriptor.Do(ctx, s.caller, req, timeout); err != nil {
		return "", err
	}
	return jobID, nil
}

// InstallAsync publishes the download request without waiting for a reply.
// A nil error means delivery was attempted.
func (s *Service) InstallAsync(ctx context.Context, target apps.Target, d Download) (string, error) {
	req, jobID, err := downloadRequest(target, d)
	if err != nil {
		return "", err
	}
	if err := s.caller.SendAndForget(ctx, call.Options{Request: req}); err != nil {
		return "", err
	}
	return jobID, nil
}

// Uninstall removes a package and waits for the device to accept the job.
func (s *Service) Uninstall(ctx context.Context, target apps.Target, u Uninstall, timeout time.Duration) (string, error) {
	req, jobID, err := uninstallRequest(target, u)
	if err != nil {
		return "", err
	}
	if _, err := Descriptor.Do(ctx, s.caller, req, timeout); err != nil {
		return "", err
	}
	return jobID, nil
}

// UninstallAsync publishes the uninstall request without waiting for a reply.
func (s *Service) UninstallAsync(ctx context.Context, target apps.Target, u Uninstall) (string, error) {
	req, jobID, err := uninstallRequest(target, u)
	if err != nil {
		return "", err
	}
	if err := s.caller.SendAndForget(ctx, call.Options{Request: req}); err != nil {
		return "", err
	}
	return jobID, nil
}

func downloadRequest(target apps.Target, d Download) (*message.Request, string, error) {
	u, err := url.Parse(d.URI)
	if err != nil || !u.IsAbs() || !validScheme(u.Scheme) {
		return nil, "", ErrInvalidURI
	}
	if d.Name == "" || d.Version == "" {
		return nil, "", ErrMissingName
	}

	jobID := uuid.NewString()
	req := Descriptor.NewRequest(target, message.MethodExecute, resourceDownload)
	m := req.Payload.Metrics
	m[MetricJobID] = jobID
	m[MetricURI] = d.URI
	m[MetricName] = d.Name
	m[MetricVersion] = d.Version
	m[MetricInstall] = d.Install
	m[MetricReboot] = d.Reboot
	if d.RebootDelay > 0 {
		m[MetricRebootDelay] = d.RebootDelay.Milliseconds()
	}
	if d.SystemUpdate {
		m[MetricSystemUpdate] = true
	}
	if d.VerifierURI != "" {
		m[MetricVerifierURI] = d.VerifierURI
	}
	if d.Username != "" {
		m[MetricUsername] = d.Username
		m[MetricPassword] = d.Password
	}
	if d.BlockSize > 0 {
		m[MetricBlockSize] = d.BlockSize
	}
	if d.NotifyBlockSize > 0 {
		m[MetricNotifyBlock] = d.NotifyBlockSize
	}
	if d.Timeout > 0 {
		m[MetricTimeout] = d.Timeout.Milliseconds()
	}
	if d.Resume {
		m[MetricResumeEnabled] = true
	}
	return req, jobID, nil
}

func uninstallRequest(target apps.Target, u Uninstall) (*message.Request, string, error) {
	if u.Name == "" || u.Version == "" {
		return nil, "", ErrMissingName
	}
	jobID := uuid.NewString()
	req := Descriptor.NewRequest(target, message.MethodExecute, resourceUninstall)
	m := req.Payload.Metrics
	m[MetricJobID] = jobID
	m[MetricName] = u.Name
	m[MetricVersion] = u.Version
	m[MetricReboot] = u.Reboot
	if u.RebootDelay > 0 {
		m[MetricRebootDelay] = u.RebootDelay.Milliseconds()
	}
	return req, jobID, nil
}

func validScheme(s string) bool {
	switch strings.ToLower(s) {
	case "http", "https", "ftp":
		return true
	}
	return false
}

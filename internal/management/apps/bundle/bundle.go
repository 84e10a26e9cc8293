// Package bundle lists, starts and stops the software bundles running on
// devices (DEPLOY-V2).
package bundle

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/management/apps"
	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
)

// Descriptor identifies the bundle operations of DEPLOY-V2.
var Descriptor = apps.Descriptor{
	Name:     "DEPLOY",
	Version:  "V2",
	Request:  "bundle/request",
	Response: "bundle/response",
}

const (
	resourceBundles = "bundles"
	resourceStart   = "start"
	resourceStop    = "stop"
)

// ErrInvalidBundleID is returned for a negative bundle ID.
var ErrInvalidBundleID = errors.New("bundle: invalid bundle id")

// State is the lifecycle state of a bundle.
type State string

// Bundle states reported by devices.
const (
	StateInstalled   State = "INSTALLED"
	StateResolved    State = "RESOLVED"
	StateStarting    State = "STARTING"
	StateActive      State = "ACTIVE"
	StateStopping    State = "STOPPING"
	StateUninstalled State = "UNINSTALLED"
)

// Bundle is one bundle installed on a device.
type Bundle struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
	State   State  `json:"state"`
	Signed  bool   `json:"signed,omitempty"`
}

// Service manages bundles through a Caller.
type Service struct {
	caller apps.Caller
}

// New creates a bundle Service.
func New(caller apps.Caller) *Service {
	return &Service{caller: caller}
}

// List returns the bundles installed on the target device.
func (s *Service) List(ctx context.Context, target apps.Target, timeout time.Duration) ([]Bundle, error) {
	req := Descriptor.NewRequest(target, message.MethodRead, resourceBundles)
	resp, err := Descriptor.Do(ctx, s.caller, req, timeout)
	if err != nil {
		return nil, err
	}
	var out struct {
		Bundles []Bundle `json:"bundles"`
	}
	if err := apps.DecodeBody(resp, &out); err != nil {
		return nil, err
	}
	return out.Bundles, nil
}

// Start starts bundle id.
func (s *Service) Start(ctx context.Context, target apps.Target, id int64, timeout time.Duration) error {
	return s.exec(ctx, target, resourceStart, id, timeout)
}

// Stop stops bundle id.
func (s *Service) Stop(ctx context.Context, target apps.Target, id int64, timeout time.Duration) error {
	return s.exec(ctx, target, resourceStop, id, timeout)
}

func (s *Service) exec(ctx context.Context, target apps.Target, action string, id int64, timeout time.Duration) error {
	if id < 0 {
		return ErrInvalidBundleID
	}
	req := Descriptor.NewRequest(target, message.MethodExecute, action, strconv.FormatInt(id, 10))
	_, err := Descriptor.Do(ctx, s.caller, req, timeout)
	return err
}

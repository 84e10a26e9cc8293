// Package configuration reads and writes device component configurations
// (CONF-V1).
package configuration

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/management/apps"
	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
)

// Descriptor identifies CONF-V1.
var Descriptor = apps.Descriptor{
	Name:     "CONF",
	Version:  "V1",
	Request:  "configuration/request",
	Response: "configuration/response",
}

const (
	resourceConfigurations = "configurations"
	resourceSnapshots      = "snapshots"
)

// ErrNoComponents is returned by Write when there is nothing to write.
var ErrNoComponents = errors.New("configuration: no components to write")

// Property is one typed configuration value.
type Property struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Values   []any  `json:"values"`
	Password bool   `json:"password,omitempty"`
}

// Component is the configuration of one device component.
type Component struct {
	ID         string     `json:"id"`
	Definition string     `json:"definition,omitempty"`
	Properties []Property `json:"properties"`
}

// Configuration is a set of component configurations.
type Configuration struct {
	Components []Component `json:"components"`
}

// Component returns the component with id.
func (c *Configuration) Component(id string) (*Component, bool) {
	for i := range c.Components {
		if c.Components[i].ID == id {
			return &c.Components[i], true
		}
	}
	return nil, false
}

// Snapshot identifies a stored configuration snapshot.
type Snapshot struct {
	ID        int64 `json:"id"`
	Timestamp int64 `json:"timestamp"`
}

// Service reads and writes configurations through a Caller.
type Service struct {
	caller apps.Caller
}

// New creates a configuration Service.
func New(caller apps.Caller) *Service {
	return &Service{caller: caller}
}

// Read returns the configuration of componentID, or of every component when
// componentID is empty.
func (s *Service) Read(ctx context.Context, target apps.Target, componentID string, timeout time.Duration) (*Configuration, error) {
	resources := []string{resourceConfigurations}
	if componentID != "" {
		resources = append(resources, componentID)
	}
	req := Descriptor.NewRequest(target, message.MethodRead, resources...)

	resp, err := Descriptor.Do(ctx, s.caller, req, timeout)
	if err != nil {
		return nil, err
	}
	cfg := &Configuration{}
	if err := apps.DecodeBody(resp, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write applies cfg. A single component is written to its own resource.
func (s *Service) Write(ctx context.Context, target apps.Target, cfg Configuration, timeout time.Duration) error {
	if len(cfg.Components) == 0 {
		return ErrNoComponents
	}
	resources := []string{resourceConfigurations}
	if len(cfg.Components) == 1 {
		resources = append(resources, cfg.Components[0].ID)
	}
	req := Descriptor.NewRequest(target, message.MethodWrite, resources...)
	if err := apps.SetBody(req, cfg); err != nil {
		return err
	}
	_, err := Descriptor.Do(ctx, s.caller, req, timeout)
	return err
}

// Snapshots lists the configuration snapshots stored on the device.
func (s *Service) Snapshots(ctx context.Context, target apps.Target, timeout time.Duration) ([]Snapshot, error) {
	req := Descriptor.NewRequest(target, message.MethodRead, resourceSnapshots)
	resp, err := Descriptor.Do(ctx, s.caller, req, timeout)
	if err != nil {
		return nil, err
	}
	var out struct {
		Snapshots []Snapshot `json:"snapshots"`
	}
	if err := apps.DecodeBody(resp, &out); err != nil {
		return nil, err
	}
	return out.Snapshots, nil
}

// Rollback restores snapshotID, or the latest snapshot when it is zero.
func (s *Service) Rollback(ctx context.Context, target apps.Target, snapshotID int64, timeout time.Duration) error {
	resources := []string{resourceSnapshots}
	if snapshotID != 0 {
		resources = append(resources, strconv.FormatInt(snapshotID, 10))
	}
	req := Descriptor.NewRequest(target, message.MethodExecute, append(resources, "rollback")...)
	_, err := Descriptor.Do(ctx, s.caller, req, timeout)
	return err
}

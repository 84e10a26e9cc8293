// Package inventory reads the software inventory of devices (INVENTORY-V1).
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/management/apps"
	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
)

// Descriptor identifies INVENTORY-V1.
var Descriptor = apps.Descriptor{
	Name:     "INVENTORY",
	Version:  "V1",
	Request:  "inventory/request",
	Response: "inventory/response",
}

// Kind selects which part of the inventory to read.
type Kind string

// Inventory kinds.
const (
	KindAll            Kind = "inventory"
	KindBundles        Kind = "bundles"
	KindPackages       Kind = "packages"
	KindSystemPackages Kind = "systemPackages"
	KindContainers     Kind = "containers"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAll, KindBundles, KindPackages, KindSystemPackages, KindContainers:
		return true
	}
	return false
}

// Item is one inventory entry.
type Item struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Type    string `json:"type"`
	State   string `json:"state,omitempty"`
}

// Service reads inventories through a Caller.
type Service struct {
	caller apps.Caller
}

// New creates an inventory Service.
func New(caller apps.Caller) *Service {
	return &Service{caller: caller}
}

// Read returns the inventory items of kind.
func (s *Service) Read(ctx context.Context, target apps.Target, kind Kind, timeout time.Duration) ([]Item, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("inventory: unknown kind %q", kind)
	}
	req := Descriptor.NewRequest(target, message.MethodRead, string(kind))
	resp, err := Descriptor.Do(ctx, s.caller, req, timeout)
	if err != nil {
		return nil, err
	}
	var out struct {
		Items []Item `json:"inventoryItems"`
	}
	if err := apps.DecodeBody(resp, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

package device

import "time"

// ConnectionStatus is the last known state of a device's broker connection.
type ConnectionStatus string

// Connection statuses reported by the lifecycle topics.
const (
	// StatusConnected is set on BIRTH.
	StatusConnected ConnectionStatus = "connected"

	// StatusDisconnected is set on a clean disconnect (DC).
	StatusDisconnected ConnectionStatus = "disconnected"

	// StatusMissing is set when the broker gives up on the device (LWT, MISSING).
	StatusMissing ConnectionStatus = "missing"
)

// AllConnectionStatuses returns every valid status.
func AllConnectionStatuses() []ConnectionStatus {
	return []ConnectionStatus{StatusConnected, StatusDisconnected, StatusMissing}
}

// Valid reports whether s is a known status.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case StatusConnected, StatusDisconnected, StatusMissing:
		return true
	}
	return false
}

// Key identifies a device. Device ids are only unique within a scope.
type Key struct {
	ScopeID string
	ID      string
}

func (k Key) String() string { return k.ScopeID + "/" + k.ID }

// Connection describes the device's session with the broker.
type Connection struct {
	// ID is the broker's connection identifier for the current session.
	ID string `json:"id,omitempty"`

	Status ConnectionStatus `json:"status"`

	ClientIP string `json:"client_ip,omitempty"`
	Protocol string `json:"protocol,omitempty"`

	// LastEventOn is when the last lifecycle event for this device was seen.
	LastEventOn time.Time `json:"last_event_on"`
}

// Device is a remotely managed endpoint.
type Device struct {
	// Identity
	ScopeID     string `json:"scope_id"`
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`

	// Dialect names the wire dialect the device speaks (e.g. "agent/json").
	// Empty means the caller's default dialect.
	Dialect string `json:"dialect,omitempty"`

	// Metadata reported on BIRTH
	Model           string `json:"model,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`

	// Connection is nil until the device has connected at least once.
	Connection *Connection `json:"connection,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the device's registry key.
func (d *Device) Key() Key {
	return Key{ScopeID: d.ScopeID, ID: d.ID}
}

// Status returns the connection status, or "" if the device never connected.
func (d *Device) Status() ConnectionStatus {
	if d.Connection == nil {
		return ""
	}
	return d.Connection.Status
}

// Connected reports whether the device is currently connected.
func (d *Device) Connected() bool {
	return d.Status() == StatusConnected
}

// DeepCopy creates an independent copy of the Device, including its
// Connection, so cached entries cannot be mutated through returned values.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.Connection != nil {
		conn := *d.Connection
		cpy.Connection = &conn
	}
	return &cpy
}

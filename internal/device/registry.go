package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device lookups with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by every write going through the registry. Lifecycle events are applied
// here, so a Find always sees the latest connection status this process
// has observed.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[Key]*Device
	cacheMu sync.RWMutex

	// writeMu serialises read-modify-write sequences such as
	// UpsertConnection so concurrent lifecycle events cannot interleave.
	writeMu sync.Mutex

	logger Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[Key]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	cache := make(map[Key]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		cache[d.Key()] = &d
	}

	r.cacheMu.Lock()
	r.cache = cache
	r.cacheMu.Unlock()

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Find retrieves a device by scope and ID.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Find(ctx context.Context, scopeID, deviceID string) (*Device, error) {
	key := Key{ScopeID: scopeID, ID: deviceID}

	r.cacheMu.RLock()
	cached, ok := r.cache[key]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (created by another process since refresh)
	device, err := r.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[key] = device.DeepCopy()
	r.cacheMu.Unlock()

	return device, nil
}

// ListByScope retrieves all devices in a scope, ordered by ID.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) ListByScope(ctx context.Context, scopeID string) ([]Device, error) {
	r.cacheMu.RLock()
	populated := len(r.cache) > 0
	var devices []Device
	for k, d := range r.cache {
		if k.ScopeID == scopeID {
			devices = append(devices, *d.DeepCopy())
		}
	}
	r.cacheMu.RUnlock()

	if !populated {
		return r.repo.ListByScope(ctx, scopeID)
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

// Create validates and persists a new device.
func (r *Registry) Create(ctx context.Context, device *Device) error {
	if device.DisplayName == "" {
		device.DisplayName = device.ID
	}
	if err := ValidateDevice(device); err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.repo.Create(ctx, device); err != nil {
		return err
	}
	r.store(device)

	r.logger.Info("device created", "scope_id", device.ScopeID, "id", device.ID, "dialect", device.Dialect)
	return nil
}

// Ensure creates the device if it is unknown, otherwise refreshes the
// descriptive fields that are set on d (display name, dialect, model,
// firmware). The connection record is never touched. It returns the stored
// device.
func (r *Registry) Ensure(ctx context.Context, d *Device) (*Device, error) {
	existing, err := r.Find(ctx, d.ScopeID, d.ID)
	if errors.Is(err, ErrDeviceNotFound) {
		created := d.DeepCopy()
		created.Connection = nil
		if err := r.Create(ctx, created); err != nil {
			// Lost a race with another creator; fall through to update.
			if !errors.Is(err, ErrDeviceExists) {
				return nil, err
			}
		} else {
			return created.DeepCopy(), nil
		}
		existing, err = r.Find(ctx, d.ScopeID, d.ID)
	}
	if err != nil {
		return nil, err
	}

	updated := existing.DeepCopy()
	changed := mergeString(&updated.DisplayName, d.DisplayName)
	changed = mergeString(&updated.Dialect, d.Dialect) || changed
	changed = mergeString(&updated.Model, d.Model) || changed
	changed = mergeString(&updated.FirmwareVersion, d.FirmwareVersion) || changed
	if !changed {
		return existing, nil
	}
	if err := r.Update(ctx, updated); err != nil {
		return nil, err
	}
	return updated.DeepCopy(), nil
}

// Update validates and persists the descriptive fields of a device.
func (r *Registry) Update(ctx context.Context, device *Device) error {
	if err := ValidateDevice(device); err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.repo.Update(ctx, device); err != nil {
		return err
	}

	// Keep the cached connection: Update does not persist it.
	r.cacheMu.Lock()
	cpy := device.DeepCopy()
	if cached, ok := r.cache[device.Key()]; ok {
		cpy.Connection = cached.DeepCopy().Connection
	}
	r.cache[device.Key()] = cpy
	r.cacheMu.Unlock()

	r.logger.Debug("device updated", "scope_id", device.ScopeID, "id", device.ID)
	return nil
}

// UpsertConnection records a lifecycle event for a known device. Status and
// LastEventOn always replace the stored values; the connection ID, client
// IP and protocol are replaced only when conn sets them.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) UpsertConnection(ctx context.Context, key Key, conn Connection) (*Device, error) {
	if err := ValidateConnection(&conn); err != nil {
		return nil, err
	}

	existing, err := r.Find(ctx, key.ScopeID, key.ID)
	if err != nil {
		return nil, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	merged := conn
	if prev := existing.Connection; prev != nil {
		merged.ID = pick(conn.ID, prev.ID)
		merged.ClientIP = pick(conn.ClientIP, prev.ClientIP)
		merged.Protocol = pick(conn.Protocol, prev.Protocol)
	}

	if err := r.repo.UpdateConnection(ctx, key, merged); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	cached, ok := r.cache[key]
	if !ok {
		cached = existing
	}
	updated := cached.DeepCopy()
	updated.Connection = &merged
	r.cache[key] = updated
	r.cacheMu.Unlock()

	r.logger.Debug("device connection updated", "scope_id", key.ScopeID, "id", key.ID, "status", merged.Status)
	return updated.DeepCopy(), nil
}

// Delete removes a device.
func (r *Registry) Delete(ctx context.Context, key Key) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.repo.Delete(ctx, key); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, key)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "scope_id", key.ScopeID, "id", key.ID)
	return nil
}

// Count returns the number of cached devices.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices   int
	NeverConnected int
	ByStatus       map[ConnectionStatus]int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.cache),
		ByStatus:     make(map[ConnectionStatus]int),
	}
	for _, d := range r.cache {
		if d.Connection == nil {
			stats.NeverConnected++
			continue
		}
		stats.ByStatus[d.Connection.Status]++
	}
	return stats
}

func (r *Registry) store(d *Device) {
	r.cacheMu.Lock()
	r.cache[d.Key()] = d.DeepCopy()
	r.cacheMu.Unlock()
}

// mergeString sets *dst to v when v is non-empty and different, reporting
// whether it changed.
func mergeString(dst *string, v string) bool {
	if v == "" || *dst == v {
		return false
	}
	*dst = v
	return true
}

func pick(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

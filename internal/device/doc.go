// Package device provides the Device Registry for the fleet core.
//
// The registry is the catalogue of every managed device and its last known
// broker connection. The management call path consults it before every
// request: a device that has never connected, or is not connected now, is
// refused without touching the transport.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                         Device Registry                          │
//	│                                                                  │
//	│  ┌──────────────────┐    ┌──────────────────┐  ┌──────────────┐  │
//	│  │     Registry     │    │    Repository    │  │  Validation  │  │
//	│  │   (registry.go)  │───▶│  (repository.go) │  │ validation.go│  │
//	│  │ • Find / Ensure  │    │ • SQLite queries │  │ • key checks │  │
//	│  │ • UpsertConnect. │    │ • (scope, id) PK │  │ • status     │  │
//	│  │ • In-memory cache│    └──────────────────┘  └──────────────┘  │
//	│  └──────────────────┘                                            │
//	└──────────▲──────────────────────────▲────────────────────────────┘
//	           │                          │
//	   lifecycle listener           call.Caller (Find)
//	   (BIRTH / DC / LWT)
//
// # Key Types
//
//   - Device: a managed endpoint, identified by Key{ScopeID, ID}
//   - Connection: the broker session; nil means the device never connected
//   - ConnectionStatus: connected, disconnected or missing
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	dev, err := registry.Find(ctx, "acme", "gw-042")
//	if errors.Is(err, device.ErrDeviceNotFound) { ... }
//	if !dev.Connected() { ... }
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Reads are served from the cache
// under a read lock; writes are serialised so lifecycle events for the same
// device cannot interleave.
package device

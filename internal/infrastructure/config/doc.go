// Package config handles loading and validating Fleet Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (FLEETCORE_*)
//   - Validation of required fields
//
// Secrets (MQTT password, InfluxDB token) should be set via environment
// variables rather than committed to the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/fleetcore.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	timeout := cfg.DefaultCallTimeout()
package config

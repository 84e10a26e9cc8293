// Package health serves the operational endpoints of fleetcore.
//
// GET /healthz runs the registered checks (database, transport, InfluxDB)
// and answers 200 when all pass or 503 otherwise. GET /metrics exposes
// the Prometheus registry, including the device call collector.
//
// It is deliberately small: there is no device CRUD here.
package health

// Package agent implements the agent device dialect: the topic scheme,
// payload encodings and translators used by field agents that speak MQTT.
//
// An agent advertises its payload encoding on BIRTH. JSON ("agent/json") is
// the default; CBOR ("agent/cbor") uses core deterministic encoding and
// integer map keys to keep payloads small on constrained links. Lifecycle
// events are always JSON.
//
// Register installs the wire translators once per process.
// RegisterApplication installs the domain translators of one management
// application:
//
//	reg := translator.NewRegistry()
//	cfg := agent.Config{Classifier: "$ctl", RequesterID: "fleetcore"}
//	if err := agent.Register(reg, cfg); err != nil { ... }
//	if err := agent.RegisterApplication(reg, cfg, command.Descriptor); err != nil { ... }
//	reg.Seal()
package agent

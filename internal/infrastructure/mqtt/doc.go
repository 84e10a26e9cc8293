// Package mqtt provides the MQTT transport for Fleet Core device management.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with per-message QoS taken from the transport-qos header
//   - Filter subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) for core offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Devices run an agent that talks to the core through the broker. Requests
// and replies travel on control topics; telemetry on plain topics.
//
//	Fleet Core ↔ MQTT Broker ↔ Device agents
//
// *Client implements transport.Client, so it is interchangeable with the
// in-process transport.Loopback used in tests and local runs.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("$ctl/+/fleetcore/+/REPLY/#", func(msg transport.Message) {
//	    // hand to the executor
//	})
//
//	err = client.Publish(ctx, topic, payload, transport.Headers{transport.HeaderQoS: "1"})
package mqtt

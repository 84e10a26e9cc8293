// Package wire turns raw transport messages into dialect and domain
// messages.
//
// Inspect extracts what the transport knows about a message: the original
// topic (header first, destination name as a fallback), whether it is
// control or telemetry traffic, when the broker enqueued it, which
// connection it arrived on and its QoS. ToDomain then resolves the two
// translation hops through the translator registry:
//
//	frame --(transport/frame -> dialect)--> dialect --(dialect -> domain)--> envelope
package wire

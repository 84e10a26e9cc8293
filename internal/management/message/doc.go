// Package message defines the transport-agnostic envelopes exchanged with
// devices: Request, Response and Data.
//
// Every device management application (command, configuration, bundles,
// packages, keystore, inventory) builds on the same Channel and Payload.
// The Channel's application name, version and method select which
// translator pair applies; the Request also declares the representation its
// reply must be translated into.
package message

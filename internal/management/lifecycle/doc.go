// Package lifecycle tracks device connections from the BIRTH, DC, LWT and
// MISSING events agents publish under the MQTT pseudo-application.
//
// BIRTH registers unknown devices and records the dialect they asked for,
// so the call path can route requests to them. The connection status it
// maintains is what the caller checks before sending.
package lifecycle

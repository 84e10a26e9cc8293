// Package call is the entry point for device management calls.
//
// A Caller takes a domain request, checks that the addressed device exists
// and is connected, translates the request into the device's dialect and
// hands it to the executor. Replies come back the same way in reverse.
//
//	resp, err := caller.Send(ctx, call.Options{Request: req, Timeout: 10 * time.Second})
//	switch call.KindOf(err) {
//	case call.KindDeviceNotConnected:
//	    // refused without touching the transport
//	case call.KindTimeout:
//	    // the device may still act on the request
//	}
//
// Every failure the caller produces is an *Error carrying a Kind.
// Transport faults (*transport.Error) and the caller's own context error
// are returned unchanged.
package call

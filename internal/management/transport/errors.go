package transport

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	// ErrNotConnected is returned when the client has no live connection.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrInvalidDestination is returned for an empty or malformed topic.
	ErrInvalidDestination = errors.New("transport: invalid destination")

	// ErrClosed is returned after the client has been closed.
	ErrClosed = errors.New("transport: closed")
)

// Error is a transport-layer failure. Device management passes it to the
// caller untouched so transport faults stay distinguishable from
// application faults.
type Error struct {
	Op          string // "publish", "subscribe", "unsubscribe"
	Destination string
	Err         error
}

func (e *Error) Error() string {
	if e.Destination == "" {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Destination, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransportError reports whether err is or wraps an *Error.
func IsTransportError(err error) bool {
	var te *Error
	return errors.As(err, &te)
}

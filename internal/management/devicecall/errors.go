package devicecall

import (
	"errors"
	"fmt"
)

// Executor errors. These never reach API callers directly; the call
// package maps them to its own error kinds.
var (
	// ErrTimeout is returned when no correlated reply arrives in time.
	ErrTimeout = errors.New("devicecall: reply timeout")

	// ErrClosed is returned for calls made or pending when the executor closes.
	ErrClosed = errors.New("devicecall: executor closed")

	// ErrNoCorrelation is returned when a request carries no correlation id.
	ErrNoCorrelation = errors.New("devicecall: request has no correlation id")

	// ErrDuplicateCorrelation is returned when a correlation id is already pending.
	ErrDuplicateCorrelation = errors.New("devicecall: correlation id already pending")

	// ErrInvalidTimeout is returned when Send is given a non-positive timeout.
	ErrInvalidTimeout = errors.New("devicecall: timeout must be positive")
)

// SendError reports that publishing a request failed before any reply was
// possible. No pending call survives a SendError.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("devicecall: send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

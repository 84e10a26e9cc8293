package call

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/device"
	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
	"github.com/nerrad567/gray-logic-fleet/internal/management/translator"
)

// Kind classifies a device management call failure.
type Kind int

// Failure kinds, in the order the caller checks for them.
const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindDeviceNotFound
	KindDeviceNeverConnected
	KindDeviceNotConnected
	KindSendError
	KindTimeout
	KindUnsupportedTranslation
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindDeviceNotFound:
		return "DeviceNotFound"
	case KindDeviceNeverConnected:
		return "DeviceNeverConnected"
	case KindDeviceNotConnected:
		return "DeviceNotConnected"
	case KindSendError:
		return "SendError"
	case KindTimeout:
		return "Timeout"
	case KindUnsupportedTranslation:
		return "UnsupportedTranslation"
	}
	return "Unknown"
}

// Retryable reports whether the same call may succeed if repeated.
// A timeout is ambiguous: the device may still act on the first request.
func (k Kind) Retryable() bool {
	return k == KindSendError || k == KindTimeout
}

// HTTPStatus maps the kind to the status an API layer should report.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindDeviceNotFound:
		return http.StatusNotFound
	case KindDeviceNeverConnected, KindDeviceNotConnected:
		return http.StatusConflict
	case KindTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// Sentinels matching each kind with errors.Is:
//
//	if errors.Is(err, call.ErrTimeout) {
//	    // outcome unknown, the device may still execute the request
//	}
var (
	ErrInvalidArgument        = errors.New("call: invalid argument")
	ErrDeviceNotFound         = errors.New("call: device not found")
	ErrDeviceNeverConnected   = errors.New("call: device never connected")
	ErrDeviceNotConnected     = errors.New("call: device not connected")
	ErrSendError              = errors.New("call: send failed")
	ErrTimeout                = errors.New("call: timeout")
	ErrUnsupportedTranslation = errors.New("call: unsupported translation")
)

var sentinels = map[Kind]error{
	KindInvalidArgument:        ErrInvalidArgument,
	KindDeviceNotFound:         ErrDeviceNotFound,
	KindDeviceNeverConnected:   ErrDeviceNeverConnected,
	KindDeviceNotConnected:     ErrDeviceNotConnected,
	KindSendError:              ErrSendError,
	KindTimeout:                ErrTimeout,
	KindUnsupportedTranslation: ErrUnsupportedTranslation,
}

// Error is the single error type returned by Caller. Which fields are set
// depends on Kind.
type Error struct {
	Kind Kind

	ScopeID  string
	DeviceID string

	// Status is the device's last known connection status (DeviceNotConnected).
	Status device.ConnectionStatus

	// Timeout is the deadline that elapsed (Timeout).
	Timeout time.Duration

	// Source and Target name the missing translator (UnsupportedTranslation).
	Source translator.Type
	Target translator.Type

	// Dialect is the device dialect the call was routed to, if known.
	Dialect string

	// Request is the request that failed to send (SendError).
	Request *message.Request

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	target := e.ScopeID + "/" + e.DeviceID
	switch e.Kind {
	case KindInvalidArgument:
		return fmt.Sprintf("call: invalid argument: %v", e.Err)
	case KindDeviceNotFound:
		return fmt.Sprintf("call: device %s not found", target)
	case KindDeviceNeverConnected:
		return fmt.Sprintf("call: device %s has never connected", target)
	case KindDeviceNotConnected:
		return fmt.Sprintf("call: device %s is not connected (status %s)", target, e.Status)
	case KindSendError:
		return fmt.Sprintf("call: sending to device %s failed: %v", target, e.Err)
	case KindTimeout:
		return fmt.Sprintf("call: device %s did not reply within %s", target, e.Timeout)
	case KindUnsupportedTranslation:
		if e.Source == "" && e.Target == "" {
			return fmt.Sprintf("call: no translators for dialect %q", e.Dialect)
		}
		return fmt.Sprintf("call: no translator from %s to %s", e.Source, e.Target)
	}
	return fmt.Sprintf("call: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of e.Kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

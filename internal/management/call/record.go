package call

import (
	"context"
	"errors"

	"github.com/nerrad567/gray-logic-fleet/internal/management/transport"
)

// Outcome labels reported by Record.Outcome.
const (
	OutcomeAccepted       = "accepted"
	OutcomeRejected       = "rejected"
	OutcomeSent           = "sent"
	OutcomeTransportError = "transport_error"
	OutcomeCancelled      = "cancelled"
)

var kindOutcomes = map[Kind]string{
	KindUnknown:                "unknown_error",
	KindInvalidArgument:        "invalid_argument",
	KindDeviceNotFound:         "device_not_found",
	KindDeviceNeverConnected:   "device_never_connected",
	KindDeviceNotConnected:     "device_not_connected",
	KindSendError:              "send_error",
	KindTimeout:                "timeout",
	KindUnsupportedTranslation: "unsupported_translation",
}

// Outcome summarises the record as a low-cardinality label for metrics and
// audit entries. A reply with a code other than ACCEPTED is "rejected".
func (r Record) Outcome() string {
	switch {
	case r.Err == nil && r.FireAndForget:
		return OutcomeSent
	case r.Err == nil:
		if r.Response != nil && !r.Response.Code.Accepted() {
			return OutcomeRejected
		}
		return OutcomeAccepted
	case transport.IsTransportError(r.Err):
		return OutcomeTransportError
	case errors.Is(r.Err, context.Canceled), errors.Is(r.Err, context.DeadlineExceeded):
		return OutcomeCancelled
	}
	return kindOutcomes[KindOf(r.Err)]
}

// AppID returns the application the call addressed, or "".
func (r Record) AppID() string {
	if r.Request == nil {
		return ""
	}
	return r.Request.Channel.AppID()
}

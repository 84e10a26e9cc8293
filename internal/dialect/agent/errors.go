package agent

import "errors"

// Dialect errors.
var (
	// ErrInvalidConfig is returned for an unusable classifier or requester ID.
	ErrInvalidConfig = errors.New("agent: invalid config")

	// ErrMalformedTopic is returned when a topic does not follow the agent scheme.
	ErrMalformedTopic = errors.New("agent: malformed topic")

	// ErrUnknownVerb is returned for a verb or method with no counterpart.
	ErrUnknownVerb = errors.New("agent: unknown verb")

	// ErrMalformedPayload is returned when a payload cannot be decoded.
	ErrMalformedPayload = errors.New("agent: malformed payload")

	// ErrMissingResponseCode is returned for a reply without response.code.
	ErrMissingResponseCode = errors.New("agent: reply has no response code")

	// ErrUnknownEncoding is returned for an encoding name other than json or cbor.
	ErrUnknownEncoding = errors.New("agent: unknown encoding")
)

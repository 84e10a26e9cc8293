package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
)

// Verb is the request verb carried as a topic level.
type Verb string

// Agent verbs. REPLY only appears on reply topics.
const (
	VerbGet     Verb = "GET"
	VerbPost    Verb = "POST"
	VerbPut     Verb = "PUT"
	VerbDel     Verb = "DEL"
	VerbExec    Verb = "EXEC"
	VerbOptions Verb = "OPTIONS"
	VerbSubmit  Verb = "SUBMIT"
	VerbCancel  Verb = "CANCEL"
	VerbReply   Verb = "REPLY"
)

var methodVerbs = map[message.Method]Verb{
	message.MethodRead:    VerbGet,
	message.MethodCreate:  VerbPost,
	message.MethodWrite:   VerbPut,
	message.MethodDelete:  VerbDel,
	message.MethodExecute: VerbExec,
	message.MethodOptions: VerbOptions,
	message.MethodSubmit:  VerbSubmit,
	message.MethodCancel:  VerbCancel,
}

// VerbOf returns the verb for a domain method.
func VerbOf(m message.Method) (Verb, error) {
	v, ok := methodVerbs[m]
	if !ok {
		return "", fmt.Errorf("%w: method %q", ErrUnknownVerb, m)
	}
	return v, nil
}

// Method returns the domain method for v.
func (v Verb) Method() (message.Method, error) {
	for m, verb := range methodVerbs {
		if verb == v {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVerb, v)
}

// Metric names reserved by the dialect. They travel in the payload metric
// map and are lifted into struct fields on decode.
const (
	MetricRequestID        = "request.id"
	MetricRequesterID      = "requester.client.id"
	MetricResponseCode     = "response.code"
	MetricExceptionMessage = "response.exception.message"
	MetricExceptionStack   = "response.exception.stack"
)

// Metrics an agent reports on BIRTH.
const (
	MetricDisplayName     = "display_name"
	MetricModel           = "model_name"
	MetricFirmwareVersion = "firmware_version"
	MetricConnectionIP    = "connection_ip"
	MetricProtocol        = "connection_protocol"

	// MetricPayloadEncoding selects the encoding the agent expects
	// management requests in: "json" (default) or "cbor".
	MetricPayloadEncoding = "payload_encoding"
)

// Event is a connection lifecycle event.
type Event string

// Lifecycle events, published under the MQTT pseudo-application.
const (
	EventBirth      Event = "BIRTH"
	EventDisconnect Event = "DC"
	EventLWT        Event = "LWT"
	EventMissing    Event = "MISSING"
)

// lifecycleApp is the application level of lifecycle topics.
const lifecycleApp = "MQTT"

// Request is a management request in agent form.
type Request struct {
	Scope    string
	ClientID string

	// App is the application ID, e.g. "CMD-V1".
	App       string
	Verb      Verb
	Resources []string

	RequestID   string
	RequesterID string

	SentOn  time.Time
	Metrics message.Metrics
	Body    []byte
}

// CorrelationID returns the request ID the reply will carry.
func (r Request) CorrelationID() string { return r.RequestID }

// Response is an agent reply to a Request.
type Response struct {
	Scope       string
	RequesterID string
	App         string
	RequestID   string

	Code             message.ResponseCode
	ExceptionMessage string
	ExceptionStack   string

	SentOn  time.Time
	Metrics message.Metrics
	Body    []byte
}

// Data is an unsolicited agent message: a lifecycle event on a control
// topic or telemetry on a plain topic.
type Data struct {
	Scope    string
	ClientID string

	// Control is set when the topic carried the classifier prefix.
	Control bool

	// Channel holds the topic levels after the client ID.
	Channel []string

	SentOn  time.Time
	Metrics message.Metrics
	Body    []byte
}

// Lifecycle returns the event of a lifecycle message.
func (d Data) Lifecycle() (Event, bool) {
	if !d.Control || len(d.Channel) != 2 || d.Channel[0] != lifecycleApp {
		return "", false
	}
	switch ev := Event(d.Channel[1]); ev {
	case EventBirth, EventDisconnect, EventLWT, EventMissing:
		return ev, true
	}
	return "", false
}

// splitAppID splits "CMD-V1" into "CMD" and "V1" at the last dash.
func splitAppID(id string) (name, version string, err error) {
	i := strings.LastIndex(id, "-")
	if i <= 0 || i == len(id)-1 {
		return "", "", fmt.Errorf("%w: application id %q", ErrMalformedTopic, id)
	}
	return id[:i], id[i+1:], nil
}

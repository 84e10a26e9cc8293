package message

import (
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/management/translator"
)

// Method is the operation a request performs on a device resource.
type Method string

// Supported methods.
const (
	MethodRead    Method = "READ"
	MethodCreate  Method = "CREATE"
	MethodWrite   Method = "WRITE"
	MethodDelete  Method = "DELETE"
	MethodExecute Method = "EXECUTE"
	MethodOptions Method = "OPTIONS"
	MethodSubmit  Method = "SUBMIT"
	MethodCancel  Method = "CANCEL"
)

// AllMethods returns every supported method.
func AllMethods() []Method {
	return []Method{
		MethodRead, MethodCreate, MethodWrite, MethodDelete,
		MethodExecute, MethodOptions, MethodSubmit, MethodCancel,
	}
}

// Valid reports whether m is a supported method.
func (m Method) Valid() bool {
	switch m {
	case MethodRead, MethodCreate, MethodWrite, MethodDelete,
		MethodExecute, MethodOptions, MethodSubmit, MethodCancel:
		return true
	}
	return false
}

// QoS is the delivery guarantee a message travelled with.
// The zero value means the transport did not report one.
type QoS int

// QoS levels.
const (
	QoSUnset QoS = iota
	QoSAtMostOnce
	QoSAtLeastOnce
	QoSExactlyOnce
)

// QoSFromLevel maps a transport QoS integer (0, 1, 2) to a QoS.
// Any other value yields QoSUnset.
func QoSFromLevel(level int) QoS {
	switch level {
	case 0:
		return QoSAtMostOnce
	case 1:
		return QoSAtLeastOnce
	case 2:
		return QoSExactlyOnce
	}
	return QoSUnset
}

// Level returns the transport QoS integer. ok is false for QoSUnset.
func (q QoS) Level() (level byte, ok bool) {
	switch q {
	case QoSAtMostOnce:
		return 0, true
	case QoSAtLeastOnce:
		return 1, true
	case QoSExactlyOnce:
		return 2, true
	}
	return 0, false
}

func (q QoS) String() string {
	switch q {
	case QoSAtMostOnce:
		return "AT_MOST_ONCE"
	case QoSAtLeastOnce:
		return "AT_LEAST_ONCE"
	case QoSExactlyOnce:
		return "EXACTLY_ONCE"
	}
	return "UNSET"
}

// ResponseCode is the outcome a device reports for a request.
type ResponseCode string

// Response codes.
const (
	CodeAccepted      ResponseCode = "ACCEPTED"
	CodeBadRequest    ResponseCode = "BAD_REQUEST"
	CodeNotFound      ResponseCode = "NOT_FOUND"
	CodeInternalError ResponseCode = "INTERNAL_ERROR"
)

// Accepted reports whether the device accepted the request.
func (c ResponseCode) Accepted() bool {
	return c == CodeAccepted
}

// Header carries the addressing and timing fields shared by every envelope.
type Header struct {
	ScopeID    string    `json:"scopeId" validate:"required"`
	DeviceID   string    `json:"deviceId" validate:"required"`
	QoS        QoS       `json:"qos,omitempty"`
	CapturedOn time.Time `json:"capturedOn,omitzero"`
	SentOn     time.Time `json:"sentOn,omitzero"`
	ReceivedOn time.Time `json:"receivedOn,omitzero"`
}

// Head returns the header so envelopes can be handled uniformly.
func (h *Header) Head() *Header { return h }

// Channel selects the application, method and resource a message targets.
type Channel struct {
	AppName    string   `json:"appName" validate:"required"`
	AppVersion string   `json:"appVersion" validate:"required"`
	Method     Method   `json:"method" validate:"required,method"`
	Resources  []string `json:"resources,omitempty"`
}

// ResourcePath joins the resources with "/".
func (c Channel) ResourcePath() string {
	return strings.Join(c.Resources, "/")
}

// AppID returns the application identifier, e.g. "CMD-V1".
func (c Channel) AppID() string {
	return c.AppName + "-" + c.AppVersion
}

// Payload is the body and metric map of a message.
type Payload struct {
	Body    []byte  `json:"body,omitempty"`
	Metrics Metrics `json:"metrics,omitempty"`
}

// Request is a domain request addressed to one device.
//
// Type selects the translator into the device dialect; ResponseType is the
// representation the caller expects the reply to be translated into.
type Request struct {
	Header
	Type         translator.Type `json:"type" validate:"required"`
	ResponseType translator.Type `json:"responseType" validate:"required"`
	Channel      Channel         `json:"channel"`
	Payload      Payload         `json:"payload"`
}

// MessageType returns the request discriminator.
func (r *Request) MessageType() translator.Type { return r.Type }

// Clone returns a copy that shares no mutable state with r.
func (r *Request) Clone() *Request {
	c := *r
	c.Channel.Resources = append([]string(nil), r.Channel.Resources...)
	c.Payload = r.Payload.Clone()
	return &c
}

// Response is a domain response translated from a device reply.
type Response struct {
	Header
	Type             translator.Type `json:"type"`
	Channel          Channel         `json:"channel"`
	Code             ResponseCode    `json:"code"`
	ExceptionMessage string          `json:"exceptionMessage,omitempty"`
	ExceptionStack   string          `json:"exceptionStack,omitempty"`
	Payload          Payload         `json:"payload"`
}

// MessageType returns the response discriminator.
func (r *Response) MessageType() translator.Type { return r.Type }

// TypeData is the discriminator of the generic domain Data envelope that
// dialects translate lifecycle and telemetry messages into.
const TypeData translator.Type = "message/data"

// Data is a device-originated message that is not a reply: lifecycle
// events and telemetry.
type Data struct {
	Header
	Type     translator.Type `json:"type"`
	Semantic []string        `json:"semantic"`
	Payload  Payload         `json:"payload"`
}

// MessageType returns the data discriminator.
func (d *Data) MessageType() translator.Type { return d.Type }

// SemanticTopic joins the semantic topic parts with "/".
func (d *Data) SemanticTopic() string {
	return strings.Join(d.Semantic, "/")
}

// Envelope is implemented by *Request, *Response and *Data.
type Envelope interface {
	MessageType() translator.Type
	Head() *Header
}

var (
	_ Envelope = (*Request)(nil)
	_ Envelope = (*Response)(nil)
	_ Envelope = (*Data)(nil)
)

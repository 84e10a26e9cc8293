package transport

import (
	"bytes"
	"context"
	"io"
	"strconv"

	"github.com/nerrad567/gray-logic-fleet/internal/management/translator"
)

// Header names exchanged with the broker. They must match bit-for-bit what
// other platform components read and write.
const (
	// HeaderOriginalTopic carries the pre-routing topic. Segments may be
	// dot-encoded.
	HeaderOriginalTopic = "original-topic"

	// HeaderEnqueuedTimestamp carries the epoch milliseconds at which the
	// broker accepted the message.
	HeaderEnqueuedTimestamp = "enqueued-timestamp"

	// HeaderConnectionID carries an opaque identifier of the connection the
	// message arrived on.
	HeaderConnectionID = "connection-id"

	// HeaderQoS carries the transport QoS integer (0, 1 or 2).
	HeaderQoS = "transport-qos"
)

// TypeFrame is the translator discriminator of Frame, the wire side of every
// dialect translator.
const TypeFrame translator.Type = "transport/frame"

// Headers holds transport message properties.
type Headers map[string]string

// Get returns the named header and whether it is present and non-empty.
func (h Headers) Get(name string) (string, bool) {
	v, ok := h[name]
	return v, ok && v != ""
}

// Int returns the named header parsed as an integer.
func (h Headers) Int(name string) (int64, bool) {
	v, ok := h.Get(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return n, err == nil
}

// Clone returns a copy of h, never nil.
func (h Headers) Clone() Headers {
	c := make(Headers, len(h)+2)
	for k, v := range h {
		c[k] = v
	}
	return c
}

// Message is a raw message as delivered by a transport client.
//
// Length is the body size reported by the transport. It may disagree with
// what Body actually yields; readers must not trust one blindly.
type Message struct {
	Destination string
	Headers     Headers
	Body        io.Reader
	Length      int64
}

// NewMessage builds a Message whose declared length matches payload.
func NewMessage(destination string, headers Headers, payload []byte) Message {
	return Message{
		Destination: destination,
		Headers:     headers,
		Body:        bytes.NewReader(payload),
		Length:      int64(len(payload)),
	}
}

// Frame is an encoded message ready to publish, or a received one after its
// body has been read. Dialect translators convert to and from Frame.
type Frame struct {
	Topic   string
	Payload []byte
	Headers Headers
}

// Handler receives messages on a subscription. It is invoked on a transport
// goroutine and must not block for long.
type Handler func(Message)

// Client is the publish/subscribe transport used by device management.
type Client interface {
	// Publish sends payload to destination and returns once the transport
	// has acknowledged the publish. The transport-qos header selects the
	// delivery guarantee.
	Publish(ctx context.Context, destination string, payload []byte, headers Headers) error

	// Subscribe registers handler for every destination matching filter.
	// MQTT wildcards + and # are supported.
	Subscribe(filter string, handler Handler) error

	// Unsubscribe removes the subscription registered for filter.
	Unsubscribe(filter string) error

	// IsConnected reports the last known connection state.
	IsConnected() bool
}

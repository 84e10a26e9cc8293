package agent

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nerrad567/gray-logic-fleet/internal/management/devicecall"
	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
	"github.com/nerrad567/gray-logic-fleet/internal/management/translator"
)

// Encoding is a payload encoding of the agent dialect.
type Encoding string

// Supported encodings.
const (
	EncodingJSON Encoding = "json"
	EncodingCBOR Encoding = "cbor"
)

// Encodings returns every supported encoding.
func Encodings() []Encoding {
	return []Encoding{EncodingJSON, EncodingCBOR}
}

// ParseEncoding returns the encoding named s. The empty string is JSON.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case "", EncodingJSON:
		return EncodingJSON, nil
	case EncodingCBOR:
		return EncodingCBOR, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, s)
}

// DialectName is the name devices report and the caller routes by,
// e.g. "agent/cbor".
func (e Encoding) DialectName() string { return "agent/" + string(e) }

// RequestType is the discriminator of Request in this encoding.
func (e Encoding) RequestType() translator.Type {
	return translator.Type(e.DialectName() + "/request")
}

// ResponseType is the discriminator of Response in this encoding.
func (e Encoding) ResponseType() translator.Type {
	return translator.Type(e.DialectName() + "/response")
}

// DataType is the discriminator of Data in this encoding.
func (e Encoding) DataType() translator.Type {
	return translator.Type(e.DialectName() + "/data")
}

// Route returns the executor dialect of this encoding.
func (e Encoding) Route() devicecall.Dialect {
	return devicecall.Dialect{Request: e.RequestType(), Response: e.ResponseType()}
}

// Dialects returns the caller routing table for every encoding.
func Dialects() map[string]devicecall.Dialect {
	out := make(map[string]devicecall.Dialect, len(Encodings()))
	for _, e := range Encodings() {
		out[e.DialectName()] = e.Route()
	}
	return out
}

// DefaultDialect is the dialect of devices that never announced one.
var DefaultDialect = EncodingJSON.DialectName()

func (e Encoding) codec() payloadCodec {
	if e == EncodingCBOR {
		return cborCodec
	}
	return jsonCodec{}
}

type payloadCodec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type cborModes struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func (c cborModes) Marshal(v any) ([]byte, error)      { return c.enc.Marshal(v) }
func (c cborModes) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

// cborCodec uses Core Deterministic Encoding so the same payload always
// produces the same bytes. Untyped maps decode as map[string]any.
var cborCodec = func() cborModes {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("agent: CBOR encoder initialization failed: " + err.Error())
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("agent: CBOR decoder initialization failed: " + err.Error())
	}
	return cborModes{enc: enc, dec: dec}
}()

// payload is the body of every agent message in both encodings.
type payload struct {
	SentOn  int64          `json:"sentOn,omitempty" cbor:"1,keyasint,omitempty"`
	Metrics map[string]any `json:"metrics,omitempty" cbor:"2,keyasint,omitempty"`
	Body    []byte         `json:"body,omitempty" cbor:"3,keyasint,omitempty"`
}

func encodePayload(c payloadCodec, sentOn time.Time, metrics message.Metrics, body []byte) ([]byte, error) {
	p := payload{Metrics: normalizeMetrics(metrics), Body: body}
	if !sentOn.IsZero() {
		p.SentOn = sentOn.UnixMilli()
	}
	b, err := c.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return b, nil
}

// decodePayload decodes data. An empty payload is valid and yields zero
// values; the returned metrics are never nil.
func decodePayload(c payloadCodec, data []byte) (time.Time, message.Metrics, []byte, error) {
	var p payload
	if len(data) > 0 {
		if err := c.Unmarshal(data, &p); err != nil {
			return time.Time{}, nil, nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
	}
	var sentOn time.Time
	if p.SentOn != 0 {
		sentOn = time.UnixMilli(p.SentOn).UTC()
	}
	metrics := message.Metrics(p.Metrics)
	if metrics == nil {
		metrics = message.Metrics{}
	}
	return sentOn, metrics, p.Body, nil
}

// normalizeMetrics renders string-typed enums as plain strings so both
// encodings carry them as text.
func normalizeMetrics(m message.Metrics) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if s, ok := v.(fmt.Stringer); ok {
			out[k] = s.String()
			continue
		}
		rv := reflect.ValueOf(v)
		if rv.IsValid() && rv.Kind() == reflect.String && rv.Type() != reflect.TypeOf("") {
			out[k] = rv.String()
			continue
		}
		out[k] = v
	}
	return out
}

// takeMetric removes name from m and returns its text.
func takeMetric(m message.Metrics, name string) string {
	s, _ := m.Text(name)
	delete(m, name)
	return s
}

func withMetrics(m message.Metrics, extra map[string]any) message.Metrics {
	out := maps.Clone(m)
	if out == nil {
		out = message.Metrics{}
	}
	for k, v := range extra {
		if v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

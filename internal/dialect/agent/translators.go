package agent

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-fleet/internal/management/apps"
	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
	"github.com/nerrad567/gray-logic-fleet/internal/management/translator"
	"github.com/nerrad567/gray-logic-fleet/internal/management/transport"
)

// Register adds the wire translators of both encodings to reg: requests,
// responses and data to and from transport.Frame, and data to the generic
// domain envelope message.TypeData.
func Register(reg *translator.Registry, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, e := range Encodings() {
		if err := registerEncoding(reg, cfg, e); err != nil {
			return fmt.Errorf("registering %s: %w", e.DialectName(), err)
		}
	}
	return nil
}

func registerEncoding(reg *translator.Registry, cfg Config, e Encoding) error {
	c := e.codec()
	regs := []func() error{
		func() error {
			return translator.Register(reg, e.RequestType(), transport.TypeFrame, func(r Request) (transport.Frame, error) {
				return encodeRequest(cfg, c, r)
			})
		},
		func() error {
			return translator.Register(reg, transport.TypeFrame, e.RequestType(), func(f transport.Frame) (Request, error) {
				return decodeRequest(cfg, c, f)
			})
		},
		func() error {
			return translator.Register(reg, e.ResponseType(), transport.TypeFrame, func(r Response) (transport.Frame, error) {
				return encodeResponse(cfg, c, r)
			})
		},
		func() error {
			return translator.Register(reg, transport.TypeFrame, e.ResponseType(), func(f transport.Frame) (Response, error) {
				return decodeResponse(cfg, c, f)
			})
		},
		func() error {
			return translator.Register(reg, e.DataType(), transport.TypeFrame, func(d Data) (transport.Frame, error) {
				return encodeData(cfg, c, d)
			})
		},
		func() error {
			return translator.Register(reg, transport.TypeFrame, e.DataType(), func(f transport.Frame) (Data, error) {
				return decodeData(cfg, c, f)
			})
		},
		func() error {
			return translator.Register(reg, e.DataType(), message.TypeData, dataToDomain)
		},
	}
	for _, r := range regs {
		if err := r(); err != nil {
			return err
		}
	}
	return nil
}

// RegisterApplication adds the domain translators of one application for
// both encodings: app.Request to the dialect request and the dialect
// response to app.Response.
func RegisterApplication(reg *translator.Registry, cfg Config, app apps.Descriptor) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := checkLevel("application id", app.ID()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for _, e := range Encodings() {
		if err := translator.Register(reg, app.Request, e.RequestType(), requestFromDomain(cfg)); err != nil {
			return err
		}
		if err := translator.Register(reg, e.ResponseType(), app.Response, responseToDomain(app)); err != nil {
			return err
		}
	}
	return nil
}

// requestFromDomain builds the agent request for a domain request. The
// request ID is taken from the request.id metric when the caller set one.
func requestFromDomain(cfg Config) translator.Func[*message.Request, Request] {
	return func(req *message.Request) (Request, error) {
		if req == nil {
			return Request{}, fmt.Errorf("%w: nil request", message.ErrInvalid)
		}
		verb, err := VerbOf(req.Channel.Method)
		if err != nil {
			return Request{}, err
		}
		metrics := req.Payload.Clone().Metrics
		if metrics == nil {
			metrics = message.Metrics{}
		}
		id := takeMetric(metrics, MetricRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		delete(metrics, MetricRequesterID)

		return Request{
			Scope:       req.ScopeID,
			ClientID:    req.DeviceID,
			App:         req.Channel.AppID(),
			Verb:        verb,
			Resources:   append([]string(nil), req.Channel.Resources...),
			RequestID:   id,
			RequesterID: cfg.RequesterID,
			SentOn:      req.SentOn,
			Metrics:     metrics,
			Body:        append([]byte(nil), req.Payload.Body...),
		}, nil
	}
}

func responseToDomain(app apps.Descriptor) translator.Func[Response, *message.Response] {
	return func(r Response) (*message.Response, error) {
		if r.Code == "" {
			return nil, fmt.Errorf("%w: request %s", ErrMissingResponseCode, r.RequestID)
		}
		metrics := withMetrics(r.Metrics, map[string]any{MetricRequestID: r.RequestID})
		return &message.Response{
			Header: message.Header{
				ScopeID: r.Scope,
				SentOn:  r.SentOn,
			},
			Type: app.Response,
			Channel: message.Channel{
				AppName:    app.Name,
				AppVersion: app.Version,
			},
			Code:             r.Code,
			ExceptionMessage: r.ExceptionMessage,
			ExceptionStack:   r.ExceptionStack,
			Payload: message.Payload{
				Body:    r.Body,
				Metrics: metrics,
			},
		}, nil
	}
}

// dataToDomain leaves DeviceID empty for telemetry without a client level;
// the wire adapter back-fills it from the connection.
func dataToDomain(d Data) (*message.Data, error) {
	return &message.Data{
		Header: message.Header{
			ScopeID:    d.Scope,
			DeviceID:   d.ClientID,
			CapturedOn: d.SentOn,
			SentOn:     d.SentOn,
		},
		Type:     message.TypeData,
		Semantic: append([]string(nil), d.Channel...),
		Payload: message.Payload{
			Body:    d.Body,
			Metrics: d.Metrics,
		},
	}, nil
}

// ============================================================================
// Frame codecs
// ============================================================================

func encodeRequest(cfg Config, c payloadCodec, r Request) (transport.Frame, error) {
	if r.RequestID == "" {
		return transport.Frame{}, fmt.Errorf("%w: request has no id", ErrMalformedPayload)
	}
	topic, err := cfg.RequestTopic(r)
	if err != nil {
		return transport.Frame{}, err
	}
	requester := r.RequesterID
	if requester == "" {
		requester = cfg.RequesterID
	}
	metrics := withMetrics(r.Metrics, map[string]any{
		MetricRequestID:   r.RequestID,
		MetricRequesterID: requester,
	})
	payload, err := encodePayload(c, r.SentOn, metrics, r.Body)
	if err != nil {
		return transport.Frame{}, err
	}
	return transport.Frame{Topic: topic, Payload: payload}, nil
}

func decodeRequest(cfg Config, c payloadCodec, f transport.Frame) (Request, error) {
	levels, control := cfg.split(f.Topic)
	if !control || len(levels) < 4 {
		return Request{}, fmt.Errorf("%w: %q is not a request topic", ErrMalformedTopic, f.Topic)
	}
	verb := Verb(levels[3])
	if _, err := verb.Method(); err != nil {
		return Request{}, err
	}
	sentOn, metrics, body, err := decodePayload(c, f.Payload)
	if err != nil {
		return Request{}, err
	}
	r := Request{
		Scope:       levels[0],
		ClientID:    levels[1],
		App:         levels[2],
		Verb:        verb,
		Resources:   levels[4:],
		RequestID:   takeMetric(metrics, MetricRequestID),
		RequesterID: takeMetric(metrics, MetricRequesterID),
		SentOn:      sentOn,
		Metrics:     metrics,
		Body:        body,
	}
	if r.RequestID == "" || r.RequesterID == "" {
		return Request{}, fmt.Errorf("%w: request on %q lacks %s or %s", ErrMalformedPayload, f.Topic, MetricRequestID, MetricRequesterID)
	}
	return r, nil
}

func encodeResponse(cfg Config, c payloadCodec, r Response) (transport.Frame, error) {
	topic, err := cfg.ReplyTopic(r.Scope, r.RequesterID, r.App, r.RequestID)
	if err != nil {
		return transport.Frame{}, err
	}
	metrics := withMetrics(r.Metrics, map[string]any{
		MetricResponseCode:     string(r.Code),
		MetricExceptionMessage: r.ExceptionMessage,
		MetricExceptionStack:   r.ExceptionStack,
	})
	payload, err := encodePayload(c, r.SentOn, metrics, r.Body)
	if err != nil {
		return transport.Frame{}, err
	}
	return transport.Frame{Topic: topic, Payload: payload}, nil
}

func decodeResponse(cfg Config, c payloadCodec, f transport.Frame) (Response, error) {
	levels, control := cfg.split(f.Topic)
	if !control || len(levels) != 5 || levels[3] != string(VerbReply) {
		return Response{}, fmt.Errorf("%w: %q is not a reply topic", ErrMalformedTopic, f.Topic)
	}
	sentOn, metrics, body, err := decodePayload(c, f.Payload)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Scope:            levels[0],
		RequesterID:      levels[1],
		App:              levels[2],
		RequestID:        levels[4],
		Code:             message.ResponseCode(takeMetric(metrics, MetricResponseCode)),
		ExceptionMessage: takeMetric(metrics, MetricExceptionMessage),
		ExceptionStack:   takeMetric(metrics, MetricExceptionStack),
		SentOn:           sentOn,
		Metrics:          metrics,
		Body:             body,
	}, nil
}

func encodeData(cfg Config, c payloadCodec, d Data) (transport.Frame, error) {
	levels := append([]string{d.Scope, d.ClientID}, d.Channel...)
	if d.Control {
		levels = append([]string{cfg.Classifier}, levels...)
	}
	topic, err := joinLevels(levels)
	if err != nil {
		return transport.Frame{}, err
	}
	payload, err := encodePayload(c, d.SentOn, d.Metrics, d.Body)
	if err != nil {
		return transport.Frame{}, err
	}
	return transport.Frame{Topic: topic, Payload: payload}, nil
}

func decodeData(cfg Config, c payloadCodec, f transport.Frame) (Data, error) {
	levels, control := cfg.split(f.Topic)
	if len(levels) < 2 || levels[0] == "" || levels[1] == "" {
		return Data{}, fmt.Errorf("%w: %q has no scope and client", ErrMalformedTopic, f.Topic)
	}
	sentOn, metrics, body, err := decodePayload(c, f.Payload)
	if err != nil {
		return Data{}, err
	}
	return Data{
		Scope:    levels[0],
		ClientID: levels[1],
		Control:  control,
		Channel:  levels[2:],
		SentOn:   sentOn,
		Metrics:  metrics,
		Body:     body,
	}, nil
}

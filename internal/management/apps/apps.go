package apps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/management/call"
	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
)

// Caller is the part of *call.Caller the applications use.
type Caller interface {
	Send(ctx context.Context, opts call.Options) (*message.Response, error)
	SendAndForget(ctx context.Context, opts call.Options) error
}

// ErrMalformedBody is returned when a reply body cannot be decoded.
var ErrMalformedBody = errors.New("apps: malformed reply body")

// RejectedError reports a reply whose code is not ACCEPTED.
type RejectedError struct {
	App     string
	Code    message.ResponseCode
	Message string
	Stack   string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: device replied %s", e.App, e.Code)
	}
	return fmt.Sprintf("%s: device replied %s: %s", e.App, e.Code, e.Message)
}

// Target addresses one device.
type Target struct {
	ScopeID  string
	DeviceID string
}

// NewRequest builds a request to app on target.
func (d Descriptor) NewRequest(target Target, method message.Method, resources ...string) *message.Request {
	return &message.Request{
		Header: message.Header{
			ScopeID:  target.ScopeID,
			DeviceID: target.DeviceID,
		},
		Type:         d.Request,
		ResponseType: d.Response,
		Channel: message.Channel{
			AppName:    d.Name,
			AppVersion: d.Version,
			Method:     method,
			Resources:  resources,
		},
		Payload: message.Payload{Metrics: message.Metrics{}},
	}
}

// Do sends req and returns the reply if the device accepted it.
func (d Descriptor) Do(ctx context.Context, c Caller, req *message.Request, timeout time.Duration) (*message.Response, error) {
	resp, err := c.Send(ctx, call.Options{Request: req, Timeout: timeout})
	if err != nil {
		return nil, err
	}
	if !resp.Code.Accepted() {
		return resp, &RejectedError{
			App:     d.ID(),
			Code:    resp.Code,
			Message: resp.ExceptionMessage,
			Stack:   resp.ExceptionStack,
		}
	}
	return resp, nil
}

// SetBody JSON-encodes v into the request body.
func SetBody(req *message.Request, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s request body: %w", req.Channel.AppID(), err)
	}
	req.Payload.Body = b
	return nil
}

// DecodeBody JSON-decodes the reply body into v. An empty body leaves v
// unchanged.
func DecodeBody(resp *message.Response, v any) error {
	if len(resp.Payload.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Payload.Body, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}
	return nil
}

package mqtt

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-fleet/internal/management/transport"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends payload to destination and waits for the broker's
// acknowledgement, the context or the publish timeout, whichever comes first.
//
// The transport-qos header selects the QoS; without it the configured
// default applies. Other headers are not transmitted.
//
// QoS Levels:
//   - 0: At most once (fire and forget)
//   - 1: At least once (guaranteed delivery, may duplicate)
//   - 2: Exactly once (guaranteed, no duplicates, higher overhead)
//
// Every failure is returned as a *transport.Error.
func (c *Client) Publish(ctx context.Context, destination string, payload []byte, headers transport.Headers) error {
	if err := c.publish(ctx, destination, payload, headers); err != nil {
		return &transport.Error{Op: "publish", Destination: destination, Err: err}
	}
	return nil
}

func (c *Client) publish(ctx context.Context, destination string, payload []byte, headers transport.Headers) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !transport.ValidTopic(destination) {
		return ErrInvalidTopic
	}
	qos, err := c.qosOf(headers)
	if err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(destination, qos, false, payload)
	timer := c.clock.NewTimer(defaultPublishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return fmt.Errorf("%w: %w after %v", ErrPublishFailed, ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// qosOf returns the QoS requested by headers, or the configured default.
func (c *Client) qosOf(headers transport.Headers) (byte, error) {
	qos := int64(c.cfg.QoS)
	if _, present := headers.Get(transport.HeaderQoS); present {
		v, ok := headers.Int(transport.HeaderQoS)
		if !ok {
			return 0, ErrInvalidQoS
		}
		qos = v
	}
	if qos < 0 || qos > maxQoS {
		return 0, ErrInvalidQoS
	}
	return byte(qos), nil
}

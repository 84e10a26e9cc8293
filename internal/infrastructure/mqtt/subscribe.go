package mqtt

import (
	"fmt"

	"github.com/nerrad567/gray-logic-fleet/internal/management/transport"
)

// Subscribe registers handler for messages on every topic matching filter.
//
// Filters can include MQTT wildcards:
//   - + (single-level): "$ctl/+/fleetcore/+/REPLY/#" matches replies from any scope
//   - # (multi-level): "$ctl/#" matches all control traffic
//
// The subscription uses the configured QoS. The handler is called on a paho
// goroutine and should not block for extended periods. Subscriptions are
// restored automatically after a reconnect.
//
// Every failure is returned as a *transport.Error.
func (c *Client) Subscribe(filter string, handler transport.Handler) error {
	if err := c.subscribe(filter, handler); err != nil {
		return &transport.Error{Op: "subscribe", Destination: filter, Err: err}
	}
	return nil
}

func (c *Client) subscribe(filter string, handler transport.Handler) error {
	if !transport.ValidFilter(filter) {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	qos := byte(c.cfg.QoS)
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[filter] = subscription{filter: filter, qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(filter, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		c.forget(filter)
		return fmt.Errorf("%w: %w after %v", ErrSubscribeFailed, ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(filter)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Unsubscribe removes the subscription registered for filter. Messages
// already in flight may still be delivered.
func (c *Client) Unsubscribe(filter string) error {
	if err := c.unsubscribe(filter); err != nil {
		return &transport.Error{Op: "unsubscribe", Destination: filter, Err: err}
	}
	return nil
}

func (c *Client) unsubscribe(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}

	// Forget first so a reconnect does not resurrect it.
	c.forget(filter)

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Unsubscribe(filter)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrUnsubscribeFailed, ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

func (c *Client) forget(filter string) {
	c.subMu.Lock()
	delete(c.subscriptions, filter)
	c.subMu.Unlock()
}

// SubscriptionCount returns the number of active subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription checks if a subscription exists for the given filter.
//
// Note: This checks only the exact filter string, not pattern matching.
func (c *Client) HasSubscription(filter string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[filter]
	return exists
}

package transport

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/juju/clock"
)

// Logger is the logging interface used by transport implementations.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// PublishHook intercepts publishes on a Loopback. Returning an error fails
// the publish before any subscriber sees the message.
type PublishHook func(destination string, payload []byte, headers Headers) error

// Loopback is an in-process broker implementing Client.
//
// Every publish is delivered to each matching subscription on its own
// goroutine, the way a network client delivers on its receive goroutine.
// Delivered messages carry the original-topic, enqueued-timestamp and
// connection-id headers a broker would add. It backs the "loopback"
// transport setting and the management package tests.
type Loopback struct {
	clock        clock.Clock
	connectionID string

	mu     sync.RWMutex
	subs   map[string]Handler
	hook   PublishHook
	closed bool

	connected  atomic.Bool
	deliveries sync.WaitGroup
	published  atomic.Int64

	logger Logger
}

// NewLoopback creates a connected loopback broker. connectionID is stamped on
// delivered messages; pass "" to omit the header.
func NewLoopback(clk clock.Clock, connectionID string) *Loopback {
	if clk == nil {
		clk = clock.WallClock
	}
	l := &Loopback{
		clock:        clk,
		connectionID: connectionID,
		subs:         make(map[string]Handler),
		logger:       noopLogger{},
	}
	l.connected.Store(true)
	return l
}

// SetLogger sets the logger for delivery diagnostics.
func (l *Loopback) SetLogger(logger Logger) {
	l.mu.Lock()
	l.logger = logger
	l.mu.Unlock()
}

// SetPublishHook installs hook on every subsequent publish.
func (l *Loopback) SetPublishHook(hook PublishHook) {
	l.mu.Lock()
	l.hook = hook
	l.mu.Unlock()
}

// SetConnected simulates a connection drop or restore.
func (l *Loopback) SetConnected(connected bool) {
	l.connected.Store(connected)
}

// IsConnected reports whether the loopback accepts publishes.
func (l *Loopback) IsConnected() bool {
	return l.connected.Load()
}

// Published returns the number of successful publishes.
func (l *Loopback) Published() int64 {
	return l.published.Load()
}

// Publish delivers payload to every subscription whose filter matches
// destination. It returns once the message has been handed to the
// subscribers' goroutines.
func (l *Loopback) Publish(ctx context.Context, destination string, payload []byte, headers Headers) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "publish", Destination: destination, Err: err}
	}
	if !ValidTopic(destination) {
		return &Error{Op: "publish", Destination: destination, Err: ErrInvalidDestination}
	}

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return &Error{Op: "publish", Destination: destination, Err: ErrClosed}
	}
	if !l.connected.Load() {
		l.mu.RUnlock()
		return &Error{Op: "publish", Destination: destination, Err: ErrNotConnected}
	}
	hook := l.hook
	var targets []Handler
	for filter, h := range l.subs {
		if MatchTopic(filter, destination) {
			targets = append(targets, h)
		}
	}
	logger := l.logger
	// Add under the read lock so Close cannot start waiting before these
	// deliveries are counted.
	l.deliveries.Add(len(targets))
	l.mu.RUnlock()

	if hook != nil {
		if err := hook(destination, payload, headers); err != nil {
			l.deliveries.Add(-len(targets))
			return &Error{Op: "publish", Destination: destination, Err: err}
		}
	}
	l.published.Add(1)

	delivered := headers.Clone()
	delivered[HeaderOriginalTopic] = destination
	delivered[HeaderEnqueuedTimestamp] = strconv.FormatInt(l.clock.Now().UnixMilli(), 10)
	if l.connectionID != "" {
		delivered[HeaderConnectionID] = l.connectionID
	}
	body := append([]byte(nil), payload...)

	for _, h := range targets {
		go l.deliver(h, NewMessage(destination, delivered.Clone(), body), logger)
	}
	return nil
}

func (l *Loopback) deliver(h Handler, msg Message, logger Logger) {
	defer l.deliveries.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("loopback handler panic recovered",
				"destination", msg.Destination,
				"panic", r,
			)
		}
	}()
	h(msg)
}

// Subscribe registers handler for filter, replacing any previous handler
// for the same filter.
func (l *Loopback) Subscribe(filter string, handler Handler) error {
	if !ValidFilter(filter) {
		return &Error{Op: "subscribe", Destination: filter, Err: ErrInvalidDestination}
	}
	if handler == nil {
		return &Error{Op: "subscribe", Destination: filter, Err: fmt.Errorf("nil handler")}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return &Error{Op: "subscribe", Destination: filter, Err: ErrClosed}
	}
	l.subs[filter] = handler
	return nil
}

// Unsubscribe removes the handler registered for filter.
func (l *Loopback) Unsubscribe(filter string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs, filter)
	return nil
}

// SubscriptionCount returns the number of active subscriptions.
func (l *Loopback) SubscriptionCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs)
}

// Drain blocks until every in-flight delivery has returned.
func (l *Loopback) Drain() {
	l.deliveries.Wait()
}

// Close stops accepting publishes and waits for in-flight deliveries.
func (l *Loopback) Close() error {
	l.mu.Lock()
	l.closed = true
	l.subs = make(map[string]Handler)
	l.mu.Unlock()

	l.connected.Store(false)
	l.deliveries.Wait()
	return nil
}

var _ Client = (*Loopback)(nil)

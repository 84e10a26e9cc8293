package devicecall

import (
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/management/translator"
)

// outcome is the single result a pending call resolves with.
type outcome struct {
	value any
	err   error
}

// pendingCall tracks one correlated request awaiting its reply.
//
// Exactly one party resolves it: the reply handler, the deadline timer, a
// publish failure, caller cancellation or Close. Each must win claim()
// before touching result, so result receives at most one value and the
// send never blocks.
type pendingCall struct {
	id           string
	responseType translator.Type
	sentAt       time.Time
	result       chan outcome
	resolved     atomic.Bool
}

func newPendingCall(id string, responseType translator.Type, sentAt time.Time) *pendingCall {
	return &pendingCall{
		id:           id,
		responseType: responseType,
		sentAt:       sentAt,
		result:       make(chan outcome, 1),
	}
}

// claim reports whether the caller won the right to resolve the call.
func (p *pendingCall) claim() bool {
	return p.resolved.CompareAndSwap(false, true)
}

// resolve delivers o. Only the party that won claim() may call it.
func (p *pendingCall) resolve(o outcome) {
	p.result <- o
}

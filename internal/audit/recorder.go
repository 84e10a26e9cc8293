package audit

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/juju/clock"

	"github.com/nerrad567/gray-logic-fleet/internal/management/call"
)

// Audit vocabulary for device management calls.
const (
	ActionDeviceCall = "device_call"
	EntityDevice     = "device"
	SourceManagement = "management"
)

// DefaultQueueSize bounds the entries waiting to be written. Entries beyond
// it are dropped and counted.
const DefaultQueueSize = 256

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CallRecorder writes one audit entry per device management call.
//
// ObserveCall only enqueues; Run performs the writes, one at a time.
type CallRecorder struct {
	repo    Repository
	queue   chan *Entry
	clock   clock.Clock
	logger  Logger
	dropped atomic.Int64
}

// RecorderOption configures a CallRecorder.
type RecorderOption func(*CallRecorder)

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) RecorderOption {
	return func(r *CallRecorder) {
		if n > 0 {
			r.queue = make(chan *Entry, n)
		}
	}
}

// WithClock sets the clock used to stamp entries for requests without a
// send time.
func WithClock(c clock.Clock) RecorderOption {
	return func(r *CallRecorder) { r.clock = c }
}

// WithLogger sets the recorder's logger.
func WithLogger(l Logger) RecorderOption {
	return func(r *CallRecorder) { r.logger = l }
}

// NewCallRecorder creates a recorder writing to repo.
func NewCallRecorder(repo Repository, opts ...RecorderOption) *CallRecorder {
	r := &CallRecorder{
		repo:   repo,
		queue:  make(chan *Entry, DefaultQueueSize),
		clock:  clock.WallClock,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ObserveCall implements call.Observer. It never blocks.
func (r *CallRecorder) ObserveCall(_ context.Context, rec call.Record) {
	entry := r.entryFor(rec)
	select {
	case r.queue <- entry:
	default:
		r.dropped.Add(1)
		r.logger.Warn("audit queue full, dropping entry",
			"entity_id", entry.EntityID,
			"outcome", entry.Details["outcome"],
		)
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (r *CallRecorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run writes queued entries until ctx is done, then drains what is left.
// It always returns nil.
func (r *CallRecorder) Run(ctx context.Context) error {
	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.queue:
					r.write(entry)
				default:
					return nil
				}
			}
		}
	}
}

func (r *CallRecorder) write(entry *Entry) {
	// Detached from Run's context so the shutdown drain still lands.
	if err := r.repo.Create(context.Background(), entry); err != nil {
		r.logger.Error("audit write failed",
			"action", entry.Action,
			"entity_id", entry.EntityID,
			"error", err,
		)
	}
}

func (r *CallRecorder) entryFor(rec call.Record) *Entry {
	details := map[string]any{
		"outcome":    rec.Outcome(),
		"elapsed_ms": rec.Elapsed.Milliseconds(),
	}
	entry := &Entry{
		Action:     ActionDeviceCall,
		EntityType: EntityDevice,
		Source:     SourceManagement,
		Details:    details,
	}

	if req := rec.Request; req != nil {
		entry.EntityID = req.ScopeID + "/" + req.DeviceID
		entry.CreatedAt = req.SentOn
		details["app"] = req.Channel.AppID()
		details["method"] = string(req.Channel.Method)
		if len(req.Channel.Resources) > 0 {
			details["resources"] = req.Channel.Resources
		}
	} else {
		var ce *call.Error
		if errors.As(rec.Err, &ce) && ce.ScopeID != "" {
			entry.EntityID = ce.ScopeID + "/" + ce.DeviceID
		}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.clock.Now()
	}

	if rec.Dialect != "" {
		details["dialect"] = rec.Dialect
	}
	if rec.FireAndForget {
		details["fire_and_forget"] = true
	}
	if rec.Response != nil {
		details["code"] = string(rec.Response.Code)
		if rec.Response.ExceptionMessage != "" {
			details["exception"] = rec.Response.ExceptionMessage
		}
	}
	if rec.Err != nil {
		details["error"] = rec.Err.Error()
	}
	return entry
}

var _ call.Observer = (*CallRecorder)(nil)

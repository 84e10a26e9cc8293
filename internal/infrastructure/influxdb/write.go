package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-fleet/internal/management/call"
)

// MeasurementDeviceCalls holds one point per device management call.
const MeasurementDeviceCalls = "device_calls"

// WriteCallMetric records one completed call.
//
// Tags: scope_id, app, method, dialect, outcome and, for replies, code.
// Fields: elapsed_ms and fire_and_forget. The point is timestamped with the
// request's send time, falling back to now.
func (c *Client) WriteCallMetric(rec call.Record) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(callPoint(rec, time.Now()))
}

// ObserveCall implements call.Observer.
func (c *Client) ObserveCall(_ context.Context, rec call.Record) {
	c.WriteCallMetric(rec)
}

func callPoint(rec call.Record, now time.Time) *write.Point {
	tags := map[string]string{"outcome": rec.Outcome()}
	at := now
	if req := rec.Request; req != nil {
		setTag(tags, "scope_id", req.ScopeID)
		setTag(tags, "app", req.Channel.AppID())
		setTag(tags, "method", string(req.Channel.Method))
		if !req.SentOn.IsZero() {
			at = req.SentOn
		}
	}
	setTag(tags, "dialect", rec.Dialect)
	if rec.Response != nil {
		setTag(tags, "code", string(rec.Response.Code))
	}

	fields := map[string]any{
		"elapsed_ms":      float64(rec.Elapsed) / float64(time.Millisecond),
		"fire_and_forget": rec.FireAndForget,
	}
	return write.NewPoint(MeasurementDeviceCalls, tags, fields, at)
}

// setTag skips empty values; line protocol cannot carry them.
func setTag(tags map[string]string, key, value string) {
	if value != "" {
		tags[key] = value
	}
}

var _ call.Observer = (*Client)(nil)

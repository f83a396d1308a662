// Package observe provides application-wide observability primitives for the
// RepoRecon bridge: OpenTelemetry metrics with a Prometheus exporter bridge
// so the usual /metrics endpoint keeps working.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all bridge metrics.
const meterName = "github.com/MrWong99/reporecon"

// Metrics holds all OpenTelemetry metric instruments for the bridge.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Audio pipeline counters ---

	// FramesSent counts outbound audio frames.
	FramesSent metric.Int64Counter

	// FramesReceived counts inbound audio frames.
	FramesReceived metric.Int64Counter

	// BytesSent counts outbound PCM payload bytes.
	BytesSent metric.Int64Counter

	// BytesReceived counts inbound PCM payload bytes.
	BytesReceived metric.Int64Counter

	// CaptureDrops counts frames discarded because the consumer fell behind
	// the real-time capture thread.
	CaptureDrops metric.Int64Counter

	// --- Playback ---

	// Underruns counts jitter-buffer re-arms caused by playback under-runs.
	Underruns metric.Int64Counter

	// --- Protocol ---

	// MalformedFrames counts inbound binary messages dropped because they
	// could not be interpreted as int16 PCM.
	MalformedFrames metric.Int64Counter

	// ControlEvents counts inbound control events. Use with attribute:
	//   attribute.String("kind", ...)
	ControlEvents metric.Int64Counter

	// --- Session lifecycle ---

	// SessionStarts counts session start attempts. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	SessionStarts metric.Int64Counter

	// ActiveSessions tracks the number of live sessions (0 or 1 per
	// controller).
	ActiveSessions metric.Int64UpDownCounter
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesSent, err = m.Int64Counter("reporecon.frames.sent",
		metric.WithDescription("Total outbound audio frames."),
	); err != nil {
		return nil, err
	}
	if met.FramesReceived, err = m.Int64Counter("reporecon.frames.received",
		metric.WithDescription("Total inbound audio frames."),
	); err != nil {
		return nil, err
	}
	if met.BytesSent, err = m.Int64Counter("reporecon.bytes.sent",
		metric.WithDescription("Total outbound PCM payload bytes."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.BytesReceived, err = m.Int64Counter("reporecon.bytes.received",
		metric.WithDescription("Total inbound PCM payload bytes."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.CaptureDrops, err = m.Int64Counter("reporecon.capture.drops",
		metric.WithDescription("Frames dropped at the real-time capture handoff."),
	); err != nil {
		return nil, err
	}
	if met.Underruns, err = m.Int64Counter("reporecon.playback.underruns",
		metric.WithDescription("Playback under-runs that re-armed the jitter buffer."),
	); err != nil {
		return nil, err
	}
	if met.MalformedFrames, err = m.Int64Counter("reporecon.frames.malformed",
		metric.WithDescription("Inbound binary messages dropped as unparseable PCM."),
	); err != nil {
		return nil, err
	}
	if met.ControlEvents, err = m.Int64Counter("reporecon.control.events",
		metric.WithDescription("Inbound control events by kind."),
	); err != nil {
		return nil, err
	}
	if met.SessionStarts, err = m.Int64Counter("reporecon.session.starts",
		metric.WithDescription("Session start attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("reporecon.active_sessions",
		metric.WithDescription("Number of live bridge sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordFrameSent records one outbound frame of the given payload size.
func (m *Metrics) RecordFrameSent(ctx context.Context, bytes int) {
	m.FramesSent.Add(ctx, 1)
	m.BytesSent.Add(ctx, int64(bytes))
}

// RecordFrameReceived records one inbound frame of the given payload size.
func (m *Metrics) RecordFrameReceived(ctx context.Context, bytes int) {
	m.FramesReceived.Add(ctx, 1)
	m.BytesReceived.Add(ctx, int64(bytes))
}

// RecordMalformedFrame records one dropped unparseable binary message.
func (m *Metrics) RecordMalformedFrame(ctx context.Context) {
	m.MalformedFrames.Add(ctx, 1)
}

// RecordControlEvent records one inbound control event of the given kind.
func (m *Metrics) RecordControlEvent(ctx context.Context, kind string) {
	m.ControlEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordSessionStart records a session start attempt with its outcome.
func (m *Metrics) RecordSessionStart(ctx context.Context, status string) {
	m.SessionStarts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

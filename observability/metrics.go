package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// StreamMetrics holds the instrument set fed by the SSE hub.
type StreamMetrics struct {
	connectionsActive metric.Int64UpDownCounter
	framesSent        metric.Int64Counter
	framesRetried     metric.Int64Counter
	framesDropped     metric.Int64Counter
	evictions         metric.Int64Counter
}

// NewStreamMetrics creates metric instruments on the given meter.
func NewStreamMetrics(meter metric.Meter) (*StreamMetrics, error) {
	connectionsActive, err := meter.Int64UpDownCounter("stream.connections.active",
		metric.WithDescription("Number of currently open client connections"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.connections.active gauge: %w", err)
	}

	framesSent, err := meter.Int64Counter("stream.frames.sent",
		metric.WithDescription("Total frames written to client streams"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.frames.sent counter: %w", err)
	}

	framesRetried, err := meter.Int64Counter("stream.frames.retried",
		metric.WithDescription("Total cached frames re-emitted by the sweep"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.frames.retried counter: %w", err)
	}

	framesDropped, err := meter.Int64Counter("stream.frames.dropped",
		metric.WithDescription("Total cached frames dropped after TTL or retry ceiling"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.frames.dropped counter: %w", err)
	}

	evictions, err := meter.Int64Counter("stream.connections.evicted",
		metric.WithDescription("Total connections evicted by the hub"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.connections.evicted counter: %w", err)
	}

	return &StreamMetrics{
		connectionsActive: connectionsActive,
		framesSent:        framesSent,
		framesRetried:     framesRetried,
		framesDropped:     framesDropped,
		evictions:         evictions,
	}, nil
}

// RecordConnect increments the active connection count.
func (m *StreamMetrics) RecordConnect(ctx context.Context) {
	m.connectionsActive.Add(ctx, 1)
}

// RecordDisconnect decrements the active connection count.
func (m *StreamMetrics) RecordDisconnect(ctx context.Context) {
	m.connectionsActive.Add(ctx, -1)
}

// RecordSent records a frame written to a client stream.
func (m *StreamMetrics) RecordSent(ctx context.Context, event string) {
	m.framesSent.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
	))
}

// RecordRetried records frames re-emitted by the sweep.
func (m *StreamMetrics) RecordRetried(ctx context.Context, count int64) {
	m.framesRetried.Add(ctx, count)
}

// RecordDropped records cached frames dropped after TTL or retry ceiling.
func (m *StreamMetrics) RecordDropped(ctx context.Context, count int64) {
	m.framesDropped.Add(ctx, count)
}

// RecordEviction records a connection evicted by the hub.
func (m *StreamMetrics) RecordEviction(ctx context.Context, reason string) {
	m.evictions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

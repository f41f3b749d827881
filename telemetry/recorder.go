package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder records storefront events. A nil *Recorder records nothing, so
// components can hold one unconditionally.
type Recorder struct {
	instruments *MetricInstruments
}

// NewRecorder creates a recorder on mp; nil uses the global provider.
func NewRecorder(mp metric.MeterProvider) *Recorder {
	return &Recorder{instruments: NewMetricInstruments(mp, MeterStorefront)}
}

// Instruments exposes the underlying cache for ad hoc metrics.
func (r *Recorder) Instruments() *MetricInstruments {
	if r == nil {
		return nil
	}
	return r.instruments
}

// OrderSubmitted counts an accepted order. queued marks a flush of a
// previously queued order rather than a direct checkout.
func (r *Recorder) OrderSubmitted(ctx context.Context, queued bool, took time.Duration) {
	if r == nil {
		return
	}
	src := "checkout"
	if queued {
		src = "queue"
	}
	_ = r.instruments.Count(ctx, MetricOrdersSubmitted, 1,
		metric.WithAttributes(attribute.String("source", src)))
	_ = r.instruments.Observe(ctx, MetricSubmitDuration, float64(took.Milliseconds()),
		metric.WithAttributes(attribute.String("source", src)))
}

// OrderQueued counts an order saved for later submission.
func (r *Recorder) OrderQueued(ctx context.Context, reason string) {
	if r == nil {
		return
	}
	_ = r.instruments.Count(ctx, MetricOrdersQueued, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}

// ValidationFailed counts a checkout blocked by form validation.
func (r *Recorder) ValidationFailed(ctx context.Context, field string) {
	if r == nil {
		return
	}
	_ = r.instruments.Count(ctx, MetricValidationFails, 1,
		metric.WithAttributes(attribute.String("field", field)))
}

// QueueFlushed counts a flush cycle by outcome.
func (r *Recorder) QueueFlushed(ctx context.Context, sent int, err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	_ = r.instruments.Count(ctx, MetricQueueFlushes, 1,
		metric.WithAttributes(
			attribute.String("result", result),
			attribute.Int("orders", sent),
		))
}

// QueueDepth reports the queue length through fn on every collection.
func (r *Recorder) QueueDepth(fn func() int) error {
	if r == nil {
		return nil
	}
	return r.instruments.RegisterGauge(MetricQueueDepth, func() float64 { return float64(fn()) },
		metric.WithDescription("Orders waiting in the offline queue"))
}

// AckWritten counts a client acknowledgment written for status.
func (r *Recorder) AckWritten(ctx context.Context, status string) {
	if r == nil {
		return
	}
	_ = r.instruments.Count(ctx, MetricAcksWritten, 1,
		metric.WithAttributes(attribute.String("status", status)))
}

// AckSkipped counts an acknowledgment skipped, with the reason.
func (r *Recorder) AckSkipped(ctx context.Context, status, reason string) {
	if r == nil {
		return
	}
	_ = r.instruments.Count(ctx, MetricAcksSkipped, 1,
		metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("reason", reason),
		))
}

// CatalogRebuilt counts a view rebuild.
func (r *Recorder) CatalogRebuilt(ctx context.Context, online bool) {
	if r == nil {
		return
	}
	_ = r.instruments.Count(ctx, MetricCatalogRebuilds, 1,
		metric.WithAttributes(attribute.Bool("online", online)))
}

// Shutdown releases gauge callbacks.
func (r *Recorder) Shutdown() error {
	if r == nil {
		return nil
	}
	return r.instruments.Shutdown()
}

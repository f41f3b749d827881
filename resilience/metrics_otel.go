package resilience

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/itsneelabh/storefront/telemetry"
)

// OTelMetricsCollector records circuit breaker activity as OpenTelemetry
// counters, all tagged with the breaker name.
type OTelMetricsCollector struct {
	metrics *telemetry.MetricInstruments
	ctx     context.Context
}

// NewOTelMetricsCollector creates a collector recording into mp; nil uses
// the global provider.
func NewOTelMetricsCollector(ctx context.Context, mp metric.MeterProvider) *OTelMetricsCollector {
	return &OTelMetricsCollector{
		metrics: telemetry.NewMetricInstruments(mp, telemetry.MeterResilience),
		ctx:     ctx,
	}
}

func (o *OTelMetricsCollector) count(metricName, breaker string, attrs ...attribute.KeyValue) {
	attrs = append(attrs, attribute.String("circuit_breaker", breaker))
	_ = o.metrics.Count(o.ctx, metricName, 1, metric.WithAttributes(attrs...))
}

func (o *OTelMetricsCollector) RecordSuccess(name string) {
	o.count(telemetry.MetricCircuitBreakerSuccess, name)
}

func (o *OTelMetricsCollector) RecordFailure(name string, errorType string) {
	o.count(telemetry.MetricCircuitBreakerFailure, name, attribute.String("error_type", errorType))
}

func (o *OTelMetricsCollector) RecordStateChange(name string, from, to string) {
	o.count(telemetry.MetricCircuitBreakerState, name,
		attribute.String("from_state", from),
		attribute.String("to_state", to),
	)
}

func (o *OTelMetricsCollector) RecordRejection(name string) {
	o.count(telemetry.MetricCircuitBreakerRejected, name)
}

var _ MetricsCollector = (*OTelMetricsCollector)(nil)

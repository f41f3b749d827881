package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Meter names used by the storefront.
const (
	MeterStorefront = "github.com/itsneelabh/storefront"
	MeterResilience = "github.com/itsneelabh/storefront/resilience"
)

// MetricInstruments lazily creates and caches instruments by name. The
// storefront records a handful of metric names many times, so every
// instrument is created once.
type MetricInstruments struct {
	meter metric.Meter

	mu         sync.RWMutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Registration
}

// NewMetricInstruments creates an instrument cache on mp. A nil mp uses the
// global provider.
func NewMetricInstruments(mp metric.MeterProvider, meterName string) *MetricInstruments {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	return &MetricInstruments{
		meter:      mp.Meter(meterName),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
		gauges:     make(map[string]metric.Registration),
	}
}

// cached returns cache[name], creating it with create on first use.
func cached[T any](mu *sync.RWMutex, cache map[string]T, name string, create func(string) (T, error)) (T, error) {
	mu.RLock()
	inst, ok := cache[name]
	mu.RUnlock()
	if ok {
		return inst, nil
	}

	mu.Lock()
	defer mu.Unlock()
	if inst, ok = cache[name]; ok {
		return inst, nil
	}
	inst, err := create(name)
	if err != nil {
		return inst, fmt.Errorf("create instrument %s: %w", name, err)
	}
	cache[name] = inst
	return inst, nil
}

// Count adds value to the counter name.
func (m *MetricInstruments) Count(ctx context.Context, name string, value int64, opts ...metric.AddOption) error {
	c, err := cached(&m.mu, m.counters, name, func(n string) (metric.Int64Counter, error) {
		return m.meter.Int64Counter(n)
	})
	if err != nil {
		return err
	}
	c.Add(ctx, value, opts...)
	return nil
}

// Observe records value in the histogram name.
func (m *MetricInstruments) Observe(ctx context.Context, name string, value float64, opts ...metric.RecordOption) error {
	h, err := cached(&m.mu, m.histograms, name, func(n string) (metric.Float64Histogram, error) {
		return m.meter.Float64Histogram(n)
	})
	if err != nil {
		return err
	}
	h.Record(ctx, value, opts...)
	return nil
}

// RegisterGauge registers an observable gauge read from fn at collection
// time. A name can be registered once.
func (m *MetricInstruments) RegisterGauge(name string, fn func() float64, opts ...metric.Float64ObservableGaugeOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.gauges[name]; exists {
		return fmt.Errorf("gauge %s already registered", name)
	}
	gauge, err := m.meter.Float64ObservableGauge(name, opts...)
	if err != nil {
		return fmt.Errorf("create gauge %s: %w", name, err)
	}
	reg, err := m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveFloat64(gauge, fn())
		return nil
	}, gauge)
	if err != nil {
		return fmt.Errorf("register gauge %s: %w", name, err)
	}
	m.gauges[name] = reg
	return nil
}

// Shutdown unregisters every gauge callback.
func (m *MetricInstruments) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var first error
	for name, reg := range m.gauges {
		if err := reg.Unregister(); err != nil && first == nil {
			first = fmt.Errorf("unregister gauge %s: %w", name, err)
		}
		delete(m.gauges, name)
	}
	return first
}

// Storefront metric names
const (
	// Checkout
	MetricOrdersSubmitted = "storefront.orders.submitted"
	MetricOrdersQueued    = "storefront.orders.queued"
	MetricSubmitDuration  = "storefront.orders.submit_duration_ms"
	MetricValidationFails = "storefront.checkout.validation_failures"

	// Offline queue
	MetricQueueFlushes = "storefront.queue.flushes"
	MetricQueueDepth   = "storefront.queue.depth"

	// Tracker
	MetricAcksWritten = "storefront.tracker.acks_written"
	MetricAcksSkipped = "storefront.tracker.acks_skipped"

	// Catalog
	MetricCatalogRebuilds = "storefront.catalog.rebuilds"

	// Circuit breaker
	MetricCircuitBreakerSuccess  = "storefront.circuit_breaker.success"
	MetricCircuitBreakerFailure  = "storefront.circuit_breaker.failure"
	MetricCircuitBreakerRejected = "storefront.circuit_breaker.rejected"
	MetricCircuitBreakerState    = "storefront.circuit_breaker.state_changes"
)

// Package queue keeps orders that could not be submitted in a local durable
// list and replays them once the remote store is reachable again.
//
// A flush submits every queued order in enqueue order and clears the list
// only when the whole batch went through. A failure anywhere leaves every
// order queued for the next attempt, so delivery is at-least-once; orders
// carry an idempotency key that makes a replayed submission a no-op on the
// remote side.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/order"
	"github.com/itsneelabh/storefront/telemetry"
)

// Submitter writes one order to the remote store and returns the remote id.
// Submitting an order that is already stored must succeed.
type Submitter interface {
	Submit(ctx context.Context, o order.Order) (string, error)
}

// SubmitFunc adapts a function to Submitter.
type SubmitFunc func(ctx context.Context, o order.Order) (string, error)

// Submit calls f.
func (f SubmitFunc) Submit(ctx context.Context, o order.Order) (string, error) {
	return f(ctx, o)
}

// FlushResult reports what one Flush call did.
type FlushResult struct {
	Sent int `json:"sent"`
	// Coalesced is true when another flush was already running and this call
	// returned without doing anything.
	Coalesced bool `json:"coalesced"`
	// LastOrderID is the remote id of the last order sent in this flush.
	LastOrderID string `json:"lastOrderId,omitempty"`
}

// Queue is the offline order queue stored under checkout_pending.
type Queue struct {
	local     core.Memory
	submitter Submitter
	logger    core.Logger
	tracer    trace.Tracer
	metrics   *telemetry.Recorder
	onSent    []func(ctx context.Context, id string, o order.Order)

	// mu serialises read-modify-write cycles on the stored list
	mu sync.Mutex
	// flushing is held for the duration of a flush
	flushing sync.Mutex
}

// Option configures a Queue
type Option func(*Queue)

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(q *Queue) { q.logger = core.ComponentLogger(logger, "queue") }
}

// WithRecorder records flush metrics
func WithRecorder(r *telemetry.Recorder) Option {
	return func(q *Queue) { q.metrics = r }
}

// OnSent registers a callback run after each order of a flush is accepted.
func OnSent(fn func(ctx context.Context, id string, o order.Order)) Option {
	return func(q *Queue) {
		if fn != nil {
			q.onSent = append(q.onSent, fn)
		}
	}
}

// New creates a queue over local storage
func New(local core.Memory, submitter Submitter, opts ...Option) (*Queue, error) {
	if local == nil {
		return nil, fmt.Errorf("queue: local storage: %w", core.ErrMissingConfiguration)
	}
	if submitter == nil {
		return nil, fmt.Errorf("queue: submitter: %w", core.ErrMissingConfiguration)
	}
	q := &Queue{
		local:     local,
		submitter: submitter,
		logger:    &core.NoOpLogger{},
		tracer:    otel.Tracer("github.com/itsneelabh/storefront/queue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Enqueue appends o to the stored list
func (q *Queue) Enqueue(ctx context.Context, o order.Order) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, err := q.load(ctx)
	if err != nil {
		return err
	}
	pending = append(pending, o)
	if err := q.save(ctx, pending); err != nil {
		return err
	}
	q.logger.Info("Order queued for later submission", map[string]interface{}{
		"idempotency_key": o.IdempotencyKey,
		"queue_length":    len(pending),
	})
	return nil
}

// Pending returns the queued orders in enqueue order
func (q *Queue) Pending(ctx context.Context) ([]order.Order, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Len returns the number of queued orders; unreadable storage counts as 0.
func (q *Queue) Len(ctx context.Context) int {
	pending, err := q.Pending(ctx)
	if err != nil {
		return 0
	}
	return len(pending)
}

// Flush submits every queued order in order. The stored list is trimmed only
// after all of them were accepted; orders enqueued while the flush ran stay
// queued. A call made while another flush is running returns immediately
// with Coalesced set.
func (q *Queue) Flush(ctx context.Context) (FlushResult, error) {
	if !q.flushing.TryLock() {
		return FlushResult{Coalesced: true}, nil
	}
	defer q.flushing.Unlock()

	ctx, span := q.tracer.Start(ctx, "queue.Flush")
	defer span.End()

	batch, err := q.Pending(ctx)
	if err != nil {
		span.RecordError(err)
		return FlushResult{}, err
	}
	if len(batch) == 0 {
		return FlushResult{}, nil
	}
	span.SetAttributes(attribute.Int("queue.batch", len(batch)))

	var result FlushResult
	start := time.Now()
	for i, o := range batch {
		id, err := q.submitter.Submit(ctx, o)
		if err != nil {
			span.RecordError(err)
			q.logger.Warn("Queue flush failed, keeping queue", map[string]interface{}{
				"position":        i,
				"batch":           len(batch),
				"idempotency_key": o.IdempotencyKey,
				"error":           err.Error(),
			})
			q.metrics.QueueFlushed(ctx, 0, err)
			return result, &core.StoreError{Op: "queue.Flush", Kind: "queue", ID: o.IdempotencyKey, Err: err}
		}
		result.Sent++
		result.LastOrderID = id
		if err := q.local.Set(ctx, core.KeyLastOrderID, id, 0); err != nil {
			q.logger.Warn("Failed to remember last order id", map[string]interface{}{
				"order_id": id,
				"error":    err.Error(),
			})
		}
		for _, fn := range q.onSent {
			fn(ctx, id, o)
		}
	}

	if err := q.trim(ctx, len(batch)); err != nil {
		span.RecordError(err)
		q.metrics.QueueFlushed(ctx, 0, err)
		return result, err
	}
	q.metrics.QueueFlushed(ctx, result.Sent, nil)
	q.logger.Info("Queue flushed", map[string]interface{}{
		"sent":        result.Sent,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return result, nil
}

// trim drops the first n orders of the stored list.
func (q *Queue) trim(ctx context.Context, n int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, err := q.load(ctx)
	if err != nil {
		return err
	}
	if n > len(pending) {
		n = len(pending)
	}
	return q.save(ctx, pending[n:])
}

// load must be called with q.mu held. Corrupt data reads as an empty queue.
func (q *Queue) load(ctx context.Context) ([]order.Order, error) {
	raw, err := q.local.Get(ctx, core.KeyPendingOrders)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", core.KeyPendingOrders, err)
	}
	if raw == "" {
		return nil, nil
	}
	var pending []order.Order
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		q.logger.Warn("Discarding unreadable order queue", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, nil
	}
	return pending, nil
}

// save must be called with q.mu held.
func (q *Queue) save(ctx context.Context, pending []order.Order) error {
	if pending == nil {
		pending = []order.Order{}
	}
	raw, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("encode order queue: %w", err)
	}
	if err := q.local.Set(ctx, core.KeyPendingOrders, string(raw), 0); err != nil {
		return fmt.Errorf("write %s: %w", core.KeyPendingOrders, err)
	}
	return nil
}

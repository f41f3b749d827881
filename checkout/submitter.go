package checkout

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/docstore"
	"github.com/itsneelabh/storefront/order"
	"github.com/itsneelabh/storefront/resilience"
)

// RemoteSubmitter writes orders to the remote store as
// <collection>/<idempotencyKey>, create-if-absent. An order that is already
// stored counts as accepted, which makes queue replays harmless.
type RemoteSubmitter struct {
	store      docstore.Store
	collection string
	retry      *resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
	logger     core.Logger
	tracer     trace.Tracer
}

// SubmitterOption configures a RemoteSubmitter
type SubmitterOption func(*RemoteSubmitter)

// WithCollection sets the orders collection
func WithCollection(name string) SubmitterOption {
	return func(s *RemoteSubmitter) {
		if name != "" {
			s.collection = name
		}
	}
}

// WithRetry sets the retry policy for one submission
func WithRetry(cfg *resilience.RetryConfig) SubmitterOption {
	return func(s *RemoteSubmitter) { s.retry = cfg }
}

// WithCircuitBreaker lets submissions fail fast while the store keeps failing
func WithCircuitBreaker(cb *resilience.CircuitBreaker) SubmitterOption {
	return func(s *RemoteSubmitter) { s.breaker = cb }
}

// WithSubmitterLogger sets the logger
func WithSubmitterLogger(logger core.Logger) SubmitterOption {
	return func(s *RemoteSubmitter) { s.logger = core.ComponentLogger(logger, "order-submitter") }
}

// NewRemoteSubmitter creates a submitter over store
func NewRemoteSubmitter(store docstore.Store, opts ...SubmitterOption) *RemoteSubmitter {
	s := &RemoteSubmitter{
		store:      store,
		collection: core.DefaultOrdersCollection,
		retry:      resilience.RetryConfigFrom(core.DefaultConfig().Retry),
		logger:     &core.NoOpLogger{},
		tracer:     otel.Tracer("github.com/itsneelabh/storefront/checkout"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit writes o and returns its remote id. Orders without an idempotency
// key get one here.
func (s *RemoteSubmitter) Submit(ctx context.Context, o order.Order) (string, error) {
	if o.IdempotencyKey == "" {
		o.IdempotencyKey = docstore.NewID()
	}
	id := o.IdempotencyKey
	path := docstore.Join(s.collection, id)

	ctx, span := s.tracer.Start(ctx, "checkout.Submit", trace.WithAttributes(
		attribute.String("order.id", id),
	))
	defer span.End()

	doc, err := o.ToDocument()
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	write := func() error {
		return resilience.Retry(ctx, s.retry, func() error {
			err := s.store.Create(ctx, path, doc)
			if errors.Is(err, core.ErrAlreadyExists) {
				s.logger.Info("Order already stored, treating as accepted", map[string]interface{}{
					"order_id": id,
				})
				return nil
			}
			return err
		})
	}
	if s.breaker != nil {
		err = s.breaker.Execute(ctx, write)
	} else {
		err = write()
	}
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("submit order %s: %w", id, err)
	}
	return id, nil
}

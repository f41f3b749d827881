// Package checkout turns the cart into an order: it validates the customer
// form, prices the cart snapshot, submits the order and falls back to the
// offline queue when the remote store cannot take it.
//
// One Flow serves every checkout variant; FlowConfig switches the optional
// parts (delivery fee row, discount warning, order history) on and off.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/storefront/cart"
	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/docstore"
	"github.com/itsneelabh/storefront/events"
	"github.com/itsneelabh/storefront/money"
	"github.com/itsneelabh/storefront/order"
	"github.com/itsneelabh/storefront/pricing"
	"github.com/itsneelabh/storefront/queue"
	"github.com/itsneelabh/storefront/resilience"
	"github.com/itsneelabh/storefront/telemetry"
)

// User-facing messages.
const (
	DiscountWarning = "Já existe desconto no carrinho — o desconto da forma de pagamento não será aplicado."
	MsgEmptyCart    = "Carrinho vazio."
	MsgQueued       = "Sem internet. O pedido foi guardado e será enviado quando a conexão voltar."
	msgSentFormat   = "Pedido enviado!\nNúmero: %s"
)

// FlowConfig selects the optional checkout features.
type FlowConfig struct {
	// DeliveryFees adds the district fee to the total and to the order.
	DeliveryFees bool
	// DiscountWarning explains, in quotes, that a cart discount suppresses
	// the payment discount.
	DiscountWarning bool
	// OrderHistory remembers every placed order id, not only the last one.
	OrderHistory bool
	HistoryLimit int
	// Domain and UserAgent fill the order source when a submission does not
	// carry its own.
	Domain    string
	UserAgent string
}

// ConfigFrom builds a FlowConfig from the storefront configuration.
func ConfigFrom(cfg *core.Config) FlowConfig {
	return FlowConfig{
		DeliveryFees:    cfg.Checkout.DeliveryFees,
		DiscountWarning: cfg.Checkout.DiscountWarning,
		OrderHistory:    cfg.Checkout.OrderHistory,
		HistoryLimit:    cfg.Checkout.HistoryLimit,
		Domain:          cfg.Domain,
		UserAgent:       "storefront/" + cfg.Name,
	}
}

// PaymentChoice is one entry of the payment picker.
type PaymentChoice struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

// DistrictChoice is one entry of the district picker.
type DistrictChoice struct {
	Name  string  `json:"name"`
	Fee   float64 `json:"fee"`
	Label string  `json:"label"`
}

// QuoteView is a quote as the checkout form shows it.
type QuoteView struct {
	pricing.Quote
	ShowDelivery bool   `json:"showDelivery"`
	Warning      string `json:"warning,omitempty"`
}

// Result is the outcome of a Submit that did not fail outright.
type Result struct {
	OrderID string      `json:"orderId"`
	Queued  bool        `json:"queued"`
	Message string      `json:"message"`
	Order   order.Order `json:"order"`
}

// Flow is the checkout component. It is safe for concurrent use.
type Flow struct {
	cfg       FlowConfig
	cart      *cart.Cart
	local     core.Memory
	submitter queue.Submitter
	queue     *queue.Queue
	publisher events.Publisher
	formatter *money.Formatter
	logger    core.Logger
	tracer    trace.Tracer
	metrics   *telemetry.Recorder
	now       func() time.Time
	newKey    func() string

	mu     sync.RWMutex
	engine *pricing.Engine
}

// Option configures a Flow
type Option func(*Flow)

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(f *Flow) { f.logger = core.ComponentLogger(logger, "checkout") }
}

// WithRecorder records checkout metrics
func WithRecorder(r *telemetry.Recorder) Option {
	return func(f *Flow) { f.metrics = r }
}

// WithPublisher publishes order-placed events
func WithPublisher(p events.Publisher) Option {
	return func(f *Flow) {
		if p != nil {
			f.publisher = p
		}
	}
}

// WithFormatter sets the money formatter used in labels
func WithFormatter(m *money.Formatter) Option {
	return func(f *Flow) {
		if m != nil {
			f.formatter = m
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// WithKeyGenerator overrides the idempotency key generator
func WithKeyGenerator(gen func() string) Option {
	return func(f *Flow) { f.newKey = gen }
}

// NewFlow wires a checkout flow. engine holds the payment options and
// district fees; it can be replaced later with SetEngine.
func NewFlow(cfg FlowConfig, c *cart.Cart, engine *pricing.Engine, local core.Memory,
	submitter queue.Submitter, q *queue.Queue, opts ...Option) (*Flow, error) {
	switch {
	case c == nil:
		return nil, fmt.Errorf("checkout: cart: %w", core.ErrMissingConfiguration)
	case local == nil:
		return nil, fmt.Errorf("checkout: local storage: %w", core.ErrMissingConfiguration)
	case submitter == nil:
		return nil, fmt.Errorf("checkout: submitter: %w", core.ErrMissingConfiguration)
	case q == nil:
		return nil, fmt.Errorf("checkout: queue: %w", core.ErrMissingConfiguration)
	}
	if engine == nil {
		engine = pricing.NewEngine(pricing.DefaultPaymentOptions(), pricing.NewFeeTable())
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = order.DefaultHistoryLimit
	}
	f := &Flow{
		cfg:       cfg,
		cart:      c,
		local:     local,
		submitter: submitter,
		queue:     q,
		publisher: events.NoOpPublisher{},
		formatter: money.BRL,
		logger:    &core.NoOpLogger{},
		tracer:    otel.Tracer("github.com/itsneelabh/storefront/checkout"),
		now:       time.Now,
		newKey:    docstore.NewID,
		engine:    engine,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Config returns the flow configuration
func (f *Flow) Config() FlowConfig {
	return f.cfg
}

// SetEngine swaps the pricing tables, e.g. after payment options reload.
func (f *Flow) SetEngine(e *pricing.Engine) {
	if e == nil {
		return
	}
	f.mu.Lock()
	f.engine = e
	f.mu.Unlock()
}

func (f *Flow) currentEngine() *pricing.Engine {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.engine
}

// PaymentChoices lists the payment picker entries
func (f *Flow) PaymentChoices() []PaymentChoice {
	opts := f.currentEngine().Options
	out := make([]PaymentChoice, 0, len(opts))
	for _, o := range opts {
		out = append(out, PaymentChoice{ID: o.ID, Name: o.Name, Label: o.Label(f.formatter)})
	}
	return out
}

// DistrictChoices lists the district picker entries. Fees are shown only
// when delivery fees are enabled.
func (f *Flow) DistrictChoices() []DistrictChoice {
	districts := f.currentEngine().Fees.Districts()
	out := make([]DistrictChoice, 0, len(districts))
	for _, d := range districts {
		if !f.cfg.DeliveryFees {
			d.Fee = 0
		}
		out = append(out, DistrictChoice{Name: d.Name, Fee: d.Fee, Label: d.Label(f.formatter)})
	}
	return out
}

// Prefill returns the form remembered from the last checkout
func (f *Flow) Prefill(ctx context.Context) Form {
	return LoadPrefill(ctx, f.local)
}

// Quote prices the current cart for a payment method and district. Call it
// again after every selection change.
func (f *Flow) Quote(methodID, district string) QuoteView {
	return f.quote(f.cart.Snapshot(), methodID, district)
}

func (f *Flow) quote(snap cart.Snapshot, methodID, district string) QuoteView {
	e := f.currentEngine()
	var opt *pricing.PaymentOption
	if o, ok := e.Option(methodID); ok {
		opt = &o
	}
	fee := 0.0
	if f.cfg.DeliveryFees {
		fee = e.Fee(district)
	}
	qv := QuoteView{Quote: pricing.Compute(snap, opt, fee), ShowDelivery: f.cfg.DeliveryFees}
	if f.cfg.DiscountWarning && qv.CartDiscount > 0 {
		qv.Warning = DiscountWarning
	}
	return qv
}

// Validate checks the form locally. When the district list is known the
// district must be one of it.
func (f *Flow) Validate(form Form) error {
	err := ValidateCustomer(form)
	district := form.Normalized().District
	fees := f.currentEngine().Fees
	if district != "" && len(fees.Names()) > 0 && !fees.Listed(district) {
		var errs ValidationErrors
		errors.As(err, &errs)
		errs = append(errs, FieldError{Field: FieldDistrict, Message: MsgDistrictRequired})
		return errs
	}
	return err
}

// Submit places an order for the current cart. Validation failures return
// ValidationErrors without touching the remote store. When the store
// rejects the order it is queued and Result.Queued is set; the cart is
// cleared once the order is either stored or queued.
func (f *Flow) Submit(ctx context.Context, form Form, src order.Source) (Result, error) {
	ctx, span := f.tracer.Start(ctx, "checkout.Flow.Submit")
	defer span.End()

	start := f.now()
	form = form.Normalized()
	if err := f.Validate(form); err != nil {
		var errs ValidationErrors
		if errors.As(err, &errs) {
			for _, fe := range errs {
				f.metrics.ValidationFailed(ctx, fe.Field)
			}
		}
		return Result{}, err
	}

	snap := f.cart.Snapshot()
	if snap.Empty() {
		return Result{}, fmt.Errorf("%s: %w", MsgEmptyCart, core.ErrEmptyCart)
	}

	if err := SavePrefill(ctx, f.local, form); err != nil {
		f.logger.Warn("Failed to save checkout prefill", map[string]interface{}{
			"error": err.Error(),
		})
	}

	o := f.buildOrder(snap, form, src)
	span.SetAttributes(
		attribute.String("order.id", o.IdempotencyKey),
		attribute.Int("order.items", len(o.Items)),
		attribute.Float64("order.total", o.Totals.Total),
	)

	id, err := f.submitter.Submit(ctx, o)
	if err != nil {
		span.RecordError(err)
		return f.enqueue(ctx, o, err, start)
	}

	f.accepted(ctx, id, o, false)
	f.metrics.OrderSubmitted(ctx, false, f.now().Sub(start))
	f.logger.Info("Order submitted", map[string]interface{}{
		"order_id": id,
		"items":    len(o.Items),
		"total":    o.Totals.Total,
	})
	return Result{OrderID: id, Message: fmt.Sprintf(msgSentFormat, id), Order: o}, nil
}

func (f *Flow) enqueue(ctx context.Context, o order.Order, cause error, start time.Time) (Result, error) {
	if err := f.queue.Enqueue(ctx, o); err != nil {
		f.logger.Error("Order could not be submitted or queued", map[string]interface{}{
			"order_id":     o.IdempotencyKey,
			"submit_error": cause.Error(),
			"queue_error":  err.Error(),
		})
		return Result{}, &core.StoreError{
			Op:   "checkout.Submit",
			Kind: "checkout",
			ID:   o.IdempotencyKey,
			Err:  errors.Join(cause, err),
		}
	}
	if err := f.cart.Reset(ctx); err != nil {
		f.logger.Warn("Failed to clear cart after queuing order", map[string]interface{}{
			"error": err.Error(),
		})
	}
	f.metrics.OrderQueued(ctx, queueReason(cause))
	f.metrics.OrderSubmitted(ctx, true, f.now().Sub(start))
	f.logger.Warn("Order queued, remote store unavailable", map[string]interface{}{
		"order_id": o.IdempotencyKey,
		"error":    cause.Error(),
	})
	return Result{OrderID: o.IdempotencyKey, Queued: true, Message: MsgQueued, Order: o}, nil
}

// OrderSent is the queue callback for orders accepted during a flush.
func (f *Flow) OrderSent(ctx context.Context, id string, o order.Order) {
	f.remember(ctx, id)
	f.publish(ctx, id, o, true)
}

func (f *Flow) accepted(ctx context.Context, id string, o order.Order, queued bool) {
	if err := f.cart.Reset(ctx); err != nil {
		f.logger.Warn("Failed to clear cart after order", map[string]interface{}{
			"order_id": id,
			"error":    err.Error(),
		})
	}
	if err := f.local.Set(ctx, core.KeyLastOrderID, id, 0); err != nil {
		f.logger.Warn("Failed to remember last order id", map[string]interface{}{
			"order_id": id,
			"error":    err.Error(),
		})
	}
	f.remember(ctx, id)
	f.publish(ctx, id, o, queued)
}

func (f *Flow) remember(ctx context.Context, id string) {
	if !f.cfg.OrderHistory {
		return
	}
	if err := order.Remember(ctx, f.local, id, f.cfg.HistoryLimit); err != nil {
		f.logger.Warn("Failed to update order history", map[string]interface{}{
			"order_id": id,
			"error":    err.Error(),
		})
	}
}

func (f *Flow) publish(ctx context.Context, id string, o order.Order, queued bool) {
	if err := f.publisher.PublishOrderPlaced(ctx, id, o, queued); err != nil {
		f.logger.Warn("Order event not published", map[string]interface{}{
			"order_id": id,
			"error":    err.Error(),
		})
	}
}

func (f *Flow) buildOrder(snap cart.Snapshot, form Form, src order.Source) order.Order {
	q := f.quote(snap, form.PaymentMethodID, form.District)

	items := make([]order.Item, 0, len(snap.Items))
	for _, l := range snap.Items {
		items = append(items, order.Item{
			ID:        l.ID,
			Name:      l.Name,
			Code:      l.Code,
			UnitPrice: l.UnitPrice,
			Qty:       l.Qty,
			LineTotal: l.LineTotal,
		})
	}

	var payment order.Payment
	if opt, ok := f.currentEngine().Option(form.PaymentMethodID); ok {
		payment.MethodID = opt.ID
		payment.MethodName = opt.Name
		if opt.Discount != nil {
			payment.DiscountType = opt.Discount.Kind()
			payment.DiscountValue = opt.Discount.Value
		}
	}
	payment.DiscountApplied = q.PaymentDiscount

	if src.From == "" {
		src.From = order.SourceCatalog
	}
	if src.Domain == "" {
		src.Domain = f.cfg.Domain
	}
	if src.UserAgent == "" {
		src.UserAgent = f.cfg.UserAgent
	}

	o := order.Order{
		IdempotencyKey:  f.newKey(),
		Status:          order.StatusNew,
		CreatedAtClient: order.Millis(f.now()),
		Source:          src,
		Customer: order.Customer{
			Name:  form.Name,
			Phone: form.Phone,
			Address: order.Address{
				Street:   form.Street,
				Number:   form.Number,
				District: form.District,
			},
		},
		Payment: payment,
		Items:   items,
		Totals: order.Totals{
			Subtotal:        q.Subtotal,
			Discount:        q.CartDiscount,
			PaymentDiscount: q.PaymentDiscount,
			Total:           q.Total,
		},
	}
	if f.cfg.DeliveryFees {
		fee := q.DeliveryFee
		o.Delivery = &order.Delivery{District: form.District, Fee: fee}
		o.Totals.Delivery = &fee
	}
	return o
}

func queueReason(err error) string {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, core.ErrOffline):
		return "offline"
	case errors.Is(err, core.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "error"
}

package pricing

import (
	"github.com/itsneelabh/storefront/cart"
	"github.com/itsneelabh/storefront/money"
)

// Quote is the priced result for one cart snapshot, payment choice and
// district. Every amount is rounded to two places.
type Quote struct {
	Subtotal     float64 `json:"subtotal"`
	CartDiscount float64 `json:"cartDiscount"`
	// PaymentDiscount is the payment discount that actually applies; it is 0
	// when suppressed by a cart discount.
	PaymentDiscount float64 `json:"paymentDiscount"`
	// OfferedDiscount is what the payment option would grant on its own.
	OfferedDiscount   float64 `json:"offeredDiscount"`
	AppliedDiscount   float64 `json:"appliedDiscount"`
	DeliveryFee       float64 `json:"deliveryFee"`
	Total             float64 `json:"total"`
	PaymentSuppressed bool    `json:"paymentSuppressed"`
}

// Compute prices a snapshot. A cart discount above zero suppresses the
// payment discount entirely; the fee is never discounted.
func Compute(snap cart.Snapshot, opt *PaymentOption, fee float64) Quote {
	subtotal := money.Round2(snap.Totals.Subtotal)
	cartDisc := money.Round2(snap.Totals.Discount)

	var d *Discount
	if opt != nil {
		d = opt.Discount
	}
	offered := PaymentDiscount(subtotal, d)

	q := Quote{
		Subtotal:        subtotal,
		CartDiscount:    cartDisc,
		OfferedDiscount: offered,
		DeliveryFee:     money.NonNegative(money.Round2(fee)),
	}
	if cartDisc > 0 {
		q.AppliedDiscount = cartDisc
		q.PaymentSuppressed = offered > 0
	} else {
		q.PaymentDiscount = offered
		q.AppliedDiscount = offered
	}
	net := money.NonNegative(money.Sub(subtotal, q.AppliedDiscount))
	q.Total = money.Sum(net, q.DeliveryFee)
	return q
}

// Engine holds the reference tables a quote is computed against.
type Engine struct {
	Options []PaymentOption
	Fees    *FeeTable
	// DeliveryFees disables fee lookup when false.
	DeliveryFees bool
}

// NewEngine creates an engine with delivery fees enabled.
func NewEngine(options []PaymentOption, fees *FeeTable) *Engine {
	return &Engine{Options: options, Fees: fees, DeliveryFees: true}
}

// Option returns the payment option with id.
func (e *Engine) Option(id string) (PaymentOption, bool) {
	return FindOption(e.Options, id)
}

// Fee returns the delivery fee for district, 0 when fees are disabled.
func (e *Engine) Fee(district string) float64 {
	if !e.DeliveryFees {
		return 0
	}
	return e.Fees.Fee(district)
}

// Quote prices snap for a payment method id and district name. Unknown
// methods grant no discount and unknown districts cost nothing.
func (e *Engine) Quote(snap cart.Snapshot, methodID, district string) Quote {
	var opt *PaymentOption
	if o, ok := e.Option(methodID); ok {
		opt = &o
	}
	return Compute(snap, opt, e.Fee(district))
}

// Package pricing turns a cart snapshot, a payment option and a delivery
// district into order totals. Payment discounts never stack with a cart
// discount, and the delivery fee is added after any discount.
package pricing

import (
	"strings"

	"github.com/itsneelabh/storefront/cart"
	"github.com/itsneelabh/storefront/money"
)

// Discount types
const (
	TypePercent = "percent"
	TypeFixed   = "fixed"
)

// Discount describes a payment-method or cart discount.
type Discount struct {
	Type  string  `json:"type" mapstructure:"type"`
	Value float64 `json:"value" mapstructure:"value"`
}

// Kind normalizes Type; "percentage" is accepted for percent.
func (d Discount) Kind() string {
	switch strings.ToLower(strings.TrimSpace(d.Type)) {
	case TypePercent, "percentage":
		return TypePercent
	case TypeFixed:
		return TypeFixed
	}
	return ""
}

// Amount returns the discount for subtotal, rounded to two places. Unknown
// types are worth nothing.
func (d Discount) Amount(subtotal float64) float64 {
	switch d.Kind() {
	case TypePercent:
		return money.Percent(subtotal, d.Value)
	case TypeFixed:
		return money.Round2(d.Value)
	}
	return 0
}

// PaymentDiscount returns the discount a payment option would grant on subtotal.
func PaymentDiscount(subtotal float64, d *Discount) float64 {
	if d == nil {
		return 0
	}
	return d.Amount(subtotal)
}

// CartDiscountRule adapts a discount descriptor to the cart's snapshot rule.
func CartDiscountRule(d Discount) cart.DiscountRule {
	return func(subtotal float64) float64 {
		return d.Amount(subtotal)
	}
}

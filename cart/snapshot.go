package cart

import (
	"time"

	"github.com/itsneelabh/storefront/money"
)

// Line is a priced snapshot line.
type Line struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Code      string  `json:"code"`
	UnitPrice float64 `json:"unitPrice"`
	Qty       int     `json:"qty"`
	LineTotal float64 `json:"lineTotal"`
}

// Totals is the money block of a snapshot.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
}

// Snapshot is a point-in-time copy of the cart used to price one order.
// Later cart mutations never reach it.
type Snapshot struct {
	Items   []Line    `json:"items"`
	Totals  Totals    `json:"totals"`
	TakenAt time.Time `json:"takenAt"`
}

// Empty reports whether the snapshot has no lines.
func (s Snapshot) Empty() bool {
	return len(s.Items) == 0
}

// DiscountRule returns the cart-level discount for a subtotal.
type DiscountRule func(subtotal float64) float64

func takeSnapshot(items []Item, rule DiscountRule, at time.Time) Snapshot {
	lines := make([]Line, 0, len(items))
	totals := make([]float64, 0, len(items))
	for _, it := range items {
		unit := money.Round2(it.UnitPrice)
		line := Line{
			ID:        it.ID,
			Name:      it.Name,
			Code:      it.Code,
			UnitPrice: unit,
			Qty:       it.Qty,
			LineTotal: money.Mul(unit, it.Qty),
		}
		lines = append(lines, line)
		totals = append(totals, line.LineTotal)
	}

	subtotal := money.Sum(totals...)
	discount := 0.0
	if rule != nil {
		discount = money.NonNegative(money.Round2(rule(subtotal)))
	}
	return Snapshot{
		Items: lines,
		Totals: Totals{
			Subtotal: subtotal,
			Discount: discount,
			Total:    money.NonNegative(money.Sub(subtotal, discount)),
		},
		TakenAt: at,
	}
}

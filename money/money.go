// Package money holds the storefront's monetary arithmetic, currency
// formatting and locale-aware string comparison.
//
// All monetary values cross package boundaries as float64 (they are JSON numbers
// on the wire) but every computation goes through decimal and is rounded to
// two places, so repeated recalculation never accumulates binary drift.
package money

import (
	"github.com/shopspring/decimal"
)

// Round2 rounds v to two decimal places, half away from zero.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// Mul returns unit × qty rounded to two places.
func Mul(unit float64, qty int) float64 {
	f, _ := decimal.NewFromFloat(unit).Mul(decimal.NewFromInt(int64(qty))).Round(2).Float64()
	return f
}

// Sum adds values exactly and rounds the result to two places.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	f, _ := total.Round(2).Float64()
	return f
}

// Sub returns a − b rounded to two places.
func Sub(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(2).Float64()
	return f
}

// Percent returns round2(base × pct / 100).
func Percent(base, pct float64) float64 {
	f, _ := decimal.NewFromFloat(base).
		Mul(decimal.NewFromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Round(2).
		Float64()
	return f
}

// NonNegative clamps v at zero.
func NonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

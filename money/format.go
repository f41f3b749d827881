package money

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var symbols = map[string]string{
	"BRL": "R$",
	"USD": "US$",
	"EUR": "€",
}

// Formatter renders amounts for one locale and currency, e.g. "R$ 1.234,56".
// It is safe for concurrent use.
type Formatter struct {
	printer *message.Printer
	symbol  string
	scale   int
}

// NewFormatter builds a formatter for a BCP 47 locale and ISO 4217 currency code.
func NewFormatter(locale, code string) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("invalid currency %q: %w", code, err)
	}

	scale, _ := currency.Standard.Rounding(unit)
	symbol, ok := symbols[unit.String()]
	if !ok {
		symbol = unit.String()
	}

	return &Formatter{
		printer: message.NewPrinter(tag),
		symbol:  symbol,
		scale:   scale,
	}, nil
}

// MustFormatter is NewFormatter that panics on bad input. Intended for
// package-level defaults with literal arguments.
func MustFormatter(locale, code string) *Formatter {
	f, err := NewFormatter(locale, code)
	if err != nil {
		panic(err)
	}
	return f
}

// Format renders v with the currency symbol and locale separators.
func (f *Formatter) Format(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	number := f.printer.Sprintf(fmt.Sprintf("%%.%df", f.scale), v)
	return sign + f.symbol + " " + strings.TrimSpace(number)
}

// Symbol returns the currency symbol in use.
func (f *Formatter) Symbol() string {
	return f.symbol
}

// BRL is the default formatter for Brazilian reais.
var BRL = MustFormatter("pt-BR", "BRL")

// FormatBRL is shorthand for BRL.Format.
func FormatBRL(v float64) string {
	return BRL.Format(v)
}

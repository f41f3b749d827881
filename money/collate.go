package money

import (
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Collator compares display strings the way shoppers expect: case and accents
// are ignored and digit runs compare numerically ("Item 2" < "Item 10").
// collate.Collator keeps internal buffers, so calls are serialized.
type Collator struct {
	mu sync.Mutex
	c  *collate.Collator
}

// NewCollator builds a collator for locale. An unparsable locale falls back
// to Brazilian Portuguese.
func NewCollator(locale string) *Collator {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.BrazilianPortuguese
	}
	return &Collator{
		c: collate.New(tag, collate.IgnoreCase, collate.IgnoreDiacritics, collate.Numeric),
	}
}

// Compare returns -1, 0 or 1.
func (c *Collator) Compare(a, b string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.c.CompareString(a, b)
}

// Less reports whether a sorts before b.
func (c *Collator) Less(a, b string) bool {
	return c.Compare(a, b) < 0
}

// Equal reports whether a and b are the same at base strength.
func (c *Collator) Equal(a, b string) bool {
	return c.Compare(a, b) == 0
}

var (
	defaultCollator     *Collator
	defaultCollatorOnce sync.Once
)

// DefaultCollator returns the shared pt-BR collator.
func DefaultCollator() *Collator {
	defaultCollatorOnce.Do(func() {
		defaultCollator = NewCollator("pt-BR")
	})
	return defaultCollator
}

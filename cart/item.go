package cart

import (
	"strings"

	"github.com/itsneelabh/storefront/catalog"
	"github.com/itsneelabh/storefront/money"
)

// Item is one cart line. Name, code and price are copied when the product is
// added and never refreshed from the catalog.
type Item struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Code      string  `json:"code"`
	UnitPrice float64 `json:"unitPrice"`
	Qty       int     `json:"qty"`
}

// LineTotal returns unitPrice × qty rounded to two places.
func (i Item) LineTotal() float64 {
	return money.Mul(i.UnitPrice, i.Qty)
}

// FromProduct builds a single-unit line from a catalog product.
func FromProduct(p catalog.Product) Item {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = "—"
	}
	return Item{
		ID:        p.ID,
		Name:      name,
		Code:      p.Barcode,
		UnitPrice: p.Price,
		Qty:       1,
	}
}

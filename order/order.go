// Package order holds the order payload written to the remote store. It is
// the only contract shared between checkout, the offline queue and the
// status tracker.
package order

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/itsneelabh/storefront/docstore"
)

// SourceCatalog marks orders placed through the storefront.
const SourceCatalog = "catalog"

// Order is the full payload of one order document.
type Order struct {
	// IdempotencyKey is generated once when the order is built and doubles as
	// the remote document id, so resubmissions land on the same document.
	IdempotencyKey  string    `json:"idempotencyKey"`
	Status          Status    `json:"status"`
	CreatedAtClient int64     `json:"createdAtClient"`
	Source          Source    `json:"source"`
	Customer        Customer  `json:"customer"`
	Payment         Payment   `json:"payment"`
	Delivery        *Delivery `json:"delivery,omitempty"`
	Items           []Item    `json:"items"`
	Totals          Totals    `json:"totals"`
}

type Source struct {
	From      string `json:"from"`
	Domain    string `json:"domain"`
	UserAgent string `json:"userAgent"`
}

type Customer struct {
	Name    string  `json:"name"`
	Phone   string  `json:"phone"`
	Address Address `json:"address"`
}

type Address struct {
	Street   string `json:"street"`
	Number   string `json:"number"`
	District string `json:"district"`
}

// Payment records the chosen method and the discount it carried. A
// suppressed payment discount still names the method, with DiscountApplied 0.
type Payment struct {
	MethodID        string  `json:"methodId"`
	MethodName      string  `json:"methodName"`
	DiscountType    string  `json:"discountType"`
	DiscountValue   float64 `json:"discountValue"`
	DiscountApplied float64 `json:"discountApplied"`
}

type Delivery struct {
	District string  `json:"district"`
	Fee      float64 `json:"fee"`
}

// Item is one priced line, snapshotted from the cart.
type Item struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Code      string  `json:"code"`
	UnitPrice float64 `json:"unitPrice"`
	Qty       int     `json:"qty"`
	LineTotal float64 `json:"lineTotal"`
}

// Totals is the money block. Delivery is omitted when delivery fees are off.
type Totals struct {
	Subtotal        float64  `json:"subtotal"`
	Discount        float64  `json:"discount"`
	PaymentDiscount float64  `json:"paymentDiscount"`
	Delivery        *float64 `json:"delivery,omitempty"`
	Total           float64  `json:"total"`
}

// ToDocument renders the order as the map written to the store, with
// createdAt and updatedAt left for the store clock.
func (o Order) ToDocument() (map[string]interface{}, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}
	doc["createdAt"] = docstore.ServerTimestamp
	doc["updatedAt"] = docstore.ServerTimestamp
	return doc, nil
}

// FromDocument decodes a stored order document. Unknown fields, including
// the store-assigned timestamps, are ignored.
func FromDocument(data map[string]interface{}) (Order, error) {
	var o Order
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &o,
	})
	if err != nil {
		return Order{}, err
	}
	if err := dec.Decode(data); err != nil {
		return Order{}, fmt.Errorf("decode order: %w", err)
	}
	return o, nil
}

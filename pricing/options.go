package pricing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/docstore"
	"github.com/itsneelabh/storefront/money"
)

// PaymentOption is one selectable payment method.
type PaymentOption struct {
	ID       string    `json:"id" mapstructure:"id"`
	Name     string    `json:"name" mapstructure:"name"`
	Discount *Discount `json:"discount,omitempty" mapstructure:"discount"`
}

// Label renders the option for a picker, e.g. "Pix — 5% off" or
// "Dinheiro — R$ 2,00 off".
func (p PaymentOption) Label(f *money.Formatter) string {
	if p.Discount == nil {
		return p.Name
	}
	if p.Discount.Kind() == TypePercent {
		return fmt.Sprintf("%s — %s%% off", p.Name, strconv.FormatFloat(p.Discount.Value, 'f', -1, 64))
	}
	if p.Discount.Value == 0 {
		return p.Name
	}
	if f == nil {
		f = money.BRL
	}
	return fmt.Sprintf("%s — %s off", p.Name, f.Format(p.Discount.Value))
}

// DefaultPaymentOptions is the set used, and written back, when the remote
// document has none.
func DefaultPaymentOptions() []PaymentOption {
	return []PaymentOption{
		{ID: "pix", Name: "Pix", Discount: &Discount{Type: TypePercent, Value: 5}},
		{ID: "debito", Name: "Débito", Discount: &Discount{Type: TypePercent, Value: 2}},
		{ID: "credito", Name: "Crédito", Discount: &Discount{Type: TypePercent, Value: 0}},
		{ID: "money", Name: "Dinheiro", Discount: &Discount{Type: TypeFixed, Value: 0}},
	}
}

// FindOption returns the option with id.
func FindOption(opts []PaymentOption, id string) (PaymentOption, bool) {
	for _, o := range opts {
		if o.ID == id {
			return o, true
		}
	}
	return PaymentOption{}, false
}

// LoadOrEnsurePaymentOptions reads the paymentOptions field of the document
// at path. When the field is missing or empty the defaults are merged back
// into the document. The returned options are always usable; a non-nil
// error reports a failed read or write-back.
func LoadOrEnsurePaymentOptions(ctx context.Context, store docstore.Store, path string) ([]PaymentOption, error) {
	doc, err := store.Get(ctx, path)
	if err != nil {
		return DefaultPaymentOptions(), fmt.Errorf("load payment options: %w", err)
	}

	raw, _ := doc.Data[core.DefaultPaymentField].([]interface{})
	if len(raw) > 0 {
		if opts := DecodePaymentOptions(raw); len(opts) > 0 {
			return opts, nil
		}
		// present but unusable: serve defaults without clobbering remote data
		return DefaultPaymentOptions(), nil
	}

	defaults := DefaultPaymentOptions()
	encoded := make([]interface{}, 0, len(defaults))
	for _, o := range defaults {
		encoded = append(encoded, o.toMap())
	}
	if err := store.Set(ctx, path, map[string]interface{}{core.DefaultPaymentField: encoded}, docstore.Merge()); err != nil {
		return defaults, fmt.Errorf("write default payment options: %w", err)
	}
	return defaults, nil
}

// DecodePaymentOptions decodes remote entries leniently; entries without an
// id are skipped.
func DecodePaymentOptions(raw []interface{}) []PaymentOption {
	out := make([]PaymentOption, 0, len(raw))
	for _, entry := range raw {
		var opt PaymentOption
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &opt,
		})
		if err != nil {
			continue
		}
		if err := dec.Decode(entry); err != nil {
			continue
		}
		opt.ID = strings.TrimSpace(opt.ID)
		if opt.ID == "" {
			continue
		}
		if opt.Name == "" {
			opt.Name = opt.ID
		}
		out = append(out, opt)
	}
	return out
}

func (p PaymentOption) toMap() map[string]interface{} {
	m := map[string]interface{}{"id": p.ID, "name": p.Name}
	if p.Discount != nil {
		m["discount"] = map[string]interface{}{"type": p.Discount.Type, "value": p.Discount.Value}
	}
	return m
}

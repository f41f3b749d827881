package checkout

import (
	"context"

	"github.com/itsneelabh/storefront/core"
)

var prefillKeys = []struct {
	key string
	get func(*Form) *string
}{
	{core.KeyCustomerName, func(f *Form) *string { return &f.Name }},
	{core.KeyCustomerPhone, func(f *Form) *string { return &f.Phone }},
	{core.KeyCustomerStreet, func(f *Form) *string { return &f.Street }},
	{core.KeyCustomerNumber, func(f *Form) *string { return &f.Number }},
	{core.KeyCustomerDistrict, func(f *Form) *string { return &f.District }},
	{core.KeyPaymentMethodID, func(f *Form) *string { return &f.PaymentMethodID }},
}

// LoadPrefill returns the form saved by the last validated checkout. Missing
// or unreadable keys come back empty.
func LoadPrefill(ctx context.Context, local core.Memory) Form {
	var f Form
	if local == nil {
		return f
	}
	for _, pk := range prefillKeys {
		if v, err := local.Get(ctx, pk.key); err == nil {
			*pk.get(&f) = v
		}
	}
	return f
}

// SavePrefill stores f for the next checkout. It stops at the first failed
// write.
func SavePrefill(ctx context.Context, local core.Memory, f Form) error {
	f = f.Normalized()
	for _, pk := range prefillKeys {
		if err := local.Set(ctx, pk.key, *pk.get(&f), 0); err != nil {
			return &core.StoreError{Op: "checkout.SavePrefill", Kind: "storage", ID: pk.key, Err: err}
		}
	}
	return nil
}

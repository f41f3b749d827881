package order

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/storefront/docstore"
)

func sampleOrder() Order {
	fee := 7.5
	return Order{
		IdempotencyKey:  "6f1c1f8e-0000-4000-8000-000000000001",
		Status:          StatusNew,
		CreatedAtClient: 1735830245000,
		Source:          Source{From: SourceCatalog, Domain: "loja.example", UserAgent: "test"},
		Customer: Customer{
			Name:    "Ana",
			Phone:   "11987654321",
			Address: Address{Street: "Rua A", Number: "10", District: "Centro"},
		},
		Payment:  Payment{MethodID: "pix", MethodName: "PIX", DiscountType: "percent", DiscountValue: 5, DiscountApplied: 5},
		Delivery: &Delivery{District: "Centro", Fee: fee},
		Items: []Item{
			{ID: "1", Name: "Arroz", Code: "789", UnitPrice: 25, Qty: 4, LineTotal: 100},
		},
		Totals: Totals{Subtotal: 100, Discount: 0, PaymentDiscount: 5, Delivery: &fee, Total: 102.5},
	}
}

func TestOrder_ToDocument(t *testing.T) {
	doc, err := sampleOrder().ToDocument()
	require.NoError(t, err)

	assert.Equal(t, "new", doc["status"])
	assert.Equal(t, docstore.ServerTimestamp, doc["createdAt"])
	assert.Equal(t, docstore.ServerTimestamp, doc["updatedAt"])
	assert.Equal(t, float64(1735830245000), doc["createdAtClient"])

	v, ok := docstore.Lookup(doc, "customer.address.district")
	require.True(t, ok)
	assert.Equal(t, "Centro", v)

	v, ok = docstore.Lookup(doc, "totals.delivery")
	require.True(t, ok)
	assert.Equal(t, 7.5, v)

	items := doc["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, 100.0, items[0].(map[string]interface{})["lineTotal"])
}

func TestOrder_ToDocumentWithoutDelivery(t *testing.T) {
	o := sampleOrder()
	o.Delivery = nil
	o.Totals.Delivery = nil

	doc, err := o.ToDocument()
	require.NoError(t, err)
	_, ok := doc["delivery"]
	assert.False(t, ok)
	_, ok = docstore.Lookup(doc, "totals.delivery")
	assert.False(t, ok)
}

func TestFromDocument(t *testing.T) {
	doc, err := sampleOrder().ToDocument()
	require.NoError(t, err)
	doc["createdAt"] = time.Now()
	doc["createdAtClient"] = json.Number("1735830245000")

	got, err := FromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, sampleOrder(), got)
}

func TestStatus_Labels(t *testing.T) {
	assert.Equal(t, "Enviado", StatusNew.Label())
	assert.Equal(t, "Recebido pelo PDV", StatusReceived.Label())
	assert.Equal(t, "Saiu para entrega", StatusOutForDelivery.Label())
	assert.Equal(t, "Cancelado", StatusCanceled.Label())
	assert.Equal(t, "paused", Status("paused").Label())
	assert.Equal(t, "—", Status("").Label())
	assert.Equal(t, "receivedAt", StatusReceived.TimestampField())
	assert.Equal(t, "createdAt", StatusNew.TimestampField())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusNew, StatusReceived, true},
		{StatusNew, StatusReady, true},
		{StatusReady, StatusPreparing, false},
		{StatusReceived, StatusReceived, false},
		{StatusNew, StatusCanceled, true},
		{StatusOutForDelivery, StatusCanceled, true},
		{StatusDone, StatusCanceled, false},
		{StatusCanceled, StatusNew, false},
		{StatusDone, StatusNew, false},
		{Status("paused"), StatusDone, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestParseTime(t *testing.T) {
	ref := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		in   interface{}
		ok   bool
	}{
		{"time", ref, true},
		{"pointer", &ref, true},
		{"rfc3339", "2025-01-02T15:04:05Z", true},
		{"millis float", float64(ref.UnixMilli()), true},
		{"millis int64", ref.UnixMilli(), true},
		{"millis json", json.Number("1735830245000"), true},
		{"millis string", "1735830245000", true},
		{"seconds map", map[string]interface{}{"seconds": ref.Unix(), "nanoseconds": 0}, true},
		{"nil", nil, false},
		{"zero", time.Time{}, false},
		{"blank", "  ", false},
		{"garbage", "soon", false},
		{"bool", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTime(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(ref), "got %v", got)
			}
		})
	}
}

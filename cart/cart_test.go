package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/storefront/catalog"
	"github.com/itsneelabh/storefront/core"
)

var fixedNow = time.Date(2025, 3, 4, 10, 20, 30, 456000000, time.UTC)

func openCart(t *testing.T, local core.Memory, opts ...Option) *Cart {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	c, err := Open(context.Background(), local, opts...)
	require.NoError(t, err)
	return c
}

func TestCart_AddSameIDMergesQuantities(t *testing.T) {
	ctx := context.Background()
	c := openCart(t, core.NewMemoryStore())

	require.NoError(t, c.Add(ctx, Item{ID: "a", Name: "Arroz", UnitPrice: 10, Qty: 2}))
	require.NoError(t, c.Add(ctx, Item{ID: "a", Name: "Arroz renamed", UnitPrice: 99, Qty: 3}))

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Qty)
	assert.Equal(t, "Arroz", items[0].Name, "snapshotted name is kept")
	assert.Equal(t, 10.0, items[0].UnitPrice)
}

func TestCart_IncrementClampsAtOne(t *testing.T) {
	ctx := context.Background()
	c := openCart(t, core.NewMemoryStore())
	require.NoError(t, c.Add(ctx, Item{ID: "a", Qty: 1}))

	require.NoError(t, c.Increment(ctx, "a", -100))
	assert.Equal(t, 1, c.Items()[0].Qty)

	require.NoError(t, c.Increment(ctx, "a", 4))
	assert.Equal(t, 5, c.Items()[0].Qty)

	err := c.Increment(ctx, "missing", 1)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestCart_AddRejectsMissingID(t *testing.T) {
	c := openCart(t, core.NewMemoryStore())
	err := c.Add(context.Background(), Item{Name: "x"})
	assert.True(t, errors.Is(err, core.ErrValidation))
	assert.Equal(t, 0, c.Count())
}

func TestCart_AddZeroQuantityCountsAsOne(t *testing.T) {
	c := openCart(t, core.NewMemoryStore())
	require.NoError(t, c.Add(context.Background(), Item{ID: "a", Qty: 0}))
	assert.Equal(t, 1, c.Count())
}

func TestCart_RemoveAndTotals(t *testing.T) {
	ctx := context.Background()
	c := openCart(t, core.NewMemoryStore())
	require.NoError(t, c.Add(ctx, Item{ID: "a", UnitPrice: 0.1, Qty: 3}))
	require.NoError(t, c.Add(ctx, Item{ID: "b", UnitPrice: 0.2, Qty: 1}))
	require.NoError(t, c.Add(ctx, Item{ID: "c", UnitPrice: 5, Qty: 2}))

	assert.Equal(t, 6, c.Count())
	assert.Equal(t, 10.5, c.Total())

	require.NoError(t, c.Remove(ctx, "c"))
	require.NoError(t, c.Remove(ctx, "nope"))
	assert.Equal(t, 4, c.Count())
	assert.Equal(t, 0.5, c.Total())
	assert.Equal(t, []string{"a", "b"}, []string{c.Items()[0].ID, c.Items()[1].ID})
}

func TestCart_ClearNeedsConfirmation(t *testing.T) {
	ctx := context.Background()
	c := openCart(t, core.NewMemoryStore())

	asked := 0
	yes := ConfirmFunc(func(context.Context, string) bool { asked++; return true })
	no := ConfirmFunc(func(context.Context, string) bool { asked++; return false })

	// empty cart: nothing to confirm
	require.NoError(t, c.Clear(ctx, no))
	assert.Equal(t, 0, asked)

	require.NoError(t, c.Add(ctx, Item{ID: "a", Qty: 2}))
	assert.ErrorIs(t, c.Clear(ctx, no), core.ErrNotConfirmed)
	assert.ErrorIs(t, c.Clear(ctx, nil), core.ErrNotConfirmed)
	assert.Equal(t, 2, c.Count())

	require.NoError(t, c.Clear(ctx, yes))
	assert.Equal(t, 0, c.Count())
	assert.Equal(t, 2, asked)
}

func TestCart_PersistsEveryMutation(t *testing.T) {
	ctx := context.Background()
	local := core.NewMemoryStore()
	c := openCart(t, local)

	require.NoError(t, c.Add(ctx, Item{ID: "a", Name: "Arroz", Code: "789", UnitPrice: 12.5, Qty: 2}))

	raw, err := local.Get(ctx, core.KeyCart)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a","name":"Arroz","code":"789","unitPrice":12.5,"qty":2}]`, raw)

	at, err := local.Get(ctx, core.KeyCartUpdatedAt)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-04T10:20:30.456Z", at)

	require.NoError(t, c.Reset(ctx))
	raw, _ = local.Get(ctx, core.KeyCart)
	assert.Equal(t, "[]", raw)

	// a reopened cart sees what was persisted
	require.NoError(t, c.Add(ctx, Item{ID: "b", Qty: 1}))
	reopened := openCart(t, local)
	assert.Equal(t, c.Items(), reopened.Items())
}

func TestOpen_RepairsStoredData(t *testing.T) {
	ctx := context.Background()
	local := core.NewMemoryStore()
	require.NoError(t, local.Set(ctx, core.KeyCart,
		`[{"id":"a","qty":1},{"id":"a","qty":2},{"id":"","qty":5},{"id":"b","qty":0}]`, 0))

	c := openCart(t, local)
	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 3, items[0].Qty)
	assert.Equal(t, 1, items[1].Qty)

	require.NoError(t, local.Set(ctx, core.KeyCart, `{not json`, 0))
	assert.Empty(t, openCart(t, local).Items())

	_, err := Open(ctx, nil)
	assert.ErrorIs(t, err, core.ErrMissingConfiguration)
}

type failingMemory struct {
	*core.MemoryStore
}

func (f failingMemory) Set(context.Context, string, string, time.Duration) error {
	return errors.New("quota exceeded")
}

func TestCart_PersistFailureKeepsMutation(t *testing.T) {
	c := openCart(t, failingMemory{core.NewMemoryStore()})
	err := c.Add(context.Background(), Item{ID: "a", Qty: 1})
	assert.Error(t, err)
	assert.Equal(t, 1, c.Count())
}

func TestCart_OnChange(t *testing.T) {
	ctx := context.Background()
	var seen []Summary
	c := openCart(t, core.NewMemoryStore(), OnChange(func(s Summary) { seen = append(seen, s) }))

	require.NoError(t, c.Add(ctx, Item{ID: "a", UnitPrice: 2, Qty: 1}))
	require.NoError(t, c.Increment(ctx, "a", 1))
	require.Error(t, c.Increment(ctx, "x", 1))

	require.Len(t, seen, 2)
	assert.Equal(t, 2, seen[1].Count)
	assert.Equal(t, 4.0, seen[1].Total)
}

func TestCart_Snapshot(t *testing.T) {
	ctx := context.Background()
	c := openCart(t, core.NewMemoryStore())
	require.NoError(t, c.Add(ctx, Item{ID: "a", Name: "A", UnitPrice: 33.333, Qty: 3}))

	snap := c.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 33.33, snap.Items[0].UnitPrice)
	assert.Equal(t, 99.99, snap.Items[0].LineTotal)
	assert.Equal(t, Totals{Subtotal: 99.99, Discount: 0, Total: 99.99}, snap.Totals)
	assert.Equal(t, fixedNow, snap.TakenAt)

	// later mutations do not reach a taken snapshot
	require.NoError(t, c.Increment(ctx, "a", 1))
	assert.Equal(t, 3, snap.Items[0].Qty)
}

func TestCart_SnapshotWithDiscountRule(t *testing.T) {
	ctx := context.Background()
	rule := func(subtotal float64) float64 {
		if subtotal >= 100 {
			return 10
		}
		return 0
	}
	c := openCart(t, core.NewMemoryStore(), WithDiscountRule(rule))
	require.NoError(t, c.Add(ctx, Item{ID: "a", UnitPrice: 50, Qty: 2}))

	assert.Equal(t, Totals{Subtotal: 100, Discount: 10, Total: 90}, c.Snapshot().Totals)

	require.NoError(t, c.Increment(ctx, "a", -1))
	assert.Equal(t, Totals{Subtotal: 50, Discount: 0, Total: 50}, c.Snapshot().Totals)
}

func TestFromProduct(t *testing.T) {
	it := FromProduct(catalog.Product{ID: "789", Name: "  ", Barcode: "789", Price: 4.5})
	assert.Equal(t, Item{ID: "789", Name: "—", Code: "789", UnitPrice: 4.5, Qty: 1}, it)
}

// Package cart keeps the shopping cart: an ordered list of line items keyed
// by product id, persisted to local storage after every mutation.
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/money"
)

// TimestampLayout is the ISO-8601 UTC form stored under catalog_cart_updated_at.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Summary is what observers receive after each mutation.
type Summary struct {
	Items []Item  `json:"items"`
	Count int     `json:"count"`
	Total float64 `json:"total"`
}

// Confirmer gates destructive operations on a user decision.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool {
	return f(ctx, prompt)
}

// ClearPrompt is the question asked before emptying a non-empty cart.
const ClearPrompt = "Limpar todos os itens do carrinho?"

// Cart is safe for concurrent use. Mutations are applied in call order.
type Cart struct {
	mu       sync.Mutex
	local    core.Memory
	logger   core.Logger
	now      func() time.Time
	discount DiscountRule
	onChange []func(Summary)
	items    []Item
}

// Option configures a Cart
type Option func(*Cart)

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(c *Cart) { c.logger = core.ComponentLogger(logger, "cart") }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Cart) { c.now = now }
}

// WithDiscountRule sets the cart-level discount applied by Snapshot.
func WithDiscountRule(rule DiscountRule) Option {
	return func(c *Cart) { c.discount = rule }
}

// OnChange registers an observer called after every mutation, outside the
// cart lock.
func OnChange(fn func(Summary)) Option {
	return func(c *Cart) {
		if fn != nil {
			c.onChange = append(c.onChange, fn)
		}
	}
}

// Open restores the cart persisted in local. An unreadable or corrupt entry
// yields an empty cart.
func Open(ctx context.Context, local core.Memory, opts ...Option) (*Cart, error) {
	if local == nil {
		return nil, fmt.Errorf("cart storage: %w", core.ErrMissingConfiguration)
	}
	c := &Cart{
		local:  local,
		logger: &core.NoOpLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	raw, err := local.Get(ctx, core.KeyCart)
	if err != nil {
		c.logger.Warn("Failed to read persisted cart", map[string]interface{}{"error": err.Error()})
		return c, nil
	}
	c.items = decodeItems(raw, c.logger)
	return c, nil
}

func decodeItems(raw string, logger core.Logger) []Item {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var stored []Item
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		logger.Warn("Discarding corrupt persisted cart", map[string]interface{}{"error": err.Error()})
		return nil
	}

	// restore the one-line-per-id invariant on data written by older clients
	out := make([]Item, 0, len(stored))
	index := make(map[string]int, len(stored))
	for _, it := range stored {
		if it.ID == "" {
			continue
		}
		if it.Qty < 1 {
			it.Qty = 1
		}
		if i, ok := index[it.ID]; ok {
			out[i].Qty += it.Qty
			continue
		}
		index[it.ID] = len(out)
		out = append(out, it)
	}
	return out
}

// Add appends item, or raises the quantity of the line with the same id.
// A quantity below 1 counts as 1.
func (c *Cart) Add(ctx context.Context, item Item) error {
	if strings.TrimSpace(item.ID) == "" {
		return fmt.Errorf("cart item without id: %w", core.ErrValidation)
	}
	if item.Qty < 1 {
		item.Qty = 1
	}
	return c.mutate(ctx, "add", func(items []Item) ([]Item, error) {
		for i := range items {
			if items[i].ID == item.ID {
				items[i].Qty += item.Qty
				return items, nil
			}
		}
		return append(items, item), nil
	})
}

// Increment sets the quantity of id to max(1, qty+delta). Removal needs Remove.
func (c *Cart) Increment(ctx context.Context, id string, delta int) error {
	return c.mutate(ctx, "increment", func(items []Item) ([]Item, error) {
		for i := range items {
			if items[i].ID == id {
				q := items[i].Qty + delta
				if q < 1 {
					q = 1
				}
				items[i].Qty = q
				return items, nil
			}
		}
		return nil, fmt.Errorf("cart item %q: %w", id, core.ErrNotFound)
	})
}

// Remove drops the line with id. Removing an absent id is not an error.
func (c *Cart) Remove(ctx context.Context, id string) error {
	return c.mutate(ctx, "remove", func(items []Item) ([]Item, error) {
		out := items[:0]
		for _, it := range items {
			if it.ID != id {
				out = append(out, it)
			}
		}
		return out, nil
	})
}

// Clear empties the cart after confirm agrees. An empty cart is left alone
// without asking; a nil or declining confirm returns core.ErrNotConfirmed.
func (c *Cart) Clear(ctx context.Context, confirm Confirmer) error {
	if c.Count() == 0 {
		return nil
	}
	if confirm == nil || !confirm.Confirm(ctx, ClearPrompt) {
		return core.ErrNotConfirmed
	}
	return c.Reset(ctx)
}

// Reset empties the cart unconditionally; checkout uses it once an order is
// accepted.
func (c *Cart) Reset(ctx context.Context) error {
	return c.mutate(ctx, "reset", func([]Item) ([]Item, error) {
		return nil, nil
	})
}

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyItems(c.items)
}

// Count is the sum of quantities.
func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return countItems(c.items)
}

// Total is the sum of line totals, computed on every call.
func (c *Cart) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return totalItems(c.items)
}

// Summary returns items, count and total in one consistent read.
func (c *Cart) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return summarize(c.items)
}

// Snapshot prices the current lines for checkout.
func (c *Cart) Snapshot() Snapshot {
	c.mu.Lock()
	items := copyItems(c.items)
	rule := c.discount
	c.mu.Unlock()
	return takeSnapshot(items, rule, c.now())
}

func (c *Cart) mutate(ctx context.Context, op string, fn func([]Item) ([]Item, error)) error {
	c.mu.Lock()
	next, err := fn(copyItems(c.items))
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.items = next
	summary := summarize(next)
	perr := c.persist(ctx, next)
	observers := c.onChange
	c.mu.Unlock()

	c.logger.Debug("Cart updated", map[string]interface{}{
		"operation": op,
		"lines":     len(summary.Items),
		"count":     summary.Count,
	})
	for _, fn := range observers {
		fn(summary)
	}
	if perr != nil {
		c.logger.Warn("Failed to persist cart", map[string]interface{}{
			"operation": op,
			"error":     perr.Error(),
		})
		return fmt.Errorf("persist cart: %w", perr)
	}
	return nil
}

func (c *Cart) persist(ctx context.Context, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := c.local.Set(ctx, core.KeyCart, string(encoded), 0); err != nil {
		return err
	}
	return c.local.Set(ctx, core.KeyCartUpdatedAt, c.now().UTC().Format(TimestampLayout), 0)
}

func copyItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

func countItems(items []Item) int {
	n := 0
	for _, it := range items {
		n += it.Qty
	}
	return n
}

func totalItems(items []Item) float64 {
	lines := make([]float64, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.LineTotal())
	}
	return money.Sum(lines...)
}

func summarize(items []Item) Summary {
	return Summary{
		Items: copyItems(items),
		Count: countItems(items),
		Total: totalItems(items),
	}
}

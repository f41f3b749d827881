package order

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itsneelabh/storefront/core"
)

// DefaultHistoryLimit bounds the remembered order ids when no limit is set.
const DefaultHistoryLimit = 10

// History returns the remembered order ids, newest first. Unreadable data
// reads as an empty history.
func History(ctx context.Context, local core.Memory) []string {
	raw, err := local.Get(ctx, core.KeyOrderHistory)
	if err != nil || raw == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil
	}
	return ids
}

// Remember puts id at the head of the history, dropping an older copy of it
// and anything past limit.
func Remember(ctx context.Context, local core.Memory, id string, limit int) error {
	if id == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	ids := []string{id}
	for _, old := range History(ctx, local) {
		if old != id && len(ids) < limit {
			ids = append(ids, old)
		}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode order history: %w", err)
	}
	return local.Set(ctx, core.KeyOrderHistory, string(raw), 0)
}

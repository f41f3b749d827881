package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/storefront/core"
)

func TestMemoryStore_GetSetMerge(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	backend.SetClock(func() time.Time { return fixed })
	store := backend.Client("device-a")

	doc, err := store.Get(ctx, "data/keys")
	require.NoError(t, err)
	assert.False(t, doc.Exists)

	require.NoError(t, store.Set(ctx, "orders/o1", map[string]interface{}{
		"status": "new",
		"totals": map[string]interface{}{"total": 10.0},
	}))
	require.NoError(t, store.Set(ctx, "orders/o1", map[string]interface{}{
		"clientNotify": map[string]interface{}{"receivedAt": ServerTimestamp},
		"totals":       map[string]interface{}{"delivery": 5.0},
	}, Merge()))

	doc, err = store.Get(ctx, "orders/o1")
	require.NoError(t, err)
	assert.True(t, doc.Exists)
	assert.Equal(t, "new", doc.Data["status"])

	v, ok := doc.Field("clientNotify.receivedAt")
	require.True(t, ok)
	assert.Equal(t, fixed, v)

	totals := doc.Data["totals"].(map[string]interface{})
	assert.Equal(t, 10.0, totals["total"])
	assert.Equal(t, 5.0, totals["delivery"])

	// overwrite without merge replaces the document
	require.NoError(t, store.Set(ctx, "orders/o1", map[string]interface{}{"status": "done"}))
	doc, _ = store.Get(ctx, "orders/o1")
	_, ok = doc.Field("totals")
	assert.False(t, ok)
}

func TestMemoryStore_CopiesData(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBackend().Client("")

	payload := map[string]interface{}{"items": []interface{}{"a"}}
	require.NoError(t, store.Set(ctx, "data/keys", payload))
	payload["items"].([]interface{})[0] = "mutated"

	doc, _ := store.Get(ctx, "data/keys")
	assert.Equal(t, "a", doc.Data["items"].([]interface{})[0])
}

func TestMemoryStore_Create(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBackend().Client("device-a")

	require.NoError(t, store.Create(ctx, "orders/k1", map[string]interface{}{"status": "new"}))
	err := store.Create(ctx, "orders/k1", map[string]interface{}{"status": "new"})
	assert.True(t, errors.Is(err, core.ErrAlreadyExists))
}

func TestMemoryStore_InvalidPath(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBackend().Client("")

	_, err := store.Get(ctx, "orders")
	assert.Error(t, err)
	assert.Error(t, store.Set(ctx, "orders//x", nil))
}

func TestMemoryStore_Offline(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := backend.Client("")

	backend.SetOffline(true)
	_, err := store.Get(ctx, "data/keys")
	assert.True(t, errors.Is(err, core.ErrOffline))
	assert.True(t, core.IsRetryable(err))
	assert.Error(t, store.Ping(ctx))

	backend.SetOffline(false)
	assert.NoError(t, store.Ping(ctx))
}

func TestMemoryStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	device := backend.Client("device")
	pos := backend.Client("pos")

	var seen []Document
	sub, err := device.Subscribe(ctx, "orders/o1", func(d Document) {
		seen = append(seen, d)
	}, nil)
	require.NoError(t, err)

	require.NoError(t, pos.Set(ctx, "orders/o1", map[string]interface{}{"status": "new"}))
	require.NoError(t, device.Set(ctx, "orders/o1", map[string]interface{}{"seen": true}, Merge()))

	sub.Unsubscribe()
	sub.Unsubscribe()
	require.NoError(t, pos.Set(ctx, "orders/o1", map[string]interface{}{"status": "done"}, Merge()))

	require.Len(t, seen, 3)
	assert.False(t, seen[0].Exists, "initial snapshot of a missing document")
	assert.False(t, seen[1].HasPendingWrites, "write from another client")
	assert.True(t, seen[2].HasPendingWrites, "own write is flagged pending")
}

func TestMemoryStore_SubscribeContextCancel(t *testing.T) {
	backend := NewMemoryBackend()
	store := backend.Client("device")
	ctx, cancel := context.WithCancel(context.Background())

	calls := make(chan Document, 10)
	_, err := store.Subscribe(ctx, "data/keys", func(d Document) { calls <- d }, nil)
	require.NoError(t, err)
	<-calls

	cancel()
	assert.Eventually(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return len(backend.subs["data/keys"]) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryBackend_FailureHook(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := backend.Client("")
	boom := errors.New("permission denied")

	backend.SetFailureHook(func(op, path string) error {
		if op == "set" {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, store.Set(ctx, "orders/o1", map[string]interface{}{}), boom)
	assert.NoError(t, store.Create(ctx, "orders/o1", map[string]interface{}{}))

	var gotErr error
	_, err := store.Subscribe(ctx, "orders/o1", func(Document) {}, func(err error) { gotErr = err })
	require.NoError(t, err)
	backend.FailSubscribers("orders/o1", boom)
	assert.Equal(t, boom, gotErr)
}

func TestDeepMergeAndLookup(t *testing.T) {
	dst := map[string]interface{}{
		"a": map[string]interface{}{"x": 1, "y": 2},
		"b": "keep",
	}
	DeepMerge(dst, map[string]interface{}{
		"a": map[string]interface{}{"y": 3, "z": 4},
		"c": []interface{}{1},
	})

	v, ok := Lookup(dst, "a.y")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	v, _ = Lookup(dst, "a.x")
	assert.Equal(t, 1, v)
	_, ok = Lookup(dst, "b.nope")
	assert.False(t, ok)
	assert.Equal(t, "keep", dst["b"])
}

func TestValidateDocPath(t *testing.T) {
	assert.NoError(t, ValidateDocPath("data/keys"))
	assert.NoError(t, ValidateDocPath(Join("orders", "abc")))
	assert.Error(t, ValidateDocPath("data"))
	assert.Error(t, ValidateDocPath("a/b/c"))
	assert.Error(t, ValidateDocPath("/keys"))
}

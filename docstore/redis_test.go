package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/storefront/core"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisStore_GetSetMerge(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	fixed := time.Date(2025, 5, 10, 8, 30, 0, 0, time.UTC)
	store := NewRedisStore(client, WithNamespace("sf"), WithClock(func() time.Time { return fixed }))

	doc, err := store.Get(ctx, "data/keys")
	require.NoError(t, err)
	assert.False(t, doc.Exists)

	require.NoError(t, store.Set(ctx, "orders/o1", map[string]interface{}{
		"status":    "new",
		"createdAt": ServerTimestamp,
		"totals":    map[string]interface{}{"total": 42.5},
	}))
	require.NoError(t, store.Set(ctx, "orders/o1", map[string]interface{}{
		"clientNotify": map[string]interface{}{"receivedAt": ServerTimestamp},
	}, Merge()))

	raw, err := mr.Get("sf:doc:orders/o1")
	require.NoError(t, err)
	var stored map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "2025-05-10T08:30:00Z", stored["createdAt"])

	doc, err = store.Get(ctx, "orders/o1")
	require.NoError(t, err)
	assert.True(t, doc.Exists)
	assert.Equal(t, "new", doc.Data["status"])
	total, _ := Lookup(doc.Data, "totals.total")
	assert.Equal(t, json.Number("42.5"), total)
	ack, ok := doc.Field("clientNotify.receivedAt")
	assert.True(t, ok)
	assert.Equal(t, "2025-05-10T08:30:00Z", ack)
}

func TestRedisStore_Create(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	store := NewRedisStore(client)

	require.NoError(t, store.Create(ctx, "orders/k1", map[string]interface{}{"status": "new"}))
	err := store.Create(ctx, "orders/k1", map[string]interface{}{"status": "new"})
	assert.True(t, errors.Is(err, core.ErrAlreadyExists))
}

func TestRedisStore_CorruptDocumentIsMissing(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	store := NewRedisStore(client, WithNamespace("sf"))

	require.NoError(t, mr.Set("sf:doc:data/keys", "{not json"))
	doc, err := store.Get(ctx, "data/keys")
	require.NoError(t, err)
	assert.False(t, doc.Exists)
}

func TestRedisStore_Subscribe(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	device := NewRedisStore(client, WithNamespace("sf"), WithClientID("device"))
	pos := NewRedisStore(client, WithNamespace("sf"), WithClientID("pos"))

	var mu sync.Mutex
	var seen []Document
	sub, err := device.Subscribe(ctx, "orders/o1", func(d Document) {
		mu.Lock()
		seen = append(seen, d)
		mu.Unlock()
	}, nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(seen)
	}
	require.Eventually(t, func() bool { return count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, pos.Set(ctx, "orders/o1", map[string]interface{}{"status": "received"}))
	require.Eventually(t, func() bool { return count() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, device.Set(ctx, "orders/o1", map[string]interface{}{"ack": true}, Merge()))
	require.Eventually(t, func() bool { return count() == 3 }, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, seen[0].Exists)
	assert.Equal(t, "received", seen[1].Data["status"])
	assert.False(t, seen[1].HasPendingWrites)
	assert.True(t, seen[2].HasPendingWrites)
}

func TestRedisStore_PingAndOffline(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	store := NewRedisStore(client)

	assert.NoError(t, store.Ping(ctx))

	mr.Close()
	err := store.Ping(ctx)
	assert.True(t, errors.Is(err, core.ErrOffline))

	_, err = store.Get(ctx, "data/keys")
	assert.True(t, core.IsRetryable(err))
}

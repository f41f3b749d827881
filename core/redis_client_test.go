package core

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr
}

func TestNewRedisClient_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    RedisClientOptions
		wantErr error
	}{
		{"empty url", RedisClientOptions{}, ErrInvalidConfiguration},
		{"bad url", RedisClientOptions{RedisURL: "http://nope"}, ErrInvalidConfiguration},
		{"unreachable", RedisClientOptions{RedisURL: "redis://127.0.0.1:1"}, ErrConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRedisClient(tt.opts)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestRedisClient_FormatKey(t *testing.T) {
	mr := setupTestRedis(t)

	client, err := NewRedisClient(RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		DB:        RedisDBLocalStorage,
		Namespace: "storefront:device",
	})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "storefront:device:catalog_cart", client.FormatKey(KeyCart))
	assert.Equal(t, RedisDBLocalStorage, client.GetDB())
	assert.Equal(t, "local-storage", GetRedisDBName(client.GetDB()))
	assert.NoError(t, client.Ping(context.Background()))
}

func TestRedisMemory(t *testing.T) {
	mr := setupTestRedis(t)
	ctx := context.Background()

	client, err := NewRedisClient(RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		Namespace: "sf",
	})
	require.NoError(t, err)
	defer client.Close()

	store := NewRedisMemory(client)

	val, err := store.Get(ctx, KeyLastOrderID)
	require.NoError(t, err)
	assert.Equal(t, "", val)

	require.NoError(t, store.Set(ctx, KeyLastOrderID, "abc", 0))
	assert.Equal(t, "abc", mustGet(t, mr, "sf:"+KeyLastOrderID))

	exists, err := store.Exists(ctx, KeyLastOrderID)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, KeyLastOrderID))
	exists, err = store.Exists(ctx, KeyLastOrderID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

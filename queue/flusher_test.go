package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/storefront/core"
	"github.com/itsneelabh/storefront/order"
)

func TestFlusher_OnOnlineFlushes(t *testing.T) {
	ctx := context.Background()
	var sent int32
	q, err := New(core.NewMemoryStore(), SubmitFunc(func(ctx context.Context, o order.Order) (string, error) {
		atomic.AddInt32(&sent, 1)
		return o.IdempotencyKey, nil
	}))
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, testOrder("a")))
	require.NoError(t, q.Enqueue(ctx, testOrder("b")))

	f, err := NewFlusher(q, "", nil)
	require.NoError(t, err)

	// not started: reconnect signals are ignored
	f.OnOnline()
	assert.Equal(t, 2, q.Len(ctx))

	require.NoError(t, f.Start(ctx))
	defer f.Stop()
	f.OnOnline()

	assert.Eventually(t, func() bool { return q.Len(ctx) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&sent))
}

func TestFlusher_Schedule(t *testing.T) {
	ctx := context.Background()
	q, err := New(core.NewMemoryStore(), &fakeSubmitter{})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, testOrder("a")))

	f, err := NewFlusher(q, "@every 1s", nil)
	require.NoError(t, err)
	require.NoError(t, f.Start(ctx))
	defer f.Stop()

	assert.Eventually(t, func() bool { return q.Len(ctx) == 0 }, 3*time.Second, 20*time.Millisecond)
}

func TestFlusher_FlushNowAndStop(t *testing.T) {
	ctx := context.Background()
	q, err := New(core.NewMemoryStore(), &fakeSubmitter{})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, testOrder("a")))

	f, err := NewFlusher(q, "@every 1m", nil)
	require.NoError(t, err)

	res, err := f.FlushNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	require.NoError(t, f.Start(ctx))
	f.Stop()
	f.Stop()
}

func TestNewFlusher_InvalidSchedule(t *testing.T) {
	q, err := New(core.NewMemoryStore(), &fakeSubmitter{})
	require.NoError(t, err)

	_, err = NewFlusher(q, "every minute please", nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	_, err = NewFlusher(nil, "", nil)
	assert.ErrorIs(t, err, core.ErrMissingConfiguration)
}

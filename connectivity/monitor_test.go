package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/storefront/core"
)

type switchPinger struct {
	mu  sync.Mutex
	err error
}

func (p *switchPinger) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *switchPinger) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func TestMonitor_Transitions(t *testing.T) {
	ctx := context.Background()
	p := &switchPinger{}
	m, err := NewMonitor(p)
	require.NoError(t, err)

	var online, offline int
	m.OnOnline(func() { online++ })
	m.OnOffline(func(error) { offline++ })

	assert.True(t, m.Online(), "optimistic before the first ping")
	assert.True(t, m.Check(ctx))
	assert.Equal(t, 0, online, "no transition while already online")

	down := errors.New("unreachable")
	p.set(down)
	assert.False(t, m.Check(ctx))
	assert.False(t, m.Check(ctx))
	assert.Equal(t, 1, offline)
	assert.ErrorIs(t, m.LastError(), down)

	p.set(nil)
	assert.True(t, m.Check(ctx))
	assert.True(t, m.Check(ctx))
	assert.Equal(t, 1, online)
	assert.NoError(t, m.LastError())
}

func TestMonitor_CanceledContextIsNotOffline(t *testing.T) {
	m, err := NewMonitor(PingFunc(func(ctx context.Context) error { return ctx.Err() }))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, m.Check(ctx))
	assert.True(t, m.Online())
}

func TestMonitor_StartStop(t *testing.T) {
	p := &switchPinger{err: errors.New("down")}
	m, err := NewMonitor(p, WithInterval(10*time.Millisecond), WithPingTimeout(time.Second))
	require.NoError(t, err)

	var restored atomic.Int32
	m.OnOnline(func() { restored.Add(1) })

	m.Start(context.Background())
	m.Start(context.Background())
	assert.Eventually(t, func() bool { return !m.Online() }, time.Second, 5*time.Millisecond)

	p.set(nil)
	assert.Eventually(t, func() bool { return restored.Load() == 1 }, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()
	assert.True(t, m.Online())
}

func TestFromConfig(t *testing.T) {
	cfg := core.DefaultConfig().Queue
	m, err := FromConfig(&switchPinger{}, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.ConnectivityInterval, m.interval)
	assert.Equal(t, cfg.PingTimeout, m.timeout)

	_, err = NewMonitor(nil)
	assert.ErrorIs(t, err, core.ErrMissingConfiguration)
}

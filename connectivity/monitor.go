// Package connectivity tells the rest of the storefront whether the remote
// store is reachable. A Monitor pings on an interval and fires callbacks on
// the offline-to-online and online-to-offline transitions.
package connectivity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/storefront/core"
)

// Pinger checks reachability. docstore.Store satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Monitor tracks online state.
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   core.Logger

	mu        sync.RWMutex
	online    bool
	lastErr   error
	onOnline  []func()
	onOffline []func(error)

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Monitor
type Option func(*Monitor)

// WithInterval sets the time between pings
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithPingTimeout bounds each ping
func WithPingTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(m *Monitor) { m.logger = core.ComponentLogger(logger, "connectivity") }
}

// NewMonitor creates a monitor. It starts out optimistic: Online reports
// true until a ping fails.
func NewMonitor(p Pinger, opts ...Option) (*Monitor, error) {
	if p == nil {
		return nil, fmt.Errorf("connectivity: pinger: %w", core.ErrMissingConfiguration)
	}
	m := &Monitor{
		pinger:   p,
		interval: 15 * time.Second,
		timeout:  3 * time.Second,
		logger:   &core.NoOpLogger{},
		online:   true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// FromConfig builds a monitor from the queue section of the configuration.
func FromConfig(p Pinger, cfg core.QueueConfig, logger core.Logger) (*Monitor, error) {
	return NewMonitor(p,
		WithInterval(cfg.ConnectivityInterval),
		WithPingTimeout(cfg.PingTimeout),
		WithLogger(logger),
	)
}

// OnOnline registers fn for offline-to-online transitions.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	m.onOnline = append(m.onOnline, fn)
	m.mu.Unlock()
}

// OnOffline registers fn for online-to-offline transitions.
func (m *Monitor) OnOffline(fn func(error)) {
	m.mu.Lock()
	m.onOffline = append(m.onOffline, fn)
	m.mu.Unlock()
}

// Online reports the last observed state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// LastError is the error of the last failed ping, nil when online.
func (m *Monitor) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Check pings once and applies the result. It returns the new state.
func (m *Monitor) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.pinger.Ping(pctx)
	cancel()
	if err != nil && ctx.Err() != nil {
		// shutting down, not a connectivity change
		return m.Online()
	}
	m.apply(err)
	return err == nil
}

func (m *Monitor) apply(err error) {
	m.mu.Lock()
	was := m.online
	m.online = err == nil
	m.lastErr = err
	onOnline := append([]func(){}, m.onOnline...)
	onOffline := append([]func(error){}, m.onOffline...)
	m.mu.Unlock()

	switch {
	case err == nil && !was:
		m.logger.Info("Connection restored", nil)
		for _, fn := range onOnline {
			fn()
		}
	case err != nil && was:
		m.logger.Warn("Connection lost", map[string]interface{}{
			"error": err.Error(),
		})
		for _, fn := range onOffline {
			fn(err)
		}
	}
}

// Start pings immediately and then on every interval until Stop or ctx
// cancellation.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		m.Check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}(m.done)

	m.logger.Info("Connectivity monitor started", map[string]interface{}{
		"interval": m.interval.String(),
	})
}

// Stop halts the ping loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

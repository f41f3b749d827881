package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/storefront/core"
)

// ErrCircuitOpen is returned by Execute while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows a single probe
	StateHalfOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MetricsCollector interface for circuit breaker metrics
type MetricsCollector interface {
	RecordSuccess(name string)
	RecordFailure(name string, errorType string)
	RecordStateChange(name string, from, to string)
	RecordRejection(name string)
}

type noopMetrics struct{}

func (n *noopMetrics) RecordSuccess(name string)                      {}
func (n *noopMetrics) RecordFailure(name string, errorType string)    {}
func (n *noopMetrics) RecordStateChange(name string, from, to string) {}
func (n *noopMetrics) RecordRejection(name string)                    {}

// ErrorClassifier determines which errors should count toward the threshold
type ErrorClassifier func(error) bool

// DefaultErrorClassifier counts only remote infrastructure failures. A
// rejected validation or an order that already exists says nothing about
// the store's health.
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, core.ErrValidation) || errors.Is(err, core.ErrAlreadyExists) ||
		core.IsNotFound(err) || core.IsConfigurationError(err) {
		return false
	}
	return true
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker
	Name string

	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int

	// SleepWindow is how long to wait before letting a probe through
	SleepWindow time.Duration

	// ErrorClassifier determines which errors count as failures
	ErrorClassifier ErrorClassifier

	// Logger for circuit breaker events
	Logger core.Logger

	// Metrics collector for monitoring
	Metrics MetricsCollector
}

// DefaultConfig returns a default configuration
func DefaultConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             "default",
		FailureThreshold: 5,
		SleepWindow:      30 * time.Second,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           &core.NoOpLogger{},
		Metrics:          &noopMetrics{},
	}
}

// CircuitBreaker stops calling a failing dependency for a while. After
// FailureThreshold consecutive counted failures it opens; once SleepWindow
// has passed one probe is let through, and its outcome closes or reopens it.
type CircuitBreaker struct {
	config *CircuitBreakerConfig
	now    func() time.Time

	mu            sync.Mutex
	state         CircuitState
	failures      int
	openedAt      time.Time
	probeInFlight bool
	listeners     []func(name string, from, to CircuitState)
}

// NewCircuitBreaker creates a circuit breaker. Zero fields fall back to defaults.
func NewCircuitBreaker(config *CircuitBreakerConfig) (*CircuitBreaker, error) {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	cfg := *config
	if cfg.FailureThreshold < 0 {
		return nil, fmt.Errorf("failure threshold must be positive: %w", core.ErrInvalidConfiguration)
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SleepWindow <= 0 {
		cfg.SleepWindow = def.SleepWindow
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.ErrorClassifier == nil {
		cfg.ErrorClassifier = DefaultErrorClassifier
	}
	if cfg.Logger == nil {
		cfg.Logger = &core.NoOpLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &noopMetrics{}
	}
	return &CircuitBreaker{config: &cfg, now: time.Now}, nil
}

// AddStateChangeListener registers fn for every state transition
func (cb *CircuitBreaker) AddStateChangeListener(fn func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	cb.listeners = append(cb.listeners, fn)
	cb.mu.Unlock()
}

// GetState returns the current state, moving open to half-open once the
// sleep window has elapsed.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	notify := cb.maybeHalfOpen()
	state := cb.state
	cb.mu.Unlock()
	run(notify)
	return state
}

// CanExecute reports whether a call would be let through right now
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	notify := cb.maybeHalfOpen()
	ok := cb.state == StateClosed || (cb.state == StateHalfOpen && !cb.probeInFlight)
	cb.mu.Unlock()
	run(notify)
	return ok
}

// Execute runs fn through the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cb.admit() {
		cb.config.Metrics.RecordRejection(cb.config.Name)
		return fmt.Errorf("%s: %w", cb.config.Name, ErrCircuitOpen)
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	notify := cb.maybeHalfOpen()
	ok := false
	switch cb.state {
	case StateClosed:
		ok = true
	case StateHalfOpen:
		if !cb.probeInFlight {
			cb.probeInFlight = true
			ok = true
		}
	}
	cb.mu.Unlock()
	run(notify)
	return ok
}

func (cb *CircuitBreaker) record(err error) {
	counted := cb.config.ErrorClassifier(err)

	cb.mu.Lock()
	var notify func()
	wasProbe := cb.state == StateHalfOpen
	cb.probeInFlight = false
	switch {
	case !counted:
		cb.failures = 0
		if wasProbe {
			notify = cb.transition(StateClosed)
		}
	default:
		cb.failures++
		if wasProbe || cb.failures >= cb.config.FailureThreshold {
			cb.openedAt = cb.now()
			notify = cb.transition(StateOpen)
		}
	}
	cb.mu.Unlock()

	if counted {
		cb.config.Metrics.RecordFailure(cb.config.Name, errorType(err))
	} else {
		cb.config.Metrics.RecordSuccess(cb.config.Name)
	}
	run(notify)
}

// maybeHalfOpen must be called with cb.mu held.
func (cb *CircuitBreaker) maybeHalfOpen() func() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.config.SleepWindow {
		return cb.transition(StateHalfOpen)
	}
	return nil
}

func run(fn func()) {
	if fn != nil {
		fn()
	}
}

// transition must be called with cb.mu held; the returned func notifies
// listeners and must run without it.
func (cb *CircuitBreaker) transition(to CircuitState) func() {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	listeners := append([]func(string, CircuitState, CircuitState){}, cb.listeners...)
	name := cb.config.Name
	logger := cb.config.Logger
	metrics := cb.config.Metrics
	return func() {
		logger.Info("Circuit breaker state changed", map[string]interface{}{
			"circuit_breaker": name,
			"from":            from.String(),
			"to":              to.String(),
		})
		metrics.RecordStateChange(name, from.String(), to.String())
		for _, fn := range listeners {
			fn(name, from, to)
		}
	}
}

// Reset closes the breaker
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	notify := cb.transition(StateClosed)
	cb.failures = 0
	cb.probeInFlight = false
	cb.mu.Unlock()
	run(notify)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, core.ErrOffline):
		return "offline"
	case errors.Is(err, core.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, core.ErrConnectionFailed):
		return "connection"
	}
	return "other"
}

package resilience

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/itsneelabh/storefront/core"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
	// Retryable decides whether an error is worth another attempt.
	// nil retries every error.
	Retryable func(error) bool
}

// DefaultRetryConfig provides sensible defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// RetryConfigFrom converts the storefront retry settings. Only transient
// remote failures are retried.
func RetryConfigFrom(cfg core.RetryConfig) *RetryConfig {
	rc := &RetryConfig{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.InitialInterval,
		MaxDelay:      cfg.MaxInterval,
		BackoffFactor: cfg.Multiplier,
		JitterEnabled: true,
		Retryable:     core.IsRetryable,
	}
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}
	if rc.BackoffFactor < 1 {
		rc.BackoffFactor = 1
	}
	return rc
}

// Retry executes fn until it succeeds, attempts run out, ctx ends or the
// error is not retryable.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.Retryable != nil && !config.Retryable(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == config.MaxAttempts {
			break
		}

		if attempt > 1 {
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if config.MaxDelay > 0 && delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		wait := delay
		if config.JitterEnabled {
			wait += time.Duration(float64(delay) * 0.1 * math.Sin(float64(attempt)))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w: %w", config.MaxAttempts, core.ErrMaxRetriesExceeded, lastErr)
}

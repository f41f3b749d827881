package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/itsneelabh/storefront/core"
)

func fastConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// TestRetryBasicSuccess tests successful execution on first attempt
func TestRetryBasicSuccess(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(3), func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

// TestRetryEventualSuccess tests success after multiple attempts
func TestRetryEventualSuccess(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return core.ErrOffline
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected eventual success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

// TestRetryMaxAttemptsExceeded keeps both the retry sentinel and the last cause
func TestRetryMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(3), func() error {
		attempts++
		return fmt.Errorf("set orders/x: %w", core.ErrOffline)
	})

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Errorf("Expected ErrMaxRetriesExceeded, got %v", err)
	}
	if !errors.Is(err, core.ErrOffline) {
		t.Errorf("Expected the last cause to be preserved, got %v", err)
	}
}

// TestRetryStopsOnNonRetryable tests that permanent errors are not retried
func TestRetryStopsOnNonRetryable(t *testing.T) {
	cfg := RetryConfigFrom(core.RetryConfig{MaxAttempts: 5, InitialInterval: time.Millisecond, Multiplier: 2})

	attempts := 0
	permanent := fmt.Errorf("order: %w", core.ErrValidation)
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return permanent
	})

	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("Expected the permanent error, got %v", err)
	}
	if errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Error("Permanent errors must not be reported as exhausted retries")
	}
}

// TestRetryContextCancellation tests that a cancelled context stops retrying
func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &RetryConfig{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}

	attempts := 0
	err := Retry(ctx, cfg, func() error {
		attempts++
		cancel()
		return core.ErrOffline
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryConfigFrom(t *testing.T) {
	cfg := RetryConfigFrom(core.RetryConfig{MaxAttempts: 0, Multiplier: 0})
	if cfg.MaxAttempts != 1 {
		t.Errorf("Expected at least one attempt, got %d", cfg.MaxAttempts)
	}
	if cfg.BackoffFactor != 1 {
		t.Errorf("Expected backoff factor floor of 1, got %v", cfg.BackoffFactor)
	}
	if cfg.Retryable == nil || !cfg.Retryable(core.ErrTimeout) || cfg.Retryable(core.ErrNotFound) {
		t.Error("Expected only transient errors to be retryable")
	}
}

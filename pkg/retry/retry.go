package retry

import (
	"context"
	"fmt"
	"time"
)

// Config holds retry behavior configuration.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry, and the fixed delay
	// when Exponential is false.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay between attempts.
	MaxDelay time.Duration

	// Exponential doubles the delay after each failed attempt when true.
	Exponential bool
}

// DefaultConfig returns the default retry configuration: 3 attempts,
// 1s base delay, 30s cap, exponential backoff.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Exponential: true,
	}
}

// Executor executes actions with bounded retry.
type Executor struct {
	config Config
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor with the given configuration. Invalid
// fields fall back to their defaults.
func NewExecutor(config Config) *Executor {
	def := DefaultConfig()
	if config.MaxAttempts < 1 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = def.BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	return &Executor{
		config: config,
		sleep:  sleepContext,
	}
}

// Execute runs action until it succeeds or attempts are exhausted,
// returning the last error. The label identifies the action in error
// messages. Context cancellation aborts immediately between attempts.
func (e *Executor) Execute(ctx context.Context, label string, action func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%s: %w (context canceled after %d attempts)", label, lastErr, attempt-1)
			}
			return fmt.Errorf("%s: %w", label, err)
		}

		lastErr = action(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt < e.config.MaxAttempts {
			if err := e.sleep(ctx, e.delay(attempt)); err != nil {
				return fmt.Errorf("%s: %w (context canceled after %d attempts)", label, lastErr, attempt)
			}
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", label, e.config.MaxAttempts, lastErr)
}

// delay returns the backoff delay after the given 1-based attempt.
func (e *Executor) delay(attempt int) time.Duration {
	if !e.config.Exponential {
		return e.config.BaseDelay
	}
	d := e.config.BaseDelay << uint(attempt-1)
	if d > e.config.MaxDelay || d <= 0 {
		return e.config.MaxDelay
	}
	return d
}

// Do executes an action that produces a value, retrying per the executor's
// configuration.
func Do[T any](ctx context.Context, e *Executor, label string, action func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Execute(ctx, label, func(ctx context.Context) error {
		var actionErr error
		result, actionErr = action(ctx)
		return actionErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// sleepContext sleeps for d or until the context is canceled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

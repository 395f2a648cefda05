package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "commentharvest/pkg/errors"
	"commentharvest/pkg/logger"
)

// DefaultMaxAttempts is used when Config.MaxAttempts is not positive
const DefaultMaxAttempts = 5

// Operation is a function that performs an operation that might need retrying
type Operation func(ctx context.Context) error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func(ctx context.Context) (T, error)

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of calls allowed, first call included
	MaxAttempts int
	// Backoff strategy to use
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each backoff sleep
	OnRetry func(attempt int, err error, delay time.Duration)
	// MaxRetryAfter caps a server-provided Retry-After hint (0 means no cap)
	MaxRetryAfter time.Duration
	// Sleep waits between attempts; Wait is used when nil
	Sleep SleepFunc
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:   DefaultMaxAttempts,
		Backoff:       DefaultExponentialBackoff(),
		RetryIf:       DefaultRetryIf,
		MaxRetryAfter: 5 * time.Minute,
		Sleep:         Wait,
		Logger:        logger.GetLogger(),
	}
}

// DefaultRetryIf retries the transient failure kinds and any error outside
// the harvest taxonomy. A classified error decides by its type, so a
// per-call timeout wrapped as a network error is retried; a bare cancelled
// or expired context is not.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return errs.IsRetryable(apiErr.Type)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	return true
}

// Delay returns how long to wait before retry number attempt. A
// Retry-After hint carried by err takes precedence over the backoff.
func (cfg *Config) Delay(attempt int, err error) time.Duration {
	var apiErr *errs.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		if cfg.MaxRetryAfter > 0 && apiErr.RetryAfter > cfg.MaxRetryAfter {
			return cfg.MaxRetryAfter
		}
		return apiErr.RetryAfter
	}
	return cfg.Backoff.NextDelay(attempt)
}

// Do executes an operation with retry logic
func Do(ctx context.Context, op Operation, cfg *Config) error {
	_, err := DoWithResult(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, cfg)
	return err
}

// DoWithResult executes an operation that returns a result with retry logic.
// Once MaxAttempts calls have failed with retryable errors it returns an
// attempts_exhausted error wrapping the last failure.
func DoWithResult[T any](ctx context.Context, op OperationWithResult[T], cfg *Config) (T, error) {
	var zero T
	cfg = cfg.withDefaults()

	var lastErr error
	attempt := 0

	for {
		attempt++

		if attempt > cfg.MaxAttempts {
			cfg.Logger.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
				"attempts":   attempt - 1,
				"last_error": lastErr.Error(),
			})
			var apiErr *errs.Error
			code := 0
			if errors.As(lastErr, &apiErr) {
				code = apiErr.Code
			}
			return zero, errs.Wrap(errs.ErrorTypeAttemptsExhausted, code, lastErr,
				fmt.Sprintf("gave up after %d attempts", cfg.MaxAttempts))
		}

		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return result, nil
		}

		lastErr = err

		if !cfg.RetryIf(err) {
			return zero, err
		}

		// The final failed call goes straight to exhaustion without sleeping
		if attempt >= cfg.MaxAttempts {
			continue
		}

		delay := cfg.Delay(attempt, err)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		cfg.Logger.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": cfg.MaxAttempts,
		})

		if err := cfg.Sleep(ctx, delay); err != nil {
			cfg.Logger.WarnWithFields("retry cancelled", map[string]interface{}{
				"attempt": attempt,
				"reason":  err.Error(),
			})
			return zero, err
		}
	}
}

func (cfg *Config) withDefaults() *Config {
	var out Config
	if cfg != nil {
		out = *cfg
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = DefaultMaxAttempts
	}
	if out.Backoff == nil {
		out.Backoff = DefaultExponentialBackoff()
	}
	if out.RetryIf == nil {
		out.RetryIf = DefaultRetryIf
	}
	if out.Sleep == nil {
		out.Sleep = Wait
	}
	if out.Logger == nil {
		out.Logger = logger.NewNopLogger()
	}
	return &out
}

// Package retry wraps one page fetch in capped exponential backoff.
//
// Failures carrying a retryable harvest error type (network, rate_limit,
// server_error) are retried; everything else in the taxonomy returns
// immediately. A rate_limit error with a RetryAfter hint waits for the
// hint instead of the computed delay, clamped by MaxRetryAfter.
//
// MaxAttempts counts calls. After MaxAttempts retryable failures the
// result is an attempts_exhausted error that wraps the last failure.
//
// Sleep is injectable so tests can record delays without waiting:
//
//	var waits []time.Duration
//	cfg := &retry.Config{
//		MaxAttempts: 5,
//		Backoff:     retry.DefaultExponentialBackoff(),
//		Sleep: func(ctx context.Context, d time.Duration) error {
//			waits = append(waits, d)
//			return ctx.Err()
//		},
//	}
//	body, err := retry.DoWithResult(ctx, fetch, cfg)
package retry

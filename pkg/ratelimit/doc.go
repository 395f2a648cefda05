// Package ratelimit paces outgoing requests per target host.
//
// HostLimiter keeps one State per host: the time of the last granted
// request and the configured minimum interval. Concurrent workers calling
// Acquire for the same host are granted slots one interval apart, each
// interval varied by the configured jitter so workers do not fire in
// lockstep. When RequestsPerMinute is set, a golang.org/x/time/rate token
// bucket per host caps sustained throughput on top of the interval.
//
//	limiter := ratelimit.NewHostLimiter(ratelimit.Config{
//		MinInterval: 2 * time.Second,
//		Jitter:      0.15,
//	})
//	if err := limiter.Acquire(ctx, "www.tiktok.com"); err != nil {
//		return err // context cancelled while waiting
//	}
package ratelimit

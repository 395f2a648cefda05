package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy computes the pause before a retry
type BackoffStrategy interface {
	// NextDelay returns the delay before retry number attempt (1-based)
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff doubles (by Multiplier) the pause after each failed
// page fetch, adds upward jitter and clamps to MaxDelay. Delays never
// shrink from one retry to the next while JitterFactor <= Multiplier-1.
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
	// Rand returns values in [0, 1); math/rand is used when nil
	Rand func() float64
}

// DefaultExponentialBackoff is 1s, 2s, 4s ... capped at one minute
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
}

// NextDelay returns min(base * multiplier^(attempt-1) * (1+jitter), max)
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}

	m := b.Multiplier
	if m < 1 {
		m = 2
	}
	d := float64(b.BaseDelay) * math.Pow(m, float64(attempt-1))
	d *= 1 + b.JitterFactor*b.random()

	if b.MaxDelay > 0 {
		d = math.Min(d, float64(b.MaxDelay))
	}
	return time.Duration(math.Max(d, 0))
}

func (b *ExponentialBackoff) random() float64 {
	if b.JitterFactor <= 0 {
		return 0
	}
	if b.Rand != nil {
		return b.Rand()
	}
	return rand.Float64()
}

// ConstantBackoff pauses for the same Delay before every retry
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns Delay for any retry
func (b *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return b.Delay
}

// Wait is the production SleepFunc
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

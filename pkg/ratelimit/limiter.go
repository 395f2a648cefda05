package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces requests to a host
type Limiter interface {
	// Acquire blocks until a request to host may be issued
	Acquire(ctx context.Context, host string) error
}

// Config holds pacing parameters
type Config struct {
	// MinInterval is the minimum gap between granted acquisitions per host
	MinInterval time.Duration
	// Hosts overrides MinInterval per hostname
	Hosts map[string]time.Duration
	// Jitter varies each interval by up to ±Jitter of its length (0 to 0.5)
	Jitter float64
	// RequestsPerMinute adds a token-bucket ceiling per host when positive
	RequestsPerMinute int
	// BurstSize is the bucket size for the ceiling
	BurstSize int
}

// State is the pacing state of one host
type State struct {
	Host        string
	LastRequest time.Time
	MinInterval time.Duration
}

type hostState struct {
	last     time.Time
	interval time.Duration
	ceiling  *rate.Limiter
}

// HostLimiter enforces a minimum interval between requests to the same
// host. Slots are reserved under a short lock in arrival order, and the
// wait for the slot happens outside the lock.
type HostLimiter struct {
	cfg   Config
	mu    sync.Mutex
	hosts map[string]*hostState

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// Option customises a HostLimiter
type Option func(*HostLimiter)

// WithClock replaces the time source and the sleep function
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *HostLimiter) {
		l.now = now
		l.sleep = sleep
	}
}

// WithRand replaces the jitter source; it must return values in [0, 1)
func WithRand(r func() float64) Option {
	return func(l *HostLimiter) { l.rand = r }
}

// NewHostLimiter creates a limiter for the given configuration
func NewHostLimiter(cfg Config, opts ...Option) *HostLimiter {
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.Jitter > 0.5 {
		cfg.Jitter = 0.5
	}
	l := &HostLimiter{
		cfg:   cfg,
		hosts: make(map[string]*hostState),
		now:   time.Now,
		sleep: sleepCtx,
		rand:  rand.Float64,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire reserves the next slot for host and waits for it
func (l *HostLimiter) Acquire(ctx context.Context, host string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	st := l.state(host)
	now := l.now()
	slot := now
	if !st.last.IsZero() {
		if next := st.last.Add(l.jittered(st.interval)); next.After(now) {
			slot = next
		}
	}
	st.last = slot
	ceiling := st.ceiling
	l.mu.Unlock()

	if wait := slot.Sub(now); wait > 0 {
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}

	if ceiling != nil {
		return ceiling.Wait(ctx)
	}
	return nil
}

// State returns a snapshot of host's pacing state
func (l *HostLimiter) State(host string) State {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(host)
	return State{Host: host, LastRequest: st.last, MinInterval: st.interval}
}

// state must be called with mu held
func (l *HostLimiter) state(host string) *hostState {
	st, ok := l.hosts[host]
	if ok {
		return st
	}

	interval := l.cfg.MinInterval
	if override, ok := l.cfg.Hosts[host]; ok {
		interval = override
	}
	st = &hostState{interval: interval}
	if l.cfg.RequestsPerMinute > 0 {
		burst := l.cfg.BurstSize
		if burst <= 0 {
			burst = 1
		}
		st.ceiling = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.cfg.RequestsPerMinute)), burst)
	}
	l.hosts[host] = st
	return st
}

func (l *HostLimiter) jittered(d time.Duration) time.Duration {
	if l.cfg.Jitter == 0 || d <= 0 {
		return d
	}
	offset := (l.rand()*2 - 1) * l.cfg.Jitter * float64(d)
	return d + time.Duration(offset)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

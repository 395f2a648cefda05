package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"commentharvest/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryJobProducesOneResult(t *testing.T) {
	p := New(context.Background(), 3, func(_ context.Context, _ int, n int) int {
		return n * n
	}, logger.NewTestLogger())
	p.Start()

	go func() {
		for i := 1; i <= 20; i++ {
			assert.NoError(t, p.Submit(i))
		}
		p.Close()
	}()

	sum := 0
	count := 0
	for r := range p.Results() {
		sum += r
		count++
	}
	assert.Equal(t, 20, count)
	assert.Equal(t, 2870, sum)
}

func TestConcurrencyIsBounded(t *testing.T) {
	var active, peak int32
	p := New(context.Background(), 2, func(_ context.Context, _ int, _ struct{}) bool {
		n := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return true
	}, nil)
	p.Start()

	go func() {
		for i := 0; i < 10; i++ {
			_ = p.Submit(struct{}{})
		}
		p.Close()
	}()
	for range p.Results() {
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Equal(t, 2, p.Size())
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(ctx, 1, func(ctx context.Context, _ int, n int) error {
		return ctx.Err()
	}, logger.NewTestLogger())
	p.Start()

	require.NoError(t, p.Submit(1))
	cancel()
	assert.ErrorIs(t, p.Submit(2), ErrClosed)
	p.Close()
	p.Close()

	var results []error
	for r := range p.Results() {
		results = append(results, r)
	}
	require.Len(t, results, 1)
}

func TestMinimumOneWorker(t *testing.T) {
	p := New(context.Background(), 0, func(context.Context, int, int) int { return 0 }, nil)
	assert.Equal(t, 1, p.Size())
}

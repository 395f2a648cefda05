package dedup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"commentharvest/pkg/models"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb, time.Hour)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func stores(t *testing.T) map[string]Store {
	redisStore, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}
}

func TestObserveFirstSightOnly(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			set, err := store.ForPost(ctx, models.PlatformTikTok, "7301")
			require.NoError(t, err)

			first, err := set.Observe(ctx, "c1")
			require.NoError(t, err)
			assert.True(t, first)

			again, err := set.Observe(ctx, "c1")
			require.NoError(t, err)
			assert.False(t, again)
		})
	}
}

func TestSeedSuppressesKnownIDs(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			set, err := store.ForPost(ctx, models.PlatformInstagram, "Cabc")
			require.NoError(t, err)

			ids := make([]string, 1200)
			for i := range ids {
				ids[i] = fmt.Sprintf("c%d", i)
			}
			require.NoError(t, set.Seed(ctx, ids))

			ok, err := set.Observe(ctx, "c1199")
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = set.Observe(ctx, "c1200")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestScopeIsPerPost(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			a, err := store.ForPost(ctx, models.PlatformTikTok, "A")
			require.NoError(t, err)
			b, err := store.ForPost(ctx, models.PlatformTikTok, "B")
			require.NoError(t, err)

			ok, _ := a.Observe(ctx, "same")
			assert.True(t, ok)
			ok, _ = b.Observe(ctx, "same")
			assert.True(t, ok)
		})
	}
}

func TestForPostStartsEmpty(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			set, err := store.ForPost(ctx, models.PlatformTikTok, "A")
			require.NoError(t, err)
			_, _ = set.Observe(ctx, "unpersisted")

			set, err = store.ForPost(ctx, models.PlatformTikTok, "A")
			require.NoError(t, err)
			ok, err := set.Observe(ctx, "unpersisted")
			require.NoError(t, err)
			assert.True(t, ok)

			assert.NoError(t, store.Release(ctx, models.PlatformTikTok, "A"))
		})
	}
}

func TestConcurrentObserveAdmitsOnce(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			set, err := store.ForPost(ctx, models.PlatformTikTok, "A")
			require.NoError(t, err)

			var admitted int32
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if ok, err := set.Observe(ctx, "c"); err == nil && ok {
						atomic.AddInt32(&admitted, 1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), admitted)
		})
	}
}

func TestRedisKeyAndTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	set, err := store.ForPost(ctx, models.PlatformTikTok, "7301")
	require.NoError(t, err)
	_, err = set.Observe(ctx, "c1")
	require.NoError(t, err)

	k := "commentharvest:seen:tiktok:7301"
	members, err := mr.Members(k)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, members)
	assert.Equal(t, time.Hour, mr.TTL(k))

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists(k))
}

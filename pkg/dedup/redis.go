package dedup

import (
	"context"
	"fmt"
	"time"

	"commentharvest/pkg/models"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "commentharvest:seen:"
	seedChunk  = 500
	defaultTTL = 48 * time.Hour
)

// RedisStore keeps one Redis SET per post. SADD's reply decides whether
// an id is new, so concurrent harvesters sharing the server agree.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore wraps rdb. If ttl is 0, defaults to 48 hours.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// ForPost clears any earlier set for the post and returns it
func (r *RedisStore) ForPost(ctx context.Context, platform models.Platform, postID string) (Set, error) {
	k := redisKey(platform, postID)
	if err := r.rdb.Del(ctx, k).Err(); err != nil {
		return nil, fmt.Errorf("failed to reset dedup set: %w", err)
	}
	return &redisSet{rdb: r.rdb, key: k, ttl: r.ttl}, nil
}

// Release deletes the post's set
func (r *RedisStore) Release(ctx context.Context, platform models.Platform, postID string) error {
	return r.rdb.Del(ctx, redisKey(platform, postID)).Err()
}

// Close closes the underlying redis connection
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

type redisSet struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func (s *redisSet) Seed(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += seedChunk {
		end := min(start+seedChunk, len(ids))
		members := make([]interface{}, 0, end-start)
		for _, id := range ids[start:end] {
			members = append(members, id)
		}
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, s.key, members...)
			pipe.Expire(ctx, s.key, s.ttl)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to seed dedup set: %w", err)
		}
	}
	return nil
}

func (s *redisSet) Observe(ctx context.Context, id string) (bool, error) {
	var added *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, s.key, id)
		pipe.Expire(ctx, s.key, s.ttl)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to record comment id: %w", err)
	}
	return added.Val() == 1, nil
}

func redisKey(platform models.Platform, postID string) string {
	return keyPrefix + string(platform) + ":" + postID
}

// Package dedup tracks which comment ids have already been emitted for a
// post, so a page fetched twice never produces duplicate rows.
package dedup

import (
	"context"
	"sync"

	"commentharvest/pkg/models"
)

// Set is the emitted-id set of one post
type Set interface {
	// Seed marks ids as already emitted
	Seed(ctx context.Context, ids []string) error
	// Observe returns true only the first time id is seen
	Observe(ctx context.Context, id string) (bool, error)
}

// Store hands out per-post sets. ForPost always starts the post from an
// empty set; callers seed it from what the sink already holds, which
// keeps the sink the source of truth across crashes.
type Store interface {
	ForPost(ctx context.Context, platform models.Platform, postID string) (Set, error)
	Release(ctx context.Context, platform models.Platform, postID string) error
	Close() error
}

// MemoryStore keeps sets in process memory
type MemoryStore struct {
	mu   sync.Mutex
	sets map[string]*memorySet
}

// NewMemoryStore creates an in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string]*memorySet)}
}

// ForPost returns a fresh set for the post
func (m *MemoryStore) ForPost(_ context.Context, platform models.Platform, postID string) (Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &memorySet{seen: make(map[string]struct{})}
	m.sets[key(platform, postID)] = s
	return s, nil
}

// Release drops the post's set
func (m *MemoryStore) Release(_ context.Context, platform models.Platform, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sets, key(platform, postID))
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error { return nil }

type memorySet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func (s *memorySet) Seed(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.seen[id] = struct{}{}
	}
	return nil
}

func (s *memorySet) Observe(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false, nil
	}
	s.seen[id] = struct{}{}
	return true, nil
}

func key(platform models.Platform, postID string) string {
	return string(platform) + ":" + postID
}

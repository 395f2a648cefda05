package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"commentharvest/pkg/dedup"
	"commentharvest/pkg/logger"
	"commentharvest/pkg/models"
	"commentharvest/pkg/ratelimit"
	"commentharvest/pkg/retry"
	"commentharvest/pkg/tiktok"
	"commentharvest/pkg/transport"

	"github.com/stretchr/testify/require"
)

// memSink is an in-memory sink.Sink
type memSink struct {
	mu          sync.Mutex
	records     []models.CommentRecord
	checkpoints map[string]models.Checkpoint
	appendErr   error
}

func newMemSink() *memSink {
	return &memSink{checkpoints: make(map[string]models.Checkpoint)}
}

func (s *memSink) Append(_ context.Context, records []models.CommentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.records = append(s.records, records...)
	return nil
}

func (s *memSink) Checkpoint(_ context.Context, cp models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[string(cp.Platform)+":"+cp.PostID] = cp
	return nil
}

func (s *memSink) LoadCheckpoint(_ context.Context, platform models.Platform, postID string) (models.Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[string(platform)+":"+postID]
	return cp, ok, nil
}

func (s *memSink) EmittedIDs(_ context.Context, platform models.Platform, postID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, r := range s.records {
		if r.Platform == platform && r.PostID == postID {
			ids = append(ids, r.CommentID)
		}
	}
	return ids, nil
}

func (s *memSink) Close() error { return nil }

func (s *memSink) checkpoint(postID string) models.Checkpoint {
	cp, _, _ := s.LoadCheckpoint(context.Background(), models.PlatformTikTok, postID)
	return cp
}

func (s *memSink) distinct(postID string) int {
	ids, _ := s.EmittedIDs(context.Background(), models.PlatformTikTok, postID)
	seen := make(map[string]struct{})
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}

// fakeAPI serves TikTok-shaped comment pages. pages[post][i] is the
// number of comments on page i; cursors are page indexes.
type fakeAPI struct {
	mu       sync.Mutex
	pages    map[string][]int
	failures map[string]int
	status   map[string]int
	raw      map[string]string
	stuck    map[string]bool
	onPage   func(post, cursor string)
	requests map[string][]string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		pages:    make(map[string][]int),
		failures: make(map[string]int),
		status:   make(map[string]int),
		raw:      make(map[string]string),
		stuck:    make(map[string]bool),
		requests: make(map[string][]string),
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	post := r.URL.Query().Get("aweme_id")
	cursor := r.URL.Query().Get("cursor")

	f.mu.Lock()
	f.requests[post] = append(f.requests[post], cursor)
	onPage := f.onPage
	f.mu.Unlock()

	if onPage != nil {
		onPage(post, cursor)
	}

	f.mu.Lock()
	if n := f.failures[post]; n > 0 {
		f.failures[post] = n - 1
		f.mu.Unlock()
		http.Error(w, "upstream broke", http.StatusInternalServerError)
		return
	}
	status := f.status[post]
	raw, hasRaw := f.raw[post]
	pages := f.pages[post]
	stuck := f.stuck[post]
	f.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if hasRaw {
		w.Write([]byte(raw))
		return
	}

	idx, _ := strconv.Atoi(cursor)
	count := 0
	if idx < len(pages) {
		count = pages[idx]
	}

	comments := make([]map[string]interface{}, 0, count)
	for i := 0; i < count; i++ {
		comments = append(comments, map[string]interface{}{
			"cid":         fmt.Sprintf("%s-p%d-c%d", post, idx, i),
			"text":        "nice",
			"create_time": 1700000000 + i,
			"digg_count":  i,
			"user":        map[string]interface{}{"unique_id": "viewer"},
		})
	}

	next := idx + 1
	if stuck {
		next = idx
	}
	hasMore := stuck || next < len(pages)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status_code": 0,
		"comments":    comments,
		"has_more":    hasMore,
		"cursor":      strconv.Itoa(next),
	})
}

func (f *fakeAPI) requestCount(post string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests[post])
}

func (f *fakeAPI) totalRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		n += len(r)
	}
	return n
}

type harness struct {
	api    *fakeAPI
	server *httptest.Server
	source *tiktok.Source
	sink   *memSink
	log    *logger.TestLogger
	sleeps []time.Duration
	mu     sync.Mutex
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{api: newFakeAPI(), sink: newMemSink(), log: logger.NewTestLogger()}
	h.server = httptest.NewServer(h.api)
	t.Cleanup(h.server.Close)

	src, err := tiktok.NewSource(tiktok.Config{BaseURL: h.server.URL})
	require.NoError(t, err)
	h.source = src
	return h
}

func (h *harness) retryConfig(maxAttempts int) *retry.Config {
	return &retry.Config{
		MaxAttempts: maxAttempts,
		Backoff:     &retry.ExponentialBackoff{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2},
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.mu.Lock()
			h.sleeps = append(h.sleeps, d)
			h.mu.Unlock()
			return ctx.Err()
		},
	}
}

func (h *harness) driverConfig() DriverConfig {
	return DriverConfig{
		Source:  h.source,
		Fetcher: transport.NewClient(5*time.Second, logger.NewNopLogger()),
		Limiter: ratelimit.NewHostLimiter(ratelimit.Config{}),
		Retry:   h.retryConfig(5),
		Sink:    h.sink,
		Dedup:   dedup.NewMemoryStore(),
		Logger:  h.log,
	}
}

func (h *harness) options(sources ...Source) Options {
	dc := h.driverConfig()
	if len(sources) == 0 {
		sources = []Source{h.source}
	}
	return Options{
		Sources:  sources,
		Fetcher:  dc.Fetcher,
		Limiter:  dc.Limiter,
		Retry:    dc.Retry,
		Sink:     dc.Sink,
		Dedup:    dc.Dedup,
		Workers:  2,
		Logger:   h.log,
		NewRunID: func() string { return "run-1" },
	}
}

func target(id string) models.PostTarget {
	return models.PostTarget{Platform: models.PlatformTikTok, PostID: id}
}

package harvest

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "commentharvest/pkg/errors"
	"commentharvest/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDriver(t *testing.T, h *harness, mutate func(*DriverConfig)) *Driver {
	t.Helper()
	cfg := h.driverConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := NewDriver(cfg)
	require.NoError(t, err)
	return d
}

func TestDriverHarvestsAllPages(t *testing.T) {
	h := newHarness(t)
	h.api.pages["A"] = []int{50, 30}
	d := newTestDriver(t, h, nil)

	out, err := d.Harvest(context.Background(), target("A"))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeDone, out.Status)
	assert.Equal(t, 2, out.Pages)
	assert.Equal(t, 80, out.Comments)
	assert.Equal(t, 80, h.sink.distinct("A"))
	assert.Equal(t, []string{"0", "1"}, h.api.requests["A"])

	cp := h.sink.checkpoint("A")
	assert.True(t, cp.Done)
	assert.Equal(t, 80, cp.EmittedCount)
	assert.False(t, cp.LastAttemptAt.IsZero())
}

func TestDriverRetriesTransientFailures(t *testing.T) {
	h := newHarness(t)
	h.api.pages["B"] = []int{10}
	h.api.failures["B"] = 3
	d := newTestDriver(t, h, nil)

	out, err := d.Harvest(context.Background(), target("B"))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeDone, out.Status)
	assert.Equal(t, 10, out.Comments)
	assert.Equal(t, 3, out.Retries)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, h.sleeps)
}

func TestDriverExhaustedRetriesKeepCheckpoint(t *testing.T) {
	h := newHarness(t)
	h.api.pages["A"] = []int{5, 5}
	d := newTestDriver(t, h, func(c *DriverConfig) { c.Retry = h.retryConfig(3) })

	// first page succeeds, then the server breaks for good
	h.api.onPage = func(post, cursor string) {
		if cursor == "1" {
			h.api.mu.Lock()
			h.api.failures["A"] = 100
			h.api.mu.Unlock()
		}
	}

	out, err := d.Harvest(context.Background(), target("A"))
	require.Error(t, err)
	assert.True(t, errs.IsExhausted(err))
	assert.Equal(t, models.OutcomeAborted, out.Status)
	assert.Equal(t, 1, out.Pages)
	assert.Equal(t, 2, out.Retries)
	assert.NotEmpty(t, out.Error)

	cp := h.sink.checkpoint("A")
	assert.False(t, cp.Done)
	assert.Equal(t, "1", cp.Cursor)
	assert.Equal(t, 5, cp.EmittedCount)
}

func TestDriverParseErrorAborts(t *testing.T) {
	h := newHarness(t)
	h.api.raw["A"] = `<html>captcha</html>`
	d := newTestDriver(t, h, nil)

	out, err := d.Harvest(context.Background(), target("A"))
	assert.True(t, errs.IsParse(err))
	assert.Equal(t, models.OutcomeAborted, out.Status)
	assert.Equal(t, 1, h.api.requestCount("A"), "parse errors are not retried")
	assert.True(t, h.log.HasMessage("Unrecognized page"))

	cp := h.sink.checkpoint("A")
	assert.False(t, cp.Done)
	assert.Equal(t, "", cp.Cursor)
	assert.False(t, cp.LastAttemptAt.IsZero())
}

func TestDriverAuthFailureIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.api.status["A"] = 403
	d := newTestDriver(t, h, nil)

	out, err := d.Harvest(context.Background(), target("A"))
	assert.True(t, errs.IsAuth(err))
	assert.Equal(t, models.OutcomeAborted, out.Status)
	assert.Equal(t, 1, h.api.requestCount("A"))
	assert.Empty(t, h.sink.records)
}

func TestDriverSkipsDonePost(t *testing.T) {
	h := newHarness(t)
	h.sink.Checkpoint(context.Background(), models.Checkpoint{Platform: models.PlatformTikTok, PostID: "A", Done: true})
	d := newTestDriver(t, h, nil)

	out, err := d.Harvest(context.Background(), target("A"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSkipped, out.Status)
	assert.Zero(t, h.api.totalRequests())
}

func TestDriverResumesFromCheckpoint(t *testing.T) {
	h := newHarness(t)
	h.api.pages["A"] = []int{50, 30}
	d := newTestDriver(t, h, nil)

	// a first run committed page 0 and its checkpoint, then stopped
	first := newTestDriver(t, h, func(c *DriverConfig) { c.MaxPages = 1 })
	_, err := first.Harvest(context.Background(), target("A"))
	require.NoError(t, err)
	cp := h.sink.checkpoint("A")
	require.True(t, cp.Done, "max pages marks the post done")

	cp.Done = false
	cp.Cursor = "1"
	h.sink.Checkpoint(context.Background(), cp)
	h.api.requests = map[string][]string{}

	out, err := d.Harvest(context.Background(), target("A"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, h.api.requests["A"])
	assert.Equal(t, 30, out.Comments)
	assert.Zero(t, out.Duplicates)
	assert.Equal(t, 80, h.sink.distinct("A"))
	assert.Equal(t, 80, h.sink.checkpoint("A").EmittedCount)
}

func TestDriverAbsorbsReplayedPage(t *testing.T) {
	h := newHarness(t)
	h.api.pages["A"] = []int{50, 30}

	// page 0 was appended but the crash hit before its checkpoint
	first := newTestDriver(t, h, func(c *DriverConfig) { c.MaxPages = 1 })
	_, err := first.Harvest(context.Background(), target("A"))
	require.NoError(t, err)
	delete(h.sink.checkpoints, "tiktok:A")

	d := newTestDriver(t, h, nil)
	out, err := d.Harvest(context.Background(), target("A"))
	require.NoError(t, err)

	assert.Equal(t, 50, out.Duplicates)
	assert.Equal(t, 30, out.Comments)
	assert.Equal(t, 80, len(h.sink.records))
	assert.Equal(t, 80, h.sink.distinct("A"))
}

func TestDriverMaxPages(t *testing.T) {
	h := newHarness(t)
	h.api.pages["A"] = []int{1, 1, 1, 1, 1, 1}
	d := newTestDriver(t, h, func(c *DriverConfig) { c.MaxPages = 3 })

	out, err := d.Harvest(context.Background(), target("A"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDone, out.Status)
	assert.Equal(t, 3, out.Pages)
	assert.True(t, h.sink.checkpoint("A").Done)
}

func TestDriverStopsOnStuckCursor(t *testing.T) {
	h := newHarness(t)
	h.api.pages["A"] = []int{4}
	h.api.stuck["A"] = true
	d := newTestDriver(t, h, nil)

	out, err := d.Harvest(context.Background(), target("A"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDone, out.Status)
	assert.Equal(t, 2, out.Pages)
	assert.Equal(t, 4, out.Comments)
	assert.Equal(t, 4, out.Duplicates)
	assert.True(t, h.log.HasMessage("Cursor did not advance"))
}

func TestDriverCancellationDiscardsInFlightPage(t *testing.T) {
	h := newHarness(t)
	h.api.pages["A"] = []int{10, 10, 10}
	ctx, cancel := context.WithCancel(context.Background())
	h.api.onPage = func(post, cursor string) {
		if cursor == "1" {
			cancel()
		}
	}
	d := newTestDriver(t, h, nil)

	out, err := d.Harvest(ctx, target("A"))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, models.OutcomeCancelled, out.Status)
	assert.Equal(t, 10, h.sink.distinct("A"))

	cp := h.sink.checkpoint("A")
	assert.Equal(t, "1", cp.Cursor)
	assert.Equal(t, 10, cp.EmittedCount)
}

func TestDriverSinkFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.api.pages["A"] = []int{3}
	h.sink.appendErr = errors.New("disk full")
	d := newTestDriver(t, h, nil)

	out, err := d.Harvest(context.Background(), target("A"))
	require.Error(t, err)
	assert.Equal(t, models.OutcomeAborted, out.Status)
	assert.Contains(t, out.Error, "disk full")
	assert.False(t, h.sink.checkpoint("A").Done)
}

func TestNewDriverValidation(t *testing.T) {
	_, err := NewDriver(DriverConfig{})
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "fetching", StateFetching.String())
	assert.Equal(t, "aborted", StateAborted.String())
	assert.Equal(t, "state(9)", State(9).String())
}

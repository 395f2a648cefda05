package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"commentharvest/pkg/dedup"
	errs "commentharvest/pkg/errors"
	"commentharvest/pkg/logger"
	"commentharvest/pkg/models"
	"commentharvest/pkg/ratelimit"
	"commentharvest/pkg/retry"
	"commentharvest/pkg/sink"
	"commentharvest/pkg/transport"
)

// State is a position in a post's pagination state machine
type State int

const (
	StateStart State = iota
	StateFetching
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateFetching:
		return "fetching"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DriverConfig wires a Driver to its collaborators
type DriverConfig struct {
	Source  Source
	Fetcher transport.Fetcher
	Limiter ratelimit.Limiter
	Retry   *retry.Config
	Sink    sink.Sink
	Dedup   dedup.Store
	// MaxPages ends a post after this many pages in one run; 0 means no limit
	MaxPages int
	Logger   logger.Logger
	Now      func() time.Time
}

// Driver walks one post's comment pages from its checkpoint to the end
type Driver struct {
	cfg DriverConfig
}

// NewDriver creates a pagination driver
func NewDriver(cfg DriverConfig) (*Driver, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("driver needs a source")
	case cfg.Fetcher == nil:
		return nil, errors.New("driver needs a fetcher")
	case cfg.Sink == nil:
		return nil, errors.New("driver needs a sink")
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.NewHostLimiter(ratelimit.Config{})
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Dedup == nil {
		cfg.Dedup = dedup.NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Driver{cfg: cfg}, nil
}

// run is the mutable state of one Harvest call
type run struct {
	target  models.PostTarget
	state   State
	cursor  string
	cp      models.Checkpoint
	seen    dedup.Set
	outcome models.PostOutcome
	err     error
	log     logger.Logger
}

// Harvest drives target to a terminal state. The returned error is the
// fatal cause for aborted posts and ctx's error for cancelled ones.
func (d *Driver) Harvest(ctx context.Context, target models.PostTarget) (models.PostOutcome, error) {
	r := &run{
		target:  target,
		state:   StateStart,
		outcome: models.PostOutcome{Target: target},
		log: d.cfg.Logger.WithFields(map[string]interface{}{
			"platform": target.Platform,
			"post_id":  target.PostID,
		}),
	}

	for {
		if r.state == StateStart || r.state == StateFetching {
			if err := ctx.Err(); err != nil {
				return d.cancelled(r, err)
			}
		}

		switch r.state {
		case StateStart:
			if done := d.start(ctx, r); done {
				return r.outcome, nil
			}
		case StateFetching:
			if cancelled := d.fetchNext(ctx, r); cancelled {
				return d.cancelled(r, ctx.Err())
			}
		case StateDone:
			d.release(r)
			r.outcome.Status = models.OutcomeDone
			r.log.InfoWithFields("Post harvested", map[string]interface{}{
				"pages":      r.outcome.Pages,
				"comments":   r.outcome.Comments,
				"duplicates": r.outcome.Duplicates,
				"retries":    r.outcome.Retries,
			})
			return r.outcome, nil
		case StateAborted:
			d.release(r)
			r.outcome.Status = models.OutcomeAborted
			r.outcome.Error = r.err.Error()
			r.log.WithError(r.err).WarnWithFields("Post aborted", map[string]interface{}{
				"cursor": r.cursor,
				"pages":  r.outcome.Pages,
				"kind":   string(errs.TypeOf(r.err)),
			})
			return r.outcome, r.err
		}
	}
}

// start loads the checkpoint and seeds the dedup set. It reports true
// when the post is already complete and needs no work.
func (d *Driver) start(ctx context.Context, r *run) bool {
	cp, found, err := d.cfg.Sink.LoadCheckpoint(ctx, r.target.Platform, r.target.PostID)
	if err != nil {
		d.abort(r, fmt.Errorf("failed to load checkpoint: %w", err))
		return false
	}
	if found && cp.Done {
		r.outcome.Status = models.OutcomeSkipped
		r.log.Debug("Post already done, skipping")
		return true
	}
	if !found {
		cp = models.Checkpoint{Platform: r.target.Platform, PostID: r.target.PostID}
	}
	r.cp = cp
	r.cursor = cp.Cursor

	ids, err := d.cfg.Sink.EmittedIDs(ctx, r.target.Platform, r.target.PostID)
	if err != nil {
		d.abort(r, fmt.Errorf("failed to load emitted ids: %w", err))
		return false
	}
	set, err := d.cfg.Dedup.ForPost(ctx, r.target.Platform, r.target.PostID)
	if err == nil {
		err = set.Seed(ctx, ids)
	}
	if err != nil {
		d.abort(r, fmt.Errorf("failed to seed deduplicator: %w", err))
		return false
	}
	r.seen = set

	if found {
		r.log.InfoWithFields("Resuming post", map[string]interface{}{
			"cursor":        r.cursor,
			"emitted_count": cp.EmittedCount,
		})
	}
	r.state = StateFetching
	return false
}

// fetchNext fetches, filters and commits one page. It reports true when
// ctx was cancelled, in which case nothing from the page was persisted.
func (d *Driver) fetchNext(ctx context.Context, r *run) bool {
	attemptAt := d.cfg.Now().UTC()

	page, err := d.fetchPage(ctx, r)
	if ctx.Err() != nil {
		return true
	}
	if err != nil {
		if errs.IsParse(err) {
			r.log.WarnWithFields("Unrecognized page", map[string]interface{}{
				"cursor": r.cursor,
				"page":   r.outcome.Pages + 1,
			})
		}
		r.cp.LastAttemptAt = attemptAt
		d.recordAttempt(ctx, r)
		d.abort(r, err)
		return false
	}

	accepted, duplicates, err := d.emit(ctx, r, page.Comments)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		d.abort(r, err)
		return false
	}

	r.outcome.Pages++
	r.outcome.Malformed += page.Malformed

	replies, replyDuplicates, err := d.walkReplies(ctx, r, page.Threads)
	accepted += replies
	duplicates += replyDuplicates
	r.outcome.Comments += accepted
	r.outcome.Duplicates += duplicates
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		r.cp.EmittedCount += accepted
		r.cp.LastAttemptAt = attemptAt
		d.recordAttempt(ctx, r)
		d.abort(r, err)
		return false
	}

	finished := !page.HasMore || page.NextCursor == ""
	if !finished && page.NextCursor == r.cursor {
		r.log.WarnWithFields("Cursor did not advance, ending post", map[string]interface{}{
			"cursor": r.cursor,
		})
		finished = true
	}
	if !finished && d.cfg.MaxPages > 0 && r.outcome.Pages >= d.cfg.MaxPages {
		r.log.WarnWithFields("Page limit reached, ending post", map[string]interface{}{
			"max_pages": d.cfg.MaxPages,
		})
		finished = true
	}

	r.cp.EmittedCount += accepted
	r.cp.LastAttemptAt = attemptAt
	if finished {
		r.cp.Done = true
		r.cp.Cursor = r.cursor
	} else {
		r.cp.Cursor = page.NextCursor
	}
	if err := d.cfg.Sink.Checkpoint(context.WithoutCancel(ctx), r.cp); err != nil {
		d.abort(r, fmt.Errorf("failed to save checkpoint: %w", err))
		return false
	}

	logger.LogPageProgress(r.log, r.outcome.Pages, accepted, duplicates, r.cp.EmittedCount)

	if finished {
		r.state = StateDone
	} else {
		r.cursor = page.NextCursor
	}
	return false
}

// emit drops already-seen comments and appends the rest to the sink. It
// returns how many were appended and how many were duplicates.
func (d *Driver) emit(ctx context.Context, r *run, comments []models.CommentRecord) (int, int, error) {
	accepted := make([]models.CommentRecord, 0, len(comments))
	duplicates := 0
	for _, c := range comments {
		first, err := r.seen.Observe(ctx, c.CommentID)
		if err != nil {
			return 0, 0, fmt.Errorf("dedup observe failed: %w", err)
		}
		if !first {
			duplicates++
			continue
		}
		accepted = append(accepted, c)
	}

	if err := d.cfg.Sink.Append(ctx, accepted); err != nil {
		return 0, 0, fmt.Errorf("failed to append comments: %w", err)
	}
	return len(accepted), duplicates, nil
}

// walkReplies pages through every reply thread a page only previewed,
// one level deep. Sources without reply support leave threads untouched.
func (d *Driver) walkReplies(ctx context.Context, r *run, threads []models.ReplyThread) (int, int, error) {
	rs, ok := d.cfg.Source.(ReplySource)
	if !ok || len(threads) == 0 {
		return 0, 0, nil
	}

	emitted, duplicates := 0, 0
	for _, th := range threads {
		cursor := ""
		for {
			page, err := d.fetch(ctx, r,
				func() (*http.Request, error) { return rs.NewReplyRequest(r.target, th.ParentID, cursor) },
				func(body []byte) (models.Page, error) {
					return rs.ParseReplyPage(r.target, th.ParentID, cursor, body)
				})
			if err != nil {
				return emitted, duplicates, fmt.Errorf("reply thread %s: %w", th.ParentID, err)
			}

			n, dup, err := d.emit(ctx, r, page.Comments)
			if err != nil {
				return emitted, duplicates, err
			}
			emitted += n
			duplicates += dup
			r.outcome.ReplyPages++
			r.outcome.Malformed += page.Malformed

			if !page.HasMore || page.NextCursor == "" || page.NextCursor == cursor {
				break
			}
			cursor = page.NextCursor
		}

		r.log.DebugWithFields("Reply thread harvested", map[string]interface{}{
			"parent_id": th.ParentID,
			"total":     th.Total,
		})
	}
	return emitted, duplicates, nil
}

// fetchPage runs one comment page request through the limiter and retry
// policy.
func (d *Driver) fetchPage(ctx context.Context, r *run) (models.Page, error) {
	src := d.cfg.Source
	return d.fetch(ctx, r,
		func() (*http.Request, error) { return src.NewRequest(r.target, r.cursor) },
		func(body []byte) (models.Page, error) { return src.ParsePage(r.target, r.cursor, body) })
}

// fetch runs one request through the limiter and retry policy. Parsing
// happens inside the retried operation so a throttling envelope is
// retried like a 429.
func (d *Driver) fetch(ctx context.Context, r *run, build func() (*http.Request, error),
	parse func(body []byte) (models.Page, error)) (models.Page, error) {
	rc := *d.cfg.Retry
	rc.Logger = r.log
	onRetry := rc.OnRetry
	rc.OnRetry = func(attempt int, err error, delay time.Duration) {
		r.outcome.Retries++
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
	}

	host := d.cfg.Source.Host()
	return retry.DoWithResult(ctx, func(ctx context.Context) (models.Page, error) {
		if err := d.cfg.Limiter.Acquire(ctx, host); err != nil {
			return models.Page{}, err
		}
		req, err := build()
		if err != nil {
			return models.Page{}, errs.Wrap(errs.ErrorTypeBadRequest, 0, err, "failed to build request")
		}
		body, err := d.cfg.Fetcher.Fetch(ctx, req)
		if err != nil {
			return models.Page{}, err
		}
		return parse(body)
	}, &rc)
}

// recordAttempt saves the attempt time without moving the cursor
func (d *Driver) recordAttempt(ctx context.Context, r *run) {
	if err := d.cfg.Sink.Checkpoint(context.WithoutCancel(ctx), r.cp); err != nil {
		r.log.WithError(err).Warn("Failed to record attempt in checkpoint")
	}
}

func (d *Driver) abort(r *run, err error) {
	r.err = err
	r.state = StateAborted
}

func (d *Driver) cancelled(r *run, err error) (models.PostOutcome, error) {
	d.release(r)
	r.outcome.Status = models.OutcomeCancelled
	r.outcome.Error = err.Error()
	r.log.DebugWithFields("Post cancelled", map[string]interface{}{
		"cursor": r.cursor,
		"pages":  r.outcome.Pages,
	})
	return r.outcome, err
}

func (d *Driver) release(r *run) {
	if r.seen == nil {
		return
	}
	if err := d.cfg.Dedup.Release(context.Background(), r.target.Platform, r.target.PostID); err != nil {
		r.log.WithError(err).Debug("Failed to release dedup set")
	}
}

package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commentharvest/internal/workerpool"
	"commentharvest/pkg/dedup"
	errs "commentharvest/pkg/errors"
	"commentharvest/pkg/logger"
	"commentharvest/pkg/models"
	"commentharvest/pkg/ratelimit"
	"commentharvest/pkg/retry"
	"commentharvest/pkg/sink"
	"commentharvest/pkg/transport"

	"github.com/google/uuid"
)

// ErrAuthInvalid is returned by Run when the run stopped because a
// platform rejected its credentials. The session needs refreshing.
var ErrAuthInvalid = errors.New("credentials need refresh")

// Options configures an Orchestrator
type Options struct {
	Sources  []Source
	Fetcher  transport.Fetcher
	Limiter  ratelimit.Limiter
	Retry    *retry.Config
	Sink     sink.Sink
	Dedup    dedup.Store
	Workers  int
	MaxPages int
	Logger   logger.Logger
	Now      func() time.Time
	NewRunID func() string
}

// Orchestrator harvests a list of posts on a bounded worker pool
type Orchestrator struct {
	drivers  map[models.Platform]*Driver
	sources  map[models.Platform]Source
	opts     Options
	logger   logger.Logger
	now      func() time.Time
	newRunID func() string
}

// NewOrchestrator builds one Driver per source. All drivers share the
// limiter, so posts on the same host are paced together.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if len(opts.Sources) == 0 {
		return nil, errors.New("orchestrator needs at least one source")
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewHostLimiter(ratelimit.Config{})
	}
	if opts.Dedup == nil {
		opts.Dedup = dedup.NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	o := &Orchestrator{
		drivers:  make(map[models.Platform]*Driver),
		sources:  make(map[models.Platform]Source),
		opts:     opts,
		logger:   opts.Logger,
		now:      opts.Now,
		newRunID: opts.NewRunID,
	}
	for _, src := range opts.Sources {
		d, err := NewDriver(DriverConfig{
			Source:   src,
			Fetcher:  opts.Fetcher,
			Limiter:  opts.Limiter,
			Retry:    opts.Retry,
			Sink:     opts.Sink,
			Dedup:    opts.Dedup,
			MaxPages: opts.MaxPages,
			Logger:   opts.Logger,
			Now:      opts.Now,
		})
		if err != nil {
			return nil, err
		}
		o.drivers[src.Platform()] = d
		o.sources[src.Platform()] = src
	}
	return o, nil
}

type job struct {
	index  int
	target models.PostTarget
}

type result struct {
	index   int
	outcome models.PostOutcome
	err     error
}

// Run harvests targets and returns the run summary. Posts already done
// are skipped without network I/O. A credentials failure cancels the
// rest of the run and Run returns ErrAuthInvalid; any other per-post
// failure only aborts that post.
func (o *Orchestrator) Run(ctx context.Context, targets []models.PostTarget) (*models.Summary, error) {
	summary := &models.Summary{
		RunID:      o.newRunID(),
		StartedAt:  o.now().UTC(),
		PostsTotal: len(targets),
	}
	log := o.logger.WithField("run_id", summary.RunID)

	for _, t := range targets {
		if _, ok := o.drivers[t.Platform]; !ok {
			return summary, fmt.Errorf("no source configured for platform %q", t.Platform)
		}
	}

	outcomes := make([]models.PostOutcome, len(targets))
	var pending []job
	for i, t := range targets {
		cp, found, err := o.opts.Sink.LoadCheckpoint(ctx, t.Platform, t.PostID)
		if err != nil {
			return summary, fmt.Errorf("failed to load checkpoint for %s: %w", t, err)
		}
		if found && cp.Done {
			outcomes[i] = models.PostOutcome{Target: t, Status: models.OutcomeSkipped}
			continue
		}
		pending = append(pending, job{index: i, target: t})
	}

	logger.LogComponentStart(log, "harvest", map[string]interface{}{
		"posts":   len(targets),
		"pending": len(pending),
		"workers": o.opts.Workers,
	})

	if err := o.validateSessions(ctx, pending, log); err != nil {
		for _, j := range pending {
			outcomes[j.index] = models.PostOutcome{Target: j.target, Status: models.OutcomeCancelled, Error: "not started"}
		}
		o.finish(summary, outcomes)
		if errs.IsAuth(err) {
			summary.AuthFailed = true
			log.WithError(err).Error("Session rejected before harvesting, credentials need refresh")
			return summary, fmt.Errorf("%w: %v", ErrAuthInvalid, err)
		}
		return summary, fmt.Errorf("session validation failed: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := workerpool.New(runCtx, o.opts.Workers, func(ctx context.Context, _ int, j job) result {
		outcome, err := o.drivers[j.target.Platform].Harvest(ctx, j.target)
		if errs.IsAuth(err) {
			// stop queued posts before this worker picks up the next one
			cancel()
		}
		return result{index: j.index, outcome: outcome, err: err}
	}, log)
	pool.Start()

	submitted := make(chan int, 1)
	go func() {
		n := 0
		for _, j := range pending {
			if err := pool.Submit(j); err != nil {
				break
			}
			n++
		}
		pool.Close()
		submitted <- n
	}()

	var authErr error
	for res := range pool.Results() {
		outcomes[res.index] = res.outcome
		if errs.IsAuth(res.err) && authErr == nil {
			authErr = res.err
			summary.AuthFailed = true
			log.WithError(res.err).ErrorWithFields("Credentials rejected, stopping run", map[string]interface{}{
				"post_id": res.outcome.Target.PostID,
			})
		}
	}

	n := <-submitted
	for _, j := range pending[n:] {
		outcomes[j.index] = models.PostOutcome{Target: j.target, Status: models.OutcomeCancelled, Error: "not started"}
	}

	o.finish(summary, outcomes)
	logger.LogComponentStop(log, "harvest", fmt.Sprintf("%d done, %d skipped, %d aborted, %d cancelled",
		summary.Succeeded, summary.Skipped, summary.Aborted, summary.Cancelled))

	switch {
	case authErr != nil:
		return summary, fmt.Errorf("%w: %v", ErrAuthInvalid, authErr)
	case ctx.Err() != nil:
		return summary, ctx.Err()
	}
	return summary, nil
}

// validateSessions checks each platform that still has pending posts and
// whose source needs credentials
func (o *Orchestrator) validateSessions(ctx context.Context, pending []job, log logger.Logger) error {
	checked := make(map[models.Platform]bool)
	for _, j := range pending {
		p := j.target.Platform
		if checked[p] {
			continue
		}
		checked[p] = true

		v, ok := o.sources[p].(SessionValidator)
		if !ok {
			continue
		}
		src := o.sources[p]
		err := retry.Do(ctx, func(ctx context.Context) error {
			if err := o.opts.Limiter.Acquire(ctx, src.Host()); err != nil {
				return err
			}
			return v.ValidateSession(ctx, o.opts.Fetcher)
		}, o.opts.Retry)
		if err != nil {
			return err
		}
		log.InfoWithFields("Session validated", map[string]interface{}{"platform": p})
	}
	return nil
}

func (o *Orchestrator) finish(summary *models.Summary, outcomes []models.PostOutcome) {
	for _, out := range outcomes {
		summary.Add(out)
	}
	summary.FinishedAt = o.now().UTC()
}

package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/harvester/internal/domain"
	"github.com/bft-labs/harvester/internal/ports"
)

// ControllerConfig contains configuration for a partitioned download run.
type ControllerConfig struct {
	DesiredParts int
	PagesDelta   int64

	// Workers bounds concurrent range downloads. Discovery is always serial.
	Workers int

	// RetryPasses is the number of passes over failed ranges.
	RetryPasses int
}

// RangeDownloader materializes one range as a part file.
type RangeDownloader interface {
	Download(ctx context.Context, r domain.IDRange) (DownloadResult, error)
}

// ProgressEmitter is called as ranges finish.
type ProgressEmitter interface {
	OnRangeDone(r domain.IDRange, res DownloadResult)
	OnRangeFailed(f domain.FailedRange)
}

// Summary is the outcome of one controller run.
type Summary struct {
	Plan domain.PartitionPlan

	// Completed counts ranges downloaded or recorded as empty during this run.
	Completed int

	// Skipped counts ranges that already had a part.
	Skipped int

	// Attempts counts every finished download attempt, failed or not.
	Attempts int

	Rounds int

	// Failed lists ranges still failing after all retry passes.
	Failed []domain.FailedRange

	// Finished is true once the open tail range has been reached.
	Finished bool
}

// OK reports whether the run covered everything without failures.
func (s Summary) OK() bool {
	return s.Finished && len(s.Failed) == 0
}

// Controller orchestrates sizing, resume, partitioning and retries.
type Controller struct {
	config     ControllerConfig
	oracle     ports.PageCounter
	discoverer *Discoverer
	gaps       *GapResolver
	downloader RangeDownloader
	store      ports.PartStore
	throttle   *Throttle
	clock      clockwork.Clock
	logger     ports.Logger
	lifecycle  *Lifecycle
	emitter    ProgressEmitter
}

// NewController creates a controller with the given dependencies.
func NewController(
	config ControllerConfig,
	oracle ports.PageCounter,
	discoverer *Discoverer,
	downloader RangeDownloader,
	store ports.PartStore,
	throttle *Throttle,
	clock clockwork.Clock,
	logger ports.Logger,
	lifecycle *Lifecycle,
	emitter ProgressEmitter,
) *Controller {
	if config.DesiredParts < 1 {
		config.DesiredParts = DefaultDesiredParts
	}
	if config.Workers < 1 {
		config.Workers = DefaultDownloadWorkers
	}
	if config.RetryPasses < 0 {
		config.RetryPasses = 0
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if lifecycle == nil {
		lifecycle = NewLifecycle(logger, nil)
	}
	return &Controller{
		config:     config,
		oracle:     oracle,
		discoverer: discoverer,
		gaps:       NewGapResolver(oracle, discoverer, logger),
		downloader: downloader,
		store:      store,
		throttle:   throttle,
		clock:      clock,
		logger:     logger,
		lifecycle:  lifecycle,
		emitter:    emitter,
	}
}

// Lifecycle returns the controller's phase state machine.
func (c *Controller) Lifecycle() *Lifecycle {
	return c.lifecycle
}

// run holds the mutable bookkeeping of one Run call.
type run struct {
	mu        sync.Mutex
	completed int
	skipped   int
	attempts  int
	rounds    int
	failed    []domain.FailedRange
	finished  bool
}

func (r *run) takeFailed() []domain.FailedRange {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.failed
	r.failed = nil
	return out
}

func (r *run) addFailed(f domain.FailedRange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, f)
}

func (r *run) counts() (completed, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed, len(r.failed)
}

// Run covers the ID space from the resume point to the end of the data.
// Per-range failures never abort the run; they are retried and listed in
// the summary. Only context cancellation, a failed sizing call or a failed
// part listing return an error.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.lifecycle.SetCancel(cancel)
	defer c.lifecycle.SetCancel(nil)

	if err := c.lifecycle.TransitionTo(PhaseSizing, "run started"); err != nil {
		return Summary{}, err
	}

	st := &run{}
	summary, err := c.run(ctx, st)
	if err != nil {
		_ = c.lifecycle.TransitionTo(PhaseAborted, err.Error())
		return summary, err
	}
	_ = c.lifecycle.TransitionTo(PhaseDone, "run finished")

	c.logSummary(summary)
	return summary, nil
}

func (c *Controller) run(ctx context.Context, st *run) (Summary, error) {
	// Sizing: one unbounded call over the whole ID space.
	pc, err := c.oracle.PageCount(ctx, domain.From(0))
	if err != nil {
		return Summary{}, fmt.Errorf("size dataset: %w", err)
	}
	plan := domain.NewPlan(pc.Pages, pc.RecordsPerPage, c.config.DesiredParts, c.config.PagesDelta)
	c.logger.Info("partition plan",
		ports.Int64("total_pages", plan.TotalPages),
		ports.Int("records_per_page", plan.RecordsPerPage),
		ports.Int("desired_parts", plan.DesiredParts),
		ports.Int64("pages_per_part", plan.PagesPerPart),
		ports.Int64("pages_delta", plan.PagesDelta),
	)

	if plan.TotalPages == 0 {
		c.logger.Warn("dataset is empty, the open tail will be recorded without data")
	}

	summary := func() Summary {
		st.mu.Lock()
		defer st.mu.Unlock()
		return Summary{
			Plan:      plan,
			Completed: st.completed,
			Skipped:   st.skipped,
			Attempts:  st.attempts,
			Rounds:    st.rounds,
			Failed:    append([]domain.FailedRange(nil), st.failed...),
			Finished:  st.finished,
		}
	}

	if err := c.lifecycle.TransitionTo(PhaseResuming, "dataset sized"); err != nil {
		return summary(), err
	}
	parts, err := c.store.List(ctx)
	if err != nil {
		return summary(), fmt.Errorf("list parts: %w", err)
	}
	next, done := domain.ResumePoint(parts)
	gaps := domain.FindGaps(parts)
	queue, unresolved, err := c.gaps.Resolve(ctx, gaps, plan)
	if err != nil {
		return summary(), err
	}
	st.failed = append(st.failed, queue...)
	c.logger.Info("resume point",
		ports.Int("parts", len(parts)),
		ports.Int64("next", next),
		ports.Bool("covered", done),
		ports.Int("gaps", len(gaps)),
	)

	if done {
		st.finished = true
		if err := c.lifecycle.TransitionTo(PhaseRetryingFailed, "partition already covered"); err != nil {
			return summary(), err
		}
	} else {
		if err := c.lifecycle.TransitionTo(PhasePartitioning, fmt.Sprintf("resuming at %d", next)); err != nil {
			return summary(), err
		}
		if err := c.partition(ctx, next, plan, st, 0); err != nil {
			return summary(), err
		}
		if err := c.lifecycle.TransitionTo(PhaseRetryingFailed, "partitioning finished"); err != nil {
			return summary(), err
		}
	}

	if err := c.retryFailed(ctx, plan, st); err != nil {
		return summary(), err
	}

	// Gaps that cannot be downloaded stay visible in the summary.
	for _, f := range unresolved {
		st.addFailed(f)
	}
	return summary(), nil
}

// partition discovers and downloads ranges from cursor until the data ends.
// A discovery failure is queued as an undiscovered range at the cursor.
func (c *Controller) partition(ctx context.Context, cursor int64, plan domain.PartitionPlan, st *run, attempts int) error {
	var g errgroup.Group
	g.SetLimit(c.config.Workers)

	err := func() error {
		for {
			began := c.clock.Now()
			end, ok, err := c.discoverer.Discover(ctx, cursor, plan)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				f := domain.FailedRange{Range: domain.Open(cursor), Err: err, Attempts: attempts + 1, Undiscovered: true}
				c.logger.Error("boundary discovery failed", ports.Int64("start", cursor), ports.Err(err))
				st.addFailed(f)
				c.emitFailed(f)
				return nil
			}

			r := domain.Bounded(cursor, end)
			if !ok {
				r = domain.Open(cursor)
			}
			c.logger.Debug("boundary discovered",
				ports.Stringer("range", r),
				ports.Duration("duration", c.clock.Since(began)),
			)
			c.spawn(ctx, &g, r, st, 0)

			st.mu.Lock()
			st.rounds++
			round := st.rounds
			st.mu.Unlock()
			completed, failed := st.counts()
			c.logger.Info("round complete",
				ports.Int("round", round),
				ports.Stringer("range", r),
				ports.Int("completed", completed),
				ports.Int("failed", failed),
			)

			if !ok {
				st.mu.Lock()
				st.finished = true
				st.mu.Unlock()
				return nil
			}
			cursor = end + 1

			if err := sleep(ctx, c.clock, c.throttle.RoundWait()); err != nil {
				return err
			}
		}
	}()

	werr := g.Wait()
	if err != nil {
		return err
	}
	return werr
}

// spawn downloads r on the worker group. Failures are recorded, not returned.
func (c *Controller) spawn(ctx context.Context, g *errgroup.Group, r domain.IDRange, st *run, attempts int) {
	g.Go(func() error {
		res, err := c.downloader.Download(ctx, r)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		st.mu.Lock()
		st.attempts++
		if err != nil {
			st.mu.Unlock()
			f := domain.FailedRange{Range: r, Err: err, Attempts: attempts + 1}
			c.logger.Warn("range failed", ports.Stringer("range", r), ports.Int("attempts", f.Attempts), ports.Err(err))
			st.addFailed(f)
			c.emitFailed(f)
			return nil
		}
		if res.Outcome == Skipped {
			st.skipped++
		} else {
			st.completed++
		}
		st.mu.Unlock()

		if c.emitter != nil {
			c.emitter.OnRangeDone(r, res)
		}
		return nil
	})
}

// retryFailed drains the failed queue for the configured number of passes.
func (c *Controller) retryFailed(ctx context.Context, plan domain.PartitionPlan, st *run) error {
	for pass := 1; pass <= c.config.RetryPasses; pass++ {
		pending := st.takeFailed()
		if len(pending) == 0 {
			return nil
		}
		c.logger.Info("retrying failed ranges",
			ports.Int("pass", pass),
			ports.Int("ranges", len(pending)),
		)

		var g errgroup.Group
		g.SetLimit(c.config.Workers)
		for _, f := range pending {
			if f.Undiscovered {
				if err := c.partition(ctx, f.Range.Start, plan, st, f.Attempts); err != nil {
					_ = g.Wait()
					return err
				}
				continue
			}
			c.spawn(ctx, &g, f.Range, st, f.Attempts)
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) emitFailed(f domain.FailedRange) {
	if c.emitter != nil {
		c.emitter.OnRangeFailed(f)
	}
}

func (c *Controller) logSummary(s Summary) {
	fields := []ports.Field{
		ports.Int("completed", s.Completed),
		ports.Int("skipped", s.Skipped),
		ports.Int("attempts", s.Attempts),
		ports.Int("rounds", s.Rounds),
		ports.Int("failed", len(s.Failed)),
		ports.Bool("finished", s.Finished),
	}
	if len(s.Failed) == 0 {
		c.logger.Info("download summary", fields...)
		return
	}
	c.logger.Warn("download summary", append(fields, ports.Any("still_failing", describeFailures(s.Failed)))...)
	for _, f := range s.Failed {
		fields := []ports.Field{
			ports.Stringer("range", f.Range),
			ports.Int("attempts", f.Attempts),
			ports.Bool("undiscovered", f.Undiscovered),
		}
		if f.Err != nil {
			fields = append(fields, ports.Err(f.Err))
		}
		c.logger.Error("range still failing", fields...)
	}
}

package harvester

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/bft-labs/harvester/internal/adapters/eagleweb"
	"github.com/bft-labs/harvester/internal/adapters/fs"
	"github.com/bft-labs/harvester/internal/adapters/objectstore"
	"github.com/bft-labs/harvester/internal/app"
	"github.com/bft-labs/harvester/internal/domain"
	"github.com/bft-labs/harvester/internal/ports"
	"github.com/bft-labs/harvester/pkg/log"
)

// ErrAlreadyRunning is returned when Run is called while a run is in progress.
var ErrAlreadyRunning = errors.New("harvester: run already in progress")

// Harvester downloads one tenant's accounts. Use New to create an instance.
// Run, Merge and Clean must not be called concurrently with each other.
type Harvester struct {
	config    Config
	opts      options
	tenant    domain.Tenant
	lifecycle *app.Lifecycle
	throttle  *app.Throttle
	store     ports.PartStore
	status    ports.StatusRepository
	emitter   *eventEmitterWrapper
	logger    ports.Logger

	mu      sync.Mutex
	running bool
}

// New creates a Harvester with the given configuration.
// Returns an error if configuration is invalid.
func New(cfg Config, opts ...Option) (*Harvester, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	logger := log.With(o.logger, log.String("tenant", cfg.Tenant))
	emitter := &eventEmitterWrapper{handler: o.eventHandler}

	store := o.store
	if store == nil {
		store = fs.NewPartStore(cfg.PartsDir())
	}

	return &Harvester{
		config:    cfg,
		opts:      o,
		tenant:    domain.Tenant{Name: cfg.Tenant},
		lifecycle: app.NewLifecycle(logger, emitter),
		throttle:  app.NewThrottle(cfg.OracleDelay, cfg.RoundWait, cfg.PollInterval),
		store:     store,
		status:    fs.NewStatusFileRepository(cfg.TenantDir()),
		emitter:   emitter,
		logger:    logger,
	}, nil
}

// Run downloads every range from the resume point to the end of the data,
// then retries failed ranges. Per-range failures are reported in the
// summary, not as an error. The run record is written to status.json in
// the tenant directory.
func (h *Harvester) Run(ctx context.Context) (Summary, error) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return Summary{}, ErrAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
	}()

	runID := uuid.NewString()
	logger := log.With(h.logger, log.String("run_id", runID))

	if err := h.initPlugins(ctx, runID, logger); err != nil {
		return Summary{}, err
	}
	defer h.shutdownPlugins(logger)

	h.removeTemp(ctx, logger)

	record := domain.RunStatus{
		RunID:     runID,
		Tenant:    h.config.Tenant,
		StartedAt: h.opts.clock.Now().UTC(),
	}
	h.saveStatus(ctx, record, logger)

	logger.Info("run started",
		log.String("parts_dir", h.config.PartsDir()),
		log.Int("desired_parts", h.config.Parts),
		log.Int("workers", h.config.Workers),
	)
	summary, err := h.controller(logger).Run(ctx)

	record.FinishedAt = h.opts.clock.Now().UTC()
	record.TotalPages = summary.Plan.TotalPages
	record.PagesPerPart = summary.Plan.PagesPerPart
	record.Completed = summary.Completed
	record.Attempts = summary.Attempts
	record.Finished = summary.Finished
	for _, f := range summary.Failed {
		record.Failed = append(record.Failed, f.String())
	}
	if err != nil {
		record.Error = err.Error()
	}
	// The run context may already be canceled here.
	h.saveStatus(context.WithoutCancel(ctx), record, logger)

	return summary, err
}

// controller wires the oracle chain, the downloader and the controller.
func (h *Harvester) controller(logger ports.Logger) *app.Controller {
	cfg := h.config
	clock := h.opts.clock

	base := h.opts.oracle
	if base == nil {
		base = eagleweb.NewOracle(cfg.siteConfig(), h.tenant, h.opts.transport, logger)
	}
	throttled := app.NewThrottledOracle(base, h.throttle, clock)
	oracle := app.NewRetryingOracle(throttled, cfg.retryPolicy(), clock, logger)

	discoverer := app.NewDiscoverer(oracle, logger)
	discoverer.InitialSpan = int64(cfg.InitialSpan)

	sessions := h.opts.sessions
	if sessions == nil {
		sessions = eagleweb.NewSessions(cfg.siteConfig(), h.opts.transport, logger)
	}
	downloader := app.NewDownloader(app.DownloaderConfig{
		Tenant:        h.tenant,
		ReportTimeout: cfg.ReportTimeout,
	}, sessions, h.store, h.throttle, clock, logger)

	return app.NewController(app.ControllerConfig{
		DesiredParts: cfg.Parts,
		PagesDelta:   int64(cfg.PagesDelta),
		Workers:      cfg.Workers,
		RetryPasses:  cfg.RetryPasses,
	}, oracle, discoverer, downloader, h.store, h.throttle, clock, logger, h.lifecycle, h.emitter)
}

func (h *Harvester) initPlugins(ctx context.Context, runID string, logger ports.Logger) error {
	pluginCfg := PluginConfig{
		Tenant:    h.config.Tenant,
		TenantDir: h.config.TenantDir(),
		PartsDir:  h.config.PartsDir(),
		RunID:     runID,
		Throttle:  h.throttle,
		Logger:    logger,
	}
	for i, p := range h.opts.plugins {
		if err := p.Initialize(ctx, pluginCfg); err != nil {
			logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			for j := i - 1; j >= 0; j-- {
				_ = h.opts.plugins[j].Shutdown(context.WithoutCancel(ctx))
			}
			return fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}
	return nil
}

func (h *Harvester) shutdownPlugins(logger ports.Logger) {
	ctx := context.Background()
	for i := len(h.opts.plugins) - 1; i >= 0; i-- {
		p := h.opts.plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(err))
		} else {
			logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
		}
	}
}

// removeTemp clears temp parts of an interrupted earlier process. Run holds
// the running guard, so no writer of this Harvester is active.
func (h *Harvester) removeTemp(ctx context.Context, logger ports.Logger) {
	type tempRemover interface {
		RemoveTemp(ctx context.Context) (int, error)
	}
	tr, ok := h.store.(tempRemover)
	if !ok {
		return
	}
	n, err := tr.RemoveTemp(ctx)
	if err != nil {
		logger.Warn("failed to remove stale temp parts", log.Err(err))
		return
	}
	if n > 0 {
		logger.Info("removed stale temp parts", log.Int("files", n))
	}
}

func (h *Harvester) saveStatus(ctx context.Context, record domain.RunStatus, logger ports.Logger) {
	if err := h.status.Save(ctx, record); err != nil {
		logger.Warn("failed to write run status", log.Err(err))
	}
}

// Stop cancels the run in progress, if any. In-flight temp files are removed.
func (h *Harvester) Stop() {
	h.lifecycle.Cancel()
}

// Phase returns the current run phase.
// Safe to call concurrently from any goroutine.
func (h *Harvester) Phase() Phase {
	return h.lifecycle.Phase()
}

// LastRun returns the record written by the most recent run.
func (h *Harvester) LastRun(ctx context.Context) (RunStatus, error) {
	return h.status.Load(ctx)
}

// Parts lists the completed part files in ID order.
func (h *Harvester) Parts(ctx context.Context) ([]PartFile, error) {
	return h.store.List(ctx)
}

// GapReport describes how well the current parts cover the ID space.
type GapReport struct {
	Parts        int
	Gaps         []Gap
	Unterminated bool
}

// Complete reports whether a merge would not be blocked.
func (g GapReport) Complete() bool {
	return g.Parts > 0 && len(g.Gaps) == 0 && !g.Unterminated
}

// Gaps reports the holes between the current parts and whether the
// last part is open-ended.
func (h *Harvester) Gaps(ctx context.Context) (GapReport, error) {
	parts, err := h.store.List(ctx)
	if err != nil {
		return GapReport{}, err
	}
	rep := GapReport{Parts: len(parts), Gaps: domain.FindGaps(parts)}
	if len(parts) > 0 {
		rep.Unterminated = !parts[len(parts)-1].Range.IsOpen()
	}
	return rep, nil
}

// MergeOptions controls Merge.
type MergeOptions struct {
	// Force merges even when gaps exist or the last range is not open-ended.
	Force bool

	// SkipPublish keeps the export local even when a bucket is configured.
	SkipPublish bool
}

// MergeResult describes the written export.
type MergeResult struct {
	Path   string
	Parts  int
	Bytes  int64
	Digest string

	// Gaps and Unterminated are set when Force ignored them.
	Gaps         []Gap
	Unterminated bool

	// Published is the object location, empty when not published.
	Published string
}

// Merge writes the export from the current parts. It returns an error
// matching ErrMergeBlocked when the parts do not cover the ID space,
// unless opts.Force is set.
func (h *Harvester) Merge(ctx context.Context, opts MergeOptions) (MergeResult, error) {
	sink := h.exportSink()
	merger := app.NewMerger(h.store, sink, h.logger)
	res, err := merger.Merge(ctx, app.MergeOptions{Force: opts.Force})
	if err != nil {
		return MergeResult{}, err
	}

	out := MergeResult{
		Path:         res.Path,
		Parts:        res.Parts,
		Bytes:        res.Bytes,
		Digest:       res.Digest,
		Gaps:         res.Gaps,
		Unterminated: res.Unterminated,
	}

	pub := h.publisher()
	if pub == nil || opts.SkipPublish {
		return out, nil
	}
	loc, err := pub.Publish(ctx, res.Path, path.Join(h.config.Tenant, filepath.Base(res.Path)))
	if err != nil {
		return out, fmt.Errorf("publish export: %w", err)
	}
	out.Published = loc
	return out, nil
}

// ExportPath is where Merge writes the export.
func (h *Harvester) ExportPath() string {
	return h.exportSink().Path()
}

// ExportExists reports whether an export from an earlier merge is present.
func (h *Harvester) ExportExists() bool {
	type exister interface{ Exists() bool }
	if e, ok := h.exportSink().(exister); ok {
		return e.Exists()
	}
	return false
}

func (h *Harvester) exportSink() ports.ExportSink {
	if h.opts.sink != nil {
		return h.opts.sink
	}
	comp, _ := fs.ParseCompression(h.config.Compression)
	return fs.NewExportSink(filepath.Join(h.config.TenantDir(), h.config.ExportFile), comp)
}

func (h *Harvester) publisher() ports.Publisher {
	if h.opts.publisher != nil {
		return h.opts.publisher
	}
	if h.config.PublishURL == "" {
		return nil
	}
	return objectstore.NewPublisher(h.config.PublishURL, h.config.PublishPrefix, h.logger)
}

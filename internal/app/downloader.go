package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lthibault/jitterbug"

	"github.com/bft-labs/harvester/internal/domain"
	"github.com/bft-labs/harvester/internal/ports"
)

// Outcome describes how a range download finished.
type Outcome int

const (
	// Downloaded means a part file with report data was written.
	Downloaded Outcome = iota
	// NoResult means the search matched nothing; an empty marker part was written.
	NoResult
	// Skipped means a part for the range already existed.
	Skipped
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case Downloaded:
		return "Downloaded"
	case NoResult:
		return "NoResult"
	case Skipped:
		return "Skipped"
	default:
		return "Unknown"
	}
}

// DownloadResult is returned by a successful range download.
type DownloadResult struct {
	Outcome  Outcome
	Part     domain.PartFile
	Duration time.Duration
}

// DownloaderConfig contains configuration for range downloads.
type DownloaderConfig struct {
	Tenant domain.Tenant

	// ReportTimeout bounds the wait for report generation.
	ReportTimeout time.Duration
}

// Downloader drives one range through search, generate, poll and fetch.
// It is safe for concurrent use; each call opens its own session.
type Downloader struct {
	config   DownloaderConfig
	sessions ports.ReportSessions
	store    ports.PartStore
	throttle *Throttle
	clock    clockwork.Clock
	logger   ports.Logger
}

// NewDownloader creates a downloader with the given dependencies.
func NewDownloader(
	config DownloaderConfig,
	sessions ports.ReportSessions,
	store ports.PartStore,
	throttle *Throttle,
	clock clockwork.Clock,
	logger ports.Logger,
) *Downloader {
	if config.ReportTimeout <= 0 {
		config.ReportTimeout = DefaultReportTimeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Downloader{
		config:   config,
		sessions: sessions,
		store:    store,
		throttle: throttle,
		clock:    clock,
		logger:   logger,
	}
}

// Download materializes r as a part file. Errors are wrapped in
// *domain.RangeError, except context cancellation which is returned as-is.
func (d *Downloader) Download(ctx context.Context, r domain.IDRange) (DownloadResult, error) {
	began := d.clock.Now()

	if err := r.Validate(); err != nil {
		return DownloadResult{}, &domain.RangeError{Range: r, Op: "validate", Err: err}
	}

	exists, err := d.store.Has(ctx, r)
	if err != nil {
		return DownloadResult{}, &domain.RangeError{Range: r, Op: "check", Err: err}
	}
	if exists {
		d.logger.Debug("part exists, skipping", ports.Stringer("range", r))
		return DownloadResult{Outcome: Skipped}, nil
	}

	sess, err := d.sessions.NewSession(ctx, d.config.Tenant)
	if err != nil {
		return DownloadResult{}, d.fail(ctx, r, "session", err)
	}
	defer sess.Close()

	found, err := sess.Search(ctx, r)
	if err != nil {
		return DownloadResult{}, d.fail(ctx, r, "search", err)
	}
	if !found {
		part, err := d.store.WriteEmpty(ctx, r)
		if err != nil {
			return DownloadResult{}, d.fail(ctx, r, "save", err)
		}
		d.logger.Info("no results for range", ports.Stringer("range", r))
		return DownloadResult{Outcome: NoResult, Part: part, Duration: d.clock.Since(began)}, nil
	}

	if err := sess.Generate(ctx); err != nil {
		return DownloadResult{}, d.fail(ctx, r, "generate", err)
	}

	link, err := d.waitReport(ctx, sess)
	if err != nil {
		return DownloadResult{}, d.fail(ctx, r, "poll", err)
	}

	w, err := d.store.Create(ctx, r)
	if err != nil {
		return DownloadResult{}, d.fail(ctx, r, "save", err)
	}
	n, err := sess.Fetch(ctx, link, w)
	if err != nil {
		_ = w.Abort()
		return DownloadResult{}, d.fail(ctx, r, "fetch", err)
	}
	part, err := w.Commit()
	if err != nil {
		if errors.Is(err, domain.ErrPartExists) {
			return DownloadResult{Outcome: Skipped}, nil
		}
		return DownloadResult{}, d.fail(ctx, r, "save", err)
	}

	res := DownloadResult{Outcome: Downloaded, Part: part, Duration: d.clock.Since(began)}
	d.logger.Info("range downloaded",
		ports.Stringer("range", r),
		ports.String("file", part.Name),
		ports.Int64("bytes", n),
		ports.Duration("duration", res.Duration),
	)
	return res, nil
}

// waitReport polls the session until the report is ready or the safety
// timeout expires, and returns the download link.
func (d *Downloader) waitReport(ctx context.Context, sess ports.ReportSession) (string, error) {
	interval := d.throttle.PollInterval()
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := jitterbug.New(interval, &jitterbug.Norm{Stdev: interval / 10})
	defer ticker.Stop()

	timeout := d.clock.NewTimer(d.config.ReportTimeout)
	defer timeout.Stop()

	for {
		st, err := sess.Status(ctx)
		if err != nil {
			return "", err
		}
		if st.Ready {
			if st.Link == "" {
				return "", fmt.Errorf("%w: report ready without a download link", domain.ErrScrape)
			}
			return st.Link, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timeout.Chan():
			return "", fmt.Errorf("%w after %s", domain.ErrReportTimeout, d.config.ReportTimeout)
		case <-ticker.C:
		}
	}
}

func (d *Downloader) fail(ctx context.Context, r domain.IDRange, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &domain.RangeError{Range: r, Op: op, Err: err}
}

package ports

import (
	"context"
	"io"

	"github.com/bft-labs/harvester/internal/domain"
)

// ReportSessions opens a fresh remote session for each range download.
// Sessions are never shared between concurrent downloads.
type ReportSessions interface {
	NewSession(ctx context.Context, tenant domain.Tenant) (ReportSession, error)
}

// ReportSession drives the four remote steps of one range download:
// search, request generation, poll, fetch.
type ReportSession interface {
	// Search submits the range query. found is false when the site
	// reports that no records match.
	Search(ctx context.Context, r domain.IDRange) (found bool, err error)

	// Generate asks the site to build the downloadable report.
	Generate(ctx context.Context) error

	// Status checks whether generation has finished.
	Status(ctx context.Context) (ReportStatus, error)

	// Fetch streams the finished report into w.
	Fetch(ctx context.Context, link string, w io.Writer) (int64, error)

	// Close releases the session.
	Close() error
}

// ReportStatus is the result of a single status poll.
type ReportStatus struct {
	// Ready is true once the site stops reporting that generation is in progress.
	Ready bool

	// Link is the download reference; empty while not ready, or when the
	// ready page has no link.
	Link string
}

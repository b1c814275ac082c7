package ports

import (
	"context"

	"github.com/bft-labs/harvester/internal/domain"
)

// StatusRepository persists the record of the last run.
type StatusRepository interface {
	// Load returns the last saved status.
	// Returns an empty status and nil error if none exists.
	Load(ctx context.Context) (domain.RunStatus, error)

	// Save persists status, replacing the previous record.
	Save(ctx context.Context, status domain.RunStatus) error
}

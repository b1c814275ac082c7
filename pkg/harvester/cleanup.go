package harvester

import (
	"context"
	"errors"
	"fmt"

	"github.com/bft-labs/harvester/pkg/log"
)

// CleanResult reports what Clean removed.
type CleanResult struct {
	Parts int
	Bytes int64
}

// Clean deletes every part file of the tenant so the next run starts from
// zero. The export and the run record are kept.
func (h *Harvester) Clean(ctx context.Context) (CleanResult, error) {
	h.mu.Lock()
	running := h.running
	h.mu.Unlock()
	if running {
		return CleanResult{}, errors.New("harvester: cannot clean while a run is in progress")
	}

	parts, err := h.store.List(ctx)
	if err != nil {
		return CleanResult{}, fmt.Errorf("list parts: %w", err)
	}
	res := CleanResult{Parts: len(parts)}
	for _, p := range parts {
		res.Bytes += p.Size
	}

	if err := h.store.Clean(ctx); err != nil {
		return CleanResult{}, fmt.Errorf("remove parts: %w", err)
	}
	h.logger.Info("parts removed",
		log.String("dir", h.store.Dir()),
		log.Int("parts", res.Parts),
		log.Int64("bytes", res.Bytes),
	)
	return res, nil
}

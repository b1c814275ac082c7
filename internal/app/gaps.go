package app

import (
	"context"
	"fmt"

	"github.com/bft-labs/harvester/internal/domain"
	"github.com/bft-labs/harvester/internal/ports"
)

// GapResolver turns coverage gaps into downloadable ranges.
type GapResolver struct {
	oracle     ports.PageCounter
	discoverer *Discoverer
	logger     ports.Logger
}

// NewGapResolver creates a resolver that probes gaps through oracle.
func NewGapResolver(oracle ports.PageCounter, discoverer *Discoverer, logger ports.Logger) *GapResolver {
	return &GapResolver{oracle: oracle, discoverer: discoverer, logger: logger}
}

// Resolve splits each gap into ranges no larger than the plan allows.
// A gap that fits is queued whole; a larger one is split with bounded
// discovery. The queued ranges cover the gaps exactly.
//
// Gaps that cannot be represented are returned in unresolved. When probing
// fails the remainder of the gap is queued whole with the error attached.
// Only context errors are returned.
func (g *GapResolver) Resolve(ctx context.Context, gaps []domain.Gap, plan domain.PartitionPlan) (queue, unresolved []domain.FailedRange, err error) {
	for _, gap := range gaps {
		r := gap.Range()
		if err := r.Validate(); err != nil {
			g.logger.Warn("gap cannot be queued", ports.Stringer("gap", gap), ports.Err(err))
			unresolved = append(unresolved, domain.FailedRange{Range: r, Err: err})
			continue
		}

		for cur := gap.From; cur <= gap.To; {
			rest := domain.Bounded(cur, gap.To)

			pc, err := g.oracle.PageCount(ctx, rest.Query())
			if err != nil {
				if ctx.Err() != nil {
					return nil, nil, ctx.Err()
				}
				queue = append(queue, domain.FailedRange{Range: rest, Err: err})
				break
			}
			if pc.Pages <= plan.MaxPages() {
				queue = append(queue, domain.FailedRange{Range: rest})
				break
			}

			end, err := g.discoverer.DiscoverWithin(ctx, cur, gap.To, plan)
			if err != nil {
				if ctx.Err() != nil {
					return nil, nil, ctx.Err()
				}
				queue = append(queue, domain.FailedRange{Range: rest, Err: err})
				break
			}
			queue = append(queue, domain.FailedRange{Range: domain.Bounded(cur, end)})
			cur = end + 1
		}
	}

	if len(gaps) > 0 {
		g.logger.Info("gaps queued",
			ports.Int("gaps", len(gaps)),
			ports.Int("ranges", len(queue)),
			ports.Int("unresolved", len(unresolved)),
		)
	}
	return queue, unresolved, nil
}

// describeFailures renders failed ranges for the run summary.
func describeFailures(failed []domain.FailedRange) []string {
	out := make([]string, len(failed))
	for i, f := range failed {
		out[i] = fmt.Sprintf("%s (attempts=%d)", f, f.Attempts)
	}
	return out
}

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bft-labs/harvester/internal/domain"
	"github.com/bft-labs/harvester/internal/ports"
)

// Discoverer finds partition boundaries by probing the page-count oracle
// with a doubling search followed by bisection.
type Discoverer struct {
	oracle ports.PageCounter
	logger ports.Logger

	// InitialSpan sets the first probe to start+InitialSpan.
	// Zero probes 2*start+1, which always moves past start.
	InitialSpan int64
}

// NewDiscoverer creates a discoverer over oracle.
func NewDiscoverer(oracle ports.PageCounter, logger ports.Logger) *Discoverer {
	return &Discoverer{oracle: oracle, logger: logger}
}

// Discover returns the smallest end found such that [start, end] holds
// between plan.PagesPerPart and plan.MaxPages() pages.
// ok is false when there is no more data to bound: the caller should treat
// [start, open] as the final range.
func (d *Discoverer) Discover(ctx context.Context, start int64, plan domain.PartitionPlan) (end int64, ok bool, err error) {
	return d.discover(ctx, start, -1, plan)
}

// DiscoverWithin is Discover with every probe clipped to limit.
// It never reports exhaustion.
func (d *Discoverer) DiscoverWithin(ctx context.Context, start, limit int64, plan domain.PartitionPlan) (int64, error) {
	if limit < start {
		return 0, fmt.Errorf("%w: limit %d before start %d", domain.ErrInvalidRange, limit, start)
	}
	end, _, err := d.discover(ctx, start, limit, plan)
	return end, err
}

func (d *Discoverer) discover(ctx context.Context, start, limit int64, plan domain.PartitionPlan) (int64, bool, error) {
	began := time.Now()
	clipped := limit >= 0

	// An empty dataset leaves nothing to bound.
	if plan.PagesPerPart <= 0 {
		if clipped {
			return limit, true, nil
		}
		return 0, false, nil
	}

	lower := start
	upper := 2*start + 1
	if d.InitialSpan > 0 {
		upper = start + d.InitialSpan
	}
	if clipped && upper > limit {
		upper = limit
	}

	var (
		maxUpper, prevUpper, prevPages int64
		hasMax, hasPrev                bool
		probes                         int
	)

	for {
		if upper == lower {
			end := upper
			switch {
			case lower == start && start > 0:
				end = start
			case hasMax:
				end = maxUpper
			}
			d.logger.Debug("boundary degenerate",
				ports.Int64("start", start),
				ports.Int64("end", end),
				ports.Int("probes", probes),
			)
			return end, true, nil
		}

		pc, err := d.oracle.PageCount(ctx, domain.Between(start, upper))
		if err != nil {
			return 0, false, err
		}
		probes++
		pages := pc.Pages

		if hasPrev && ((upper > prevUpper && pages < prevPages) || (upper < prevUpper && pages > prevPages)) {
			d.logger.Warn("page count not monotonic in range end",
				ports.Int64("start", start),
				ports.Int64("prev_end", prevUpper),
				ports.Int64("prev_pages", prevPages),
				ports.Int64("end", upper),
				ports.Int64("pages", pages),
				ports.Err(domain.ErrNonMonotonic),
			)
		}

		if !clipped && !hasMax && hasPrev && pages == prevPages {
			rest, err := d.oracle.PageCount(ctx, domain.From(upper))
			if err != nil {
				return 0, false, err
			}
			probes++
			if rest.Pages == 0 {
				d.logger.Debug("no data past probe",
					ports.Int64("start", start),
					ports.Int64("probe", upper),
					ports.Int("probes", probes),
				)
				return 0, false, nil
			}
		}

		if plan.Accepts(pages) {
			d.logger.Debug("boundary found",
				ports.Int64("start", start),
				ports.Int64("end", upper),
				ports.Int64("pages", pages),
				ports.Int("probes", probes),
				ports.Duration("duration", time.Since(began)),
			)
			return upper, true, nil
		}

		prevUpper, prevPages, hasPrev = upper, pages, true

		if pages < plan.PagesPerPart {
			lower = upper
			switch {
			case hasMax:
				upper += (maxUpper - upper) / 2
			case clipped && upper >= limit:
				// The whole clipped window is under target.
				return limit, true, nil
			default:
				upper *= 2
				if clipped && upper > limit {
					upper = limit
				}
			}
			continue
		}

		maxUpper, hasMax = upper, true
		upper = lower + (upper-lower)/2
	}
}

package ports

import (
	"context"

	"github.com/bft-labs/harvester/internal/domain"
)

// PageCounter reports how many result pages the remote search returns for
// an ID interval. It is the only view of dataset density available.
type PageCounter interface {
	// PageCount returns the page count for q. Zero pages means no records.
	// Returns domain.ErrInvalidQuery when q has neither bound.
	PageCount(ctx context.Context, q domain.Query) (domain.PageCount, error)
}

// PageCounterFunc adapts a function to PageCounter.
type PageCounterFunc func(ctx context.Context, q domain.Query) (domain.PageCount, error)

// PageCount calls f.
func (f PageCounterFunc) PageCount(ctx context.Context, q domain.Query) (domain.PageCount, error) {
	return f(ctx, q)
}

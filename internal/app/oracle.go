package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/bft-labs/harvester/internal/domain"
	"github.com/bft-labs/harvester/internal/ports"
)

// ThrottledOracle spaces consecutive page-count calls by at least the
// throttle's oracle delay. Calls are serialized.
type ThrottledOracle struct {
	next     ports.PageCounter
	throttle *Throttle
	clock    clockwork.Clock

	mu   sync.Mutex
	last time.Time
}

// NewThrottledOracle wraps next with the throttle's oracle delay.
func NewThrottledOracle(next ports.PageCounter, throttle *Throttle, clock clockwork.Clock) *ThrottledOracle {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ThrottledOracle{next: next, throttle: throttle, clock: clock}
}

// PageCount waits out the remaining delay, then calls the wrapped oracle.
func (o *ThrottledOracle) PageCount(ctx context.Context, q domain.Query) (domain.PageCount, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.last.IsZero() {
		wait := o.throttle.OracleDelay() - o.clock.Since(o.last)
		if err := sleep(ctx, o.clock, wait); err != nil {
			return domain.PageCount{}, err
		}
	}
	defer func() { o.last = o.clock.Now() }()

	return o.next.PageCount(ctx, q)
}

// RetryingOracle retries transient page-count failures under a RetryPolicy.
type RetryingOracle struct {
	next   ports.PageCounter
	policy RetryPolicy
	clock  clockwork.Clock
	logger ports.Logger
}

// NewRetryingOracle wraps next with policy.
func NewRetryingOracle(next ports.PageCounter, policy RetryPolicy, clock clockwork.Clock, logger ports.Logger) *RetryingOracle {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RetryingOracle{next: next, policy: policy, clock: clock, logger: logger}
}

// PageCount calls the wrapped oracle until it succeeds or the policy is exhausted.
// Invalid queries and context cancellation are returned as-is.
func (o *RetryingOracle) PageCount(ctx context.Context, q domain.Query) (domain.PageCount, error) {
	if err := q.Validate(); err != nil {
		return domain.PageCount{}, err
	}

	b := o.policy.newBackoff(o.clock)
	attempts := o.policy.attempts()

	var lastErr error
	for i := 1; i <= attempts; i++ {
		pc, err := o.next.PageCount(ctx, q)
		if err == nil {
			return pc, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.PageCount{}, ctxErr
		}
		if !retryable(err) {
			return domain.PageCount{}, err
		}
		lastErr = err

		if i == attempts {
			break
		}
		o.logger.Warn("page count failed, retrying",
			ports.Stringer("query", q),
			ports.Int("attempt", i),
			ports.Duration("backoff", b.Current()),
			ports.Err(err),
		)
		if err := b.Sleep(ctx); err != nil {
			return domain.PageCount{}, err
		}
	}

	return domain.PageCount{}, fmt.Errorf("%w after %d attempts for %s: %w",
		domain.ErrOracleExhausted, attempts, q, lastErr)
}

// retryable reports whether err may go away on a later attempt.
func retryable(err error) bool {
	return !errors.Is(err, domain.ErrInvalidQuery) && !errors.Is(err, context.Canceled)
}

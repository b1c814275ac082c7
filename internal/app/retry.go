package app

import (
	"context"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
)

// Default retry policy values.
const (
	DefaultRetryAttempts   = 5
	DefaultBackoffInitial  = time.Second
	DefaultBackoffMax      = 30 * time.Second
	DefaultRetryPasses     = 3
	DefaultReportTimeout   = 30 * time.Minute
	DefaultDesiredParts    = 30
	DefaultDownloadWorkers = 1
)

// RetryPolicy bounds the attempts made around a single remote call.
type RetryPolicy struct {
	// MaxAttempts includes the first call. Values below 1 mean a single attempt.
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultRetryAttempts,
		Initial:     DefaultBackoffInitial,
		Max:         DefaultBackoffMax,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) newBackoff(clock clockwork.Clock) *backoff {
	initial, max := p.Initial, p.Max
	if initial <= 0 {
		initial = DefaultBackoffInitial
	}
	if max < initial {
		max = initial
	}
	return &backoff{initial: initial, max: max, current: initial, clock: clock}
}

// backoff implements exponential backoff with jitter.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
	clock   clockwork.Clock
}

// Sleep waits for the current backoff duration and doubles it.
// Returns early with the context error if ctx is done.
func (b *backoff) Sleep(ctx context.Context) error {
	// Add jitter: ±20%
	jitter := float64(b.current) * 0.2 * (rand.Float64()*2 - 1)
	d := time.Duration(float64(b.current) + jitter)

	if err := sleep(ctx, b.clock, d); err != nil {
		return err
	}

	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return nil
}

// Reset resets the backoff to the initial duration.
func (b *backoff) Reset() {
	b.current = b.initial
}

// Current returns the current backoff duration.
func (b *backoff) Current() time.Duration {
	return b.current
}

// sleep blocks for d on clock or until ctx is done.
func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}

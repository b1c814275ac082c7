package app

import (
	"sync/atomic"
	"time"
)

// Default courtesy intervals toward the remote site.
const (
	DefaultOracleDelay  = 500 * time.Millisecond
	DefaultPollInterval = 5 * time.Second
)

// Throttle holds the rate-limit settings that may change while a run is in
// progress. All accessors are safe for concurrent use.
type Throttle struct {
	oracleDelay  atomic.Int64
	roundWait    atomic.Int64
	pollInterval atomic.Int64
}

// NewThrottle creates a throttle with the given settings.
func NewThrottle(oracleDelay, roundWait, pollInterval time.Duration) *Throttle {
	t := &Throttle{}
	t.SetOracleDelay(oracleDelay)
	t.SetRoundWait(roundWait)
	t.SetPollInterval(pollInterval)
	return t
}

// OracleDelay is the minimum gap between two consecutive page-count calls.
func (t *Throttle) OracleDelay() time.Duration {
	return time.Duration(t.oracleDelay.Load())
}

// RoundWait is the pause between partitioning rounds.
func (t *Throttle) RoundWait() time.Duration {
	return time.Duration(t.roundWait.Load())
}

// PollInterval is the period of report status checks.
func (t *Throttle) PollInterval() time.Duration {
	return time.Duration(t.pollInterval.Load())
}

func (t *Throttle) SetOracleDelay(d time.Duration) {
	t.oracleDelay.Store(int64(clampNonNegative(d)))
}

func (t *Throttle) SetRoundWait(d time.Duration) {
	t.roundWait.Store(int64(clampNonNegative(d)))
}

// SetPollInterval ignores non-positive values.
func (t *Throttle) SetPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	t.pollInterval.Store(int64(d))
}

func clampNonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

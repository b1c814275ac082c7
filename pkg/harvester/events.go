package harvester

import (
	"context"
	"time"

	"github.com/bft-labs/harvester/internal/app"
	"github.com/bft-labs/harvester/internal/domain"
)

// Re-exported domain types.
type (
	IDRange     = domain.IDRange
	PartFile    = domain.PartFile
	Gap         = domain.Gap
	FailedRange = domain.FailedRange
	RunStatus   = domain.RunStatus
	Summary     = app.Summary
	Outcome     = app.Outcome
	Phase       = app.Phase
)

// Run phases.
const (
	PhaseIdle           = app.PhaseIdle
	PhaseSizing         = app.PhaseSizing
	PhaseResuming       = app.PhaseResuming
	PhasePartitioning   = app.PhasePartitioning
	PhaseRetryingFailed = app.PhaseRetryingFailed
	PhaseDone           = app.PhaseDone
	PhaseAborted        = app.PhaseAborted
)

// Range outcomes.
const (
	Downloaded = app.Downloaded
	NoResult   = app.NoResult
	Skipped    = app.Skipped
)

// Errors callers are expected to match with errors.Is.
var (
	ErrMergeBlocked    = domain.ErrMergeBlocked
	ErrOracleExhausted = domain.ErrOracleExhausted
	ErrReportTimeout   = domain.ErrReportTimeout
)

// PhaseChangeEvent is emitted on every run phase transition.
type PhaseChangeEvent struct {
	Previous Phase
	Current  Phase
	Reason   string
}

// RangeDoneEvent is emitted when a range is downloaded, recorded as empty
// or found to be already present.
type RangeDoneEvent struct {
	Range    IDRange
	Outcome  Outcome
	File     string
	Duration time.Duration
}

// RangeFailedEvent is emitted when a range download or boundary discovery fails.
type RangeFailedEvent struct {
	Range        IDRange
	Error        error
	Attempts     int
	Undiscovered bool
}

// EventHandler receives harvester events.
type EventHandler interface {
	OnPhaseChange(PhaseChangeEvent)
	OnRangeDone(RangeDoneEvent)
	OnRangeFailed(RangeFailedEvent)
}

// Throttle exposes the settings a plugin may change during a run.
type Throttle interface {
	SetOracleDelay(time.Duration)
	SetRoundWait(time.Duration)
	SetPollInterval(time.Duration)
	OracleDelay() time.Duration
	RoundWait() time.Duration
	PollInterval() time.Duration
}

// PluginConfig is passed to plugins on initialization.
type PluginConfig struct {
	Tenant    string
	TenantDir string
	PartsDir  string
	RunID     string
	Throttle  Throttle
	Logger    Logger
}

// Plugin extends a run with optional behavior.
type Plugin interface {
	Name() string
	Initialize(ctx context.Context, cfg PluginConfig) error
	Shutdown(ctx context.Context) error
}

// eventEmitterWrapper adapts EventHandler to the internal emitter interfaces.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnPhaseChange(previous, current app.Phase, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnPhaseChange(PhaseChangeEvent{Previous: previous, Current: current, Reason: reason})
}

func (e *eventEmitterWrapper) OnRangeDone(r domain.IDRange, res app.DownloadResult) {
	if e.handler == nil {
		return
	}
	e.handler.OnRangeDone(RangeDoneEvent{
		Range:    r,
		Outcome:  res.Outcome,
		File:     res.Part.Name,
		Duration: res.Duration,
	})
}

func (e *eventEmitterWrapper) OnRangeFailed(f domain.FailedRange) {
	if e.handler == nil {
		return
	}
	e.handler.OnRangeFailed(RangeFailedEvent{
		Range:        f.Range,
		Error:        f.Err,
		Attempts:     f.Attempts,
		Undiscovered: f.Undiscovered,
	})
}

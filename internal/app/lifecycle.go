package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/bft-labs/harvester/internal/domain"
	"github.com/bft-labs/harvester/internal/ports"
)

// Phase represents the controller's position in a run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSizing
	PhaseResuming
	PhasePartitioning
	PhaseRetryingFailed
	PhaseDone
	PhaseAborted
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseSizing:
		return "Sizing"
	case PhaseResuming:
		return "Resuming"
	case PhasePartitioning:
		return "Partitioning"
	case PhaseRetryingFailed:
		return "RetryingFailed"
	case PhaseDone:
		return "Done"
	case PhaseAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Terminal reports whether a run in this phase has ended.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseAborted
}

// transitions lists the phases reachable from each phase.
// Any non-terminal phase may abort.
var transitions = map[Phase][]Phase{
	PhaseIdle:           {PhaseSizing},
	PhaseSizing:         {PhaseResuming, PhaseAborted},
	PhaseResuming:       {PhasePartitioning, PhaseRetryingFailed, PhaseAborted},
	PhasePartitioning:   {PhaseRetryingFailed, PhaseAborted},
	PhaseRetryingFailed: {PhaseDone, PhaseAborted},
	PhaseDone:           {PhaseSizing},
	PhaseAborted:        {PhaseSizing},
}

// Lifecycle manages the phase state machine for a controller.
type Lifecycle struct {
	mu           sync.RWMutex
	phase        Phase
	cancel       context.CancelFunc
	logger       ports.Logger
	eventEmitter EventEmitter
}

// EventEmitter is called when the lifecycle phase changes.
type EventEmitter interface {
	OnPhaseChange(previous, current Phase, reason string)
}

// NewLifecycle creates a new lifecycle manager in PhaseIdle.
func NewLifecycle(logger ports.Logger, emitter EventEmitter) *Lifecycle {
	return &Lifecycle{
		phase:        PhaseIdle,
		logger:       logger,
		eventEmitter: emitter,
	}
}

// Phase returns the current phase.
func (l *Lifecycle) Phase() Phase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.phase
}

// TransitionTo attempts to move to next.
// Returns an error wrapping domain.ErrInvalidTransition if next is not reachable.
func (l *Lifecycle) TransitionTo(next Phase, reason string) error {
	l.mu.Lock()
	prev := l.phase

	if !canTransition(prev, next) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, prev, next)
	}

	l.phase = next
	l.mu.Unlock()

	// Emit event outside of lock
	if l.eventEmitter != nil {
		l.eventEmitter.OnPhaseChange(prev, next, reason)
	}

	l.logger.Info("phase transition",
		ports.String("from", prev.String()),
		ports.String("to", next.String()),
		ports.String("reason", reason),
	)

	return nil
}

func canTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Running returns true while a run is between Sizing and a terminal phase.
func (l *Lifecycle) Running() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.phase != PhaseIdle && !l.phase.Terminal()
}

// SetCancel stores the cancel function of the active run.
func (l *Lifecycle) SetCancel(cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancel = cancel
}

// Cancel stops the active run, if any.
func (l *Lifecycle) Cancel() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

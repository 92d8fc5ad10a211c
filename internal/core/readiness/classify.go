// Package readiness provides pure functions for interpreting remote function
// state while a code update settles. It contains NO I/O; the polling loop
// lives in the shell.
package readiness

import "github.com/artpar/fnrelease/internal/core/domain"

// =============================================================================
// Phases
// =============================================================================

// Phase is the interpretation of a single state observation.
type Phase string

const (
	PhasePending Phase = "pending"
	PhaseReady   Phase = "ready"
	PhaseFailed  Phase = "failed"
)

// Terminal reports whether polling should stop.
func (p Phase) Terminal() bool {
	return p == PhaseReady || p == PhaseFailed
}

// Classify maps a (lifecycle, last update) observation to a phase.
//
//   - lastUpdateStatus=Failed            -> failed
//   - state=Failed                       -> failed
//   - state=Active, lastUpdate=Successful -> ready
//   - anything else                      -> pending
func Classify(s domain.FunctionState) Phase {
	if s.LastUpdateStatus == domain.UpdateFailed {
		return PhaseFailed
	}
	if s.State == domain.StateFailed {
		return PhaseFailed
	}
	if s.State == domain.StateActive && s.LastUpdateStatus == domain.UpdateSuccessful {
		return PhaseReady
	}
	return PhasePending
}

// =============================================================================
// Poll Outcome
// =============================================================================

// Outcome is the final verdict of a polling run.
type Outcome string

const (
	OutcomeReady    Outcome = "Ready"
	OutcomeFailed   Outcome = "Failed"
	OutcomeTimedOut Outcome = "TimedOut"
)

// CanPublish reports whether publication should be attempted after this
// outcome. A timed-out poll still publishes: the code update was submitted
// and the control plane may yet converge.
func (o Outcome) CanPublish() bool {
	return o == OutcomeReady || o == OutcomeTimedOut
}

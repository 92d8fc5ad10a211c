package release

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/artpar/fnrelease/internal/core/domain"
	"github.com/artpar/fnrelease/internal/core/readiness"
	"github.com/artpar/fnrelease/internal/shell/controlplane"
)

// PollResult is the outcome of waiting for a code update to settle.
type PollResult struct {
	Outcome   readiness.Outcome    `json:"outcome" yaml:"outcome"`
	Attempts  int                  `json:"attempts" yaml:"attempts"`
	LastState domain.FunctionState `json:"last_state" yaml:"last_state"`
	Reason    string               `json:"reason,omitempty" yaml:"reason,omitempty"`

	// Observations holds one entry per attempt, in order.
	Observations []PollObservation `json:"observations,omitempty" yaml:"observations,omitempty"`
}

// PollObservation is what a single poll attempt saw.
type PollObservation struct {
	Attempt int                  `json:"attempt" yaml:"attempt"`
	State   domain.FunctionState `json:"state" yaml:"state"`
	Phase   readiness.Phase      `json:"phase,omitempty" yaml:"phase,omitempty"`
	Error   string               `json:"error,omitempty" yaml:"error,omitempty"`
}

// Poller waits for a function to become ready after a code update.
type Poller struct {
	cp          controlplane.ControlPlane
	clock       Clock
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewPoller creates a poller. A zero callTimeout disables the per-call bound.
func NewPoller(cp controlplane.ControlPlane, clock Clock, callTimeout time.Duration, logger *slog.Logger) *Poller {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cp:          cp,
		clock:       clock,
		callTimeout: callTimeout,
		logger:      logger.With("component", "poller"),
	}
}

// AwaitReady polls the function state up to maxAttempts times, interval
// apart. Running out of attempts is reported as OutcomeTimedOut with a nil
// error. The only error is a cancelled or expired ctx; the remote update is
// left running in that case.
func (p *Poller) AwaitReady(ctx context.Context, function string, maxAttempts int, interval time.Duration) (PollResult, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result PollResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := p.clock.Sleep(ctx, interval); err != nil {
				return result, fmt.Errorf("await %s ready: %w", function, err)
			}
		} else if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("await %s ready: %w", function, err)
		}

		result.Attempts = attempt
		state, err := p.getState(ctx, function)
		if err != nil {
			if ctx.Err() != nil {
				return result, fmt.Errorf("await %s ready: %w", function, ctx.Err())
			}
			p.logger.Warn("state poll failed",
				"function", function,
				"attempt", attempt,
				"error", err,
			)
			result.Observations = append(result.Observations, PollObservation{Attempt: attempt, Error: err.Error()})
			continue
		}
		result.LastState = state

		phase := readiness.Classify(state)
		result.Observations = append(result.Observations, PollObservation{Attempt: attempt, State: state, Phase: phase})
		p.logger.Info("polled function state",
			"function", function,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"state", state.State,
			"last_update_status", state.LastUpdateStatus,
			"phase", phase,
		)

		if phase.Terminal() {
			result.Outcome = readiness.OutcomeReady
			if phase == readiness.PhaseFailed {
				result.Outcome = readiness.OutcomeFailed
				result.Reason = state.Reason
			}
			return result, nil
		}
	}

	result.Outcome = readiness.OutcomeTimedOut
	p.logger.Warn("function not ready within polling budget",
		"function", function,
		"attempts", maxAttempts,
		"interval", interval,
	)
	return result, nil
}

func (p *Poller) getState(ctx context.Context, function string) (domain.FunctionState, error) {
	callCtx, cancel := withCallTimeout(ctx, p.callTimeout)
	defer cancel()
	return p.cp.GetState(callCtx, function)
}

func withCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

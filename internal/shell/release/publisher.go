package release

import (
	"context"
	"log/slog"
	"time"

	"github.com/artpar/fnrelease/internal/core/domain"
	"github.com/artpar/fnrelease/internal/core/retry"
	"github.com/artpar/fnrelease/internal/shell/controlplane"
)

// Publisher publishes function versions, retrying transient failures.
type Publisher struct {
	cp          controlplane.ControlPlane
	clock       Clock
	policy      retry.Policy
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewPublisher creates a publisher using policy for retries.
func NewPublisher(cp controlplane.ControlPlane, clock Clock, policy retry.Policy, callTimeout time.Duration, logger *slog.Logger) *Publisher {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cp:          cp,
		clock:       clock,
		policy:      policy.Normalize(),
		callTimeout: callTimeout,
		logger:      logger.With("component", "publisher"),
	}
}

// Publish snapshots the function's current code under description and
// returns the version id. Permanent errors are not retried. Any failure is
// returned as *domain.PublishError.
func (p *Publisher) Publish(ctx context.Context, function, description string) (string, error) {
	var lastErr error
	attempt := 0
	for {
		attempt++
		if delay := p.policy.Delay(attempt); delay > 0 {
			if err := p.clock.Sleep(ctx, delay); err != nil {
				return "", &domain.PublishError{Function: function, Attempts: attempt - 1, Err: err}
			}
		}

		versionID, err := p.publishOnce(ctx, function, description)
		if err == nil {
			p.logger.Info("version published",
				"function", function,
				"version_id", versionID,
				"attempt", attempt,
			)
			return versionID, nil
		}
		lastErr = err

		if !controlplane.IsTransient(err) || !p.policy.ShouldRetry(attempt) || ctx.Err() != nil {
			break
		}
		p.logger.Warn("publish failed, retrying",
			"function", function,
			"attempt", attempt,
			"max_attempts", p.policy.MaxAttempts,
			"next_delay", p.policy.Delay(attempt+1),
			"error", err,
		)
	}

	p.logger.Error("publish failed",
		"function", function,
		"attempts", attempt,
		"error", lastErr,
	)
	return "", &domain.PublishError{Function: function, Attempts: attempt, Err: lastErr}
}

func (p *Publisher) publishOnce(ctx context.Context, function, description string) (string, error) {
	callCtx, cancel := withCallTimeout(ctx, p.callTimeout)
	defer cancel()
	return p.cp.PublishVersion(callCtx, function, description)
}

package release

import (
	"context"
	"log/slog"
	"time"

	"github.com/artpar/fnrelease/internal/core/domain"
	"github.com/artpar/fnrelease/internal/shell/controlplane"
)

// AliasManager moves the per-environment alias.
type AliasManager struct {
	cp          controlplane.ControlPlane
	clock       Clock
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewAliasManager creates an alias manager.
func NewAliasManager(cp controlplane.ControlPlane, clock Clock, callTimeout time.Duration, logger *slog.Logger) *AliasManager {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AliasManager{
		cp:          cp,
		clock:       clock,
		callTimeout: callTimeout,
		logger:      logger.With("component", "alias_manager"),
	}
}

// PointTo points env's alias at rec, creating the alias if needed. Concurrent
// callers race; the last write wins.
func (m *AliasManager) PointTo(ctx context.Context, function string, env domain.Environment, rec domain.VersionRecord) (domain.AliasPointer, error) {
	name := env.AliasName()
	desc := domain.AliasDescription(env, rec.Version, rec.Rollback)

	callCtx, cancel := withCallTimeout(ctx, m.callTimeout)
	defer cancel()
	if err := m.cp.CreateOrUpdateAlias(callCtx, function, name, rec.VersionID, desc); err != nil {
		return domain.AliasPointer{}, &domain.AliasUpdateError{
			Function:  function,
			Alias:     name,
			VersionID: rec.VersionID,
			Err:       err,
		}
	}

	m.logger.Info("alias updated",
		"function", function,
		"alias", name,
		"version_id", rec.VersionID,
		"version", rec.Version,
		"rollback", rec.Rollback,
	)

	return domain.AliasPointer{
		Function:    function,
		Environment: env.Name,
		Name:        name,
		VersionID:   rec.VersionID,
		Version:     rec.Version,
		Rollback:    rec.Rollback,
		Description: desc,
		UpdatedAt:   m.clock.Now().UTC(),
	}, nil
}

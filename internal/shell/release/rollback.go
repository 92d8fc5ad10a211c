package release

import (
	"context"
	"errors"

	"github.com/artpar/fnrelease/internal/core/artifact"
	"github.com/artpar/fnrelease/internal/core/domain"
	"github.com/artpar/fnrelease/internal/core/policy"
)

// Rollbacker re-activates a previously stored version of a function.
type Rollbacker struct {
	d *Deployer
}

// NewRollbacker creates a rollbacker sharing d's collaborators and config.
func NewRollbacker(d *Deployer) *Rollbacker {
	return &Rollbacker{d: d}
}

// Rollback points function in env back at targetVersion. The artifact must
// already be in the store under the version key; it is not re-uploaded.
//
// If the code update succeeds but publication fails, the error is a
// *domain.RollbackPartialFailure and the result status is StatusPartial.
func (r *Rollbacker) Rollback(ctx context.Context, function string, env domain.Environment, targetVersion, actor string, commit domain.Commit) (*Result, error) {
	d := r.d

	req, err := domain.NewRollbackRequest(domain.DeploymentParams{
		Function:    function,
		Environment: env,
		Version:     targetVersion,
		Commit:      commit,
		Actor:       actor,
		RequestedAt: d.requestTime(),
	})
	if err != nil {
		res := &Result{RunID: d.newID(), Request: domain.Summary{
			Function:    function,
			Environment: env.Name,
			Class:       string(env.Class),
			Version:     targetVersion,
			Rollback:    true,
			Actor:       actor,
		}}
		return d.finish(ctx, res, err)
	}

	res := d.newResult(req)
	logger := d.logger.With("run_id", res.RunID, "function", function, "environment", env.Name, "version", targetVersion, "rollback", true)

	if !env.Class.Versioned() {
		return d.finish(ctx, res, domain.NewInvalidInputError("environment", env.Name,
			"unversioned environments store artifacts by timestamp and cannot be rolled back by version"))
	}

	keys, err := artifact.Resolve(function, env, targetVersion, req.RequestedAt())
	if err != nil {
		return d.finish(ctx, res, err)
	}
	res.Keys = keys

	exists, err := d.conflictKeyExists(ctx, keys)
	if err != nil {
		return d.finish(ctx, res, err)
	}
	if !exists {
		return d.finish(ctx, res, &domain.ArtifactNotFoundError{
			Environment: env.Name,
			Version:     targetVersion,
			Key:         keys.WriteKey,
		})
	}

	decision := policy.DecideRollback(env, exists)
	res.Decision = &decision
	if decision.Verdict == policy.AllowWithWarning {
		res.warn(WarnConflictOverwrite, decision.Reason)
	}
	logger.Info("rolling back", "key", keys.WriteKey, "actor", req.Actor())

	err = d.activate(ctx, logger, req, res)
	var pubErr *domain.PublishError
	if errors.As(err, &pubErr) {
		res.Status = StatusPartial
		err = &domain.RollbackPartialFailure{Function: function, Version: targetVersion, Err: err}
	}
	return d.finish(ctx, res, err)
}

package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/fnrelease/internal/core/artifact"
	"github.com/artpar/fnrelease/internal/core/domain"
	"github.com/artpar/fnrelease/internal/core/policy"
	"github.com/artpar/fnrelease/internal/core/readiness"
	"github.com/artpar/fnrelease/internal/shell/artifacts"
	"github.com/artpar/fnrelease/internal/shell/controlplane"
	"github.com/artpar/fnrelease/internal/shell/ledger"
)

// =============================================================================
// Result Types
// =============================================================================

// Status is the overall outcome of a run.
type Status string

const (
	StatusSucceeded             Status = "succeeded"
	StatusSucceededWithWarnings Status = "succeeded_with_warnings"
	StatusBlocked               Status = "blocked"
	StatusFailed                Status = "failed"
	StatusPartial               Status = "partial"
)

// WarningKind classifies a non-fatal problem.
type WarningKind string

const (
	WarnConflictOverwrite WarningKind = "conflict_overwrite"
	WarnReadinessTimeout  WarningKind = "readiness_timeout"
	WarnAliasUpdateFailed WarningKind = "alias_update_failed"
	WarnLedgerWriteFailed WarningKind = "ledger_write_failed"
)

// Warning is a non-fatal problem attached to a result.
type Warning struct {
	Kind    WarningKind `json:"kind" yaml:"kind"`
	Message string      `json:"message" yaml:"message"`
}

// Result is the outcome record of one run. It is returned even when the run
// fails so that callers can report how far it got.
type Result struct {
	RunID    string                `json:"run_id" yaml:"run_id"`
	Status   Status                `json:"status" yaml:"status"`
	Request  domain.Summary        `json:"request" yaml:"request"`
	Keys     artifact.Keys         `json:"keys" yaml:"keys"`
	Decision *policy.Decision      `json:"decision,omitempty" yaml:"decision,omitempty"`
	Poll     *PollResult           `json:"poll,omitempty" yaml:"poll,omitempty"`
	Version  *domain.VersionRecord `json:"version,omitempty" yaml:"version,omitempty"`
	Alias    *domain.AliasPointer  `json:"alias,omitempty" yaml:"alias,omitempty"`
	Warnings []Warning             `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error    string                `json:"error,omitempty" yaml:"error,omitempty"`
}

func (r *Result) warn(kind WarningKind, msg string) {
	r.Warnings = append(r.Warnings, Warning{Kind: kind, Message: msg})
}

// WarningKinds lists the kinds of the result's warnings in order.
func (r *Result) WarningKinds() []string {
	if len(r.Warnings) == 0 {
		return nil
	}
	kinds := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		kinds[i] = string(w.Kind)
	}
	return kinds
}

// CheckResult is the outcome of a preflight check.
type CheckResult struct {
	Request   domain.Summary  `json:"request" yaml:"request"`
	Keys      artifact.Keys   `json:"keys" yaml:"keys"`
	Exists    bool            `json:"exists" yaml:"exists"`
	Decision  policy.Decision `json:"decision" yaml:"decision"`
	CanDeploy bool            `json:"can_deploy" yaml:"can_deploy"`
}

// =============================================================================
// Deployer
// =============================================================================

// Deps are the collaborators of the pipeline.
type Deps struct {
	ControlPlane controlplane.ControlPlane
	Artifacts    artifacts.Store

	// Ledger records finished runs. Nil disables recording.
	Ledger ledger.Store

	// Clock defaults to SystemClock.
	Clock Clock

	Logger *slog.Logger
}

// Deployer runs the forward deployment pipeline.
type Deployer struct {
	cp        controlplane.ControlPlane
	store     artifacts.Store
	ledger    ledger.Store
	clock     Clock
	config    Config
	poller    *Poller
	publisher *Publisher
	aliases   *AliasManager
	newID     func() string
	logger    *slog.Logger
}

// NewDeployer creates a deployer.
func NewDeployer(deps Deps, cfg Config) *Deployer {
	cfg = cfg.withDefaults()

	clock := deps.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := deps.Ledger
	if store == nil {
		store = ledger.NopStore{}
	}

	return &Deployer{
		cp:        deps.ControlPlane,
		store:     deps.Artifacts,
		ledger:    store,
		clock:     clock,
		config:    cfg,
		poller:    NewPoller(deps.ControlPlane, clock, cfg.CallTimeout, logger),
		publisher: NewPublisher(deps.ControlPlane, clock, cfg.Publish, cfg.CallTimeout, logger),
		aliases:   NewAliasManager(deps.ControlPlane, clock, cfg.CallTimeout, logger),
		newID:     uuid.NewString,
		logger:    logger.With("component", "deployer"),
	}
}

// Deploy runs the forward pipeline for req. The returned result is never nil.
//
// Order: resolve keys, check for an existing artifact, apply the conflict
// policy, store the artifact, update the code, wait for readiness, publish,
// move the alias and record the run. A blocked request performs no writes.
func (d *Deployer) Deploy(ctx context.Context, req domain.DeploymentRequest) (*Result, error) {
	res := d.newResult(req)
	logger := d.logger.With("run_id", res.RunID, "function", req.Function(), "environment", req.Environment().Name, "version", req.Version())

	if req.IsRollback() {
		return d.finish(ctx, res, domain.NewInvalidInputError("request", "", "rollback requests go through Rollbacker"))
	}
	if len(req.Artifact()) == 0 {
		return d.finish(ctx, res, domain.NewInvalidInputError("artifact", "", "must not be empty"))
	}

	keys, err := artifact.Resolve(req.Function(), req.Environment(), req.Version(), req.RequestedAt())
	if err != nil {
		return d.finish(ctx, res, err)
	}
	res.Keys = keys

	exists, err := d.conflictKeyExists(ctx, keys)
	if err != nil {
		return d.finish(ctx, res, err)
	}

	decision := policy.Decide(req.Environment(), req.Force(), exists)
	res.Decision = &decision
	logger.Info("conflict policy evaluated", "verdict", decision.Verdict, "key_exists", exists, "force", req.Force())

	switch decision.Verdict {
	case policy.Block:
		res.Status = StatusBlocked
		return d.finish(ctx, res, &domain.ConflictError{
			Environment: req.Environment().Name,
			Version:     req.Version(),
			Key:         keys.ConflictCheckKey,
			Reason:      decision.Reason,
		})
	case policy.AllowWithWarning:
		res.warn(WarnConflictOverwrite, decision.Reason)
	}

	if err := d.putArtifact(ctx, keys.WriteKey, req.Artifact()); err != nil {
		return d.finish(ctx, res, err)
	}
	logger.Info("artifact stored", "key", keys.WriteKey)

	err = d.activate(ctx, logger, req, res)
	return d.finish(ctx, res, err)
}

// Check resolves keys and evaluates the conflict policy without writing
// anything.
func (d *Deployer) Check(ctx context.Context, req domain.DeploymentRequest) (CheckResult, error) {
	out := CheckResult{Request: req.Summary()}

	keys, err := artifact.Resolve(req.Function(), req.Environment(), req.Version(), req.RequestedAt())
	if err != nil {
		return out, err
	}
	out.Keys = keys

	exists, err := d.conflictKeyExists(ctx, keys)
	if err != nil {
		return out, err
	}
	out.Exists = exists
	out.Decision = policy.Decide(req.Environment(), req.Force(), exists)
	out.CanDeploy = out.Decision.Proceeds()
	return out, nil
}

// activate runs the remote half of the pipeline: code update, readiness,
// publication and alias. The artifact must already be at res.Keys.WriteKey.
func (d *Deployer) activate(ctx context.Context, logger *slog.Logger, req domain.DeploymentRequest, res *Result) error {
	function := req.Function()
	location := d.store.Location(res.Keys.WriteKey)

	callCtx, cancel := withCallTimeout(ctx, d.config.CallTimeout)
	err := d.cp.UpdateCode(callCtx, function, location)
	cancel()
	if err != nil {
		return &domain.RemoteUpdateError{Op: "update_code", Function: function, Err: err}
	}
	logger.Info("code update submitted", "bucket", location.Bucket, "key", location.Key)

	poll, err := d.poller.AwaitReady(ctx, function, d.config.PollAttempts, d.config.PollInterval)
	res.Poll = &poll
	if err != nil {
		return &domain.StageError{Stage: "poll", Err: err}
	}
	if !poll.Outcome.CanPublish() {
		return &domain.RemoteUpdateError{Op: "poll", Function: function, Reason: poll.Reason}
	}
	if poll.Outcome == readiness.OutcomeTimedOut {
		res.warn(WarnReadinessTimeout, fmt.Sprintf("function not ready after %d attempts; publishing anyway", poll.Attempts))
	}

	description := domain.BuildDescription(req)
	versionID, err := d.publisher.Publish(ctx, function, description)
	if err != nil {
		return err
	}
	rec := domain.NewVersionRecord(req, versionID, description, d.clock.Now())
	res.Version = &rec

	pointer, err := d.aliases.PointTo(ctx, function, req.Environment(), rec)
	if err != nil {
		logger.Warn("alias update failed", "error", err)
		res.warn(WarnAliasUpdateFailed, err.Error())
		return nil
	}
	res.Alias = &pointer
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func (d *Deployer) newResult(req domain.DeploymentRequest) *Result {
	return &Result{
		RunID:   d.newID(),
		Request: req.Summary(),
	}
}

func (d *Deployer) conflictKeyExists(ctx context.Context, keys artifact.Keys) (bool, error) {
	if !keys.Checkable {
		return false, nil
	}
	callCtx, cancel := withCallTimeout(ctx, d.config.CallTimeout)
	defer cancel()
	exists, err := d.store.Exists(callCtx, keys.ConflictCheckKey)
	if err != nil {
		return false, &domain.StageError{Stage: "conflict_check", Err: err}
	}
	return exists, nil
}

func (d *Deployer) putArtifact(ctx context.Context, key string, body []byte) error {
	callCtx, cancel := withCallTimeout(ctx, d.config.CallTimeout)
	defer cancel()
	if err := d.store.Put(callCtx, key, body); err != nil {
		return &domain.StageError{Stage: "store", Err: err}
	}
	return nil
}

// finish settles the status, records the run and returns res with err.
func (d *Deployer) finish(ctx context.Context, res *Result, err error) (*Result, error) {
	switch {
	case err == nil && len(res.Warnings) == 0:
		res.Status = StatusSucceeded
	case err == nil:
		res.Status = StatusSucceededWithWarnings
	case res.Status == "":
		res.Status = StatusFailed
	}
	if err != nil {
		res.Error = err.Error()
	}

	d.record(ctx, res)

	attrs := []any{
		"run_id", res.RunID,
		"function", res.Request.Function,
		"environment", res.Request.Environment,
		"version", res.Request.Version,
		"status", res.Status,
	}
	if len(res.Warnings) > 0 {
		attrs = append(attrs, "warnings", res.WarningKinds())
	}
	if err != nil {
		d.logger.Error("release finished", append(attrs, "error", err)...)
	} else {
		d.logger.Info("release finished", attrs...)
	}
	return res, err
}

// record writes the run to the ledger. Ledger failures only add a warning.
func (d *Deployer) record(ctx context.Context, res *Result) {
	// Record even when the caller's context is already done.
	ctx, cancel := withCallTimeout(context.WithoutCancel(ctx), d.config.CallTimeout)
	defer cancel()

	run := ledger.Run{
		ID:          res.RunID,
		Function:    res.Request.Function,
		Environment: res.Request.Environment,
		Version:     res.Request.Version,
		Status:      string(res.Status),
		Rollback:    res.Request.Rollback,
		Actor:       res.Request.Actor,
		CommitHash:  res.Request.Commit.ShortHash,
		Branch:      res.Request.Commit.Branch,
		WriteKey:    res.Keys.WriteKey,
		Warnings:    res.WarningKinds(),
		Error:       res.Error,
		CreatedAt:   d.clock.Now().UTC(),
	}
	if res.Version != nil {
		run.VersionID = res.Version.VersionID
		run.Description = res.Version.Description
	}

	var errs []error
	if err := d.ledger.RecordRun(ctx, run); err != nil {
		errs = append(errs, err)
	}
	if res.Alias != nil {
		if err := d.ledger.SaveAlias(ctx, *res.Alias); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		d.logger.Warn("ledger write failed", "run_id", res.RunID, "error", err)
		res.warn(WarnLedgerWriteFailed, err.Error())
		if res.Status == StatusSucceeded {
			res.Status = StatusSucceededWithWarnings
		}
	}
}

// requestTime is the timestamp for requests built by the pipeline itself.
func (d *Deployer) requestTime() time.Time {
	return d.clock.Now().UTC()
}

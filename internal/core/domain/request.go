package domain

import (
	"strings"
	"time"
)

// =============================================================================
// Commit Metadata
// =============================================================================

// Commit identifies the source revision a build came from.
type Commit struct {
	Branch    string `json:"branch,omitempty" yaml:"branch,omitempty"`
	ShortHash string `json:"short_hash,omitempty" yaml:"short_hash,omitempty"`
}

// =============================================================================
// Deployment Request
// =============================================================================

// DeploymentRequest is the immutable input of one pipeline run.
// Construct it with NewDeploymentRequest or NewRollbackRequest.
type DeploymentRequest struct {
	function    string
	environment Environment
	version     string
	artifact    []byte
	force       bool
	rollback    bool
	commit      Commit
	actor       string
	requestedAt time.Time
}

// DeploymentParams contains all inputs for building a DeploymentRequest.
type DeploymentParams struct {
	Function    string
	Environment Environment
	Version     string
	Artifact    []byte
	Force       bool
	Commit      Commit
	Actor       string
	RequestedAt time.Time
}

// NewDeploymentRequest validates params and returns a forward deployment request.
func NewDeploymentRequest(p DeploymentParams) (DeploymentRequest, error) {
	req, err := newRequest(p, false)
	if err != nil {
		return DeploymentRequest{}, err
	}
	if len(p.Artifact) == 0 {
		return DeploymentRequest{}, NewInvalidInputError("artifact", "", "must not be empty")
	}
	req.artifact = append([]byte(nil), p.Artifact...)
	return req, nil
}

// NewCheckRequest validates params like NewDeploymentRequest but carries no
// artifact. It only describes what a forward deployment would do and is
// rejected by the deployer.
func NewCheckRequest(p DeploymentParams) (DeploymentRequest, error) {
	return newRequest(p, false)
}

// NewRollbackRequest validates params and returns a rollback request. The
// artifact is always sourced from the store, so p.Artifact is ignored.
func NewRollbackRequest(p DeploymentParams) (DeploymentRequest, error) {
	if strings.TrimSpace(p.Actor) == "" {
		return DeploymentRequest{}, NewInvalidInputError("actor", "", "rollback requires an actor")
	}
	return newRequest(p, true)
}

func newRequest(p DeploymentParams, rollback bool) (DeploymentRequest, error) {
	if err := ValidateSegment("function", p.Function); err != nil {
		return DeploymentRequest{}, err
	}
	if err := ValidateSegment("environment", p.Environment.Name); err != nil {
		return DeploymentRequest{}, err
	}
	if p.Environment.Class == "" {
		return DeploymentRequest{}, NewInvalidInputError("environment", p.Environment.Name, "has no policy class")
	}
	if err := ValidateSegment("version", p.Version); err != nil {
		return DeploymentRequest{}, err
	}

	requestedAt := p.RequestedAt
	if requestedAt.IsZero() {
		requestedAt = time.Now()
	}

	return DeploymentRequest{
		function:    p.Function,
		environment: p.Environment,
		version:     p.Version,
		force:       p.Force,
		rollback:    rollback,
		commit:      Commit{Branch: strings.TrimSpace(p.Commit.Branch), ShortHash: strings.TrimSpace(p.Commit.ShortHash)},
		actor:       strings.TrimSpace(p.Actor),
		requestedAt: requestedAt.UTC(),
	}, nil
}

func (r DeploymentRequest) Function() string         { return r.function }
func (r DeploymentRequest) Environment() Environment { return r.environment }
func (r DeploymentRequest) Version() string          { return r.version }
func (r DeploymentRequest) Force() bool              { return r.force }
func (r DeploymentRequest) IsRollback() bool         { return r.rollback }
func (r DeploymentRequest) Commit() Commit           { return r.commit }
func (r DeploymentRequest) Actor() string            { return r.actor }
func (r DeploymentRequest) RequestedAt() time.Time   { return r.requestedAt }

// Artifact returns a copy of the artifact bytes.
func (r DeploymentRequest) Artifact() []byte {
	return append([]byte(nil), r.artifact...)
}

// Summary is a serializable view of the request, without the artifact body.
type Summary struct {
	Function    string    `json:"function" yaml:"function"`
	Environment string    `json:"environment" yaml:"environment"`
	Class       string    `json:"class" yaml:"class"`
	Version     string    `json:"version" yaml:"version"`
	Force       bool      `json:"force" yaml:"force"`
	Rollback    bool      `json:"rollback" yaml:"rollback"`
	Commit      Commit    `json:"commit" yaml:"commit"`
	Actor       string    `json:"actor,omitempty" yaml:"actor,omitempty"`
	RequestedAt time.Time `json:"requested_at" yaml:"requested_at"`
}

// Summary returns the serializable view of r.
func (r DeploymentRequest) Summary() Summary {
	return Summary{
		Function:    r.function,
		Environment: r.environment.Name,
		Class:       string(r.environment.Class),
		Version:     r.version,
		Force:       r.force,
		Rollback:    r.rollback,
		Commit:      r.commit,
		Actor:       r.actor,
		RequestedAt: r.requestedAt,
	}
}

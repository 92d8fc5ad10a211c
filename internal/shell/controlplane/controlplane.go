// Package controlplane talks to the remote function control plane.
// This is part of the Imperative Shell - handles I/O with the Lambda API.
package controlplane

import (
	"context"
	"errors"
	"fmt"

	smithy "github.com/aws/smithy-go"

	"github.com/artpar/fnrelease/internal/core/domain"
)

// ControlPlane is the set of remote operations a release pipeline consumes.
type ControlPlane interface {
	// GetState returns a fresh snapshot of the function's lifecycle state.
	GetState(ctx context.Context, function string) (domain.FunctionState, error)

	// UpdateCode points the function at a stored artifact. The update is
	// asynchronous; GetState reports its progress.
	UpdateCode(ctx context.Context, function string, location domain.ArtifactLocation) error

	// PublishVersion snapshots the current code and returns the new version id.
	PublishVersion(ctx context.Context, function, description string) (string, error)

	// CreateOrUpdateAlias points aliasName at versionID, creating the alias
	// when it does not exist yet.
	CreateOrUpdateAlias(ctx context.Context, function, aliasName, versionID, description string) error
}

// =============================================================================
// Error Classification
// =============================================================================

var (
	// ErrFunctionNotFound is returned when the function does not exist.
	ErrFunctionNotFound = errors.New("function not found")

	// ErrTransient marks failures that are expected to clear on retry.
	ErrTransient = errors.New("transient control plane failure")
)

// transientCodes are API error codes that indicate the function is busy or
// the service is throttling, rather than a permanent rejection.
var transientCodes = map[string]bool{
	"ResourceConflictException": true,
	"TooManyRequestsException":  true,
	"ServiceException":          true,
	"ThrottlingException":       true,
	"Throttling":                true,
	"RequestTimeout":            true,
	"RequestTimeoutException":   true,
	"EC2ThrottledException":     true,
	"ResourceNotReadyException": true,
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return transientCodes[apiErr.ErrorCode()]
	}
	return false
}

// ControlPlaneError wraps errors with the operation and function involved.
type ControlPlaneError struct {
	Op       string
	Function string
	Err      error
}

func (e *ControlPlaneError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Function, e.Err)
}

func (e *ControlPlaneError) Unwrap() error {
	return e.Err
}

func wrap(op, function string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException" {
		err = fmt.Errorf("%w: %v", ErrFunctionNotFound, err)
	}
	return &ControlPlaneError{Op: op, Function: function, Err: err}
}

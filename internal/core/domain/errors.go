// Package domain holds the values that flow through a release pipeline.
// This is part of the Functional Core - no I/O happens here.
package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrConflict              = errors.New("version artifact already exists")
	ErrRemoteUpdate          = errors.New("function code update failed")
	ErrPublish               = errors.New("version publish failed")
	ErrAliasUpdate           = errors.New("alias update failed")
	ErrArtifactNotFound      = errors.New("artifact not found")
	ErrRollbackPartial       = errors.New("rollback partially applied")
	ErrUnknownEnvironment    = errors.New("unknown environment")
	ErrInvalidDescription    = errors.New("description cannot be parsed")
	ErrVersionFileUnreadable = errors.New("no version found in version file")
)

// =============================================================================
// InvalidInputError
// =============================================================================

// InvalidInputError reports a malformed request. Nothing remote has been touched.
type InvalidInputError struct {
	Field   string
	Value   string
	Message string
}

func (e *InvalidInputError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}

// NewInvalidInputError creates a new InvalidInputError.
func NewInvalidInputError(field, value, message string) *InvalidInputError {
	return &InvalidInputError{Field: field, Value: value, Message: message}
}

// =============================================================================
// ConflictError
// =============================================================================

// ConflictError is returned when the conflict policy blocks a deployment.
type ConflictError struct {
	Environment string
	Version     string
	Key         string
	Reason      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("deployment of %s to %s blocked: %s (key %s)", e.Version, e.Environment, e.Reason, e.Key)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// =============================================================================
// RemoteUpdateError
// =============================================================================

// RemoteUpdateError reports that the code update call failed, or that the
// function reported a failed update while being polled.
type RemoteUpdateError struct {
	Op       string
	Function string
	Reason   string
	Err      error
}

func (e *RemoteUpdateError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Function, ErrRemoteUpdate)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteUpdateError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRemoteUpdate}
	}
	return []error{ErrRemoteUpdate, e.Err}
}

// =============================================================================
// PublishError
// =============================================================================

// PublishError is surfaced once version publication has exhausted its retries
// or hit a permanent failure. Err is the last underlying cause.
type PublishError struct {
	Function string
	Attempts int
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %s after %d attempt(s): %v", e.Function, ErrPublish, e.Attempts, e.Err)
}

func (e *PublishError) Unwrap() []error {
	return []error{ErrPublish, e.Err}
}

// =============================================================================
// AliasUpdateError
// =============================================================================

// AliasUpdateError is non-fatal: the version it was meant to point at exists
// regardless.
type AliasUpdateError struct {
	Function  string
	Alias     string
	VersionID string
	Err       error
}

func (e *AliasUpdateError) Error() string {
	return fmt.Sprintf("point %s:%s at version %s: %v", e.Function, e.Alias, e.VersionID, e.Err)
}

func (e *AliasUpdateError) Unwrap() []error {
	return []error{ErrAliasUpdate, e.Err}
}

// =============================================================================
// ArtifactNotFoundError
// =============================================================================

// ArtifactNotFoundError is returned by rollback when the target version was
// never stored.
type ArtifactNotFoundError struct {
	Environment string
	Version     string
	Key         string
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("no artifact for version %s in %s at %s", e.Version, e.Environment, e.Key)
}

func (e *ArtifactNotFoundError) Unwrap() error {
	return ErrArtifactNotFound
}

// =============================================================================
// RollbackPartialFailure
// =============================================================================

// RollbackPartialFailure means the function code was reverted but no version
// record (and so no alias) was created for it.
type RollbackPartialFailure struct {
	Function string
	Version  string
	Err      error
}

func (e *RollbackPartialFailure) Error() string {
	return fmt.Sprintf("rollback of %s to %s: code updated but version not published: %v", e.Function, e.Version, e.Err)
}

func (e *RollbackPartialFailure) Unwrap() []error {
	return []error{ErrRollbackPartial, e.Err}
}

// =============================================================================
// StageError
// =============================================================================

// StageError wraps failures of supporting steps (content store, polling
// cancellation) with the pipeline stage they happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Package ledger keeps a history of release runs and the last known alias
// pointer of every environment.
package ledger

import (
	"context"
	"time"

	"github.com/artpar/fnrelease/internal/core/domain"
)

// DefaultListLimit is used when ListRuns is called with a non-positive limit.
const DefaultListLimit = 20

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run is the record of one finished pipeline run, whatever its status.
type Run struct {
	ID          string    `json:"id" yaml:"id"`
	Function    string    `json:"function" yaml:"function"`
	Environment string    `json:"environment" yaml:"environment"`
	Version     string    `json:"version" yaml:"version"`
	VersionID   string    `json:"version_id,omitempty" yaml:"version_id,omitempty"`
	Status      string    `json:"status" yaml:"status"`
	Rollback    bool      `json:"rollback" yaml:"rollback"`
	Actor       string    `json:"actor,omitempty" yaml:"actor,omitempty"`
	CommitHash  string    `json:"commit_hash,omitempty" yaml:"commit_hash,omitempty"`
	Branch      string    `json:"branch,omitempty" yaml:"branch,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	WriteKey    string    `json:"write_key,omitempty" yaml:"write_key,omitempty"`
	Warnings    []string  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// Store defines the persistence interface for the release ledger.
type Store interface {
	// RecordRun appends a run. Runs are never updated.
	RecordRun(ctx context.Context, run Run) error

	// ListRuns returns the most recent runs for a function and environment,
	// newest first.
	ListRuns(ctx context.Context, function, environment string, limit int) ([]Run, error)

	// SaveAlias stores the alias pointer, replacing any previous one.
	SaveAlias(ctx context.Context, alias domain.AliasPointer) error

	// GetAlias returns the last saved alias pointer or ErrNotFound.
	GetAlias(ctx context.Context, function, environment string) (*domain.AliasPointer, error)

	Close() error
}

// =============================================================================
// No-op Store
// =============================================================================

// NopStore discards everything. Used when the ledger is disabled.
type NopStore struct{}

func (NopStore) RecordRun(context.Context, Run) error { return nil }

func (NopStore) ListRuns(context.Context, string, string, int) ([]Run, error) { return nil, nil }

func (NopStore) SaveAlias(context.Context, domain.AliasPointer) error { return nil }

func (NopStore) GetAlias(_ context.Context, function, environment string) (*domain.AliasPointer, error) {
	return nil, NewLedgerError("GetAlias", "alias", function+"/"+environment, "ledger disabled", ErrNotFound)
}

func (NopStore) Close() error { return nil }

// =============================================================================
// Unavailable Store
// =============================================================================

// UnavailableStore stands in for a ledger that could not be opened. Every
// call fails with Err, so callers see the outage on each write.
type UnavailableStore struct {
	Err error
}

func (s UnavailableStore) RecordRun(_ context.Context, run Run) error {
	return NewLedgerError("RecordRun", "run", run.ID, "ledger unavailable", s.cause())
}

func (s UnavailableStore) ListRuns(context.Context, string, string, int) ([]Run, error) {
	return nil, NewLedgerError("ListRuns", "run", "", "ledger unavailable", s.cause())
}

func (s UnavailableStore) SaveAlias(_ context.Context, alias domain.AliasPointer) error {
	return NewLedgerError("SaveAlias", "alias", alias.Function+"/"+alias.Environment, "ledger unavailable", s.cause())
}

func (s UnavailableStore) GetAlias(_ context.Context, function, environment string) (*domain.AliasPointer, error) {
	return nil, NewLedgerError("GetAlias", "alias", function+"/"+environment, "ledger unavailable", s.cause())
}

func (UnavailableStore) Close() error { return nil }

func (s UnavailableStore) cause() error {
	if s.Err == nil {
		return ErrConnectionFailed
	}
	return s.Err
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

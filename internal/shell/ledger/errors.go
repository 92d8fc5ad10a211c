package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when a ledger entry does not exist.
	ErrNotFound = errors.New("entry not found")

	// ErrConnectionFailed is returned when the backend cannot be reached.
	ErrConnectionFailed = errors.New("ledger connection failed")

	// ErrMigrationFailed is returned when schema migration fails.
	ErrMigrationFailed = errors.New("ledger migration failed")

	// ErrInvalidData is returned when serialization fails.
	ErrInvalidData = errors.New("invalid data format")
)

// LedgerError wraps errors with additional context.
type LedgerError struct {
	Op      string // Operation that failed (e.g., "RecordRun")
	Entity  string // Entity type (run, alias)
	ID      string // Entity ID if applicable
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// NewLedgerError creates a new LedgerError.
func NewLedgerError(op, entity, id, message string, err error) *LedgerError {
	return &LedgerError{
		Op:      op,
		Entity:  entity,
		ID:      id,
		Message: message,
		Err:     err,
	}
}

package ledger

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/fnrelease/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, NewLedgerError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	// A single connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewLedgerError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewLedgerError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Run Operations
// =============================================================================

// runRow represents a run row in the database.
type runRow struct {
	ID           string `db:"id"`
	Function     string `db:"function"`
	Environment  string `db:"environment"`
	Version      string `db:"version"`
	VersionID    string `db:"version_id"`
	Status       string `db:"status"`
	Rollback     bool   `db:"rollback"`
	Actor        string `db:"actor"`
	CommitHash   string `db:"commit_hash"`
	Branch       string `db:"branch"`
	Description  string `db:"description"`
	WriteKey     string `db:"write_key"`
	Warnings     string `db:"warnings"`
	ErrorMessage string `db:"error_message"`
	CreatedAt    string `db:"created_at"`
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run Run) error {
	warnings := run.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return NewLedgerError("RecordRun", "run", run.ID, "failed to serialize warnings", ErrInvalidData)
	}

	query := `
		INSERT INTO runs (
			id, function, environment, version, version_id, status, rollback,
			actor, commit_hash, branch, description, write_key, warnings,
			error_message, created_at
		) VALUES (
			:id, :function, :environment, :version, :version_id, :status, :rollback,
			:actor, :commit_hash, :branch, :description, :write_key, :warnings,
			:error_message, :created_at
		)`

	row := runRow{
		ID:           run.ID,
		Function:     run.Function,
		Environment:  run.Environment,
		Version:      run.Version,
		VersionID:    run.VersionID,
		Status:       run.Status,
		Rollback:     run.Rollback,
		Actor:        run.Actor,
		CommitHash:   run.CommitHash,
		Branch:       run.Branch,
		Description:  run.Description,
		WriteKey:     run.WriteKey,
		Warnings:     string(warningsJSON),
		ErrorMessage: run.Error,
		CreatedAt:    run.CreatedAt.UTC().Format(timeLayout),
	}

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewLedgerError("RecordRun", "run", run.ID, "run already recorded", err)
		}
		return NewLedgerError("RecordRun", "run", run.ID, err.Error(), err)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, function, environment string, limit int) ([]Run, error) {
	query := `
		SELECT * FROM runs
		WHERE function = ? AND environment = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, function, environment, normalizeLimit(limit)); err != nil {
		return nil, NewLedgerError("ListRuns", "run", "", err.Error(), err)
	}

	runs := make([]Run, 0, len(rows))
	for i := range rows {
		run, err := rowToRun(&rows[i])
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func rowToRun(row *runRow) (Run, error) {
	var warnings []string
	if row.Warnings != "" {
		if err := json.Unmarshal([]byte(row.Warnings), &warnings); err != nil {
			return Run{}, NewLedgerError("ListRuns", "run", row.ID, "failed to parse warnings", ErrInvalidData)
		}
	}
	if len(warnings) == 0 {
		warnings = nil
	}

	createdAt, err := time.Parse(timeLayout, row.CreatedAt)
	if err != nil {
		return Run{}, NewLedgerError("ListRuns", "run", row.ID, "failed to parse created_at", ErrInvalidData)
	}

	return Run{
		ID:          row.ID,
		Function:    row.Function,
		Environment: row.Environment,
		Version:     row.Version,
		VersionID:   row.VersionID,
		Status:      row.Status,
		Rollback:    row.Rollback,
		Actor:       row.Actor,
		CommitHash:  row.CommitHash,
		Branch:      row.Branch,
		Description: row.Description,
		WriteKey:    row.WriteKey,
		Warnings:    warnings,
		Error:       row.ErrorMessage,
		CreatedAt:   createdAt,
	}, nil
}

// =============================================================================
// Alias Operations
// =============================================================================

// aliasRow represents an alias row in the database.
type aliasRow struct {
	Function    string `db:"function"`
	Environment string `db:"environment"`
	Name        string `db:"name"`
	VersionID   string `db:"version_id"`
	Version     string `db:"version"`
	Rollback    bool   `db:"rollback"`
	Description string `db:"description"`
	UpdatedAt   string `db:"updated_at"`
}

func (s *SQLiteStore) SaveAlias(ctx context.Context, alias domain.AliasPointer) error {
	query := `
		INSERT INTO aliases (
			function, environment, name, version_id, version, rollback, description, updated_at
		) VALUES (
			:function, :environment, :name, :version_id, :version, :rollback, :description, :updated_at
		)
		ON CONFLICT (function, environment) DO UPDATE SET
			name = excluded.name,
			version_id = excluded.version_id,
			version = excluded.version,
			rollback = excluded.rollback,
			description = excluded.description,
			updated_at = excluded.updated_at`

	row := aliasRow{
		Function:    alias.Function,
		Environment: alias.Environment,
		Name:        alias.Name,
		VersionID:   alias.VersionID,
		Version:     alias.Version,
		Rollback:    alias.Rollback,
		Description: alias.Description,
		UpdatedAt:   alias.UpdatedAt.UTC().Format(timeLayout),
	}

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return NewLedgerError("SaveAlias", "alias", alias.Function+"/"+alias.Environment, err.Error(), err)
	}
	return nil
}

func (s *SQLiteStore) GetAlias(ctx context.Context, function, environment string) (*domain.AliasPointer, error) {
	query := `SELECT * FROM aliases WHERE function = ? AND environment = ?`

	var row aliasRow
	if err := s.db.GetContext(ctx, &row, query, function, environment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewLedgerError("GetAlias", "alias", function+"/"+environment, "alias not found", ErrNotFound)
		}
		return nil, NewLedgerError("GetAlias", "alias", function+"/"+environment, err.Error(), err)
	}

	updatedAt, err := time.Parse(timeLayout, row.UpdatedAt)
	if err != nil {
		return nil, NewLedgerError("GetAlias", "alias", function+"/"+environment, "failed to parse updated_at", ErrInvalidData)
	}

	return &domain.AliasPointer{
		Function:    row.Function,
		Environment: row.Environment,
		Name:        row.Name,
		VersionID:   row.VersionID,
		Version:     row.Version,
		Rollback:    row.Rollback,
		Description: row.Description,
		UpdatedAt:   updatedAt,
	}, nil
}

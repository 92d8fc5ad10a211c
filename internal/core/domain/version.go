package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxDescriptionLength is the longest description the control plane accepts
// for versions and aliases.
const MaxDescriptionLength = 256

const (
	descriptionSeparator = " | "
	commitPrefix         = "commit "
	branchPrefix         = "branch "
	rollbackPrefix       = "rollback by "
	unknownCommit        = "unknown"

	// maxCommitLength fits a full SHA-1 hash.
	maxCommitLength = 40
)

// =============================================================================
// Version Record
// =============================================================================

// VersionRecord is an immutable snapshot of published function code.
type VersionRecord struct {
	Function    string    `json:"function" yaml:"function"`
	VersionID   string    `json:"version_id" yaml:"version_id"`
	Environment string    `json:"environment" yaml:"environment"`
	Version     string    `json:"version" yaml:"version"`
	Commit      Commit    `json:"commit" yaml:"commit"`
	Rollback    bool      `json:"rollback" yaml:"rollback"`
	Description string    `json:"description" yaml:"description"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// NewVersionRecord captures a published version for req.
func NewVersionRecord(req DeploymentRequest, versionID, description string, createdAt time.Time) VersionRecord {
	return VersionRecord{
		Function:    req.Function(),
		VersionID:   versionID,
		Environment: req.Environment().Name,
		Version:     req.Version(),
		Commit:      req.Commit(),
		Rollback:    req.IsRollback(),
		Description: description,
		CreatedAt:   createdAt.UTC(),
	}
}

// =============================================================================
// Alias Pointer
// =============================================================================

// AliasPointer is the per-(function, environment) reference to the latest
// published version. Updates are last-write-wins.
type AliasPointer struct {
	Function    string    `json:"function" yaml:"function"`
	Environment string    `json:"environment" yaml:"environment"`
	Name        string    `json:"name" yaml:"name"`
	VersionID   string    `json:"version_id" yaml:"version_id"`
	Version     string    `json:"version" yaml:"version"`
	Rollback    bool      `json:"rollback" yaml:"rollback"`
	Description string    `json:"description" yaml:"description"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// AliasDescription describes what an environment alias points at.
//
// Example:
//
//	AliasDescription(EnvProd, "1.0.0", false) // "PROD current: v1.0.0"
//	AliasDescription(EnvProd, "1.0.0", true)  // "PROD current: v1.0.0 (rollback)"
func AliasDescription(env Environment, version string, rollback bool) string {
	desc := fmt.Sprintf("%s current: v%s", env.Tag(), version)
	if rollback {
		desc += " (rollback)"
	}
	return truncate(desc, MaxDescriptionLength)
}

// =============================================================================
// Version Description
// =============================================================================

// BuildDescription renders the version description for req. The output is
// deterministic for a given request. Only the branch or actor field is
// shortened to fit MaxDescriptionLength; the header, commit and timestamp
// always survive because every segment is bounded by MaxSegmentLength.
//
// Forward deployment to a versioned environment:
//
//	PROD: v1.0.0 | commit abc1234 | branch main | 2026-01-02T03:04:05Z
//
// Unversioned environments omit the branch; rollbacks replace it:
//
//	DEV: v1.0.0 | commit abc1234 | 2026-01-02T03:04:05Z
//	PROD: v1.0.0 | commit abc1234 | rollback by alice | 2026-01-02T03:04:05Z
func BuildDescription(req DeploymentRequest) string {
	env := req.Environment()
	head := fmt.Sprintf("%s: v%s", env.Tag(), req.Version())

	hash := truncate(sanitizeField(req.Commit().ShortHash), maxCommitLength)
	if hash == "" {
		hash = unknownCommit
	}
	commit := commitPrefix + hash
	stamp := req.RequestedAt().UTC().Format(time.RFC3339)

	var variablePrefix, variable string
	switch {
	case req.IsRollback():
		variablePrefix, variable = rollbackPrefix, sanitizeField(req.Actor())
	case env.Class.Versioned() && req.Commit().Branch != "":
		variablePrefix, variable = branchPrefix, sanitizeField(req.Commit().Branch)
	}

	if variablePrefix == "" {
		return strings.Join([]string{head, commit, stamp}, descriptionSeparator)
	}

	fixed := len(head) + len(commit) + len(stamp) + len(variablePrefix) + 3*len(descriptionSeparator)
	variable = truncate(variable, MaxDescriptionLength-fixed)
	parts := []string{head, commit, variablePrefix + variable, stamp}
	return strings.Join(parts, descriptionSeparator)
}

// ParsedDescription holds the fields recovered from a version description.
type ParsedDescription struct {
	EnvironmentTag string
	Version        string
	CommitHash     string
	Branch         string
	Rollback       bool
	RollbackActor  string
	Timestamp      time.Time
}

// ParseDescription is the inverse of BuildDescription.
func ParseDescription(desc string) (ParsedDescription, error) {
	parts := strings.Split(desc, descriptionSeparator)
	if len(parts) < 3 {
		return ParsedDescription{}, fmt.Errorf("%w: expected at least 3 fields, got %d", ErrInvalidDescription, len(parts))
	}

	var out ParsedDescription
	tag, version, ok := strings.Cut(parts[0], ": v")
	if !ok || tag == "" || version == "" {
		return ParsedDescription{}, fmt.Errorf("%w: bad header %q", ErrInvalidDescription, parts[0])
	}
	out.EnvironmentTag = tag
	out.Version = version

	ts, err := time.Parse(time.RFC3339, parts[len(parts)-1])
	if err != nil {
		return ParsedDescription{}, fmt.Errorf("%w: bad timestamp: %v", ErrInvalidDescription, err)
	}
	out.Timestamp = ts

	for _, p := range parts[1 : len(parts)-1] {
		switch {
		case strings.HasPrefix(p, commitPrefix):
			out.CommitHash = strings.TrimPrefix(p, commitPrefix)
			if out.CommitHash == unknownCommit {
				out.CommitHash = ""
			}
		case strings.HasPrefix(p, branchPrefix):
			out.Branch = strings.TrimPrefix(p, branchPrefix)
		case strings.HasPrefix(p, rollbackPrefix):
			out.Rollback = true
			out.RollbackActor = strings.TrimPrefix(p, rollbackPrefix)
		default:
			return ParsedDescription{}, fmt.Errorf("%w: unknown field %q", ErrInvalidDescription, p)
		}
	}
	return out, nil
}

// sanitizeField keeps user-supplied text from breaking the field separator.
func sanitizeField(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.NewReplacer("|", "/", "\n", " ", "\r", " ").Replace(s)
	return strings.TrimSpace(s)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

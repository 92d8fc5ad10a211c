// Package policy decides whether a deployment may overwrite an existing
// version artifact. This is part of the Functional Core - no I/O.
//
// The table in this file is the only definition of conflict behavior.
package policy

import (
	"fmt"

	"github.com/artpar/fnrelease/internal/core/domain"
)

// =============================================================================
// Decision Types
// =============================================================================

// Verdict is the outcome of a conflict check.
type Verdict string

const (
	Allow            Verdict = "ALLOW"
	AllowWithWarning Verdict = "ALLOW_WITH_WARNING"
	Block            Verdict = "BLOCK"
)

// Decision is derived per request and never persisted.
type Decision struct {
	Verdict Verdict `json:"verdict" yaml:"verdict"`
	Reason  string  `json:"reason" yaml:"reason"`
}

// Proceeds reports whether the pipeline may continue.
func (d Decision) Proceeds() bool {
	return d.Verdict != Block
}

// =============================================================================
// Policy Table
// =============================================================================

type cell struct {
	exists bool
	force  bool
}

var table = map[domain.PolicyClass]map[cell]Verdict{
	domain.ClassUnversioned: {
		{false, false}: Allow,
		{false, true}:  Allow,
		{true, false}:  Allow,
		{true, true}:   Allow,
	},
	domain.ClassFlexibleVersioned: {
		{false, false}: Allow,
		{false, true}:  Allow,
		{true, false}:  AllowWithWarning,
		{true, true}:   Allow,
	},
	domain.ClassStrictVersioned: {
		{false, false}: Allow,
		{false, true}:  Allow,
		{true, false}:  Block,
		{true, true}:   AllowWithWarning,
	},
}

// Decide applies the conflict table for a forward deployment.
//
//	class        | exists=false | exists, !force      | exists, force
//	unversioned  | ALLOW        | ALLOW               | ALLOW
//	flexible     | ALLOW        | ALLOW_WITH_WARNING  | ALLOW
//	strict       | ALLOW        | BLOCK               | ALLOW_WITH_WARNING
//
// An environment with an unknown class is blocked.
func Decide(env domain.Environment, force, keyExists bool) Decision {
	row, ok := table[env.Class]
	if !ok {
		return Decision{Verdict: Block, Reason: fmt.Sprintf("environment %s has unknown policy class %q", env.Name, env.Class)}
	}
	verdict := row[cell{exists: keyExists, force: force}]
	return Decision{Verdict: verdict, Reason: reason(env, verdict, force, keyExists)}
}

// DecideRollback is the relaxed rollback path. Redeploying a stored version
// is always permitted, so a BLOCK from the table is downgraded to a warning.
func DecideRollback(env domain.Environment, keyExists bool) Decision {
	d := Decide(env, false, keyExists)
	if d.Verdict == Block {
		return Decision{
			Verdict: AllowWithWarning,
			Reason:  fmt.Sprintf("rolling back %s to an already deployed version", env.Name),
		}
	}
	return d
}

func reason(env domain.Environment, v Verdict, force, exists bool) string {
	switch {
	case !exists && env.Class.Versioned():
		return fmt.Sprintf("version not yet deployed to %s", env.Name)
	case !exists:
		return fmt.Sprintf("%s artifacts are timestamp-addressed", env.Name)
	case v == Block:
		return fmt.Sprintf("version already deployed to %s; use force to overwrite", env.Name)
	case v == AllowWithWarning && force:
		return fmt.Sprintf("forcing overwrite of existing version in %s", env.Name)
	case v == AllowWithWarning:
		return fmt.Sprintf("overwriting existing version in %s", env.Name)
	case force:
		return fmt.Sprintf("forced overwrite of existing version in %s", env.Name)
	default:
		return fmt.Sprintf("%s allows redeploying existing artifacts", env.Name)
	}
}

// Package release runs the deployment pipeline: store the artifact, update
// the function code, wait for it to settle, publish a version and move the
// environment alias. Rollback reuses the same steps.
// This is part of the Imperative Shell - it coordinates the control plane,
// the artifact store and the ledger.
package release

import (
	"time"

	"github.com/artpar/fnrelease/internal/core/retry"
)

// Config configures the release pipeline.
type Config struct {
	// PollAttempts is the readiness polling budget.
	// Default: 30.
	PollAttempts int

	// PollInterval is the wait between readiness polls.
	// Default: 2 seconds.
	PollInterval time.Duration

	// Publish is the retry policy for version publication.
	// Default: retry.DefaultPolicy().
	Publish retry.Policy

	// CallTimeout bounds every single remote call.
	// Default: 30 seconds.
	CallTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PollAttempts: 30,
		PollInterval: 2 * time.Second,
		Publish:      retry.DefaultPolicy(),
		CallTimeout:  30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollAttempts <= 0 {
		c.PollAttempts = d.PollAttempts
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Publish.MaxAttempts <= 0 {
		c.Publish = d.Publish
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	return c
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/artpar/fnrelease/internal/core/domain"
	"github.com/artpar/fnrelease/internal/shell/artifacts"
	"github.com/artpar/fnrelease/internal/shell/controlplane"
	"github.com/artpar/fnrelease/internal/shell/release"
)

// =============================================================================
// Test Backends
// =============================================================================

// readyControlPlane reports every update as settled immediately.
type readyControlPlane struct {
	mu         sync.Mutex
	versions   int
	publishErr error
	updates    []domain.ArtifactLocation
}

func (c *readyControlPlane) GetState(context.Context, string) (domain.FunctionState, error) {
	return domain.FunctionState{State: domain.StateActive, LastUpdateStatus: domain.UpdateSuccessful}, nil
}

func (c *readyControlPlane) UpdateCode(_ context.Context, _ string, loc domain.ArtifactLocation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, loc)
	return nil
}

func (c *readyControlPlane) PublishVersion(context.Context, string, string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return "", c.publishErr
	}
	c.versions++
	return fmt.Sprint(c.versions), nil
}

func (c *readyControlPlane) CreateOrUpdateAlias(context.Context, string, string, string, string) error {
	return nil
}

type testEnv struct {
	dir    string
	config string
	cp     *readyControlPlane
	store  *artifacts.MemoryStore
}

// setupCLI points the CLI at in-memory backends and a SQLite ledger in a
// temp dir, and returns the path of a config file for it.
func setupCLI(t *testing.T) *testEnv {
	t.Helper()
	clearEnv(t)

	env := &testEnv{
		dir:   t.TempDir(),
		cp:    &readyControlPlane{},
		store: artifacts.NewMemoryStore("releases"),
	}

	orig := backendFactory
	backendFactory = func(*Config, *slog.Logger) (controlplane.ControlPlane, artifacts.Store, error) {
		return env.cp, env.store, nil
	}
	t.Cleanup(func() { backendFactory = orig })

	env.config = filepath.Join(env.dir, "fnrelease.yaml")
	content := fmt.Sprintf(`
function: orders
version_file: %s
readiness:
  max_attempts: 2
  interval: 1ms
publish:
  max_attempts: 2
  initial_delay: 1ms
ledger:
  backend: sqlite
  dsn: %s
log:
  level: error
environments:
  qa: strict
`, filepath.Join(env.dir, "__version__.py"), filepath.Join(env.dir, "ledger.db"))
	require.NoError(t, os.WriteFile(env.config, []byte(content), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "__version__.py"), []byte("__version__ = \"2.1.0\"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "bundle.zip"), []byte("zip-bytes"), 0644))
	return env
}

func (e *testEnv) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{args[0], "--config", e.config}, args[1:]...)
	code := run(full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (e *testEnv) artifact() string {
	return filepath.Join(e.dir, "bundle.zip")
}

func decodeResult(t *testing.T, out string) release.Result {
	t.Helper()
	var res release.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	return res
}

// =============================================================================
// Deploy Command Tests
// =============================================================================

func TestRun_DeployReadsVersionFile(t *testing.T) {
	env := setupCLI(t)

	code, out, stderr := env.run(t, "deploy", "--env", "prod", "--artifact", env.artifact(), "--commit", "abc1234", "--branch", "main")
	require.Equal(t, ExitSuccess, code, stderr)

	res := decodeResult(t, out)
	assert.Equal(t, release.StatusSucceeded, res.Status)
	assert.Equal(t, "2.1.0", res.Request.Version)
	assert.Equal(t, "orders/environments/prod/versions/2.1.0/orders-2.1.0.zip", res.Keys.WriteKey)
	assert.Equal(t, "prod-current", res.Alias.Name)

	stored, err := env.store.Get(context.Background(), res.Keys.WriteKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("zip-bytes"), stored)
}

func TestRun_DeployDuplicateProdIsBlocked(t *testing.T) {
	env := setupCLI(t)

	code, _, _ := env.run(t, "deploy", "--env", "prod", "--version", "1.0.0", "--artifact", env.artifact())
	require.Equal(t, ExitSuccess, code)

	code, out, _ := env.run(t, "deploy", "--env", "prod", "--version", "1.0.0", "--artifact", env.artifact())
	assert.Equal(t, ExitFailure, code)
	res := decodeResult(t, out)
	assert.Equal(t, release.StatusBlocked, res.Status)
	assert.Len(t, env.cp.updates, 1)

	code, out, _ = env.run(t, "deploy", "--env", "prod", "--version", "1.0.0", "--artifact", env.artifact(), "--force")
	assert.Equal(t, ExitWarnings, code)
	assert.Equal(t, release.StatusSucceededWithWarnings, decodeResult(t, out).Status)
}

func TestRun_DeployCustomEnvironment(t *testing.T) {
	env := setupCLI(t)

	code, out, _ := env.run(t, "deploy", "--env", "qa", "--version", "1.0.0", "--artifact", env.artifact())
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "qa-current", decodeResult(t, out).Alias.Name)

	code, _, _ = env.run(t, "deploy", "--env", "qa", "--version", "1.0.0", "--artifact", env.artifact())
	assert.Equal(t, ExitFailure, code, "qa is declared strict")
}

func TestRun_DeployUsageErrors(t *testing.T) {
	env := setupCLI(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing env", []string{"deploy", "--version", "1.0.0", "--artifact", env.artifact()}},
		{"unknown env", []string{"deploy", "--env", "moon", "--version", "1.0.0", "--artifact", env.artifact()}},
		{"missing artifact", []string{"deploy", "--env", "dev", "--version", "1.0.0"}},
		{"unreadable artifact", []string{"deploy", "--env", "dev", "--version", "1.0.0", "--artifact", filepath.Join(env.dir, "nope.zip")}},
		{"bad version", []string{"deploy", "--env", "dev", "--version", "../etc", "--artifact", env.artifact()}},
		{"unknown flag", []string{"deploy", "--bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, _ := env.run(t, tt.args...)
			assert.Equal(t, ExitConfigError, code)
			assert.Empty(t, out)
			assert.Empty(t, env.cp.updates)
		})
	}
}

func TestRun_DeployYAMLOutput(t *testing.T) {
	env := setupCLI(t)

	code, out, _ := env.run(t, "deploy", "--env", "dev", "--version", "1.0.0", "--artifact", env.artifact(), "-o", "yaml")
	require.Equal(t, ExitSuccess, code)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "succeeded", doc["status"])
}

// =============================================================================
// Rollback, Check and History Tests
// =============================================================================

func TestRun_RollbackAndHistory(t *testing.T) {
	env := setupCLI(t)

	code, _, _ := env.run(t, "deploy", "--env", "staging", "--version", "1.0.0", "--artifact", env.artifact())
	require.Equal(t, ExitSuccess, code)
	code, _, _ = env.run(t, "deploy", "--env", "staging", "--version", "1.1.0", "--artifact", env.artifact())
	require.Equal(t, ExitSuccess, code)

	code, out, _ := env.run(t, "rollback", "--env", "staging", "--to", "1.0.0", "--actor", "bob")
	assert.Equal(t, ExitWarnings, code)
	res := decodeResult(t, out)
	assert.True(t, res.Request.Rollback)
	assert.Equal(t, "STAGING current: v1.0.0 (rollback)", res.Alias.Description)

	code, out, _ = env.run(t, "history", "--env", "staging", "--limit", "2")
	require.Equal(t, ExitSuccess, code)

	var hist historyOutput
	require.NoError(t, json.Unmarshal([]byte(out), &hist))
	require.Len(t, hist.Runs, 2)
	assert.True(t, hist.Runs[0].Rollback)
	assert.Equal(t, "1.1.0", hist.Runs[1].Version)
	require.NotNil(t, hist.Current)
	assert.Equal(t, "1.0.0", hist.Current.Version)
}

func TestRun_RollbackMissingVersion(t *testing.T) {
	env := setupCLI(t)

	code, out, _ := env.run(t, "rollback", "--env", "prod", "--to", "9.9.9", "--actor", "bob")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, release.StatusFailed, decodeResult(t, out).Status)
	assert.Empty(t, env.cp.updates)
}

func TestRun_RollbackPartial(t *testing.T) {
	env := setupCLI(t)
	code, _, _ := env.run(t, "deploy", "--env", "prod", "--version", "1.0.0", "--artifact", env.artifact())
	require.Equal(t, ExitSuccess, code)

	env.cp.publishErr = errors.New("quota exceeded")
	code, out, _ := env.run(t, "rollback", "--env", "prod", "--to", "1.0.0", "--actor", "bob")
	assert.Equal(t, ExitPartial, code)
	assert.Equal(t, release.StatusPartial, decodeResult(t, out).Status)
}

func TestRun_Check(t *testing.T) {
	env := setupCLI(t)

	code, out, _ := env.run(t, "check", "--env", "prod", "--version", "1.0.0")
	require.Equal(t, ExitSuccess, code)
	var check release.CheckResult
	require.NoError(t, json.Unmarshal([]byte(out), &check))
	assert.True(t, check.CanDeploy)
	assert.Empty(t, env.store.Keys())

	code, _, _ = env.run(t, "deploy", "--env", "prod", "--version", "1.0.0", "--artifact", env.artifact())
	require.Equal(t, ExitSuccess, code)

	code, out, _ = env.run(t, "check", "--env", "prod", "--version", "1.0.0")
	assert.Equal(t, ExitFailure, code)
	require.NoError(t, json.Unmarshal([]byte(out), &check))
	assert.False(t, check.CanDeploy)
	assert.True(t, check.Exists)
}

func TestRun_HistoryEmpty(t *testing.T) {
	env := setupCLI(t)

	code, out, _ := env.run(t, "history", "--env", "dev")
	require.Equal(t, ExitSuccess, code)

	var hist historyOutput
	require.NoError(t, json.Unmarshal([]byte(out), &hist))
	assert.Empty(t, hist.Runs)
	assert.Nil(t, hist.Current)
}

// =============================================================================
// Top-level Tests
// =============================================================================

func TestRun_NoArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, ExitConfigError, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage: fnrelease")
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, ExitConfigError, run([]string{"launch"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "launch"`)
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, ExitSuccess, run([]string{"version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "fnrelease dev")
}

func TestRun_MissingFunction(t *testing.T) {
	clearEnv(t)
	t.Setenv("FNRELEASE_LEDGER_BACKEND", "none")
	var stdout, stderr bytes.Buffer
	code := run([]string{"history", "--env", "prod"}, &stdout, &stderr)
	assert.Equal(t, ExitConfigError, code)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		out  any
		err  error
		want int
	}{
		{"success", &release.Result{Status: release.StatusSucceeded}, nil, ExitSuccess},
		{"warnings", &release.Result{Status: release.StatusSucceededWithWarnings}, nil, ExitWarnings},
		{"blocked", &release.Result{Status: release.StatusBlocked}, &domain.ConflictError{}, ExitFailure},
		{"partial", &release.Result{Status: release.StatusPartial}, &domain.RollbackPartialFailure{Err: errors.New("x")}, ExitPartial},
		{"invalid input", nil, domain.NewInvalidInputError("version", "", "empty"), ExitConfigError},
		{"unknown env", nil, fmt.Errorf("lookup: %w", domain.ErrUnknownEnvironment), ExitConfigError},
		{"command error", nil, &CommandError{Op: "x", Err: errors.New("y"), ExitCode: ExitConfigError}, ExitConfigError},
		{"check blocked", release.CheckResult{CanDeploy: false}, nil, ExitFailure},
		{"check ok", release.CheckResult{CanDeploy: true}, nil, ExitSuccess},
		{"history", historyOutput{}, nil, ExitSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.out, tt.err))
		})
	}
}

func TestNewAWSBackends_RequiresBucketAndCredentials(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	_, _, err := newAWSBackends(&Config{}, logger)
	assert.ErrorContains(t, err, "artifacts.bucket")

	_, _, err = newAWSBackends(&Config{Artifacts: ArtifactsConfig{Bucket: "b"}}, logger)
	assert.ErrorContains(t, err, "credentials")

	cp, store, err := newAWSBackends(&Config{
		AWS:       AWSConfig{Region: "us-east-1", AccessKeyID: "id", SecretAccessKey: "secret", Endpoint: "http://localhost:4566"},
		Artifacts: ArtifactsConfig{Bucket: "b", UsePathStyle: true},
	}, logger)
	require.NoError(t, err)
	assert.NotNil(t, cp)
	assert.Equal(t, domain.ArtifactLocation{Bucket: "b", Key: "k"}, store.Location("k"))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/artpar/fnrelease/internal/core/domain"
	"github.com/artpar/fnrelease/internal/shell/artifacts"
	"github.com/artpar/fnrelease/internal/shell/controlplane"
	"github.com/artpar/fnrelease/internal/shell/ledger"
	"github.com/artpar/fnrelease/internal/shell/release"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitConfigError = 2
	ExitWarnings    = 3
	ExitPartial     = 4
)

// CommandError carries the exit code for failures outside the pipeline.
type CommandError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func usageError(op, format string, args ...any) error {
	return &CommandError{Op: op, Err: fmt.Errorf(format, args...), ExitCode: ExitConfigError}
}

// exitCode maps a command outcome to the process exit code.
func exitCode(out any, err error) int {
	var cmdErr *CommandError
	switch {
	case errors.As(err, &cmdErr):
		return cmdErr.ExitCode
	case errors.Is(err, domain.ErrRollbackPartial):
		return ExitPartial
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnknownEnvironment),
		errors.Is(err, domain.ErrVersionFileUnreadable):
		return ExitConfigError
	case err != nil:
		return ExitFailure
	}

	switch v := out.(type) {
	case *release.Result:
		if v.Status == release.StatusSucceededWithWarnings {
			return ExitWarnings
		}
	case release.CheckResult:
		if !v.CanDeploy {
			return ExitFailure
		}
	}
	return ExitSuccess
}

// =============================================================================
// Commands
// =============================================================================

type command struct {
	name    string
	summary string
	flags   func(fs *pflag.FlagSet)
	run     func(ctx context.Context, a *app, fs *pflag.FlagSet) (any, error)
}

var commands = []command{
	{
		name:    "deploy",
		summary: "store an artifact, update the function and publish a version",
		flags: func(fs *pflag.FlagSet) {
			fs.String("env", "", "target environment")
			fs.String("version", "", "version to deploy (default: read from the version file)")
			fs.Bool("force", false, "deploy over an existing version artifact")
			fs.String("artifact", "", "path to the artifact zip")
			fs.String("branch", "", "source branch")
			fs.String("commit", "", "source commit short hash")
			fs.String("actor", os.Getenv("USER"), "who is deploying")
		},
		run: runDeploy,
	},
	{
		name:    "rollback",
		summary: "re-activate a previously stored version",
		flags: func(fs *pflag.FlagSet) {
			fs.String("env", "", "target environment")
			fs.String("to", "", "version to roll back to")
			fs.String("commit", "", "commit short hash of the target version, if known")
			fs.String("actor", os.Getenv("USER"), "who is rolling back")
		},
		run: runRollback,
	},
	{
		name:    "check",
		summary: "report whether a deployment would be allowed, without changing anything",
		flags: func(fs *pflag.FlagSet) {
			fs.String("env", "", "target environment")
			fs.String("version", "", "version to check (default: read from the version file)")
			fs.Bool("force", false, "evaluate as a forced deployment")
		},
		run: runCheck,
	},
	{
		name:    "history",
		summary: "list recent runs and the current alias of an environment",
		flags: func(fs *pflag.FlagSet) {
			fs.String("env", "", "environment")
			fs.Int("limit", ledger.DefaultListLimit, "maximum number of runs")
		},
		run: runHistory,
	},
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to config file")
	fs.Bool("debug", false, "enable debug logging")
	fs.StringP("output", "o", "json", "output format: json or yaml")
	fs.String("function", "", "function name")
}

func runDeploy(ctx context.Context, a *app, fs *pflag.FlagSet) (any, error) {
	params, err := a.baseParams(fs)
	if err != nil {
		return nil, err
	}
	if params.Version, err = a.version(fs); err != nil {
		return nil, err
	}

	path, _ := fs.GetString("artifact")
	if path == "" {
		return nil, usageError("deploy", "--artifact is required")
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, &CommandError{Op: "read artifact", Err: err, ExitCode: ExitConfigError}
	}
	params.Artifact = body
	params.Force, _ = fs.GetBool("force")
	params.Commit.Branch, _ = fs.GetString("branch")
	params.Commit.ShortHash, _ = fs.GetString("commit")
	params.Actor, _ = fs.GetString("actor")

	req, err := domain.NewDeploymentRequest(params)
	if err != nil {
		return nil, err
	}

	d, err := a.deployer()
	if err != nil {
		return nil, err
	}
	return d.Deploy(ctx, req)
}

func runRollback(ctx context.Context, a *app, fs *pflag.FlagSet) (any, error) {
	params, err := a.baseParams(fs)
	if err != nil {
		return nil, err
	}
	target, _ := fs.GetString("to")
	if target == "" {
		return nil, usageError("rollback", "--to is required")
	}
	actor, _ := fs.GetString("actor")
	hash, _ := fs.GetString("commit")

	d, err := a.deployer()
	if err != nil {
		return nil, err
	}
	return release.NewRollbacker(d).Rollback(ctx, params.Function, params.Environment, target, actor, domain.Commit{ShortHash: hash})
}

func runCheck(ctx context.Context, a *app, fs *pflag.FlagSet) (any, error) {
	params, err := a.baseParams(fs)
	if err != nil {
		return nil, err
	}
	if params.Version, err = a.version(fs); err != nil {
		return nil, err
	}
	params.Force, _ = fs.GetBool("force")

	req, err := domain.NewCheckRequest(params)
	if err != nil {
		return nil, err
	}

	d, err := a.deployer()
	if err != nil {
		return nil, err
	}
	return d.Check(ctx, req)
}

// historyOutput is the record printed by the history command.
type historyOutput struct {
	Function    string               `json:"function" yaml:"function"`
	Environment string               `json:"environment" yaml:"environment"`
	Current     *domain.AliasPointer `json:"current,omitempty" yaml:"current,omitempty"`
	Runs        []ledger.Run         `json:"runs" yaml:"runs"`
}

func runHistory(ctx context.Context, a *app, fs *pflag.FlagSet) (any, error) {
	params, err := a.baseParams(fs)
	if err != nil {
		return nil, err
	}
	limit, _ := fs.GetInt("limit")

	runs, err := a.ledger.ListRuns(ctx, params.Function, params.Environment.Name, limit)
	if err != nil {
		return nil, err
	}
	out := historyOutput{
		Function:    params.Function,
		Environment: params.Environment.Name,
		Runs:        runs,
	}
	if out.Runs == nil {
		out.Runs = []ledger.Run{}
	}

	current, err := a.ledger.GetAlias(ctx, params.Function, params.Environment.Name)
	switch {
	case err == nil:
		out.Current = current
	case !errors.Is(err, ledger.ErrNotFound):
		return nil, err
	}
	return out, nil
}

// =============================================================================
// Application Wiring
// =============================================================================

// backendFactory builds the control plane and artifact store. Tests replace it.
var backendFactory = newAWSBackends

type app struct {
	cfg    *Config
	envs   domain.Environments
	ledger ledger.Store
	logger *slog.Logger
}

func newApp(cfg *Config, logger *slog.Logger) (*app, error) {
	envs, err := domain.DefaultEnvironments().WithCustom(cfg.Environments)
	if err != nil {
		return nil, &CommandError{Op: "load environments", Err: err, ExitCode: ExitConfigError}
	}

	store, err := openLedger(cfg)
	if err != nil {
		logger.Warn("ledger unavailable", "backend", cfg.Ledger.Backend, "error", err)
		store = ledger.UnavailableStore{Err: err}
	}

	return &app{cfg: cfg, envs: envs, ledger: store, logger: logger}, nil
}

func (a *app) Close() error {
	return a.ledger.Close()
}

// baseParams resolves the function and environment shared by every command.
func (a *app) baseParams(fs *pflag.FlagSet) (domain.DeploymentParams, error) {
	if a.cfg.Function == "" {
		return domain.DeploymentParams{}, usageError("configure", "function is required (--function or config key function)")
	}
	name, _ := fs.GetString("env")
	if name == "" {
		return domain.DeploymentParams{}, usageError("configure", "--env is required (one of %v)", a.envs.Names())
	}
	env, err := a.envs.Lookup(name)
	if err != nil {
		return domain.DeploymentParams{}, err
	}
	return domain.DeploymentParams{Function: a.cfg.Function, Environment: env}, nil
}

// version returns the --version flag or, when unset, the version file's value.
func (a *app) version(fs *pflag.FlagSet) (string, error) {
	if v, _ := fs.GetString("version"); v != "" {
		return v, nil
	}
	content, err := os.ReadFile(a.cfg.VersionFile)
	if err != nil {
		return "", &CommandError{
			Op:       "read version file",
			Err:      fmt.Errorf("%w: %v (pass --version to override)", domain.ErrVersionFileUnreadable, err),
			ExitCode: ExitConfigError,
		}
	}
	return domain.ParseVersionFile(content)
}

func (a *app) deployer() (*release.Deployer, error) {
	cp, store, err := backendFactory(a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	return release.NewDeployer(release.Deps{
		ControlPlane: cp,
		Artifacts:    store,
		Ledger:       a.ledger,
		Logger:       a.logger,
	}, a.cfg.ReleaseConfig()), nil
}

func newAWSBackends(cfg *Config, logger *slog.Logger) (controlplane.ControlPlane, artifacts.Store, error) {
	if cfg.Artifacts.Bucket == "" {
		return nil, nil, usageError("configure artifacts", "artifacts.bucket is required")
	}
	if cfg.AWS.AccessKeyID == "" || cfg.AWS.SecretAccessKey == "" {
		return nil, nil, usageError("configure aws", "credentials are required (aws.access_key_id and aws.secret_access_key, or AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY)")
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, cfg.AWS.SessionToken)
	var endpoint *string
	if cfg.AWS.Endpoint != "" {
		endpoint = aws.String(cfg.AWS.Endpoint)
	}

	lambdaClient := lambda.New(lambda.Options{
		Region:       cfg.AWS.Region,
		Credentials:  creds,
		BaseEndpoint: endpoint,
	})
	s3Client := s3.New(s3.Options{
		Region:       cfg.AWS.Region,
		Credentials:  creds,
		BaseEndpoint: endpoint,
		UsePathStyle: cfg.Artifacts.UsePathStyle,
	})

	return controlplane.NewLambdaClient(lambdaClient, logger),
		artifacts.NewS3Store(s3Client, cfg.Artifacts.Bucket),
		nil
}

func openLedger(cfg *Config) (ledger.Store, error) {
	switch cfg.Ledger.Backend {
	case "none":
		return ledger.NopStore{}, nil
	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Ledger.RedisAddr},
			Password: cfg.Ledger.RedisPassword,
			DB:       cfg.Ledger.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, ledger.NewLedgerError("openLedger", "", "", "failed to ping redis", errors.Join(ledger.ErrConnectionFailed, err))
		}
		return ledger.NewRedisStore(client, cfg.Ledger.RedisPrefix, cfg.Ledger.MaxRuns), nil
	default:
		return ledger.NewSQLiteStore(cfg.Ledger.DSN)
	}
}

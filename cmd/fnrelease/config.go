package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/artpar/fnrelease/internal/core/retry"
	"github.com/artpar/fnrelease/internal/shell/release"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Function     string            `mapstructure:"function"`
	VersionFile  string            `mapstructure:"version_file"`
	Output       string            `mapstructure:"output"`
	AWS          AWSConfig         `mapstructure:"aws"`
	Artifacts    ArtifactsConfig   `mapstructure:"artifacts"`
	Readiness    ReadinessConfig   `mapstructure:"readiness"`
	Publish      PublishConfig     `mapstructure:"publish"`
	Ledger       LedgerConfig      `mapstructure:"ledger"`
	Log          LogConfig         `mapstructure:"log"`
	Environments map[string]string `mapstructure:"environments"`
}

// AWSConfig holds AWS client configuration.
type AWSConfig struct {
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`

	// Endpoint overrides the service endpoint, e.g. for a local emulator.
	Endpoint string `mapstructure:"endpoint"`

	// CallTimeout bounds every single API call.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// ArtifactsConfig holds artifact store configuration.
type ArtifactsConfig struct {
	Bucket       string `mapstructure:"bucket"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// ReadinessConfig holds readiness polling configuration.
type ReadinessConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval"`
}

// PublishConfig holds the version publication retry policy.
type PublishConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

// LedgerConfig holds release ledger configuration.
type LedgerConfig struct {
	// Backend is one of "sqlite", "redis" or "none".
	Backend string `mapstructure:"backend"`

	// DSN is the SQLite database path.
	DSN string `mapstructure:"dsn"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`

	// MaxRuns caps the Redis run list per function and environment.
	MaxRuns int `mapstructure:"max_runs"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ReleaseConfig converts the pipeline sections into a release.Config.
func (c *Config) ReleaseConfig() release.Config {
	return release.Config{
		PollAttempts: c.Readiness.MaxAttempts,
		PollInterval: c.Readiness.Interval,
		Publish: retry.Policy{
			MaxAttempts:  c.Publish.MaxAttempts,
			InitialDelay: c.Publish.InitialDelay,
			Multiplier:   c.Publish.Multiplier,
			MaxDelay:     c.Publish.MaxDelay,
		},
		CallTimeout: c.AWS.CallTimeout,
	}
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	switch c.Output {
	case "json", "yaml":
	default:
		return fmt.Errorf("output must be json or yaml, got %q", c.Output)
	}
	switch c.Ledger.Backend {
	case "sqlite", "redis", "none":
	default:
		return fmt.Errorf("ledger.backend must be sqlite, redis or none, got %q", c.Ledger.Backend)
	}
	if c.Readiness.MaxAttempts < 1 {
		return fmt.Errorf("readiness.max_attempts must be positive")
	}
	if c.Publish.MaxAttempts < 1 {
		return fmt.Errorf("publish.max_attempts must be positive")
	}
	return nil
}

// =============================================================================
// Config Loading
// =============================================================================

// flagKeys maps global flag names to config keys.
var flagKeys = map[string]string{
	"function": "function",
	"output":   "output",
}

// LoadConfig loads configuration from defaults, file, environment and flags,
// in increasing order of precedence. flags may be nil.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("function", "")
	v.SetDefault("version_file", "__version__.py")
	v.SetDefault("output", "json")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")
	v.SetDefault("aws.session_token", "")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("aws.call_timeout", "30s")
	v.SetDefault("artifacts.bucket", "")
	v.SetDefault("artifacts.use_path_style", false)
	v.SetDefault("readiness.max_attempts", 30)
	v.SetDefault("readiness.interval", "2s")
	v.SetDefault("publish.max_attempts", 5)
	v.SetDefault("publish.initial_delay", "2s")
	v.SetDefault("publish.multiplier", 2.0)
	v.SetDefault("publish.max_delay", "30s")
	v.SetDefault("ledger.backend", "sqlite")
	v.SetDefault("ledger.dsn", "fnrelease.db")
	v.SetDefault("ledger.redis_addr", "localhost:6379")
	v.SetDefault("ledger.redis_password", "")
	v.SetDefault("ledger.redis_db", 0)
	v.SetDefault("ledger.redis_prefix", "fnrelease")
	v.SetDefault("ledger.max_runs", 200)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("FNRELEASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The standard AWS variables are honoured after the prefixed ones.
	for key, env := range map[string]string{
		"aws.region":            "AWS_REGION",
		"aws.access_key_id":     "AWS_ACCESS_KEY_ID",
		"aws.secret_access_key": "AWS_SECRET_ACCESS_KEY",
		"aws.session_token":     "AWS_SESSION_TOKEN",
	} {
		if err := v.BindEnv(key, "FNRELEASE_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
		if debug, err := flags.GetBool("debug"); err == nil && debug {
			v.Set("log.level", "debug")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Output = strings.ToLower(cfg.Output)
	cfg.Ledger.Backend = strings.ToLower(cfg.Ledger.Backend)

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format. Logs go
// to w so that stdout stays reserved for the outcome record.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// Package config provides YAML-based configuration loading for jobsched.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/utkarsh5026/jobsched/batch"
	"github.com/utkarsh5026/jobsched/internal/algorithms"
)

// Config is the root application configuration.
type Config struct {
	// Policy selects how jobs are admitted
	Policy PolicyConfig `mapstructure:"policy"`

	// Retry configures the retry wrapper applied to every job
	Retry RetryConfig `mapstructure:"retry"`

	// FailFast cancels the whole run on the first failed job
	FailFast bool `mapstructure:"fail_fast"`

	// JobTimeout bounds every job attempt, 0 disables it
	JobTimeout time.Duration `mapstructure:"job_timeout"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Demo shapes the synthetic workload of the CLI
	Demo DemoConfig `mapstructure:"demo"`
}

// PolicyConfig selects and parameterises an execution policy.
type PolicyConfig struct {
	// Mode: unbounded, batched, streamed or rate-limited
	Mode           string  `mapstructure:"mode"`
	BatchSize      int     `mapstructure:"batch_size"`
	MaxConcurrency int     `mapstructure:"max_concurrency"`
	JobsPerSecond  float64 `mapstructure:"jobs_per_second"`
	Burst          int     `mapstructure:"burst"`
}

// RetryConfig mirrors batch.RetryPolicy. MaxAttempts 1 disables retries,
// 0 retries until success.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	Backoff        string        `mapstructure:"backoff"`
	InitialDelay   time.Duration `mapstructure:"initial_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	Jitter         float64       `mapstructure:"jitter"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DemoConfig describes the synthetic jobs generated by the CLI.
type DemoConfig struct {
	Jobs     int           `mapstructure:"jobs"`
	FailRate float64       `mapstructure:"fail_rate"`
	Latency  time.Duration `mapstructure:"latency"`
}

const (
	ModeUnbounded   = "unbounded"
	ModeBatched     = "batched"
	ModeStreamed    = "streamed"
	ModeRateLimited = "rate-limited"
)

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Policy: PolicyConfig{
			Mode:           ModeStreamed,
			BatchSize:      4,
			MaxConcurrency: 4,
			JobsPerSecond:  10,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			Backoff:      "exponential",
			InitialDelay: 20 * time.Millisecond,
			MaxDelay:     time.Second,
			Jitter:       0.2,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stderr"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/jobsched.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Demo: DemoConfig{
			Jobs:     40,
			FailRate: 0.3,
			Latency:  50 * time.Millisecond,
		},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix JOBSCHED and `.`/`-` are replaced with `_`.
// Example: JOBSCHED_POLICY_MODE=batched
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("JOBSCHED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("policy.mode", cfg.Policy.Mode)
	v.SetDefault("policy.batch_size", cfg.Policy.BatchSize)
	v.SetDefault("policy.max_concurrency", cfg.Policy.MaxConcurrency)
	v.SetDefault("policy.jobs_per_second", cfg.Policy.JobsPerSecond)
	v.SetDefault("policy.burst", cfg.Policy.Burst)
	v.SetDefault("retry.max_attempts", cfg.Retry.MaxAttempts)
	v.SetDefault("retry.backoff", cfg.Retry.Backoff)
	v.SetDefault("retry.initial_delay", cfg.Retry.InitialDelay)
	v.SetDefault("retry.max_delay", cfg.Retry.MaxDelay)
	v.SetDefault("retry.jitter", cfg.Retry.Jitter)
	v.SetDefault("retry.attempt_timeout", cfg.Retry.AttemptTimeout)
	v.SetDefault("fail_fast", cfg.FailFast)
	v.SetDefault("job_timeout", cfg.JobTimeout)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("demo.jobs", cfg.Demo.Jobs)
	v.SetDefault("demo.fail_rate", cfg.Demo.FailRate)
	v.SetDefault("demo.latency", cfg.Demo.Latency)

	if path == "" {
		if envPath := os.Getenv("JOBSCHED_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("jobsched")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".jobsched"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalises the configuration and checks it can build an executor.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}

	c.Policy.Mode = strings.ToLower(strings.TrimSpace(c.Policy.Mode))
	policy, err := c.ExecutionPolicy()
	if err != nil {
		return err
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("invalid retry: %w", err)
	}
	if c.FailFast && c.Retry.MaxAttempts == batch.UnboundedAttempts {
		return errors.New("fail_fast requires a finite retry.max_attempts")
	}
	if c.JobTimeout < 0 {
		return fmt.Errorf("invalid job_timeout: %v", c.JobTimeout)
	}
	if c.Demo.FailRate < 0 || c.Demo.FailRate > 1 {
		return fmt.Errorf("invalid demo.fail_rate: %v", c.Demo.FailRate)
	}
	if _, err := batch.NewExecutor[struct{}](policy, c.Options()...); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	return nil
}

// ExecutionPolicy builds the batch policy selected by Policy.Mode.
// Its parameters are checked by Validate.
func (c *Config) ExecutionPolicy() (batch.ExecutionPolicy, error) {
	p := c.Policy
	switch p.Mode {
	case ModeUnbounded, "":
		return batch.UnboundedPolicy{}, nil
	case ModeBatched:
		return batch.BatchedPolicy{BatchSize: p.BatchSize}, nil
	case ModeStreamed:
		return batch.StreamedPolicy{MaxConcurrency: p.MaxConcurrency}, nil
	case ModeRateLimited, "ratelimited", "rate":
		return batch.RateLimitedPolicy{
			MaxConcurrency: p.MaxConcurrency,
			JobsPerSecond:  p.JobsPerSecond,
			Burst:          p.Burst,
		}, nil
	default:
		return nil, fmt.Errorf("invalid policy.mode: %q", p.Mode)
	}
}

// Retries reports whether jobs should be wrapped with RetryPolicy.
func (c *Config) Retries() bool {
	return c.Retry.MaxAttempts != 1
}

// RetryPolicy converts the retry section into a batch.RetryPolicy.
func (c *Config) RetryPolicy() batch.RetryPolicy {
	r := c.Retry
	return batch.RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		Backoff: batch.Backoff{
			Kind:    algorithms.ParseKind(r.Backoff),
			Initial: r.InitialDelay,
			Max:     r.MaxDelay,
			Jitter:  r.Jitter,
		},
		AttemptTimeout: r.AttemptTimeout,
	}
}

// Options returns the executor options described by the configuration.
func (c *Config) Options() []batch.Option {
	var opts []batch.Option
	if c.Retries() {
		opts = append(opts, batch.WithRetryPolicy(c.RetryPolicy()))
	}
	if c.FailFast {
		opts = append(opts, batch.WithFailFast())
	}
	if c.JobTimeout > 0 {
		opts = append(opts, batch.WithJobTimeout(c.JobTimeout))
	}
	return opts
}

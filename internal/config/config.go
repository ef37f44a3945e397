package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"MW_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"MW_DB_MAX_CONNS" default:"8"`

	ScanShardCount int `envconfig:"SCAN_SHARD_COUNT" default:"10"`

	WorkerTimeBudget        time.Duration `envconfig:"WORKER_TIME_BUDGET" default:"45s"`
	WorkerInvocationTimeout time.Duration `envconfig:"WORKER_INVOCATION_TIMEOUT" default:"60s"`
	WorkerPagePairBudget    int           `envconfig:"WORKER_PAGE_PAIR_BUDGET" default:"2000"`
	WorkerMinPageSize       int           `envconfig:"WORKER_MIN_PAGE_SIZE" default:"10"`
	WorkerMaxPageSize       int           `envconfig:"WORKER_MAX_PAGE_SIZE" default:"500"`

	RunnerConcurrency  int           `envconfig:"RUNNER_CONCURRENCY" default:"4"`
	RunnerPollInterval time.Duration `envconfig:"RUNNER_POLL_INTERVAL" default:"1s"`
	RunnerMaxAttempts  int           `envconfig:"RUNNER_MAX_ATTEMPTS" default:"5"`
	RunnerLease        time.Duration `envconfig:"RUNNER_LEASE" default:"2m"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("MW_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("MW_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("MW_DB_MIN_CONNS (%d) cannot exceed MW_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.ScanShardCount < 1 {
		return fmt.Errorf("SCAN_SHARD_COUNT must be >= 1")
	}
	if c.WorkerTimeBudget <= 0 {
		return fmt.Errorf("WORKER_TIME_BUDGET must be > 0")
	}
	if c.WorkerInvocationTimeout <= c.WorkerTimeBudget {
		return fmt.Errorf("WORKER_INVOCATION_TIMEOUT (%s) must exceed WORKER_TIME_BUDGET (%s)", c.WorkerInvocationTimeout, c.WorkerTimeBudget)
	}
	if c.WorkerPagePairBudget < 1 {
		return fmt.Errorf("WORKER_PAGE_PAIR_BUDGET must be >= 1")
	}
	if c.WorkerMinPageSize < 1 {
		return fmt.Errorf("WORKER_MIN_PAGE_SIZE must be >= 1")
	}
	if c.WorkerMinPageSize > c.WorkerMaxPageSize {
		return fmt.Errorf("WORKER_MIN_PAGE_SIZE (%d) cannot exceed WORKER_MAX_PAGE_SIZE (%d)", c.WorkerMinPageSize, c.WorkerMaxPageSize)
	}
	if c.RunnerConcurrency < 1 {
		return fmt.Errorf("RUNNER_CONCURRENCY must be >= 1")
	}
	if c.RunnerPollInterval <= 0 {
		return fmt.Errorf("RUNNER_POLL_INTERVAL must be > 0")
	}
	if c.RunnerMaxAttempts < 1 {
		return fmt.Errorf("RUNNER_MAX_ATTEMPTS must be >= 1")
	}
	if c.RunnerLease <= c.WorkerInvocationTimeout {
		return fmt.Errorf("RUNNER_LEASE (%s) must exceed WORKER_INVOCATION_TIMEOUT (%s)", c.RunnerLease, c.WorkerInvocationTimeout)
	}
	return nil
}

package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Environment:             "local",
		LogLevel:                "info",
		DatabaseURL:             "postgres://localhost/markwatch",
		DBMinConns:              1,
		DBMaxConns:              8,
		ScanShardCount:          10,
		WorkerTimeBudget:        45 * time.Second,
		WorkerInvocationTimeout: 60 * time.Second,
		WorkerPagePairBudget:    2000,
		WorkerMinPageSize:       10,
		WorkerMaxPageSize:       500,
		RunnerConcurrency:       4,
		RunnerPollInterval:      time.Second,
		RunnerMaxAttempts:       5,
		RunnerLease:             2 * time.Minute,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "missing database", mutate: func(c *Config) { c.DatabaseURL = " " }, wantErr: "DATABASE_URL"},
		{name: "zero shards", mutate: func(c *Config) { c.ScanShardCount = 0 }, wantErr: "SCAN_SHARD_COUNT"},
		{name: "budget exceeds timeout", mutate: func(c *Config) { c.WorkerTimeBudget = 90 * time.Second }, wantErr: "WORKER_INVOCATION_TIMEOUT"},
		{name: "page bounds inverted", mutate: func(c *Config) { c.WorkerMinPageSize = 600 }, wantErr: "WORKER_MIN_PAGE_SIZE"},
		{name: "lease too short", mutate: func(c *Config) { c.RunnerLease = 30 * time.Second }, wantErr: "RUNNER_LEASE"},
		{name: "conns inverted", mutate: func(c *Config) { c.DBMinConns = 9 }, wantErr: "MW_DB_MIN_CONNS"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("unexpected error: got %v want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/markwatch")
	t.Setenv("SCAN_SHARD_COUNT", "4")
	t.Setenv("WORKER_TIME_BUDGET", "20s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ScanShardCount != 4 {
		t.Fatalf("unexpected shard count: got %d want %d", cfg.ScanShardCount, 4)
	}
	if cfg.WorkerTimeBudget != 20*time.Second {
		t.Fatalf("unexpected budget: got %v want %v", cfg.WorkerTimeBudget, 20*time.Second)
	}
	if cfg.WorkerInvocationTimeout != 60*time.Second {
		t.Fatalf("unexpected default timeout: got %v", cfg.WorkerInvocationTimeout)
	}
}

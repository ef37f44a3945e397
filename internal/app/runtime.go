package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/markwatch/internal/cli"
	"horse.fit/markwatch/internal/config"
	"horse.fit/markwatch/internal/db"
	"horse.fit/markwatch/internal/logging"
	"horse.fit/markwatch/internal/scan"
)

const connectTimeout = 10 * time.Second

// openRuntime loads env, config and logger, then connects to the database.
// Failures are reported on stderr; ok is false when the command must exit 1.
func openRuntime(envLoader *cli.EnvLoader, command string) (*config.Config, zerolog.Logger, *db.Pool, bool) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, zerolog.Nop(), nil, false
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, zerolog.Nop(), nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str("command", command).Msg("connect to database failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return nil, zerolog.Nop(), nil, false
	}
	return cfg, logger, pool, true
}

// scanStack is the coordinator, worker and runner wired onto one pool,
// with the continuation queue as the dispatcher.
type scanStack struct {
	coordinator *scan.Coordinator
	worker      *scan.Worker
	runner      *scan.Runner
}

func newScanStack(cfg *config.Config, pool *db.Pool, logger zerolog.Logger) scanStack {
	dispatcher := scan.NewQueueDispatcher(pool)
	worker := scan.NewWorker(pool, dispatcher, logger, scan.WorkerOptions{
		TimeBudget:     cfg.WorkerTimeBudget,
		PagePairBudget: cfg.WorkerPagePairBudget,
		MinPageSize:    cfg.WorkerMinPageSize,
		MaxPageSize:    cfg.WorkerMaxPageSize,
	})
	return scanStack{
		coordinator: scan.NewCoordinator(pool, dispatcher, logger, scan.CoordinatorOptions{
			ShardCount: cfg.ScanShardCount,
		}),
		worker: worker,
		runner: scan.NewRunner(pool, worker, logger, scan.RunnerOptions{
			Concurrency:       cfg.RunnerConcurrency,
			PollInterval:      cfg.RunnerPollInterval,
			Lease:             cfg.RunnerLease,
			InvocationTimeout: cfg.WorkerInvocationTimeout,
			MaxAttempts:       cfg.RunnerMaxAttempts,
		}),
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"horse.fit/markwatch/internal/cli"
)

func runRunner(args []string) int {
	fs := flag.NewFlagSet("runner", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	drain := fs.Bool("drain", false, "Exit once no continuation is runnable instead of polling forever")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, logger, pool, ok := openRuntime(envLoader, "runner")
	if !ok {
		return 1
	}
	defer pool.Close()

	ctx, cancel := signalContext()
	defer cancel()

	stack := newScanStack(cfg, pool, logger)

	if *drain {
		stats, err := stack.runner.Drain(ctx)
		fmt.Printf(
			"runner claimed=%d completed=%d retried=%d failed=%d\n",
			stats.Claimed,
			stats.Completed,
			stats.Retried,
			stats.Failed,
		)
		if err != nil {
			logger.Error().Err(err).Msg("drain continuation queue failed")
			fmt.Fprintf(os.Stderr, "Runner failed: %v\n", err)
			return 1
		}
		return 0
	}

	if err := stack.runner.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("continuation runner failed")
		fmt.Fprintf(os.Stderr, "Runner failed: %v\n", err)
		return 1
	}
	return 0
}

package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"horse.fit/markwatch/internal/cli"
	"horse.fit/markwatch/internal/httpapi"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8090, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 0, "HTTP write timeout (default: worker invocation timeout + 10s)")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	withRunner := fs.Bool("runner", true, "Run shard continuations in this process")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return 2
	}

	cfg, logger, pool, ok := openRuntime(envLoader, "serve")
	if !ok {
		return 1
	}
	defer pool.Close()

	ctx, cancel := signalContext()
	defer cancel()

	stack := newScanStack(cfg, pool, logger)
	srv := httpapi.NewServer(httpapi.Deps{
		Coordinator: stack.coordinator,
		Worker:      stack.worker,
		Hits:        pool,
		DB:          pool,
	}, logger, httpapi.Options{
		Host:            *host,
		Port:            *port,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
		WorkerTimeout:   cfg.WorkerInvocationTimeout,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if *withRunner {
		g.Go(func() error {
			return stack.runner.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}
	return 0
}

package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/markwatch/internal/globaltime"
)

const (
	DefaultRunnerConcurrency = 4
	DefaultPollInterval      = time.Second
	DefaultMaxAttempts       = 5
	DefaultLease             = 2 * time.Minute
	DefaultInvocationTimeout = 60 * time.Second
	DefaultRetryBackoff      = 5 * time.Second

	bookkeepingTimeout = 5 * time.Second
)

type shardInvoker interface {
	Run(ctx context.Context, req WorkerRequest) (WorkerResult, error)
}

type RunnerOptions struct {
	Concurrency       int
	PollInterval      time.Duration
	Lease             time.Duration
	InvocationTimeout time.Duration
	MaxAttempts       int
	RetryBackoff      time.Duration
}

// Runner supervises shard invocations: it claims continuations from the
// durable queue and runs each one under its own timeout.
type Runner struct {
	queue  ContinuationQueue
	worker shardInvoker
	logger zerolog.Logger
	opts   RunnerOptions
}

type RunnerStats struct {
	Claimed   int
	Completed int
	Retried   int
	Failed    int
}

func NewRunner(queue ContinuationQueue, worker shardInvoker, logger zerolog.Logger, opts RunnerOptions) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultRunnerConcurrency
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Lease <= 0 {
		opts.Lease = DefaultLease
	}
	if opts.InvocationTimeout <= 0 {
		opts.InvocationTimeout = DefaultInvocationTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	return &Runner{
		queue:  queue,
		worker: worker,
		logger: logger.With().Str("component", "scan_runner").Logger(),
		opts:   opts,
	}
}

// Run consumes the queue with Concurrency goroutines until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	if r == nil || r.queue == nil || r.worker == nil {
		return errNotInitialized("scan runner")
	}

	r.logger.Info().Int("concurrency", r.opts.Concurrency).Dur("poll_interval", r.opts.PollInterval).Msg("continuation runner started")

	g, gctx := errgroup.WithContext(ctx)
	for slot := 0; slot < r.opts.Concurrency; slot++ {
		g.Go(func() error {
			return r.consume(gctx, slot)
		})
	}
	err := g.Wait()

	r.logger.Info().Msg("continuation runner stopped")
	return err
}

func (r *Runner) consume(ctx context.Context, slot int) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		claimed, _, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Int("slot", slot).Msg("run continuation failed")
		}

		wait := r.opts.PollInterval
		if claimed {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// Drain runs continuations one after another until the queue has nothing
// runnable. Continuations enqueued along the way are drained too.
func (r *Runner) Drain(ctx context.Context) (RunnerStats, error) {
	if r == nil || r.queue == nil || r.worker == nil {
		return RunnerStats{}, errNotInitialized("scan runner")
	}

	var stats RunnerStats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		claimed, outcome, err := r.RunOnce(ctx)
		if err != nil {
			return stats, err
		}
		if !claimed {
			return stats, nil
		}
		stats.Claimed++
		switch outcome {
		case OutcomeCompleted:
			stats.Completed++
		case OutcomeRetried:
			stats.Retried++
		case OutcomeFailed:
			stats.Failed++
		}
	}
}

// Outcome is what happened to a claimed continuation.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCompleted
	OutcomeRetried
	OutcomeFailed
)

// RunOnce claims and executes a single continuation. It reports whether
// anything was claimed and what happened to it.
func (r *Runner) RunOnce(ctx context.Context) (bool, Outcome, error) {
	item, found, err := r.queue.ClaimContinuation(ctx, r.opts.Lease)
	if err != nil {
		return false, OutcomeNone, fmt.Errorf("claim continuation: %w", err)
	}
	if !found {
		return false, OutcomeNone, nil
	}

	logger := r.logger.With().
		Int64("continuation_id", item.ContinuationID).
		Str("job_id", item.JobID).
		Str("worker_id", item.WorkerID).
		Int("attempt", item.Attempts).
		Logger()

	bookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	var req WorkerRequest
	if err := json.Unmarshal(item.Payload, &req); err != nil {
		logger.Error().Err(err).Msg("continuation payload is unreadable")
		return true, OutcomeFailed, r.fail(bookCtx, item.ContinuationID, fmt.Sprintf("decode payload: %v", err))
	}
	if item.Attempts > r.opts.MaxAttempts {
		logger.Error().Int("max_attempts", r.opts.MaxAttempts).Msg("continuation exhausted its attempts")
		return true, OutcomeFailed, r.fail(bookCtx, item.ContinuationID, "max attempts exceeded")
	}

	invokeCtx, invokeCancel := context.WithTimeout(ctx, r.opts.InvocationTimeout)
	result, runErr := r.worker.Run(invokeCtx, req)
	invokeCancel()

	if runErr != nil {
		if errors.Is(runErr, ErrValidation) || errors.Is(runErr, ErrWorkerNotFound) {
			logger.Error().Err(runErr).Msg("continuation rejected")
			return true, OutcomeFailed, r.fail(bookCtx, item.ContinuationID, runErr.Error())
		}

		runAfter := globaltime.UTC().Add(time.Duration(item.Attempts) * r.opts.RetryBackoff)
		logger.Warn().Err(runErr).Time("run_after", runAfter).Msg("shard invocation failed; scheduling retry")
		if err := r.queue.RetryContinuation(bookCtx, item.ContinuationID, runAfter, runErr.Error()); err != nil {
			return true, OutcomeRetried, fmt.Errorf("retry continuation %d: %w", item.ContinuationID, err)
		}
		return true, OutcomeRetried, nil
	}

	if err := r.queue.CompleteContinuation(bookCtx, item.ContinuationID); err != nil {
		return true, OutcomeCompleted, fmt.Errorf("complete continuation %d: %w", item.ContinuationID, err)
	}

	logger.Debug().
		Bool("finished", result.Finished).
		Bool("continued", result.Continued).
		Int64("last_id", result.LastID).
		Msg("continuation completed")
	return true, OutcomeCompleted, nil
}

func (r *Runner) fail(ctx context.Context, id int64, reason string) error {
	if err := r.queue.FailContinuation(ctx, id, reason); err != nil {
		return fmt.Errorf("fail continuation %d: %w", id, err)
	}
	return nil
}

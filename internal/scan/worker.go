package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/markwatch/internal/db"
	"horse.fit/markwatch/internal/globaltime"
)

const (
	DefaultTimeBudget     = 45 * time.Second
	DefaultPagePairBudget = 2000
	DefaultMinPageSize    = 10
	DefaultMaxPageSize    = 500

	checkpointTimeout = 10 * time.Second
)

type WorkerOptions struct {
	// TimeBudget bounds one invocation. The shard stops after the record
	// that crosses it and continues in a fresh invocation.
	TimeBudget time.Duration
	// PagePairBudget is the number of (mark, record) pairs one page should
	// hold; page size is this divided by the shard's mark count.
	PagePairBudget int
	MinPageSize    int
	MaxPageSize    int
	Now            func() time.Time
}

// Worker advances one shard per Run call.
type Worker struct {
	store      Store
	dispatcher Dispatcher
	logger     zerolog.Logger
	opts       WorkerOptions
}

func NewWorker(store Store, dispatcher Dispatcher, logger zerolog.Logger, opts WorkerOptions) *Worker {
	if opts.TimeBudget <= 0 {
		opts.TimeBudget = DefaultTimeBudget
	}
	if opts.PagePairBudget <= 0 {
		opts.PagePairBudget = DefaultPagePairBudget
	}
	if opts.MinPageSize <= 0 {
		opts.MinPageSize = DefaultMinPageSize
	}
	if opts.MaxPageSize < opts.MinPageSize {
		opts.MaxPageSize = max(DefaultMaxPageSize, opts.MinPageSize)
	}
	if opts.Now == nil {
		opts.Now = globaltime.Now
	}
	return &Worker{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "scan_worker").Logger(),
		opts:       opts,
	}
}

// PageSize is inversely proportional to the number of marks so a page
// costs roughly the same whatever the shard size.
func (w *Worker) PageSize(markCount int) int {
	if markCount <= 0 {
		return w.opts.MaxPageSize
	}
	return min(w.opts.MaxPageSize, max(w.opts.MinPageSize, w.opts.PagePairBudget/markCount))
}

// ProgressPercent is min(100, floor(processed/total*100)).
func ProgressPercent(processed, total int64) int {
	if total <= 0 || processed <= 0 {
		return 0
	}
	return int(min(100, processed*100/total))
}

type shardCursor struct {
	lastID    int64
	processed int64
}

// Run executes one invocation of a shard: it resumes from the durable
// watermark, processes records in id order until the page stream is empty
// or the time budget runs out, checkpoints, and either completes the shard
// or dispatches a continuation.
func (w *Worker) Run(ctx context.Context, req WorkerRequest) (WorkerResult, error) {
	if w == nil || w.store == nil || w.dispatcher == nil {
		return WorkerResult{}, errNotInitialized("scan worker")
	}
	if err := req.Validate(); err != nil {
		return WorkerResult{}, err
	}

	state, err := w.store.GetScanWorker(ctx, req.WorkerID)
	if err != nil {
		if db.IsNoRows(err) {
			return WorkerResult{}, fmt.Errorf("%w: %s", ErrWorkerNotFound, req.WorkerID)
		}
		return WorkerResult{}, fmt.Errorf("load worker state: %w", err)
	}
	if state.JobID != req.JobID {
		return WorkerResult{}, invalid("workerId", "belongs to job %s, not %s", state.JobID, req.JobID)
	}

	logger := w.logger.With().Str("job_id", req.JobID).Str("worker_id", req.WorkerID).Logger()

	if state.Status == db.ScanStatusCompleted {
		logger.Info().Msg("shard already completed; ignoring duplicate invocation")
		result := WorkerResult{
			WorkerID:        req.WorkerID,
			Finished:        true,
			LastID:          state.LastBulletinRecordID,
			ProcessedCount:  state.ProcessedCount,
			ProgressPercent: 100,
		}
		// A previous invocation may have saved the shard but failed to
		// complete the job; a retry lands here and must finish that step.
		if err := w.maybeCompleteJob(ctx, logger, req.JobID); err != nil {
			return result, err
		}
		return result, nil
	}

	// The stored watermark wins over a stale or duplicated request.
	cursor := shardCursor{lastID: req.LastID, processed: req.ProcessedCount}
	if state.LastBulletinRecordID >= cursor.lastID {
		cursor = shardCursor{lastID: state.LastBulletinRecordID, processed: state.ProcessedCount}
	}

	bulletinNo := strings.TrimSpace(req.SelectedBulletinID.String())
	marks := PrepareMarks(req.MonitoredMarks)
	pageSize := w.PageSize(len(marks))
	started := w.opts.Now()

	result := WorkerResult{WorkerID: req.WorkerID}
	var persistErr error
	var pending []db.SimilarityHit

	flush := func() {
		if len(pending) == 0 {
			return
		}
		// Records behind the watermark must keep their hits even when the
		// caller has already given up on this invocation.
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkpointTimeout)
		_, err := w.store.UpsertSimilarityHits(persistCtx, pending)
		cancel()
		if err != nil {
			persistErr = err
			result.FailedHits += len(pending)
			logger.Error().Err(err).Int("hits", len(pending)).Int64("last_id", cursor.lastID).Msg("persist similarity hits failed")
		} else {
			result.Hits += len(pending)
		}
		pending = nil
	}

	finished := false
	var readErr error
traverse:
	for {
		records, err := w.store.ListBulletinRecordsAfter(ctx, bulletinNo, cursor.lastID, pageSize)
		if err != nil {
			readErr = fmt.Errorf("list bulletin records after %d: %w", cursor.lastID, err)
			break
		}
		if len(records) == 0 {
			finished = true
			break
		}

		for _, rec := range records {
			pending = append(pending, w.evaluate(logger, req.JobID, marks, rec)...)
			cursor.lastID = rec.BulletinRecordID
			cursor.processed++

			if ctx.Err() != nil || w.opts.Now().Sub(started) >= w.opts.TimeBudget {
				break traverse
			}
		}
		flush()
	}
	flush()

	result.LastID = cursor.lastID
	result.ProcessedCount = cursor.processed
	result.Finished = finished

	// Checkpoint even when the caller's context is gone, so the next
	// invocation resumes from here instead of repeating the work.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkpointTimeout)
	defer cancel()

	if err := w.checkpoint(saveCtx, req, cursor, finished, persistErr, &result); err != nil {
		return result, errors.Join(readErr, err)
	}
	if readErr != nil {
		return result, readErr
	}

	if finished {
		if err := w.maybeCompleteJob(saveCtx, logger, req.JobID); err != nil {
			return result, err
		}
	} else {
		next := req
		next.Action = ActionWorker
		next.LastID = cursor.lastID
		next.ProcessedCount = cursor.processed
		if err := w.dispatcher.Dispatch(saveCtx, next); err != nil {
			return result, fmt.Errorf("dispatch continuation: %w", err)
		}
		result.Continued = true
	}

	logger.Info().
		Bool("finished", finished).
		Int64("last_id", cursor.lastID).
		Int64("processed", cursor.processed).
		Int("progress_percent", result.ProgressPercent).
		Int("hits", result.Hits).
		Int("failed_hits", result.FailedHits).
		Dur("elapsed", w.opts.Now().Sub(started)).
		Msg("shard invocation finished")

	return result, nil
}

// evaluate scores one record. A panic inside scoring degrades the record
// to "no hits" instead of killing the invocation.
func (w *Worker) evaluate(logger zerolog.Logger, jobID string, marks []PreparedMark, rec db.BulletinRecord) (hits []db.SimilarityHit) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Int64("bulletin_record_id", rec.BulletinRecordID).
				Str("mark_name", rec.MarkName).
				Interface("panic", r).
				Msg("scoring record failed; treating as no match")
			hits = nil
		}
	}()
	return matchRecord(jobID, marks, newCandidate(rec))
}

func (w *Worker) checkpoint(ctx context.Context, req WorkerRequest, cursor shardCursor, finished bool, persistErr error, result *WorkerResult) error {
	status := db.ScanStatusProcessing
	percent := ProgressPercent(cursor.processed, req.TotalBulletinRecords)
	if finished {
		status = db.ScanStatusCompleted
		percent = 100
	}
	result.ProgressPercent = percent

	var lastError *string
	if persistErr != nil {
		msg := persistErr.Error()
		lastError = &msg
	}

	if err := w.store.SaveScanWorkerProgress(ctx, db.ScanWorker{
		WorkerID:             req.WorkerID,
		Status:               status,
		ProgressPercent:      percent,
		LastBulletinRecordID: cursor.lastID,
		ProcessedCount:       cursor.processed,
		LastError:            lastError,
	}); err != nil {
		return fmt.Errorf("save worker progress: %w", err)
	}

	if _, err := w.store.RefreshScanJobResultCount(ctx, req.JobID); err != nil {
		w.logger.Warn().Err(err).Str("job_id", req.JobID).Msg("refresh job result count failed")
	}
	return nil
}

// maybeCompleteJob re-reads every shard row and completes the job only
// when all of them are completed. Safe to call from every finishing shard.
func (w *Worker) maybeCompleteJob(ctx context.Context, logger zerolog.Logger, jobID string) error {
	workers, err := w.store.ListScanWorkers(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list job workers: %w", err)
	}
	if !AllCompleted(workers) {
		return nil
	}

	completed, err := w.store.CompleteScanJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if completed {
		logger.Info().Int("workers", len(workers)).Msg("scan job completed")
	}
	return nil
}

// AllCompleted reports whether a non-empty worker set has fully finished.
func AllCompleted(workers []db.ScanWorker) bool {
	if len(workers) == 0 {
		return false
	}
	for _, w := range workers {
		if w.Status != db.ScanStatusCompleted {
			return false
		}
	}
	return true
}

package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/markwatch/internal/db"
)

const DefaultShardCount = 10

type CoordinatorOptions struct {
	ShardCount int
	// NewJobID overrides job id generation, mainly for tests.
	NewJobID func() string
}

// Coordinator creates scan jobs and fans them out into shards.
type Coordinator struct {
	store      Store
	dispatcher Dispatcher
	logger     zerolog.Logger
	shardCount int
	newJobID   func() string
}

func NewCoordinator(store Store, dispatcher Dispatcher, logger zerolog.Logger, opts CoordinatorOptions) *Coordinator {
	shardCount := opts.ShardCount
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	newJobID := opts.NewJobID
	if newJobID == nil {
		newJobID = uuid.NewString
	}
	return &Coordinator{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "scan_coordinator").Logger(),
		shardCount: shardCount,
		newJobID:   newJobID,
	}
}

// StartScan validates the request, records the job with one progress row
// per shard and dispatches every shard without waiting for any of them.
func (c *Coordinator) StartScan(ctx context.Context, req ScanRequest) (string, error) {
	if c == nil || c.store == nil || c.dispatcher == nil {
		return "", errNotInitialized("scan coordinator")
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	bulletinNo := strings.TrimSpace(req.SelectedBulletinID.String())
	total, err := c.store.CountBulletinRecords(ctx, bulletinNo)
	if err != nil {
		return "", fmt.Errorf("count bulletin records: %w", err)
	}

	jobID := c.newJobID()
	shards := PartitionMarks(req.MonitoredMarks, c.shardCount)

	workers := make([]db.ScanWorker, 0, len(shards))
	for i, shard := range shards {
		workers = append(workers, db.ScanWorker{
			WorkerID:   WorkerID(jobID, i),
			JobID:      jobID,
			ShardIndex: i,
			Status:     db.ScanStatusProcessing,
			MarkCount:  len(shard),
		})
	}

	job := db.ScanJob{
		JobID:                    jobID,
		BulletinNo:               bulletinNo,
		Status:                   db.ScanStatusProcessing,
		TotalBulletinRecordCount: total,
		MonitoredMarkCount:       len(req.MonitoredMarks),
		WorkerCount:              len(workers),
	}
	if err := c.store.CreateScanJob(ctx, job, workers); err != nil {
		return "", fmt.Errorf("create scan job: %w", err)
	}

	var dispatchErrs []error
	for i, shard := range shards {
		err := c.dispatcher.Dispatch(ctx, WorkerRequest{
			Action:               ActionWorker,
			JobID:                jobID,
			WorkerID:             workers[i].WorkerID,
			MonitoredMarks:       shard,
			SelectedBulletinID:   Identifier(bulletinNo),
			TotalBulletinRecords: total,
		})
		if err != nil {
			c.logger.Error().
				Err(err).
				Str("job_id", jobID).
				Str("worker_id", workers[i].WorkerID).
				Msg("dispatch shard failed")
			dispatchErrs = append(dispatchErrs, fmt.Errorf("dispatch %s: %w", workers[i].WorkerID, err))
		}
	}
	if len(dispatchErrs) > 0 {
		return jobID, errors.Join(dispatchErrs...)
	}

	c.logger.Info().
		Str("job_id", jobID).
		Str("bulletin_no", bulletinNo).
		Int64("total_bulletin_records", total).
		Int("monitored_marks", len(req.MonitoredMarks)).
		Int("shards", len(workers)).
		Msg("scan job started")

	return jobID, nil
}

// PartitionMarks splits marks into at most shardCount contiguous, non-empty
// shards whose sizes differ by at most one.
func PartitionMarks(marks []MonitoredMark, shardCount int) [][]MonitoredMark {
	if len(marks) == 0 {
		return nil
	}
	shards := min(max(shardCount, 1), len(marks))
	base := len(marks) / shards
	extra := len(marks) % shards

	out := make([][]MonitoredMark, 0, shards)
	start := 0
	for i := 0; i < shards; i++ {
		size := base
		if i < extra {
			size++
		}
		out = append(out, marks[start:start+size])
		start += size
	}
	return out
}

// WorkerID derives the shard row id from the job id and shard index.
func WorkerID(jobID string, shard int) string {
	return fmt.Sprintf("%s-w%02d", jobID, shard)
}

func errNotInitialized(what string) error {
	return fmt.Errorf("%s is not initialized", what)
}

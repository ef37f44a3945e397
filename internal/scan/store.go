package scan

import (
	"context"
	"encoding/json"
	"time"

	"horse.fit/markwatch/internal/db"
)

// BulletinReader pages the read-only bulletin store by record id.
type BulletinReader interface {
	CountBulletinRecords(ctx context.Context, bulletinNo string) (int64, error)
	ListBulletinRecordsAfter(ctx context.Context, bulletinNo string, afterID int64, limit int) ([]db.BulletinRecord, error)
}

// ProgressStore holds jobs and their per-shard progress rows.
type ProgressStore interface {
	CreateScanJob(ctx context.Context, job db.ScanJob, workers []db.ScanWorker) error
	GetScanJob(ctx context.Context, jobID string) (db.ScanJob, error)
	GetScanWorker(ctx context.Context, workerID string) (db.ScanWorker, error)
	ListScanWorkers(ctx context.Context, jobID string) ([]db.ScanWorker, error)
	SaveScanWorkerProgress(ctx context.Context, w db.ScanWorker) error
	CompleteScanJob(ctx context.Context, jobID string) (bool, error)
	RefreshScanJobResultCount(ctx context.Context, jobID string) (int64, error)
}

type HitWriter interface {
	UpsertSimilarityHits(ctx context.Context, hits []db.SimilarityHit) (int, error)
}

// Store is everything a scan touches; *db.Pool satisfies it.
type Store interface {
	BulletinReader
	ProgressStore
	HitWriter
}

// Dispatcher hands a shard invocation to whatever will run it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req WorkerRequest) error
}

// ContinuationQueue is the durable queue linking shard invocations.
type ContinuationQueue interface {
	EnqueueContinuation(ctx context.Context, jobID, workerID string, payload json.RawMessage) (int64, error)
	ClaimContinuation(ctx context.Context, lease time.Duration) (db.ScanContinuation, bool, error)
	CompleteContinuation(ctx context.Context, id int64) error
	RetryContinuation(ctx context.Context, id int64, runAfter time.Time, lastError string) error
	FailContinuation(ctx context.Context, id int64, lastError string) error
}

type continuationEnqueuer interface {
	EnqueueContinuation(ctx context.Context, jobID, workerID string, payload json.RawMessage) (int64, error)
}

// QueueDispatcher dispatches by enqueueing the invocation payload.
type QueueDispatcher struct {
	queue continuationEnqueuer
}

func NewQueueDispatcher(queue continuationEnqueuer) *QueueDispatcher {
	return &QueueDispatcher{queue: queue}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, req WorkerRequest) error {
	if d == nil || d.queue == nil {
		return errNotInitialized("queue dispatcher")
	}
	req.Action = ActionWorker
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, err = d.queue.EnqueueContinuation(ctx, req.JobID, req.WorkerID, payload)
	return err
}

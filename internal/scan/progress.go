package scan

import (
	"context"
	"fmt"

	"horse.fit/markwatch/internal/db"
)

// JobProgress is the polling view of a job.
type JobProgress struct {
	Job             db.ScanJob
	Workers         []db.ScanWorker
	ProgressPercent int
}

// Progress loads a job and its shard rows. Every shard walks the whole
// bulletin, so overall progress is the mean of the shard percentages.
func (c *Coordinator) Progress(ctx context.Context, jobID string) (JobProgress, error) {
	if c == nil || c.store == nil {
		return JobProgress{}, errNotInitialized("scan coordinator")
	}

	job, err := c.store.GetScanJob(ctx, jobID)
	if err != nil {
		if db.IsNoRows(err) {
			return JobProgress{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return JobProgress{}, fmt.Errorf("load job: %w", err)
	}

	workers, err := c.store.ListScanWorkers(ctx, jobID)
	if err != nil {
		return JobProgress{}, fmt.Errorf("load job workers: %w", err)
	}

	return JobProgress{
		Job:             job,
		Workers:         workers,
		ProgressPercent: overallPercent(job, workers),
	}, nil
}

func overallPercent(job db.ScanJob, workers []db.ScanWorker) int {
	if job.Status == db.ScanStatusCompleted {
		return 100
	}
	if len(workers) == 0 {
		return 0
	}
	sum := 0
	for _, w := range workers {
		sum += w.ProgressPercent
	}
	return sum / len(workers)
}

package db

import (
	"context"
	"fmt"
)

// CreateScanJob inserts the job and all of its shard rows atomically.
func (p *Pool) CreateScanJob(ctx context.Context, job ScanJob, workers []ScanWorker) error {
	const insertJob = `
INSERT INTO markwatch.scan_jobs (
	job_id,
	bulletin_no,
	status,
	current_result_count,
	total_bulletin_record_count,
	monitored_mark_count,
	worker_count,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, 0, $4, $5, $6, now(), now())
`
	const insertWorker = `
INSERT INTO markwatch.scan_workers (
	worker_id,
	job_id,
	shard_index,
	status,
	progress_percent,
	last_bulletin_record_id,
	processed_count,
	mark_count,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $4, 0, $5, 0, $6, now(), now())
`

	return p.InTx(ctx, "create scan job", func(tx Tx) error {
		if _, err := tx.Exec(ctx, insertJob,
			job.JobID,
			job.BulletinNo,
			job.Status,
			job.TotalBulletinRecordCount,
			job.MonitoredMarkCount,
			job.WorkerCount,
		); err != nil {
			return fmt.Errorf("insert scan_job job_id=%s: %w", job.JobID, err)
		}

		for _, w := range workers {
			if _, err := tx.Exec(ctx, insertWorker,
				w.WorkerID,
				w.JobID,
				w.ShardIndex,
				w.Status,
				w.LastBulletinRecordID,
				w.MarkCount,
			); err != nil {
				return fmt.Errorf("insert scan_worker worker_id=%s: %w", w.WorkerID, err)
			}
		}
		return nil
	})
}

func (p *Pool) GetScanJob(ctx context.Context, jobID string) (ScanJob, error) {
	const q = `
SELECT
	job_id,
	bulletin_no,
	status,
	current_result_count,
	total_bulletin_record_count,
	monitored_mark_count,
	worker_count,
	created_at,
	updated_at,
	completed_at
FROM markwatch.scan_jobs
WHERE job_id = $1
`

	var job ScanJob
	if err := p.QueryRow(ctx, q, jobID).Scan(
		&job.JobID,
		&job.BulletinNo,
		&job.Status,
		&job.CurrentResultCount,
		&job.TotalBulletinRecordCount,
		&job.MonitoredMarkCount,
		&job.WorkerCount,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		if IsNoRows(err) {
			return ScanJob{}, ErrNoRows
		}
		return ScanJob{}, fmt.Errorf("get scan_job job_id=%s: %w", jobID, err)
	}
	return job, nil
}

const scanWorkerColumns = `
	worker_id,
	job_id,
	shard_index,
	status,
	progress_percent,
	last_bulletin_record_id,
	processed_count,
	mark_count,
	invocation_count,
	last_error,
	created_at,
	updated_at,
	completed_at
`

func scanWorker(row interface{ Scan(dest ...any) error }) (ScanWorker, error) {
	var w ScanWorker
	err := row.Scan(
		&w.WorkerID,
		&w.JobID,
		&w.ShardIndex,
		&w.Status,
		&w.ProgressPercent,
		&w.LastBulletinRecordID,
		&w.ProcessedCount,
		&w.MarkCount,
		&w.InvocationCount,
		&w.LastError,
		&w.CreatedAt,
		&w.UpdatedAt,
		&w.CompletedAt,
	)
	return w, err
}

func (p *Pool) GetScanWorker(ctx context.Context, workerID string) (ScanWorker, error) {
	q := `SELECT` + scanWorkerColumns + `FROM markwatch.scan_workers WHERE worker_id = $1`

	w, err := scanWorker(p.QueryRow(ctx, q, workerID))
	if err != nil {
		if IsNoRows(err) {
			return ScanWorker{}, ErrNoRows
		}
		return ScanWorker{}, fmt.Errorf("get scan_worker worker_id=%s: %w", workerID, err)
	}
	return w, nil
}

func (p *Pool) ListScanWorkers(ctx context.Context, jobID string) ([]ScanWorker, error) {
	q := `SELECT` + scanWorkerColumns + `FROM markwatch.scan_workers WHERE job_id = $1 ORDER BY shard_index`

	rows, err := p.Query(ctx, q, jobID)
	if err != nil {
		return nil, fmt.Errorf("query scan_workers job_id=%s: %w", jobID, err)
	}
	defer rows.Close()

	var workers []ScanWorker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scan_worker: %w", err)
		}
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan_workers: %w", err)
	}
	return workers, nil
}

// SaveScanWorkerProgress checkpoints one shard. The watermark and processed
// count never move backwards and a completed shard stays completed.
func (p *Pool) SaveScanWorkerProgress(ctx context.Context, w ScanWorker) error {
	const q = `
UPDATE markwatch.scan_workers
SET
	status = CASE WHEN status = 'completed' THEN status ELSE $2 END,
	progress_percent = GREATEST(progress_percent, $3),
	last_bulletin_record_id = GREATEST(last_bulletin_record_id, $4),
	processed_count = GREATEST(processed_count, $5),
	invocation_count = invocation_count + 1,
	last_error = $6,
	completed_at = CASE WHEN $2 = 'completed' THEN COALESCE(completed_at, now()) ELSE completed_at END,
	updated_at = now()
WHERE worker_id = $1
`

	tag, err := p.Exec(ctx, q,
		w.WorkerID,
		w.Status,
		w.ProgressPercent,
		w.LastBulletinRecordID,
		w.ProcessedCount,
		w.LastError,
	)
	if err != nil {
		return fmt.Errorf("update scan_worker worker_id=%s: %w", w.WorkerID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// CompleteScanJob marks the job completed only if every shard row is
// completed. It reports whether this call made the transition.
func (p *Pool) CompleteScanJob(ctx context.Context, jobID string) (bool, error) {
	const q = `
UPDATE markwatch.scan_jobs j
SET
	status = 'completed',
	completed_at = now(),
	updated_at = now()
WHERE j.job_id = $1
	AND j.status <> 'completed'
	AND NOT EXISTS (
		SELECT 1
		FROM markwatch.scan_workers w
		WHERE w.job_id = j.job_id
			AND w.status <> 'completed'
	)
`

	tag, err := p.Exec(ctx, q, jobID)
	if err != nil {
		return false, fmt.Errorf("complete scan_job job_id=%s: %w", jobID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// RefreshScanJobResultCount recomputes current_result_count from the hit
// table, so repeated checkpoints never double count.
func (p *Pool) RefreshScanJobResultCount(ctx context.Context, jobID string) (int64, error) {
	const q = `
UPDATE markwatch.scan_jobs j
SET
	current_result_count = (
		SELECT COUNT(*)
		FROM markwatch.similarity_hits h
		WHERE h.job_id = j.job_id
	),
	updated_at = now()
WHERE j.job_id = $1
RETURNING current_result_count
`

	var count int64
	if err := p.QueryRow(ctx, q, jobID).Scan(&count); err != nil {
		return 0, fmt.Errorf("refresh scan_job result count job_id=%s: %w", jobID, err)
	}
	return count, nil
}

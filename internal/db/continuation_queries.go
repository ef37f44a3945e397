package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

func (p *Pool) EnqueueContinuation(ctx context.Context, jobID, workerID string, payload json.RawMessage) (int64, error) {
	const q = `
INSERT INTO markwatch.scan_continuations (
	job_id,
	worker_id,
	payload,
	status,
	attempts,
	run_after,
	created_at,
	updated_at
)
VALUES ($1, $2, $3::jsonb, 'pending', 0, now(), now(), now())
RETURNING continuation_id
`

	var id int64
	if err := p.QueryRow(ctx, q, jobID, workerID, string(payload)).Scan(&id); err != nil {
		return 0, fmt.Errorf("enqueue scan_continuation worker_id=%s: %w", workerID, err)
	}
	return id, nil
}

// ClaimContinuation leases the next runnable item. Items whose lease expired
// (their runner died mid-invocation) are claimable again.
func (p *Pool) ClaimContinuation(ctx context.Context, lease time.Duration) (ScanContinuation, bool, error) {
	const q = `
UPDATE markwatch.scan_continuations c
SET
	status = 'running',
	attempts = c.attempts + 1,
	locked_until = now() + make_interval(secs => $1),
	updated_at = now()
WHERE c.continuation_id = (
	SELECT continuation_id
	FROM markwatch.scan_continuations
	WHERE (status = 'pending' AND run_after <= now())
		OR (status = 'running' AND locked_until < now())
	ORDER BY run_after, continuation_id
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING
	c.continuation_id,
	c.job_id,
	c.worker_id,
	c.payload,
	c.status,
	c.attempts,
	c.run_after,
	c.locked_until
`

	var item ScanContinuation
	var payload []byte
	err := p.QueryRow(ctx, q, lease.Seconds()).Scan(
		&item.ContinuationID,
		&item.JobID,
		&item.WorkerID,
		&payload,
		&item.Status,
		&item.Attempts,
		&item.RunAfter,
		&item.LockedUntil,
	)
	if err != nil {
		if IsNoRows(err) {
			return ScanContinuation{}, false, nil
		}
		return ScanContinuation{}, false, fmt.Errorf("claim scan_continuation: %w", err)
	}
	item.Payload = json.RawMessage(payload)
	return item, true, nil
}

func (p *Pool) CompleteContinuation(ctx context.Context, id int64) error {
	const q = `
UPDATE markwatch.scan_continuations
SET
	status = 'done',
	locked_until = NULL,
	last_error = NULL,
	updated_at = now()
WHERE continuation_id = $1
`

	if _, err := p.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("complete scan_continuation id=%d: %w", id, err)
	}
	return nil
}

// RetryContinuation releases the lease and schedules another attempt.
func (p *Pool) RetryContinuation(ctx context.Context, id int64, runAfter time.Time, lastError string) error {
	const q = `
UPDATE markwatch.scan_continuations
SET
	status = 'pending',
	run_after = $2,
	locked_until = NULL,
	last_error = $3,
	updated_at = now()
WHERE continuation_id = $1
`

	if _, err := p.Exec(ctx, q, id, runAfter.UTC(), lastError); err != nil {
		return fmt.Errorf("retry scan_continuation id=%d: %w", id, err)
	}
	return nil
}

func (p *Pool) FailContinuation(ctx context.Context, id int64, lastError string) error {
	const q = `
UPDATE markwatch.scan_continuations
SET
	status = 'failed',
	locked_until = NULL,
	last_error = $2,
	updated_at = now()
WHERE continuation_id = $1
`

	if _, err := p.Exec(ctx, q, id, lastError); err != nil {
		return fmt.Errorf("fail scan_continuation id=%d: %w", id, err)
	}
	return nil
}

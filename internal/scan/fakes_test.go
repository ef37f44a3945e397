package scan

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"horse.fit/markwatch/internal/db"
)

type hitKey struct {
	recordID int64
	markID   string
	term     string
}

type listCall struct {
	afterID int64
	limit   int
}

type memoryStore struct {
	mu          sync.Mutex
	records     []db.BulletinRecord
	jobs        map[string]db.ScanJob
	workers     map[string]db.ScanWorker
	hits        map[hitKey]db.SimilarityHit
	listCalls   []listCall
	failUpserts int
	upsertCalls int
	listErr     error
}

func newMemoryStore(records ...db.BulletinRecord) *memoryStore {
	sorted := append([]db.BulletinRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].BulletinRecordID < sorted[j].BulletinRecordID })
	return &memoryStore{
		records: sorted,
		jobs:    map[string]db.ScanJob{},
		workers: map[string]db.ScanWorker{},
		hits:    map[hitKey]db.SimilarityHit{},
	}
}

func (s *memoryStore) CountBulletinRecords(_ context.Context, bulletinNo string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.records {
		if r.BulletinNo == bulletinNo {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) ListBulletinRecordsAfter(_ context.Context, bulletinNo string, afterID int64, limit int) ([]db.BulletinRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls = append(s.listCalls, listCall{afterID: afterID, limit: limit})
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []db.BulletinRecord
	for _, r := range s.records {
		if r.BulletinNo != bulletinNo || r.BulletinRecordID <= afterID {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) CreateScanJob(_ context.Context, job db.ScanJob, workers []db.ScanWorker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = job
	for _, w := range workers {
		s.workers[w.WorkerID] = w
	}
	return nil
}

func (s *memoryStore) GetScanJob(_ context.Context, jobID string) (db.ScanJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return db.ScanJob{}, db.ErrNoRows
	}
	return job, nil
}

func (s *memoryStore) GetScanWorker(_ context.Context, workerID string) (db.ScanWorker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[workerID]
	if !ok {
		return db.ScanWorker{}, db.ErrNoRows
	}
	return w, nil
}

func (s *memoryStore) ListScanWorkers(_ context.Context, jobID string) ([]db.ScanWorker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.ScanWorker
	for _, w := range s.workers {
		if w.JobID == jobID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShardIndex < out[j].ShardIndex })
	return out, nil
}

func (s *memoryStore) SaveScanWorkerProgress(_ context.Context, update db.ScanWorker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[update.WorkerID]
	if !ok {
		return db.ErrNoRows
	}
	if w.Status != db.ScanStatusCompleted {
		w.Status = update.Status
	}
	w.ProgressPercent = max(w.ProgressPercent, update.ProgressPercent)
	w.LastBulletinRecordID = max(w.LastBulletinRecordID, update.LastBulletinRecordID)
	w.ProcessedCount = max(w.ProcessedCount, update.ProcessedCount)
	w.InvocationCount++
	w.LastError = update.LastError
	s.workers[update.WorkerID] = w
	return nil
}

func (s *memoryStore) CompleteScanJob(_ context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status == db.ScanStatusCompleted {
		return false, nil
	}
	for _, w := range s.workers {
		if w.JobID == jobID && w.Status != db.ScanStatusCompleted {
			return false, nil
		}
	}
	job.Status = db.ScanStatusCompleted
	s.jobs[jobID] = job
	return true, nil
}

func (s *memoryStore) RefreshScanJobResultCount(_ context.Context, jobID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, h := range s.hits {
		if h.JobID == jobID {
			n++
		}
	}
	job := s.jobs[jobID]
	job.CurrentResultCount = n
	s.jobs[jobID] = job
	return n, nil
}

func (s *memoryStore) UpsertSimilarityHits(_ context.Context, hits []db.SimilarityHit) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.failUpserts > 0 {
		s.failUpserts--
		return 0, errors.New("hit store unavailable")
	}
	for _, h := range hits {
		s.hits[hitKey{recordID: h.BulletinRecordID, markID: h.MonitoredMarkID, term: h.MatchedTerm}] = h
	}
	return len(hits), nil
}

func (s *memoryStore) hitsForJob(jobID string) map[hitKey]db.SimilarityHit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[hitKey]db.SimilarityHit{}
	for k, h := range s.hits {
		if h.JobID == jobID {
			out[k] = h
		}
	}
	return out
}

type memoryQueue struct {
	mu     sync.Mutex
	items  []*db.ScanContinuation
	nextID int64
	now    func() time.Time
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{now: time.Now}
}

func (q *memoryQueue) EnqueueContinuation(_ context.Context, jobID, workerID string, payload json.RawMessage) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.items = append(q.items, &db.ScanContinuation{
		ContinuationID: q.nextID,
		JobID:          jobID,
		WorkerID:       workerID,
		Payload:        append(json.RawMessage(nil), payload...),
		Status:         db.ContinuationPending,
	})
	return q.nextID, nil
}

func (q *memoryQueue) ClaimContinuation(_ context.Context, _ time.Duration) (db.ScanContinuation, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.Status != db.ContinuationPending || item.RunAfter.After(q.now()) {
			continue
		}
		item.Status = db.ContinuationRunning
		item.Attempts++
		return *item, true, nil
	}
	return db.ScanContinuation{}, false, nil
}

func (q *memoryQueue) find(id int64) *db.ScanContinuation {
	for _, item := range q.items {
		if item.ContinuationID == id {
			return item
		}
	}
	return nil
}

func (q *memoryQueue) CompleteContinuation(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.find(id).Status = db.ContinuationDone
	return nil
}

func (q *memoryQueue) RetryContinuation(_ context.Context, id int64, runAfter time.Time, lastError string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	item := q.find(id)
	item.Status = db.ContinuationPending
	item.RunAfter = runAfter
	item.LastError = &lastError
	return nil
}

func (q *memoryQueue) FailContinuation(_ context.Context, id int64, lastError string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	item := q.find(id)
	item.Status = db.ContinuationFailed
	item.LastError = &lastError
	return nil
}

func (q *memoryQueue) countByStatus(status string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, item := range q.items {
		if item.Status == status {
			n++
		}
	}
	return n
}

// recordingDispatcher captures dispatched invocations without running them.
type recordingDispatcher struct {
	mu       sync.Mutex
	requests []WorkerRequest
	err      error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req WorkerRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.requests = append(d.requests, req)
	return nil
}

// steppingClock advances by step on every reading.
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// cancellingStore cancels the invocation context once the first page has
// been listed and refuses writes made on a finished context.
type cancellingStore struct {
	*memoryStore
	cancel context.CancelFunc
}

func (s *cancellingStore) ListBulletinRecordsAfter(ctx context.Context, bulletinNo string, afterID int64, limit int) ([]db.BulletinRecord, error) {
	records, err := s.memoryStore.ListBulletinRecordsAfter(ctx, bulletinNo, afterID, limit)
	s.cancel()
	return records, err
}

func (s *cancellingStore) UpsertSimilarityHits(ctx context.Context, hits []db.SimilarityHit) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.memoryStore.UpsertSimilarityHits(ctx, hits)
}

// flakyCompleteStore fails CompleteScanJob a fixed number of times.
type flakyCompleteStore struct {
	*memoryStore
	failures int
}

func (s *flakyCompleteStore) CompleteScanJob(ctx context.Context, jobID string) (bool, error) {
	if s.failures > 0 {
		s.failures--
		return false, errors.New("transient db error")
	}
	return s.memoryStore.CompleteScanJob(ctx, jobID)
}

package scan

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/markwatch/internal/db"
	"horse.fit/markwatch/internal/nice"
)

// runScan starts a job and drains the continuation queue to completion.
func runScan(t *testing.T, store *memoryStore, req ScanRequest, shardCount int, opts WorkerOptions) (string, RunnerStats) {
	t.Helper()

	ctx := context.Background()
	queue := newMemoryQueue()
	dispatcher := NewQueueDispatcher(queue)
	coordinator := NewCoordinator(store, dispatcher, zerolog.Nop(), CoordinatorOptions{
		ShardCount: shardCount,
		NewJobID:   fixedJobID("job-1"),
	})

	jobID, err := coordinator.StartScan(ctx, req)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	worker := NewWorker(store, dispatcher, zerolog.Nop(), opts)
	runner := NewRunner(queue, worker, zerolog.Nop(), RunnerOptions{})
	stats, err := runner.Drain(ctx)
	if err != nil {
		t.Fatalf("unexpected drain error: %v", err)
	}
	if stats.Failed != 0 || stats.Retried != 0 {
		t.Fatalf("unexpected drain stats: %+v", stats)
	}
	if pending := queue.countByStatus(db.ContinuationPending); pending != 0 {
		t.Fatalf("unexpected pending continuations: got %d want 0", pending)
	}
	return jobID, stats
}

func TestScanFindsVisualNeighbourAndSkipsUnrelatedName(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(
		bulletinRecord(1, "Garenta", "39", "2024-05-01"),
		bulletinRecord(2, "Qarenta", "39", ""),
		bulletinRecord(3, "Zebra", "39", "2024-05-02"),
	)
	mark := monitoredMark("m1", "Garenta", 39)
	mark.FilingDate = "2023-01-10"

	jobID, _ := runScan(t, store, ScanRequest{
		MonitoredMarks:     []MonitoredMark{mark},
		SelectedBulletinID: testBulletin,
	}, 10, WorkerOptions{})

	hits := store.hitsForJob(jobID)
	if len(hits) != 2 {
		t.Fatalf("unexpected hit count: got %d want 2 (%+v)", len(hits), hits)
	}

	exact, ok := hits[hitKey{recordID: 1, markID: "m1", term: "Garenta"}]
	if !ok || exact.SimilarityScore != 1 || exact.PositionalExactMatchScore != 1 {
		t.Fatalf("unexpected exact hit: %+v", exact)
	}
	if exact.ClassTier != string(nice.TierOwn) || exact.NiceClasses != "39" || exact.Holders != "Acme Ltd, Beta A.Ş." {
		t.Fatalf("unexpected exact hit metadata: %+v", exact)
	}

	neighbour, ok := hits[hitKey{recordID: 2, markID: "m1", term: "Garenta"}]
	if !ok {
		t.Fatal("expected a hit for Qarenta")
	}
	if neighbour.SimilarityScore < AcceptThreshold || neighbour.SimilarityScore >= 1 {
		t.Fatalf("unexpected Qarenta score: got %v want in [%v, 1)", neighbour.SimilarityScore, AcceptThreshold)
	}
	if neighbour.SimilarMarkName != "Qarenta" || neighbour.SimilarApplicationNo != "2024/000002" {
		t.Fatalf("unexpected Qarenta hit fields: %+v", neighbour)
	}

	job := store.jobs[jobID]
	if job.Status != db.ScanStatusCompleted || job.CurrentResultCount != 2 {
		t.Fatalf("unexpected job state: %+v", job)
	}
	worker := store.workers[WorkerID(jobID, 0)]
	if worker.Status != db.ScanStatusCompleted || worker.ProgressPercent != 100 || worker.LastBulletinRecordID != 3 || worker.ProcessedCount != 3 {
		t.Fatalf("unexpected worker state: %+v", worker)
	}
}

func TestScanExcludesRecordsFiledBeforeTheMark(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(
		bulletinRecord(1, "Garenta", "39", "2022-03-01"),
		bulletinRecord(2, "Qarenta", "39", "15.06.2022"),
		bulletinRecord(3, "Garenta Oto", "39", "2022/12/31"),
	)
	mark := monitoredMark("m1", "Garenta", 39)
	mark.FilingDate = "2023-01-10"

	jobID, _ := runScan(t, store, ScanRequest{
		MonitoredMarks:     []MonitoredMark{mark},
		SelectedBulletinID: testBulletin,
	}, 10, WorkerOptions{})

	if hits := store.hitsForJob(jobID); len(hits) != 0 {
		t.Fatalf("unexpected hits: got %d want 0 (%+v)", len(hits), hits)
	}
	if job := store.jobs[jobID]; job.Status != db.ScanStatusCompleted || job.CurrentResultCount != 0 {
		t.Fatalf("unexpected job state: %+v", job)
	}
}

func TestScanAppliesClassRelevance(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(
		bulletinRecord(1, "Garenta", "33", ""),
		bulletinRecord(2, "Garenta", "9", ""),
		bulletinRecord(3, "Garenta", "", ""),
	)

	jobID, _ := runScan(t, store, ScanRequest{
		MonitoredMarks:     []MonitoredMark{monitoredMark("m1", "Garenta", 32)},
		SelectedBulletinID: testBulletin,
	}, 10, WorkerOptions{})

	hits := store.hitsForJob(jobID)
	if len(hits) != 1 {
		t.Fatalf("unexpected hit count: got %d want 1 (%+v)", len(hits), hits)
	}
	hit, ok := hits[hitKey{recordID: 1, markID: "m1", term: "Garenta"}]
	if !ok || hit.ClassTier != string(nice.TierRelated) {
		t.Fatalf("unexpected related-class hit: %+v", hit)
	}
}

func TestScanUsesAlternativeNames(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(bulletinRecord(1, "Zebrano", "39", ""))
	mark := monitoredMark("m1", "Garenta", 39)
	mark.AlternativeNames = []string{"Garenta", "Zebrano"}

	jobID, _ := runScan(t, store, ScanRequest{
		MonitoredMarks:     []MonitoredMark{mark},
		SelectedBulletinID: testBulletin,
	}, 10, WorkerOptions{})

	hits := store.hitsForJob(jobID)
	if _, ok := hits[hitKey{recordID: 1, markID: "m1", term: "Zebrano"}]; !ok || len(hits) != 1 {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func resumabilityRecords() []db.BulletinRecord {
	names := []string{"Garenta", "Qarenta", "Zebra", "Garenta Turizm", "Lorem", "Marenta", "Gar", "Ipsum Holding"}
	records := make([]db.BulletinRecord, 0, 30)
	for i := 1; i <= 30; i++ {
		records = append(records, bulletinRecord(int64(i), names[i%len(names)], "39", ""))
	}
	return records
}

func resumabilityRequest() ScanRequest {
	return ScanRequest{
		MonitoredMarks: []MonitoredMark{
			monitoredMark("m1", "Garenta", 39),
			monitoredMark("m2", "Zebra", 39),
		},
		SelectedBulletinID: testBulletin,
	}
}

func TestInterruptedScanMatchesUninterruptedScan(t *testing.T) {
	t.Parallel()

	whole := newMemoryStore(resumabilityRecords()...)
	jobID, wholeStats := runScan(t, whole, resumabilityRequest(), 2, WorkerOptions{TimeBudget: time.Hour})
	if wholeStats.Claimed != 2 {
		t.Fatalf("unexpected uninterrupted invocations: got %d want 2", wholeStats.Claimed)
	}

	// Every clock reading advances a second, so each invocation stops
	// after exactly one record.
	clock := &steppingClock{now: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), step: time.Second}
	sliced := newMemoryStore(resumabilityRecords()...)
	_, slicedStats := runScan(t, sliced, resumabilityRequest(), 2, WorkerOptions{TimeBudget: time.Second, Now: clock.Now})
	if slicedStats.Claimed != 62 {
		t.Fatalf("unexpected interrupted invocations: got %d want 62", slicedStats.Claimed)
	}

	wantHits := whole.hitsForJob(jobID)
	gotHits := sliced.hitsForJob(jobID)
	if len(wantHits) == 0 {
		t.Fatal("expected the fixture to produce hits")
	}
	if !reflect.DeepEqual(gotHits, wantHits) {
		t.Fatalf("unexpected hits after interrupted scan: got %d want %d", len(gotHits), len(wantHits))
	}

	for shard := 0; shard < 2; shard++ {
		id := WorkerID(jobID, shard)
		want := whole.workers[id]
		got := sliced.workers[id]
		if got.Status != db.ScanStatusCompleted || got.LastBulletinRecordID != want.LastBulletinRecordID || got.ProcessedCount != want.ProcessedCount {
			t.Fatalf("unexpected worker %s: got %+v want %+v", id, got, want)
		}
		if got.ProcessedCount != 30 || got.InvocationCount != 31 {
			t.Fatalf("unexpected worker %s bookkeeping: processed=%d invocations=%d", id, got.ProcessedCount, got.InvocationCount)
		}
	}
	if sliced.jobs[jobID].CurrentResultCount != int64(len(wantHits)) {
		t.Fatalf("unexpected result count: got %d want %d", sliced.jobs[jobID].CurrentResultCount, len(wantHits))
	}
}

// startShards creates a job whose shard invocations are captured rather
// than queued, so tests can run them by hand.
func startShards(t *testing.T, store *memoryStore, marks []MonitoredMark, shardCount int) (*recordingDispatcher, []WorkerRequest) {
	t.Helper()

	dispatcher := &recordingDispatcher{}
	coordinator := NewCoordinator(store, dispatcher, zerolog.Nop(), CoordinatorOptions{
		ShardCount: shardCount,
		NewJobID:   fixedJobID("job-1"),
	})
	if _, err := coordinator.StartScan(context.Background(), ScanRequest{
		MonitoredMarks:     marks,
		SelectedBulletinID: testBulletin,
	}); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	initial := append([]WorkerRequest(nil), dispatcher.requests...)
	dispatcher.requests = nil
	return dispatcher, initial
}

func TestJobCompletesOnlyAfterEveryShard(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(
		bulletinRecord(1, "Garenta", "39", ""),
		bulletinRecord(2, "Zebra", "39", ""),
	)
	dispatcher, initial := startShards(t, store, []MonitoredMark{
		monitoredMark("m1", "Garenta", 39),
		monitoredMark("m2", "Zebra", 39),
	}, 2)
	worker := NewWorker(store, dispatcher, zerolog.Nop(), WorkerOptions{})
	ctx := context.Background()

	first, err := worker.Run(ctx, initial[0])
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if !first.Finished || first.Continued || first.Hits != 1 {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if status := store.jobs["job-1"].Status; status != db.ScanStatusProcessing {
		t.Fatalf("unexpected job status after one shard: got %q want %q", status, db.ScanStatusProcessing)
	}
	if count := store.jobs["job-1"].CurrentResultCount; count != 1 {
		t.Fatalf("unexpected running result count: got %d want 1", count)
	}

	if _, err := worker.Run(ctx, initial[1]); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	job := store.jobs["job-1"]
	if job.Status != db.ScanStatusCompleted || job.CurrentResultCount != 2 {
		t.Fatalf("unexpected final job: %+v", job)
	}
	if len(dispatcher.requests) != 0 {
		t.Fatalf("unexpected continuations: got %d want 0", len(dispatcher.requests))
	}
}

func TestDuplicateInvocationOfCompletedShardIsIgnored(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(bulletinRecord(1, "Garenta", "39", ""))
	dispatcher, initial := startShards(t, store, []MonitoredMark{monitoredMark("m1", "Garenta", 39)}, 1)
	worker := NewWorker(store, dispatcher, zerolog.Nop(), WorkerOptions{})
	ctx := context.Background()

	if _, err := worker.Run(ctx, initial[0]); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	upserts := store.upsertCalls
	lists := len(store.listCalls)

	again, err := worker.Run(ctx, initial[0])
	if err != nil {
		t.Fatalf("unexpected duplicate run error: %v", err)
	}
	if !again.Finished || again.Continued || again.Hits != 0 || again.LastID != 1 || again.ProgressPercent != 100 {
		t.Fatalf("unexpected duplicate result: %+v", again)
	}
	if store.upsertCalls != upserts || len(store.listCalls) != lists {
		t.Fatalf("unexpected work on duplicate: upserts %d->%d lists %d->%d", upserts, store.upsertCalls, lists, len(store.listCalls))
	}
	if len(dispatcher.requests) != 0 {
		t.Fatalf("unexpected continuations: got %d want 0", len(dispatcher.requests))
	}
}

func TestStaleInvocationResumesFromStoredWatermark(t *testing.T) {
	t.Parallel()

	records := make([]db.BulletinRecord, 0, 10)
	for i := 1; i <= 10; i++ {
		records = append(records, bulletinRecord(int64(i), fmt.Sprintf("Name %d", i), "39", ""))
	}
	store := newMemoryStore(records...)
	dispatcher, initial := startShards(t, store, []MonitoredMark{monitoredMark("m1", "Garenta", 39)}, 1)

	clock := &steppingClock{now: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), step: time.Second}
	worker := NewWorker(store, dispatcher, zerolog.Nop(), WorkerOptions{TimeBudget: 5 * time.Second, Now: clock.Now})
	ctx := context.Background()

	first, err := worker.Run(ctx, initial[0])
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if first.Finished || !first.Continued || first.LastID != 5 || first.ProcessedCount != 5 || first.ProgressPercent != 50 {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if len(dispatcher.requests) != 1 || dispatcher.requests[0].LastID != 5 || dispatcher.requests[0].ProcessedCount != 5 {
		t.Fatalf("unexpected continuation: %+v", dispatcher.requests)
	}

	// Replaying the original request must not rewind the shard.
	store.listCalls = nil
	second, err := worker.Run(ctx, initial[0])
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if store.listCalls[0].afterID != 5 {
		t.Fatalf("unexpected resume point: got %d want 5", store.listCalls[0].afterID)
	}
	if second.LastID != 10 || second.ProcessedCount != 10 {
		t.Fatalf("unexpected second result: %+v", second)
	}
	if w := store.workers[initial[0].WorkerID]; w.LastBulletinRecordID != 10 || w.ProcessedCount != 10 {
		t.Fatalf("unexpected stored watermark: %+v", w)
	}
}

func TestHitPersistFailureStillAdvancesWatermark(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(
		bulletinRecord(1, "Garenta", "39", ""),
		bulletinRecord(2, "Qarenta", "39", ""),
	)
	store.failUpserts = 1
	dispatcher, initial := startShards(t, store, []MonitoredMark{monitoredMark("m1", "Garenta", 39)}, 1)
	worker := NewWorker(store, dispatcher, zerolog.Nop(), WorkerOptions{})

	result, err := worker.Run(context.Background(), initial[0])
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if !result.Finished || result.Hits != 0 || result.FailedHits != 2 || result.LastID != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	w := store.workers[initial[0].WorkerID]
	if w.Status != db.ScanStatusCompleted || w.LastBulletinRecordID != 2 {
		t.Fatalf("unexpected worker state: %+v", w)
	}
	if w.LastError == nil || *w.LastError != "hit store unavailable" {
		t.Fatalf("unexpected last error: %v", w.LastError)
	}
	if store.jobs["job-1"].Status != db.ScanStatusCompleted {
		t.Fatalf("unexpected job status: got %q want %q", store.jobs["job-1"].Status, db.ScanStatusCompleted)
	}
}

func TestCancelledInvocationKeepsHitsBehindWatermark(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(
		bulletinRecord(1, "Garenta", "39", ""),
		bulletinRecord(2, "Zebra", "39", ""),
	)
	dispatcher, initial := startShards(t, store, []MonitoredMark{monitoredMark("m1", "Garenta", 39)}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cancelling := &cancellingStore{memoryStore: store, cancel: cancel}
	worker := NewWorker(cancelling, dispatcher, zerolog.Nop(), WorkerOptions{})

	result, err := worker.Run(ctx, initial[0])
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if result.Finished || !result.Continued || result.LastID != 1 || result.Hits != 1 || result.FailedHits != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if _, ok := store.hitsForJob("job-1")[hitKey{recordID: 1, markID: "m1", term: "Garenta"}]; !ok {
		t.Fatal("expected the hit for record 1 to be stored")
	}
	if w := store.workers[initial[0].WorkerID]; w.LastBulletinRecordID != 1 || w.LastError != nil {
		t.Fatalf("unexpected worker state: %+v", w)
	}
	if len(dispatcher.requests) != 1 || dispatcher.requests[0].LastID != 1 {
		t.Fatalf("unexpected continuation: %+v", dispatcher.requests)
	}
}

func TestRetryCompletesJobAfterCompletionFailure(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(bulletinRecord(1, "Garenta", "39", ""))
	dispatcher, initial := startShards(t, store, []MonitoredMark{monitoredMark("m1", "Garenta", 39)}, 1)
	flaky := &flakyCompleteStore{memoryStore: store, failures: 1}
	worker := NewWorker(flaky, dispatcher, zerolog.Nop(), WorkerOptions{})
	ctx := context.Background()

	if _, err := worker.Run(ctx, initial[0]); err == nil {
		t.Fatal("expected job completion error")
	}
	if w := store.workers[initial[0].WorkerID]; w.Status != db.ScanStatusCompleted {
		t.Fatalf("unexpected worker status: got %q want %q", w.Status, db.ScanStatusCompleted)
	}
	if status := store.jobs["job-1"].Status; status == db.ScanStatusCompleted {
		t.Fatalf("unexpected job status before retry: %q", status)
	}

	retry, err := worker.Run(ctx, initial[0])
	if err != nil {
		t.Fatalf("unexpected retry error: %v", err)
	}
	if !retry.Finished || retry.Continued {
		t.Fatalf("unexpected retry result: %+v", retry)
	}
	if status := store.jobs["job-1"].Status; status != db.ScanStatusCompleted {
		t.Fatalf("unexpected job status: got %q want %q", status, db.ScanStatusCompleted)
	}
}

func TestWorkerRejectsUnknownOrMismatchedShard(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(bulletinRecord(1, "Garenta", "39", ""))
	dispatcher, initial := startShards(t, store, []MonitoredMark{monitoredMark("m1", "Garenta", 39)}, 1)
	worker := NewWorker(store, dispatcher, zerolog.Nop(), WorkerOptions{})
	ctx := context.Background()

	unknown := initial[0]
	unknown.WorkerID = "job-1-w09"
	if _, err := worker.Run(ctx, unknown); !errors.Is(err, ErrWorkerNotFound) {
		t.Fatalf("unexpected error: got %v want %v", err, ErrWorkerNotFound)
	}

	mismatched := initial[0]
	mismatched.JobID = "job-2"
	if _, err := worker.Run(ctx, mismatched); !errors.Is(err, ErrValidation) {
		t.Fatalf("unexpected error: got %v want %v", err, ErrValidation)
	}

	empty := initial[0]
	empty.MonitoredMarks = nil
	if _, err := worker.Run(ctx, empty); !errors.Is(err, ErrValidation) {
		t.Fatalf("unexpected error: got %v want %v", err, ErrValidation)
	}
}

func TestWorkerCheckpointsWhenRecordListingFails(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(bulletinRecord(1, "Garenta", "39", ""))
	dispatcher, initial := startShards(t, store, []MonitoredMark{monitoredMark("m1", "Garenta", 39)}, 1)
	store.listErr = errors.New("bulletin store unavailable")
	worker := NewWorker(store, dispatcher, zerolog.Nop(), WorkerOptions{})

	if _, err := worker.Run(context.Background(), initial[0]); err == nil {
		t.Fatal("expected listing error")
	}
	if w := store.workers[initial[0].WorkerID]; w.Status != db.ScanStatusProcessing || w.InvocationCount != 1 {
		t.Fatalf("unexpected worker state: %+v", w)
	}
	if len(dispatcher.requests) != 0 {
		t.Fatalf("unexpected continuation after failure: %+v", dispatcher.requests)
	}
}

func TestPageSize(t *testing.T) {
	t.Parallel()

	worker := NewWorker(newMemoryStore(), &recordingDispatcher{}, zerolog.Nop(), WorkerOptions{
		PagePairBudget: 2000,
		MinPageSize:    10,
		MaxPageSize:    500,
	})

	tests := []struct {
		marks int
		want  int
	}{
		{marks: 0, want: 500},
		{marks: 1, want: 500},
		{marks: 4, want: 500},
		{marks: 8, want: 250},
		{marks: 100, want: 20},
		{marks: 1000, want: 10},
	}
	for _, tc := range tests {
		if got := worker.PageSize(tc.marks); got != tc.want {
			t.Fatalf("unexpected page size for %d marks: got %d want %d", tc.marks, got, tc.want)
		}
	}
}

func TestProgressPercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		processed int64
		total     int64
		want      int
	}{
		{processed: 0, total: 10, want: 0},
		{processed: 1, total: 3, want: 33},
		{processed: 2, total: 3, want: 66},
		{processed: 3, total: 3, want: 100},
		{processed: 5, total: 3, want: 100},
		{processed: 5, total: 0, want: 0},
	}
	for _, tc := range tests {
		if got := ProgressPercent(tc.processed, tc.total); got != tc.want {
			t.Fatalf("unexpected percent for %d/%d: got %d want %d", tc.processed, tc.total, got, tc.want)
		}
	}
}

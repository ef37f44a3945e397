package db

import (
	"encoding/json"
	"time"
)

const (
	ScanStatusProcessing = "processing"
	ScanStatusCompleted  = "completed"

	ContinuationPending = "pending"
	ContinuationRunning = "running"
	ContinuationDone    = "done"
	ContinuationFailed  = "failed"
)

// BulletinRecord maps markwatch.bulletin_records. Rows are written by the
// bulletin ingest and only read here; bulletin_record_id is the scan cursor.
type BulletinRecord struct {
	BulletinRecordID int64     `gorm:"column:bulletin_record_id;primaryKey;autoIncrement"`
	BulletinNo       string    `gorm:"column:bulletin_no;type:text;not null"`
	ApplicationNo    string    `gorm:"column:application_no;type:text;not null;default:''"`
	MarkName         string    `gorm:"column:mark_name;type:text;not null;default:''"`
	NiceClasses      string    `gorm:"column:nice_classes;type:text;not null;default:''"`
	Holders          string    `gorm:"column:holders;type:text;not null;default:''"`
	ApplicationDate  string    `gorm:"column:application_date;type:text;not null;default:''"`
	ImagePath        *string   `gorm:"column:image_path;type:text"`
	CreatedAt        time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (BulletinRecord) TableName() string { return "markwatch.bulletin_records" }

// ScanJob maps markwatch.scan_jobs.
type ScanJob struct {
	JobID                    string     `gorm:"column:job_id;type:text;primaryKey"`
	BulletinNo               string     `gorm:"column:bulletin_no;type:text;not null"`
	Status                   string     `gorm:"column:status;type:text;not null;default:processing"`
	CurrentResultCount       int64      `gorm:"column:current_result_count;type:bigint;not null;default:0"`
	TotalBulletinRecordCount int64      `gorm:"column:total_bulletin_record_count;type:bigint;not null;default:0"`
	MonitoredMarkCount       int        `gorm:"column:monitored_mark_count;type:integer;not null;default:0"`
	WorkerCount              int        `gorm:"column:worker_count;type:integer;not null;default:0"`
	CreatedAt                time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt                time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
	CompletedAt              *time.Time `gorm:"column:completed_at;type:timestamptz"`
}

func (ScanJob) TableName() string { return "markwatch.scan_jobs" }

// ScanWorker maps markwatch.scan_workers. One row per shard, written only by
// that shard; last_bulletin_record_id is its resume watermark.
type ScanWorker struct {
	WorkerID             string     `gorm:"column:worker_id;type:text;primaryKey"`
	JobID                string     `gorm:"column:job_id;type:text;not null"`
	ShardIndex           int        `gorm:"column:shard_index;type:integer;not null"`
	Status               string     `gorm:"column:status;type:text;not null;default:processing"`
	ProgressPercent      int        `gorm:"column:progress_percent;type:integer;not null;default:0"`
	LastBulletinRecordID int64      `gorm:"column:last_bulletin_record_id;type:bigint;not null;default:0"`
	ProcessedCount       int64      `gorm:"column:processed_count;type:bigint;not null;default:0"`
	MarkCount            int        `gorm:"column:mark_count;type:integer;not null;default:0"`
	InvocationCount      int        `gorm:"column:invocation_count;type:integer;not null;default:0"`
	LastError            *string    `gorm:"column:last_error;type:text"`
	CreatedAt            time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
	CompletedAt          *time.Time `gorm:"column:completed_at;type:timestamptz"`
}

func (ScanWorker) TableName() string { return "markwatch.scan_workers" }

// SimilarityHit maps markwatch.similarity_hits. The natural key is
// (bulletin_record_id, monitored_mark_id, matched_term); a rescan reassigns
// the row to the newer job.
type SimilarityHit struct {
	HitID                     int64     `gorm:"column:hit_id;primaryKey;autoIncrement"`
	JobID                     string    `gorm:"column:job_id;type:text;not null"`
	BulletinRecordID          int64     `gorm:"column:bulletin_record_id;type:bigint;not null"`
	BulletinNo                string    `gorm:"column:bulletin_no;type:text;not null"`
	MonitoredMarkID           string    `gorm:"column:monitored_mark_id;type:text;not null"`
	MatchedTerm               string    `gorm:"column:matched_term;type:text;not null"`
	SimilarMarkName           string    `gorm:"column:similar_mark_name;type:text;not null;default:''"`
	SimilarApplicationNo      string    `gorm:"column:similar_application_no;type:text;not null;default:''"`
	SimilarityScore           float64   `gorm:"column:similarity_score;type:double precision;not null"`
	PositionalExactMatchScore float64   `gorm:"column:positional_exact_match_score;type:double precision;not null;default:0"`
	Holders                   string    `gorm:"column:holders;type:text;not null;default:''"`
	NiceClasses               string    `gorm:"column:nice_classes;type:text;not null;default:''"`
	ImagePath                 *string   `gorm:"column:image_path;type:text"`
	ClassTier                 string    `gorm:"column:class_tier;type:text;not null;default:''"`
	CreatedAt                 time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt                 time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (SimilarityHit) TableName() string { return "markwatch.similarity_hits" }

// ScanContinuation maps markwatch.scan_continuations, the durable queue of
// "continue shard X from watermark Y" work items.
type ScanContinuation struct {
	ContinuationID int64           `gorm:"column:continuation_id;primaryKey;autoIncrement"`
	JobID          string          `gorm:"column:job_id;type:text;not null"`
	WorkerID       string          `gorm:"column:worker_id;type:text;not null"`
	Payload        json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	Status         string          `gorm:"column:status;type:text;not null;default:pending"`
	Attempts       int             `gorm:"column:attempts;type:integer;not null;default:0"`
	RunAfter       time.Time       `gorm:"column:run_after;type:timestamptz;not null;default:now()"`
	LockedUntil    *time.Time      `gorm:"column:locked_until;type:timestamptz"`
	LastError      *string         `gorm:"column:last_error;type:text"`
	CreatedAt      time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (ScanContinuation) TableName() string { return "markwatch.scan_continuations" }

func autoMigrateModels() []any {
	return []any{
		&BulletinRecord{},
		&ScanJob{},
		&ScanWorker{},
		&SimilarityHit{},
		&ScanContinuation{},
	}
}

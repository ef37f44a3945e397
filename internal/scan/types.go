// Package scan runs similarity scans of a trademark bulletin against a set
// of monitored marks: a Coordinator fans a job out into mark shards, a Worker
// advances one shard in time-boxed invocations, and a Runner drains the
// durable continuation queue that links those invocations.
package scan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"horse.fit/markwatch/internal/nice"
)

const (
	ActionStart  = "start"
	ActionWorker = "worker"

	// UnnamedMark stands in for a missing primary name. It normalizes to
	// nothing, so it never produces a search term.
	UnnamedMark = "-"
)

var (
	ErrValidation     = errors.New("invalid scan request")
	ErrJobNotFound    = errors.New("scan job not found")
	ErrWorkerNotFound = errors.New("scan worker not found")
)

// ValidationError names the offending field of a rejected request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Identifier accepts either a JSON string or a JSON number.
type Identifier string

func (id *Identifier) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*id = Identifier(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*id = Identifier(n.String())
	return nil
}

func (id Identifier) String() string {
	return string(id)
}

// MonitoredMark is a trademark a client wants watched.
type MonitoredMark struct {
	ID               Identifier    `json:"id"`
	PrimaryName      string        `json:"primaryName"`
	AlternativeNames []string      `json:"alternativeNames,omitempty"`
	OwnClasses       nice.ClassSet `json:"ownClasses"`
	WatchedClasses   nice.ClassSet `json:"watchedClasses"`
	FilingDate       string        `json:"filingDate,omitempty"`
}

// ScanRequest starts a job.
type ScanRequest struct {
	MonitoredMarks     []MonitoredMark `json:"monitoredMarks"`
	SelectedBulletinID Identifier      `json:"selectedBulletinId"`
}

func (r ScanRequest) Validate() error {
	if strings.TrimSpace(r.SelectedBulletinID.String()) == "" {
		return invalid("selectedBulletinId", "is required")
	}
	return validateMarks(r.MonitoredMarks)
}

// WorkerRequest is one shard invocation. It carries everything the shard
// needs, so any process can run it.
type WorkerRequest struct {
	Action               string          `json:"action"`
	JobID                string          `json:"jobId"`
	WorkerID             string          `json:"workerId"`
	MonitoredMarks       []MonitoredMark `json:"monitoredMarks"`
	SelectedBulletinID   Identifier      `json:"selectedBulletinId"`
	LastID               int64           `json:"lastId"`
	ProcessedCount       int64           `json:"processedCount"`
	TotalBulletinRecords int64           `json:"totalBulletinRecords"`
}

func (r WorkerRequest) Validate() error {
	if strings.TrimSpace(r.JobID) == "" {
		return invalid("jobId", "is required")
	}
	if strings.TrimSpace(r.WorkerID) == "" {
		return invalid("workerId", "is required")
	}
	if strings.TrimSpace(r.SelectedBulletinID.String()) == "" {
		return invalid("selectedBulletinId", "is required")
	}
	if r.LastID < 0 {
		return invalid("lastId", "must be >= 0")
	}
	if r.ProcessedCount < 0 {
		return invalid("processedCount", "must be >= 0")
	}
	if r.TotalBulletinRecords < 0 {
		return invalid("totalBulletinRecords", "must be >= 0")
	}
	return validateMarks(r.MonitoredMarks)
}

// WorkerResult reports what one invocation did.
type WorkerResult struct {
	WorkerID        string `json:"workerId"`
	Finished        bool   `json:"finished"`
	Continued       bool   `json:"continued"`
	LastID          int64  `json:"lastId"`
	ProcessedCount  int64  `json:"processedCount"`
	ProgressPercent int    `json:"progressPercent"`
	Hits            int    `json:"hits"`
	FailedHits      int    `json:"failedHits"`
}

func validateMarks(marks []MonitoredMark) error {
	if len(marks) == 0 {
		return invalid("monitoredMarks", "must contain at least one mark")
	}
	seen := make(map[string]int, len(marks))
	for i, m := range marks {
		id := strings.TrimSpace(m.ID.String())
		if id == "" {
			return invalid(fmt.Sprintf("monitoredMarks[%d].id", i), "is required")
		}
		// Hits are keyed by mark id, so two marks sharing one would collide
		// inside a single upsert.
		if first, ok := seen[id]; ok {
			return invalid(fmt.Sprintf("monitoredMarks[%d].id", i), "duplicates monitoredMarks[%d].id %q", first, id)
		}
		seen[id] = i
	}
	return nil
}

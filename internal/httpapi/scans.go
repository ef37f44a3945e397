package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"horse.fit/markwatch/internal/db"
	"horse.fit/markwatch/internal/scan"
	payloadschema "horse.fit/markwatch/schema"
)

type workerView struct {
	WorkerID             string    `json:"worker_id"`
	ShardIndex           int       `json:"shard_index"`
	Status               string    `json:"status"`
	ProgressPercent      int       `json:"progress_percent"`
	LastBulletinRecordID int64     `json:"last_bulletin_record_id"`
	ProcessedCount       int64     `json:"processed_count"`
	MarkCount            int       `json:"mark_count"`
	InvocationCount      int       `json:"invocation_count"`
	LastError            *string   `json:"last_error,omitempty"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type jobView struct {
	JobID                    string       `json:"job_id"`
	BulletinNo               string       `json:"bulletin_no"`
	Status                   string       `json:"status"`
	ProgressPercent          int          `json:"progress_percent"`
	CurrentResultCount       int64        `json:"current_result_count"`
	TotalBulletinRecordCount int64        `json:"total_bulletin_record_count"`
	MonitoredMarkCount       int          `json:"monitored_mark_count"`
	WorkerCount              int          `json:"worker_count"`
	CreatedAt                time.Time    `json:"created_at"`
	UpdatedAt                time.Time    `json:"updated_at"`
	CompletedAt              *time.Time   `json:"completed_at,omitempty"`
	Workers                  []workerView `json:"workers"`
}

type hitView struct {
	HitID                     int64   `json:"hit_id"`
	BulletinRecordID          int64   `json:"bulletin_record_id"`
	BulletinNo                string  `json:"bulletin_no"`
	MonitoredMarkID           string  `json:"monitored_mark_id"`
	MatchedTerm               string  `json:"matched_term"`
	SimilarMarkName           string  `json:"similar_mark_name"`
	SimilarApplicationNo      string  `json:"similar_application_no"`
	SimilarityScore           float64 `json:"similarity_score"`
	PositionalExactMatchScore float64 `json:"positional_exact_match_score"`
	Holders                   string  `json:"holders"`
	NiceClasses               string  `json:"nice_classes"`
	ImagePath                 *string `json:"image_path,omitempty"`
	ClassTier                 string  `json:"class_tier,omitempty"`
}

// handleScan is the single entry point for both invocation shapes: a start
// request, or a shard invocation carrying action "worker".
func (s *Server) handleScan(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return scanFailed(c, http.StatusBadRequest, "could not read request body")
	}

	invocation, err := payloadschema.ValidateInvocation(body)
	if err != nil {
		if payloadschema.IsValidation(err) {
			return scanFailed(c, http.StatusBadRequest, err.Error())
		}
		s.logger.Error().Err(err).Msg("validate scan payload failed")
		return scanFailed(c, http.StatusInternalServerError, "Internal server error")
	}

	if invocation.Action == scan.ActionWorker {
		return s.runShard(c, *invocation.Worker)
	}
	return s.startScan(c, *invocation.Start)
}

func (s *Server) startScan(c echo.Context, req scan.ScanRequest) error {
	jobID, err := s.deps.Coordinator.StartScan(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, scan.ErrValidation) {
			return scanFailed(c, http.StatusBadRequest, err.Error())
		}
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("start scan failed")
		if jobID != "" {
			return c.JSON(http.StatusInternalServerError, scanResponse{
				JobID: jobID,
				Error: "Scan created but not every shard could be scheduled",
			})
		}
		return scanFailed(c, http.StatusInternalServerError, "Failed to start scan")
	}
	return scanOK(c, scanResponse{JobID: jobID})
}

func (s *Server) runShard(c echo.Context, req scan.WorkerRequest) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.opts.WorkerTimeout)
	defer cancel()

	result, err := s.deps.Worker.Run(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, scan.ErrValidation):
			return scanFailed(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, scan.ErrWorkerNotFound):
			return scanFailed(c, http.StatusNotFound, err.Error())
		}
		s.logger.Error().Err(err).Str("job_id", req.JobID).Str("worker_id", req.WorkerID).Msg("shard invocation failed")
		return scanFailed(c, http.StatusInternalServerError, "Shard invocation failed")
	}
	return scanOK(c, scanResponse{WorkerID: result.WorkerID, Finished: result.Finished})
}

func (s *Server) handleScanProgress(c echo.Context) error {
	jobID := strings.TrimSpace(c.Param("job_id"))
	if jobID == "" {
		return failValidation(c, map[string]string{"job_id": "is required"})
	}

	progress, err := s.deps.Coordinator.Progress(c.Request().Context(), jobID)
	if err != nil {
		if errors.Is(err, scan.ErrJobNotFound) {
			return failNotFound(c, "Scan job not found")
		}
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("load scan progress failed")
		return internalError(c, "Failed to load scan progress")
	}
	return success(c, newJobView(progress))
}

func (s *Server) handleScanHits(c echo.Context) error {
	jobID := strings.TrimSpace(c.Param("job_id"))
	if jobID == "" {
		return failValidation(c, map[string]string{"job_id": "is required"})
	}
	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}
	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}

	ctx := c.Request().Context()
	if _, err := s.deps.Coordinator.Progress(ctx, jobID); err != nil {
		if errors.Is(err, scan.ErrJobNotFound) {
			return failNotFound(c, "Scan job not found")
		}
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("load scan job failed")
		return internalError(c, "Failed to load scan hits")
	}

	rows, total, err := s.deps.Hits.ListSimilarityHits(ctx, jobID, pageSize, (page-1)*pageSize)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("list similarity hits failed")
		return internalError(c, "Failed to load scan hits")
	}

	items := make([]hitView, 0, len(rows))
	for _, row := range rows {
		items = append(items, newHitView(row))
	}

	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return success(c, map[string]any{
		"items": items,
		"pagination": map[string]any{
			"page":        page,
			"page_size":   pageSize,
			"total_items": total,
			"total_pages": totalPages,
		},
	})
}

func newJobView(p scan.JobProgress) jobView {
	workers := make([]workerView, 0, len(p.Workers))
	for _, w := range p.Workers {
		workers = append(workers, workerView{
			WorkerID:             w.WorkerID,
			ShardIndex:           w.ShardIndex,
			Status:               w.Status,
			ProgressPercent:      w.ProgressPercent,
			LastBulletinRecordID: w.LastBulletinRecordID,
			ProcessedCount:       w.ProcessedCount,
			MarkCount:            w.MarkCount,
			InvocationCount:      w.InvocationCount,
			LastError:            w.LastError,
			UpdatedAt:            w.UpdatedAt,
		})
	}
	return jobView{
		JobID:                    p.Job.JobID,
		BulletinNo:               p.Job.BulletinNo,
		Status:                   p.Job.Status,
		ProgressPercent:          p.ProgressPercent,
		CurrentResultCount:       p.Job.CurrentResultCount,
		TotalBulletinRecordCount: p.Job.TotalBulletinRecordCount,
		MonitoredMarkCount:       p.Job.MonitoredMarkCount,
		WorkerCount:              p.Job.WorkerCount,
		CreatedAt:                p.Job.CreatedAt,
		UpdatedAt:                p.Job.UpdatedAt,
		CompletedAt:              p.Job.CompletedAt,
		Workers:                  workers,
	}
}

func newHitView(h db.SimilarityHit) hitView {
	return hitView{
		HitID:                     h.HitID,
		BulletinRecordID:          h.BulletinRecordID,
		BulletinNo:                h.BulletinNo,
		MonitoredMarkID:           h.MonitoredMarkID,
		MatchedTerm:               h.MatchedTerm,
		SimilarMarkName:           h.SimilarMarkName,
		SimilarApplicationNo:      h.SimilarApplicationNo,
		SimilarityScore:           h.SimilarityScore,
		PositionalExactMatchScore: h.PositionalExactMatchScore,
		Holders:                   h.Holders,
		NiceClasses:               h.NiceClasses,
		ImagePath:                 h.ImagePath,
		ClassTier:                 h.ClassTier,
	}
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

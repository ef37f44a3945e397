package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"horse.fit/markwatch/internal/cli"
	"horse.fit/markwatch/internal/scan"
)

type statusWorker struct {
	WorkerID        string  `json:"worker_id"`
	Status          string  `json:"status"`
	ProgressPercent int     `json:"progress_percent"`
	LastID          int64   `json:"last_id"`
	ProcessedCount  int64   `json:"processed_count"`
	Invocations     int     `json:"invocations"`
	LastError       *string `json:"last_error,omitempty"`
}

type statusReport struct {
	JobID           string         `json:"job_id"`
	BulletinNo      string         `json:"bulletin_no"`
	Status          string         `json:"status"`
	ProgressPercent int            `json:"progress_percent"`
	Hits            int64          `json:"hits"`
	TotalRecords    int64          `json:"total_records"`
	Workers         []statusWorker `json:"workers"`
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	jobID := fs.String("job", "", "Scan job id")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	id := strings.TrimSpace(*jobID)
	if id == "" {
		fmt.Fprintln(os.Stderr, "--job is required")
		return 2
	}

	cfg, logger, pool, ok := openRuntime(envLoader, "status")
	if !ok {
		return 1
	}
	defer pool.Close()

	ctx, cancel := signalContext()
	defer cancel()

	progress, err := newScanStack(cfg, pool, logger).coordinator.Progress(ctx, id)
	if err != nil {
		if errors.Is(err, scan.ErrJobNotFound) {
			fmt.Fprintf(os.Stderr, "Scan job %s not found\n", id)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Load progress failed: %v\n", err)
		return 1
	}

	out, err := json.MarshalIndent(newStatusReport(progress), "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Encode progress failed: %v\n", err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}

func newStatusReport(p scan.JobProgress) statusReport {
	report := statusReport{
		JobID:           p.Job.JobID,
		BulletinNo:      p.Job.BulletinNo,
		Status:          p.Job.Status,
		ProgressPercent: p.ProgressPercent,
		Hits:            p.Job.CurrentResultCount,
		TotalRecords:    p.Job.TotalBulletinRecordCount,
		Workers:         make([]statusWorker, 0, len(p.Workers)),
	}
	for _, w := range p.Workers {
		report.Workers = append(report.Workers, statusWorker{
			WorkerID:        w.WorkerID,
			Status:          w.Status,
			ProgressPercent: w.ProgressPercent,
			LastID:          w.LastBulletinRecordID,
			ProcessedCount:  w.ProcessedCount,
			Invocations:     w.InvocationCount,
			LastError:       w.LastError,
		})
	}
	return report
}

package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"horse.fit/markwatch/internal/cli"
	"horse.fit/markwatch/internal/db"
	payloadschema "horse.fit/markwatch/schema"
)

func runScanCommand(args []string) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	file := fs.String("file", "", "Path to a scan request JSON file")
	wait := fs.Bool("wait", false, "Run the job's shards in this process until the queue is drained")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	path := strings.TrimSpace(*file)
	if path == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		return 2
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", path, err)
		return 1
	}
	req, err := payloadschema.ValidateScanRequest(json.RawMessage(raw))
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID %s: %v\n", path, err)
		return 1
	}

	cfg, logger, pool, ok := openRuntime(envLoader, "scan")
	if !ok {
		return 1
	}
	defer pool.Close()

	ctx, cancel := signalContext()
	defer cancel()

	stack := newScanStack(cfg, pool, logger)
	jobID, err := stack.coordinator.StartScan(ctx, *req)
	if err != nil {
		logger.Error().Err(err).Str("job_id", jobID).Msg("start scan failed")
		fmt.Fprintf(os.Stderr, "Start scan failed: %v\n", err)
		return 1
	}
	fmt.Printf("scan started job_id=%s marks=%d bulletin=%s\n", jobID, len(req.MonitoredMarks), req.SelectedBulletinID)

	if !*wait {
		return 0
	}

	stats, err := stack.runner.Drain(ctx)
	if err != nil {
		logger.Error().Err(err).Str("job_id", jobID).Msg("drain scan failed")
		fmt.Fprintf(os.Stderr, "Scan failed: %v\n", err)
		return 1
	}

	progress, err := stack.coordinator.Progress(ctx, jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load progress failed: %v\n", err)
		return 1
	}
	fmt.Printf(
		"scan job_id=%s status=%s progress=%d%% hits=%d invocations=%d failed=%d\n",
		jobID,
		progress.Job.Status,
		progress.ProgressPercent,
		progress.Job.CurrentResultCount,
		stats.Claimed,
		stats.Failed,
	)
	if progress.Job.Status != db.ScanStatusCompleted {
		return 1
	}
	return 0
}

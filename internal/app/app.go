package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "score":
		return runScore(args[1:])
	case "scan":
		return runScanCommand(args[1:])
	case "status":
		return runStatus(args[1:])
	case "runner":
		return runRunner(args[1:])
	case "serve":
		return runServe(args[1:])
	case "daemon":
		return runDaemon(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "markwatch CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  markwatch <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health    Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  validate  Validate scan request JSON files against the schema")
	fmt.Fprintln(os.Stderr, "  score     Compare two mark names and print every score component")
	fmt.Fprintln(os.Stderr, "  scan      Start a scan from a JSON request file")
	fmt.Fprintln(os.Stderr, "  status    Print job and shard progress")
	fmt.Fprintln(os.Stderr, "  runner    Run shard continuations from the durable queue")
	fmt.Fprintln(os.Stderr, "  serve     Start the API server with an embedded runner")
	fmt.Fprintln(os.Stderr, "  daemon    Manage the systemd services for serve and runner")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"markwatch <command> -h\" for command-specific flags.")
}

package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	daemonServeUnitName  = "markwatch-serve.service"
	daemonRunnerUnitName = "markwatch-runner.service"
	systemdUnitDir       = "/etc/systemd/system"
	defaultBinaryPath    = "/usr/local/bin/markwatch"
)

var daemonUnitNames = []string{
	daemonServeUnitName,
	daemonRunnerUnitName,
}

// unitOptions describes how the API and runner services are launched. The
// API unit runs without its embedded runner; the runner unit owns the queue.
type unitOptions struct {
	User       string
	WorkDir    string
	BinaryPath string
	EnvFile    string
	Port       int
}

func runDaemon(args []string) int {
	if len(args) == 0 {
		printDaemonUsage()
		return 2
	}

	action := strings.ToLower(strings.TrimSpace(args[0]))
	switch action {
	case "help", "-h", "--help":
		printDaemonUsage()
		return 0
	case "install":
		return runDaemonInstall(args[1:])
	case "uninstall":
		return runDaemonUninstall(args[1:])
	case "start", "stop", "restart":
		return runDaemonServiceAction(action, args[1:], true)
	case "status":
		return runDaemonServiceAction(action, args[1:], false)
	default:
		fmt.Fprintf(os.Stderr, "unknown daemon action: %s\n\n", args[0])
		printDaemonUsage()
		return 2
	}
}

func printDaemonUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  markwatch daemon <install|uninstall|start|stop|restart|status> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintf(os.Stderr, "Manages %s and %s.\n", daemonServeUnitName, daemonRunnerUnitName)
}

func runDaemonInstall(args []string) int {
	fs := flag.NewFlagSet("daemon install", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	defaultUser := strings.TrimSpace(os.Getenv("USER"))
	if defaultUser == "" {
		defaultUser = "root"
	}
	defaultWorkDir, _ := os.Getwd()

	userName := fs.String("user", defaultUser, "Run services as this Linux user")
	port := fs.Int("port", 8090, "Port for markwatch-serve")
	workDir := fs.String("workdir", defaultWorkDir, "Working directory holding the .env file")
	binaryPath := fs.String("binary", defaultBinaryPath, "Path to the markwatch binary")
	envFile := fs.String("env", ".env", "Path to the .env file, relative to --workdir")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon install does not accept positional args")
		return 2
	}

	opts := unitOptions{
		User:       strings.TrimSpace(*userName),
		WorkDir:    strings.TrimSpace(*workDir),
		BinaryPath: strings.TrimSpace(*binaryPath),
		EnvFile:    strings.TrimSpace(*envFile),
		Port:       *port,
	}
	if err := opts.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := requireRoot("install"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	units := map[string]string{
		daemonServeUnitName:  buildServeUnitFile(opts),
		daemonRunnerUnitName: buildRunnerUnitFile(opts),
	}
	for _, name := range daemonUnitNames {
		if err := writeUnitFile(name, units[name]); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", name, err)
			return 1
		}
	}
	if err := runSystemctl("daemon-reload"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reload systemd units: %v\n", err)
		return 1
	}

	enableArgs := append([]string{"enable"}, daemonUnitNames...)
	if err := runSystemctl(enableArgs...); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to enable services: %v\n", err)
		return 1
	}

	fmt.Printf("Installed %s and %s\n", daemonServeUnitName, daemonRunnerUnitName)
	fmt.Println("Services are enabled on boot. Run `markwatch daemon start` to start them now.")
	return 0
}

func runDaemonUninstall(args []string) int {
	fs := flag.NewFlagSet("daemon uninstall", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon uninstall does not accept positional args")
		return 2
	}
	if err := requireRoot("uninstall"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	stopArgs := append([]string{"stop"}, daemonUnitNames...)
	if err := runSystemctl(stopArgs...); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to stop one or more services: %v\n", err)
	}

	disableArgs := append([]string{"disable"}, daemonUnitNames...)
	if err := runSystemctl(disableArgs...); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to disable one or more services: %v\n", err)
	}

	for _, unitName := range daemonUnitNames {
		unitPath := filepath.Join(systemdUnitDir, unitName)
		if err := os.Remove(unitPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Failed to remove %s: %v\n", unitPath, err)
			return 1
		}
	}

	if err := runSystemctl("daemon-reload"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reload systemd units: %v\n", err)
		return 1
	}

	fmt.Printf("Removed %s and %s\n", daemonServeUnitName, daemonRunnerUnitName)
	return 0
}

func runDaemonServiceAction(action string, args []string, requireRootPrivileges bool) int {
	fs := flag.NewFlagSet("daemon "+action, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "daemon %s does not accept positional args\n", action)
		return 2
	}
	if requireRootPrivileges {
		if err := requireRoot(action); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	systemctlArgs := make([]string, 0, 3+len(daemonUnitNames))
	systemctlArgs = append(systemctlArgs, action)
	if action == "status" {
		systemctlArgs = append(systemctlArgs, "--no-pager")
	}
	systemctlArgs = append(systemctlArgs, daemonUnitNames...)

	if err := runSystemctl(systemctlArgs...); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to %s services: %v\n", action, err)
		return 1
	}
	return 0
}

func (o unitOptions) validate() error {
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("--port must be between 1 and 65535")
	}
	if o.User == "" {
		return fmt.Errorf("--user must not be empty")
	}
	if o.WorkDir == "" || !filepath.IsAbs(o.WorkDir) {
		return fmt.Errorf("--workdir must be an absolute path")
	}
	if o.BinaryPath == "" || !filepath.IsAbs(o.BinaryPath) {
		return fmt.Errorf("--binary must be an absolute path")
	}
	return nil
}

func requireRoot(action string) error {
	if os.Geteuid() == 0 {
		return nil
	}
	return fmt.Errorf("daemon %s requires root privileges; run with sudo: sudo markwatch daemon %s", action, action)
}

func buildServeUnitFile(o unitOptions) string {
	return buildUnitFile(
		"Markwatch scan API",
		"network.target postgresql.service",
		o,
		"serve --host 0.0.0.0 --port "+strconv.Itoa(o.Port)+" --runner=false",
	)
}

func buildRunnerUnitFile(o unitOptions) string {
	return buildUnitFile(
		"Markwatch scan continuation runner",
		"network.target postgresql.service",
		o,
		"runner",
	)
}

func buildUnitFile(description, after string, o unitOptions, command string) string {
	execStart := o.BinaryPath + " " + command
	if o.EnvFile != "" {
		execStart += " --env " + o.EnvFile
	}
	lines := []string{
		"[Unit]",
		"Description=" + description,
		"After=" + after,
		"",
		"[Service]",
		"Type=simple",
		"User=" + o.User,
		"WorkingDirectory=" + o.WorkDir,
		"ExecStart=" + execStart,
		"Restart=on-failure",
		"RestartSec=5",
		"",
		"[Install]",
		"WantedBy=multi-user.target",
		"",
	}
	return strings.Join(lines, "\n")
}

func writeUnitFile(name, content string) error {
	unitPath := filepath.Join(systemdUnitDir, name)
	return os.WriteFile(unitPath, []byte(content), 0o644)
}

func runSystemctl(args ...string) error {
	cmd := exec.Command("systemctl", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

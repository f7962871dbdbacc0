package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"cri/internal/daemon"
	"cri/internal/errors"
	"cri/internal/notify"
	"cri/internal/watcher"
)

var watchForeground bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Validate config files in the background as they change",
	Long: `Manage the per-workspace watcher.

The watcher validates qualifying files whenever they change and records
"validation passed" or "validation failed" in .meta/cri/watch.log. Failures
also raise a desktop notification and, when configured, notify an agent
command.`,
}

var watchStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the watcher for this workspace",
	Args:  cobra.NoArgs,
	RunE:  runWatchStart,
}

var watchStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the watcher for this workspace",
	Args:  cobra.NoArgs,
	RunE:  runWatchStop,
}

var watchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show watcher status and recent log lines",
	Args:  cobra.NoArgs,
	RunE:  runWatchStatus,
}

var watchInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install an auto-start unit (systemd user unit or launchd agent)",
	Args:  cobra.NoArgs,
	RunE:  runWatchInstall,
}

var watchRunCmd = &cobra.Command{
	Use:    "run",
	Short:  "Run the watcher in this process",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runWatchRun,
}

func init() {
	watchStartCmd.Flags().BoolVar(&watchForeground, "foreground", false, "Run in the foreground")
	watchCmd.AddCommand(watchStartCmd, watchStopCmd, watchStatusCmd, watchInstallCmd, watchRunCmd)
	rootCmd.AddCommand(watchCmd)
}

func (a *app) registry() *daemon.Registry {
	return daemon.NewRegistry(a.env.TempDir, nil)
}

func runWatchStart(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	info, err := a.registry().Status(a.ws.Root)
	if err != nil {
		return err
	}
	if info.Running {
		return errors.New(errors.DaemonRunning, fmt.Sprintf("watcher already running (PID %d)", info.PID), nil,
			errors.GetSuggestedFixes(errors.DaemonRunning)...)
	}

	if watchForeground {
		fmt.Printf("Watching %s (foreground, Ctrl-C to stop)\n", a.ws.Root)
		return a.runWatcher(cmd.Context(), os.Stdout)
	}

	layout, err := a.layout()
	if err != nil {
		return err
	}
	pid, err := spawnWatcher(cmd.Context(), a)
	if err != nil {
		return err
	}
	fmt.Printf("Watcher started (PID %d)\n", pid)
	fmt.Printf("  Log: %s\n", layout.WatchLogPath())
	return nil
}

// spawnWatcherTimeout bounds how long start waits for the child to record
// itself in the PID file.
const spawnWatcherTimeout = 5 * time.Second

// spawnWatcher re-executes cri as a detached "watch run" process and waits
// until the child holds the workspace PID file.
func spawnWatcher(ctx context.Context, a *app) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"--dir", a.ws.Root}
	if stateDirFlag != "" {
		args = append(args, "--state-dir", a.ws.CRIDir)
	}
	if configFlag != "" {
		args = append(args, "--config", configFlag)
	}
	args = append(args, "watch", "run")

	c := exec.Command(executable, args...)
	c.Dir = a.ws.Root
	setDaemonSysProcAttr(c)

	if err := c.Start(); err != nil {
		return 0, fmt.Errorf("failed to start watcher: %w", err)
	}
	pid := c.Process.Pid
	exited := make(chan error, 1)
	go func() { exited <- c.Wait() }()

	ctx, cancel := context.WithTimeout(ctx, spawnWatcherTimeout)
	defer cancel()
	if err := a.registry().WaitStarted(ctx, a.ws.Root, pid, exited); err != nil {
		return pid, err
	}
	return pid, nil
}

func runWatchRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	return a.runWatcher(cmd.Context(), nil)
}

// runWatcher runs the daemon until ctx is cancelled. A non-nil echo also
// receives every watch log line.
func (a *app) runWatcher(ctx context.Context, echo io.Writer) error {
	layout, err := a.layout()
	if err != nil {
		return err
	}
	var logger *slog.Logger
	if echo != nil {
		logger, err = a.logs.ForegroundWatchLogger(layout.WatchLogPath(), echo)
	} else {
		logger, err = a.logs.WatchLogger(layout.WatchLogPath())
	}
	if err != nil {
		return fmt.Errorf("open watch log: %w", err)
	}

	backend, err := watcher.New(a.cfg.Watch, a.ws.Root, logger)
	if err != nil {
		return err
	}

	notifier := notify.New(a.cfg.Notify, logger)
	defer notifier.Wait()

	d := daemon.New(daemon.Options{
		Root:      a.ws.Root,
		Backend:   backend,
		Validator: a.validator(),
		Notifier:  notifier,
		Registry:  a.registry(),
		Logger:    logger,
	})
	return d.Run(ctx)
}

func runWatchStop(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()
	pid, err := a.registry().Stop(ctx, a.ws.Root)
	if err != nil {
		return err
	}
	fmt.Printf("Watcher stopped (PID %d)\n", pid)
	return nil
}

type watchStatusResponse struct {
	*daemon.Info
	LogPath string   `json:"logPath"`
	Recent  []string `json:"recent,omitempty"`
}

func runWatchStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	info, err := a.registry().Status(a.ws.Root)
	if err != nil {
		return err
	}
	logPath := a.ws.Layout().WatchLogPath()
	resp := &watchStatusResponse{Info: info, LogPath: logPath, Recent: tailLines(logPath, 5)}

	return emit(resp, func() {
		if info.Running {
			fmt.Printf("✓ Watcher running (PID %d)\n", info.PID)
		} else {
			fmt.Println("✗ Watcher not running")
		}
		fmt.Printf("  Workspace: %s\n", info.Root)
		fmt.Printf("  PID file:  %s\n", info.PIDFile)
		fmt.Printf("  Log:       %s\n", logPath)
		if len(resp.Recent) > 0 {
			fmt.Println("\nRecent:")
			for _, line := range resp.Recent {
				fmt.Println("  " + line)
			}
		}
	})
}

// tailLines returns the last n lines of a file, or nil if it is unreadable.
func tailLines(path string, n int) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines
}

func runWatchInstall(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	unit := daemon.Unit{Executable: executable, Root: a.ws.Root, LogPath: a.ws.Layout().WatchLogPath()}
	path, err := daemon.Install(unit, runtime.GOOS, a.env.Home)
	if err != nil {
		return err
	}
	fmt.Printf("Installed %s\n", path)
	fmt.Printf("  Enable with: %s\n", daemon.EnableHint(unit, runtime.GOOS, path))
	return nil
}

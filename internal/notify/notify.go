// Package notify delivers best-effort failure notifications from the watch
// daemon to the desktop and to an external agent command.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"cri/internal/config"
	"cri/internal/slogutil"
)

// Notification is one message about a file.
type Notification struct {
	Title   string
	Message string
	File    string
}

// Notifier sends notifications without blocking the caller.
type Notifier interface {
	Notify(n Notification)
}

// Runner executes a command. env entries are added to the process
// environment.
type Runner func(ctx context.Context, name string, args, env []string) error

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args, env []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Dispatcher fans a notification out to the configured channels, each in
// its own goroutine bounded by a timeout.
type Dispatcher struct {
	desktop  bool
	agent    []string
	timeout  time.Duration
	goos     string
	run      Runner
	lookPath func(string) (string, error)
	logger   *slog.Logger

	wg sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRunner replaces command execution.
func WithRunner(r Runner) Option { return func(d *Dispatcher) { d.run = r } }

// WithLookPath replaces executable lookup.
func WithLookPath(f func(string) (string, error)) Option {
	return func(d *Dispatcher) { d.lookPath = f }
}

// WithGOOS overrides the platform used to pick the desktop command.
func WithGOOS(goos string) Option { return func(d *Dispatcher) { d.goos = goos } }

// New creates a dispatcher from config.
func New(cfg config.NotifyConfig, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{
		desktop:  cfg.Desktop,
		agent:    cfg.AgentCommand,
		timeout:  timeout,
		goos:     runtime.GOOS,
		run:      ExecRunner,
		lookPath: exec.LookPath,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify implements Notifier. Failures are logged at debug level only.
func (d *Dispatcher) Notify(n Notification) {
	if d.desktop {
		if name, args, ok := desktopCommand(d.goos, n); ok {
			if _, err := d.lookPath(name); err != nil {
				d.logger.Debug("desktop notifier not installed", "tool", name)
			} else {
				d.spawn("desktop", name, args, nil)
			}
		}
	}
	if len(d.agent) > 0 {
		args := append(append([]string{}, d.agent[1:]...), n.Message)
		env := []string{"CRI_NOTIFY_FILE=" + n.File, "CRI_NOTIFY_TITLE=" + n.Title}
		d.spawn("agent", d.agent[0], args, env)
	}
}

// Wait blocks until in-flight notifications finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) spawn(channel, name string, args, env []string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.run(ctx, name, args, env); err != nil {
			d.logger.Debug("notification failed", "channel", channel, "error", err)
		}
	}()
}

// desktopCommand returns the platform notification command.
func desktopCommand(goos string, n Notification) (string, []string, bool) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "notify-send", []string{"--urgency=critical", "--app-name=cri", n.Title, n.Message}, true
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleQuote(n.Message), appleQuote(n.Title))
		return "osascript", []string{"-e", script}, true
	default:
		return "", nil, false
	}
}

func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

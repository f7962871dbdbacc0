package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"cri/internal/config"
	"cri/internal/repostate"
	"cri/internal/slogutil"
)

// ExitNotFound is the exit code recorded when the command cannot be found.
const ExitNotFound = 127

// Tracer runs commands and records them in the workspace audit log.
type Tracer struct {
	LogPath   string
	Workspace string
	Env       config.Environment

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Replaceable for tests.
	Now      func() time.Time
	Hostname func() (string, error)
	Git      func(ctx context.Context, dir string) *repostate.State
	NewID    func() string

	Logger *slog.Logger
}

// NewTracer creates a tracer with process stdio and real collaborators.
func NewTracer(logPath, workspace string, env config.Environment, logger *slog.Logger) *Tracer {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Tracer{
		LogPath:   logPath,
		Workspace: workspace,
		Env:       env,
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		Now:       time.Now,
		Hostname:  os.Hostname,
		Git:       repostate.Capture,
		NewID:     uuid.NewString,
		Logger:    logger,
	}
}

// Wrap runs argv in dir and appends a trace record. The returned exit code
// is the command's own; a non-nil error means the record could not be
// written, never that the command failed.
func (t *Tracer) Wrap(ctx context.Context, dir string, argv []string) (int, error) {
	if len(argv) == 0 {
		return 0, errors.New("no command given")
	}

	rec := t.begin(ctx, dir, argv)

	code := t.run(ctx, dir, argv)

	end := t.Now()
	rec.TimestampEnd = end.UTC()
	rec.DurationSeconds = end.Sub(rec.TimestampStart).Seconds()
	rec.ExitCode = code
	rec.Success = code == 0

	if err := Append(t.LogPath, rec); err != nil {
		return code, err
	}
	t.Logger.Debug("trace recorded", "trace_id", rec.TraceID, "exit_code", code)
	return code, nil
}

// begin snapshots the context before the command runs.
func (t *Tracer) begin(ctx context.Context, dir string, argv []string) *Record {
	host, err := t.Hostname()
	if err != nil {
		host = "unknown"
	}
	rec := &Record{
		TraceID:        t.NewID(),
		TimestampStart: t.Now().UTC(),
		Workspace:      t.Workspace,
		User:           t.Env.User,
		Hostname:       host,
		Pwd:            dir,
		Command:        JoinCommand(argv),
		Env: EnvHints{
			Shell:  t.Env.Shell,
			Term:   t.Env.Term,
			Remote: t.Env.Remote(),
		},
	}
	if t.Git != nil {
		rec.Git = t.Git(ctx, dir)
	}
	return rec
}

func (t *Tracer) run(ctx context.Context, dir string, argv []string) int {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = t.Stdin
	cmd.Stdout = t.Stdout
	cmd.Stderr = t.Stderr
	// Interrupt rather than kill on cancellation so the child can clean up.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(t.Stderr, "cri: command not found: %s\n", argv[0])
		return ExitNotFound
	}
	fmt.Fprintf(t.Stderr, "cri: %v\n", err)
	return 126
}

// JoinCommand renders argv as a single shell-like string, quoting
// arguments that contain whitespace or quotes.
func JoinCommand(argv []string) string {
	parts := make([]string, len(argv))
	for i, arg := range argv {
		if arg == "" || strings.ContainsAny(arg, " \t\n'\"") {
			parts[i] = "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
			continue
		}
		parts[i] = arg
	}
	return strings.Join(parts, " ")
}

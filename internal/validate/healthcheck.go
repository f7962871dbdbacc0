package validate

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"cri/internal/backup"
	"cri/internal/errors"
)

// HealthCheck runs an external tool's self-check against a candidate config
// by staging it at the tool's live config location. The prior live file is
// restored unconditionally afterwards. This is the only operation that
// touches state outside the workspace.
type HealthCheck struct {
	Command  string
	Args     []string
	LivePath string
	Timeout  time.Duration

	// Required turns a missing tool into a TOOL_MISSING error instead of an
	// info diagnostic.
	Required bool

	// LookPath and Run are replaceable for tests.
	LookPath func(string) (string, error)
	Run      func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func (h *HealthCheck) lookPath(name string) (string, error) {
	if h.LookPath != nil {
		return h.LookPath(name)
	}
	return exec.LookPath(name)
}

func (h *HealthCheck) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if h.Run != nil {
		return h.Run(ctx, name, args...)
	}
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Available reports whether the tool is installed. A missing tool yields a
// TOOL_MISSING error.
func (h *HealthCheck) Available() error {
	if _, err := h.lookPath(h.Command); err != nil {
		return errors.New(errors.ToolMissing, "health check tool "+h.Command+" is not installed", err,
			errors.FixAction{Type: errors.InstallTool, Command: h.Command, Safe: true, Description: "Install " + h.Command + " or drop --require-health"})
	}
	return nil
}

// Check stages candidate, runs the tool and restores the live file.
func (h *HealthCheck) Check(ctx context.Context, candidate string) (diags []Diagnostic) {
	if h == nil || h.Command == "" {
		return nil
	}
	bin, err := h.lookPath(h.Command)
	if err != nil {
		return []Diagnostic{Infof("health", "health check skipped: %s not installed", h.Command)}
	}

	if h.LivePath != "" && !samePath(candidate, h.LivePath) {
		release, err := h.stage(candidate)
		if err != nil {
			return []Diagnostic{Errorf("health", "stage candidate: %v", err)}
		}
		defer func() {
			if rerr := release(); rerr != nil {
				diags = append(diags, Errorf("health", "restore live config %s: %v", h.LivePath, rerr))
			}
		}()
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := h.run(runCtx, bin, h.Args...)
	if err == nil {
		return []Diagnostic{Infof("health", "%s self-check passed", h.Command)}
	}
	if stderrors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return []Diagnostic{Errorf("health", "%s self-check timed out after %s", h.Command, timeout)}
	}
	msg := lastLine(string(out))
	if msg == "" {
		msg = err.Error()
	}
	return []Diagnostic{Errorf("health", "%s self-check failed: %s", h.Command, msg)}
}

// stage swaps candidate content into the live location and returns the
// release that puts the prior state back. release must always run.
func (h *HealthCheck) stage(candidate string) (release func() error, err error) {
	content, err := os.ReadFile(candidate)
	if err != nil {
		return nil, err
	}

	prior, priorErr := os.ReadFile(h.LivePath)
	mode := fs.FileMode(0o600)
	switch {
	case priorErr == nil:
		if info, err := os.Stat(h.LivePath); err == nil {
			mode = info.Mode().Perm()
		}
	case stderrors.Is(priorErr, fs.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(h.LivePath), 0o700); err != nil {
			return nil, err
		}
	default:
		return nil, priorErr
	}

	release = func() error {
		if priorErr != nil {
			if err := os.Remove(h.LivePath); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
				return err
			}
			return nil
		}
		return backup.WriteAtomic(h.LivePath, prior, mode)
	}

	if err := backup.WriteAtomic(h.LivePath, content, mode); err != nil {
		if rerr := release(); rerr != nil {
			return nil, fmt.Errorf("%w (restore: %v)", err, rerr)
		}
		return nil, err
	}
	return release, nil
}

func samePath(a, b string) bool {
	ia, errA := os.Stat(a)
	ib, errB := os.Stat(b)
	if errA == nil && errB == nil {
		return os.SameFile(ia, ib)
	}
	return filepath.Clean(a) == filepath.Clean(b)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

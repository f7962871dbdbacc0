package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cri/internal/errors"
	"cri/internal/paths"
)

// ProcessChecker abstracts process liveness and termination.
type ProcessChecker interface {
	Alive(pid int) bool
	Terminate(pid int) error
}

// Registry locates watcher PID files, one per workspace root, in a shared
// directory.
type Registry struct {
	dir     string
	checker ProcessChecker
	poll    time.Duration
}

// NewRegistry creates a registry in dir (normally the OS temp dir).
func NewRegistry(dir string, checker ProcessChecker) *Registry {
	if checker == nil {
		checker = SystemProcesses{}
	}
	return &Registry{dir: dir, checker: checker, poll: 100 * time.Millisecond}
}

// PIDFile returns the PID file for a workspace root.
func (r *Registry) PIDFile(root string) *PIDFile {
	return NewPIDFile(filepath.Join(r.dir, paths.PIDFileName(root)), r.checker)
}

// Info describes the watcher of one workspace.
type Info struct {
	Root    string `json:"root"`
	PIDFile string `json:"pidFile"`
	PID     int    `json:"pid,omitempty"`
	Running bool   `json:"running"`
}

// Status reports whether a watcher is running for root.
func (r *Registry) Status(root string) (*Info, error) {
	pf := r.PIDFile(root)
	running, pid, err := pf.IsRunning()
	if err != nil {
		return nil, err
	}
	info := &Info{Root: root, PIDFile: pf.Path(), Running: running}
	if running {
		info.PID = pid
	}
	return info, nil
}

// Acquire records the current process as the watcher of root.
func (r *Registry) Acquire(root string) (*PIDFile, error) {
	pf := r.PIDFile(root)
	if err := pf.Acquire(os.Getpid()); err != nil {
		return nil, err
	}
	return pf, nil
}

// Stop terminates the watcher of root and waits for it to exit.
func (r *Registry) Stop(ctx context.Context, root string) (int, error) {
	pf := r.PIDFile(root)
	running, pid, err := pf.IsRunning()
	if err != nil {
		return 0, err
	}
	if !running {
		_ = os.Remove(pf.Path())
		return 0, errors.Newf(errors.DaemonNotRunning, "no watcher running for %s", root)
	}

	if err := r.checker.Terminate(pid); err != nil {
		return pid, fmt.Errorf("failed to signal watcher %d: %w", pid, err)
	}

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for r.checker.Alive(pid) {
		select {
		case <-ctx.Done():
			return pid, errors.New(errors.InternalError, fmt.Sprintf("watcher %d did not exit", pid), ctx.Err())
		case <-ticker.C:
		}
	}
	_ = pf.Release(pid)
	return pid, nil
}

// WaitStarted waits until pid is recorded as the running watcher of root.
// A value on exited means the process ended before it got there, for
// example because another watcher won the PID file.
func (r *Registry) WaitStarted(ctx context.Context, root string, pid int, exited <-chan error) error {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		info, err := r.Status(root)
		if err != nil {
			return err
		}
		if info.Running && info.PID == pid {
			return nil
		}
		select {
		case err := <-exited:
			return errors.New(errors.DaemonNotRunning, fmt.Sprintf("watcher %d exited during startup", pid), err,
				errors.FixAction{Type: errors.RunCommand, Command: "cri watch status", Safe: true, Description: "Check the watch log"})
		case <-ctx.Done():
			return errors.New(errors.InternalError, fmt.Sprintf("watcher %d did not start", pid), ctx.Err())
		case <-ticker.C:
		}
	}
}

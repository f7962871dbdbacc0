package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"cri/internal/errors"
)

// PIDFile manages one watcher PID file
type PIDFile struct {
	path    string
	checker ProcessChecker
}

// NewPIDFile creates a PID file manager
func NewPIDFile(path string, checker ProcessChecker) *PIDFile {
	return &PIDFile{path: path, checker: checker}
}

// Path returns the file location.
func (p *PIDFile) Path() string { return p.path }

// Acquire records pid, refusing when the recorded process is still alive.
// A stale file is replaced.
func (p *PIDFile) Acquire(pid int) error {
	running, current, err := p.IsRunning()
	if err != nil {
		return err
	}
	if running {
		return errors.New(errors.DaemonRunning, fmt.Sprintf("watcher already running (PID %d)", current), nil,
			errors.GetSuggestedFixes(errors.DaemonRunning)...).WithDetails(map[string]int{"pid": current})
	}

	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale PID file: %w", err)
	}

	f, err := os.OpenFile(p.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return errors.Newf(errors.DaemonRunning, "watcher starting concurrently (%s exists)", p.path)
		}
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", pid); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return f.Close()
}

// Release removes the PID file if it still records pid.
func (p *PIDFile) Release(pid int) error {
	recorded, err := p.Read()
	if err != nil || recorded != pid {
		return nil //nolint:nilerr // another owner or unreadable: leave it
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsRunning reports whether the recorded process is alive.
// Returns (running, pid, error)
func (p *PIDFile) IsRunning() (bool, int, error) {
	pid, err := p.Read()
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		if _, ok := err.(*strconv.NumError); ok {
			// Garbage in the file counts as not running.
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("failed to read PID file: %w", err)
	}
	return p.checker.Alive(pid), pid, nil
}

// Read returns the recorded PID.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

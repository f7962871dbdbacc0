//go:build !windows

package daemon

import (
	"golang.org/x/sys/unix"
)

// SystemProcesses checks and signals real processes.
type SystemProcesses struct{}

// Alive sends signal 0. EPERM means the process exists under another user.
func (SystemProcesses) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

// Terminate sends SIGTERM.
func (SystemProcesses) Terminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

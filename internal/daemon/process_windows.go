//go:build windows

package daemon

import (
	"os"

	"golang.org/x/sys/windows"
)

// SystemProcesses checks and signals real processes.
type SystemProcesses struct{}

// Alive opens the process handle and checks its exit code.
func (SystemProcesses) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)
	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	const stillActive = 259
	return code == stillActive
}

// Terminate kills the process; Windows has no SIGTERM.
func (SystemProcesses) Terminate(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// setDaemonSysProcAttr detaches the watcher into its own session.
func setDaemonSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}

//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// setDaemonSysProcAttr detaches the watcher from the console.
func setDaemonSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

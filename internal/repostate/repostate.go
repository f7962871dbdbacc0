// Package repostate captures version-control state of a working directory.
package repostate

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// commandTimeout bounds each git invocation so a hung git never blocks a
// wrapped command.
const commandTimeout = 5 * time.Second

// State is the git state recorded alongside an audit record.
type State struct {
	Branch string `json:"branch"`
	Commit string `json:"commit"`
	Dirty  bool   `json:"dirty"`
}

// Runner executes git with args in dir and returns stdout.
type Runner func(ctx context.Context, dir string, args ...string) (string, error)

// GitRunner runs the git binary.
func GitRunner(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Capture returns the git state of dir, or nil when dir is not inside a git
// work tree or git is unavailable.
func Capture(ctx context.Context, dir string) *State {
	return CaptureWith(ctx, dir, GitRunner)
}

// CaptureWith is Capture with an explicit runner.
func CaptureWith(ctx context.Context, dir string, run Runner) *State {
	inside, err := run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	if err != nil || strings.TrimSpace(inside) != "true" {
		return nil
	}

	st := &State{}

	// A fresh repository has no HEAD commit yet; keep the branch name.
	if branch, err := run(ctx, dir, "symbolic-ref", "--short", "-q", "HEAD"); err == nil {
		st.Branch = strings.TrimSpace(branch)
	} else {
		st.Branch = "HEAD"
	}
	if commit, err := run(ctx, dir, "rev-parse", "--short", "HEAD"); err == nil {
		st.Commit = strings.TrimSpace(commit)
	}
	if status, err := run(ctx, dir, "status", "--porcelain"); err == nil {
		st.Dirty = strings.TrimSpace(status) != ""
	}
	return st
}

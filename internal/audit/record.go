// Package audit wraps commands and keeps an append-only JSON-lines trace of
// what ran, where, and how it ended.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"cri/internal/repostate"
)

// Record is one immutable trace entry.
type Record struct {
	TraceID         string           `json:"trace_id"`
	TimestampStart  time.Time        `json:"timestamp_start"`
	TimestampEnd    time.Time        `json:"timestamp_end"`
	Workspace       string           `json:"workspace"`
	User            string           `json:"user"`
	Hostname        string           `json:"hostname"`
	Pwd             string           `json:"pwd"`
	Command         string           `json:"command"`
	Env             EnvHints         `json:"env"`
	Git             *repostate.State `json:"git"`
	ExitCode        int              `json:"exit_code"`
	DurationSeconds float64          `json:"duration_seconds"`
	Success         bool             `json:"success"`
}

// EnvHints are the shell and session details captured with each record.
type EnvHints struct {
	Shell  string `json:"shell"`
	Term   string `json:"term"`
	Remote bool   `json:"remote"`
}

// Append writes rec as one line to the log at path with a single O_APPEND
// write, so concurrent writers never interleave within a record.
func Append(path string, rec *Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode trace record: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append audit log: %w", err)
	}
	return f.Close()
}

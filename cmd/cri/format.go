package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"cri/internal/backup"
	"cri/internal/change"
	"cri/internal/errors"
	"cri/internal/validate"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

func parseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatHuman, "":
		return FormatHuman, nil
	default:
		return "", errors.Newf(errors.InvalidArgument, "unsupported format: %s", s)
	}
}

// formatJSON formats the response as JSON
func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// emit prints resp as JSON, or calls human in human mode.
func emit(resp interface{}, human func()) error {
	if outputFormat == FormatJSON {
		out, err := formatJSON(resp)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
	human()
	return nil
}

func formatBackupLine(b backup.Backup) string {
	return fmt.Sprintf("%s  %s  %8s  %s",
		b.ID,
		b.CreatedAt.Local().Format(time.DateTime),
		formatSize(b.Size),
		b.Name)
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fM", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fK", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func printValidation(r validate.Result) {
	icon := "✓"
	switch r.Status {
	case validate.StatusFail:
		icon = "✗"
	case validate.StatusSkip:
		icon = "-"
	}
	label := r.FileType
	if label == "" {
		label = "unknown type"
	}
	fmt.Fprintf(os.Stdout, "%s %s (%s): %s\n", icon, r.Path, label, r.Summary())
	for _, d := range r.Diagnostics {
		fmt.Fprintf(os.Stdout, "  %s\n", d)
	}
}

// validationError converts a non-passing result into the exit status.
func validationError(r validate.Result) error {
	switch r.Status {
	case validate.StatusFail:
		return errors.Newf(errors.ValidationFailed, "%s failed validation", r.Path)
	case validate.StatusSkip:
		return exitStatus(errors.ExitSkipped)
	}
	return nil
}

func isTerminalOut() bool {
	return change.IsTerminal(os.Stdout)
}

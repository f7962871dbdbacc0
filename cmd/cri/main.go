package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cri/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

// exitStatus carries an exit code without an error message, e.g. the exit
// code of a traced command.
type exitStatus int

func (e exitStatus) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func exitCode(err error) int {
	if err == nil {
		return errors.ExitOK
	}
	var status exitStatus
	if stderrors.As(err, &status) {
		return int(status)
	}
	reportError(err)
	return errors.ExitCode(err)
}

func reportError(err error) {
	if outputFormat == FormatJSON {
		var ce *errors.CriError
		if stderrors.As(err, &ce) {
			if out, ferr := formatJSON(map[string]interface{}{"error": ce}); ferr == nil {
				fmt.Fprintln(os.Stderr, out)
				return
			}
		}
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var ce *errors.CriError
	if stderrors.As(err, &ce) {
		for _, fix := range ce.SuggestedFixes {
			switch {
			case fix.Command != "" && fix.Description != "":
				fmt.Fprintf(os.Stderr, "  %s: %s\n", fix.Description, fix.Command)
			case fix.Command != "":
				fmt.Fprintf(os.Stderr, "  try: %s\n", fix.Command)
			case fix.Description != "":
				fmt.Fprintf(os.Stderr, "  %s\n", fix.Description)
			}
		}
	}
}

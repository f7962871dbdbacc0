package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"cri/internal/errors"
)

var pruneCmd = &cobra.Command{
	Use:   "prune [n]",
	Short: "Delete all but the n newest backups of a config file",
	Long: `Delete all but the n newest backups of the target. Without n the
backup.keep setting is used (default 10).`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPrune,
}

func init() {
	addTargetFlags(pruneCmd)
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	keep := a.cfg.Backup.Keep
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Newf(errors.InvalidArgument, "keep count must be a number, got %q", args[0])
		}
		keep = n
	}

	wf, closer, err := a.workflow(yesFlag)
	if err != nil {
		return err
	}
	defer closer.Close()

	target, err := a.target(wf, fileFlag)
	if err != nil {
		return err
	}
	res, err := wf.Prune(target, keep, yesFlag)
	if err != nil {
		return err
	}
	return emit(res, func() {
		fmt.Printf("Removed %d backup(s), kept %d.\n", len(res.Removed), len(res.Kept))
	})
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cri/internal/change"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback [id]",
	Short: "Restore a config file from a backup",
	Long: `Restore the target from a backup, the newest by default.

The current content is backed up first, so a rollback can itself be
rolled back. A restored file that fails validation is kept and reported
as a warning.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRollback,
}

func init() {
	addTargetFlags(rollbackCmd)
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	wf, closer, err := a.workflow(yesFlag)
	if err != nil {
		return err
	}
	defer closer.Close()

	target, err := a.target(wf, fileFlag)
	if err != nil {
		return err
	}

	opts := change.RollbackOptions{Yes: yesFlag}
	if len(args) == 1 {
		opts.ID = args[0]
	}

	res, err := wf.Rollback(cmd.Context(), target, opts)
	if err != nil {
		return err
	}

	return emit(res, func() {
		if res.NoChanges {
			fmt.Printf("%s already matches %s.\n", res.Target, res.Restored.ID)
			return
		}
		fmt.Printf("✓ Restored %s from %s\n", res.Target, res.Restored.ID)
		fmt.Printf("  Previous content saved as %s\n", res.Backup.ID)
		for _, w := range res.Warnings {
			fmt.Printf("  ! %s\n", w)
		}
	})
}

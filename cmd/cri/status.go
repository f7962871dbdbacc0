package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cri/internal/version"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workspace, validation and backup state of a config file",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	addTargetFlags(statusCmd)
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	wf, closer, err := a.workflow(true)
	if err != nil {
		return err
	}
	defer closer.Close()

	target, err := a.target(wf, fileFlag)
	if err != nil {
		return err
	}
	st, err := wf.Status(cmd.Context(), target)
	if err != nil {
		return err
	}

	return emit(st, func() {
		fmt.Printf("cri status - v%s\n\n", version.Version)
		fmt.Printf("Workspace: %s (%s)\n", st.Workspace, st.Label)
		if st.Unscoped {
			fmt.Println("  ! unscoped: no workspace marker found")
		}
		fmt.Printf("Target:    %s\n", st.Target)
		printValidation(st.Validation)
		fmt.Printf("Backups:   %d\n", st.Backups)
		if st.Latest != nil {
			fmt.Printf("Latest:    %s\n", formatBackupLine(*st.Latest))
			if st.SinceLatest != nil {
				fmt.Printf("Since:     %s\n", st.SinceLatest)
			}
		}
	})
}

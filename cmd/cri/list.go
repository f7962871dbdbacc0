package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cri/internal/backup"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups of a config file, newest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	addTargetFlags(listCmd)
	rootCmd.AddCommand(listCmd)
}

type listResponse struct {
	Target  string          `json:"target"`
	Backups []backup.Backup `json:"backups"`
}

func runList(cmd *cobra.Command, args []string) error {
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
	backups, err := wf.List(target)
	if err != nil {
		return err
	}
	if backups == nil {
		backups = []backup.Backup{}
	}

	return emit(&listResponse{Target: target, Backups: backups}, func() {
		if len(backups) == 0 {
			fmt.Printf("No backups of %s.\n", target)
			return
		}
		fmt.Printf("Backups of %s (%d):\n", target, len(backups))
		for _, b := range backups {
			fmt.Println("  " + formatBackupLine(b))
		}
	})
}

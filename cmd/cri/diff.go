package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cri/internal/backup"
	"cri/internal/diff"
)

var diffCmd = &cobra.Command{
	Use:   "diff [id]",
	Short: "Show changes since a backup (the newest by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDiff,
}

func init() {
	addTargetFlags(diffCmd)
	rootCmd.AddCommand(diffCmd)
}

type diffResponse struct {
	Target  string         `json:"target"`
	Backup  *backup.Backup `json:"backup"`
	Stats   diff.Stats     `json:"stats"`
	Unified string         `json:"unified"`
}

func runDiff(cmd *cobra.Command, args []string) error {
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
	id := ""
	if len(args) == 1 {
		id = args[0]
	}

	d, b, err := wf.Diff(target, id)
	if err != nil {
		return err
	}
	return emit(&diffResponse{Target: target, Backup: b, Stats: d.Stats, Unified: d.Unified()}, func() {
		fmt.Printf("(compared with %s)\n", b.ID)
	})
}

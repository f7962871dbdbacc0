package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cri/internal/workspace"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the workspace state directory",
	Long: `Create <workspace>/.meta/cri with owner-only permissions and record the
workspace context. Running init again is safe and changes nothing.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

type initResponse struct {
	Workspace *workspace.Workspace `json:"workspace"`
	Context   *workspace.Context   `json:"context"`
	Created   bool                 `json:"created"`
}

func runInit(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, created, err := workspace.Init(a.ws, time.Now())
	if err != nil {
		return err
	}

	return emit(&initResponse{Workspace: a.ws, Context: ctx, Created: created}, func() {
		state := "Existing"
		if created {
			state = "Initialized"
		}
		fmt.Printf("%s state directory %s\n", state, a.ws.CRIDir)
		fmt.Printf("  Workspace: %s\n", a.ws.Root)
		fmt.Printf("  Label:     %s (%s)\n", a.ws.Label, a.ws.Kind)
		fmt.Printf("  Detected:  %s\n", a.ws.Source)
		fmt.Printf("  Created:   %s\n", ctx.CreatedAt.Local().Format(time.DateTime))
		if a.ws.Unscoped {
			fmt.Println("  ! No workspace marker found; state is shared globally.")
			fmt.Println("    Run 'cri init --dir <workspace>' to scope it.")
		}
	})
}

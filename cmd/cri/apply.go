package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"cri/internal/change"
	"cri/internal/errors"
)

var (
	fileFlag    string
	yesFlag     bool
	applyInput  string
	applyDryRun bool
	applyForce  bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Review, validate and write new content to a config file",
	Long: `Replace the target file with new content read from stdin or --input.

The change is shown as a diff and validated first. Content that fails
validation is refused unless --force is given or you confirm at the prompt.
A backup is taken before writing, and if the written file fails validation
it is restored automatically.

Examples:
  cri apply < new.json
  cri apply --file gateway.yaml --input proposed.yaml
  cri apply --dry-run < new.json`,
	Args: cobra.NoArgs,
	RunE: runApply,
}

func init() {
	addTargetFlags(applyCmd)
	applyCmd.Flags().StringVar(&applyInput, "input", "", "Read proposed content from this file instead of stdin")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Show diff and validation only")
	applyCmd.Flags().BoolVar(&applyForce, "force", false, "Apply even if validation fails")
	rootCmd.AddCommand(applyCmd)
}

// addTargetFlags registers --file and --yes on a change command.
func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Target file (default: the single config file in the working directory)")
	cmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Skip the confirmation prompt")
}

func runApply(cmd *cobra.Command, args []string) error {
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

	input, err := openInput(applyInput)
	if err != nil {
		return err
	}
	defer input.Close()

	res, err := wf.Apply(cmd.Context(), target, input, change.ApplyOptions{
		DryRun: applyDryRun,
		Force:  applyForce,
		Yes:    yesFlag,
	})
	if err != nil {
		if outputFormat == FormatJSON {
			_ = emit(res, func() {})
		}
		return err
	}

	return emit(res, func() {
		switch {
		case res.NoChanges:
			fmt.Println("Nothing to apply.")
		case res.DryRun:
			fmt.Println("Dry run: no changes written.")
		default:
			fmt.Printf("✓ Applied %s (%s)\n", res.Target, res.Diff)
			fmt.Printf("  Backup: %s\n", res.Backup.ID)
			fmt.Printf("  Undo:   cri rollback %s\n", res.Backup.ID)
		}
	})
}

func openInput(path string) (io.ReadCloser, error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.New(errors.InvalidArgument, "cannot open input "+path, err)
		}
		return f, nil
	}
	if change.IsTerminal(os.Stdin) {
		return nil, errors.New(errors.InvalidArgument, "no proposed content: pipe it on stdin or use --input", nil,
			errors.FixAction{Type: errors.RunCommand, Command: "cri apply --input <file>", Safe: true})
	}
	return io.NopCloser(os.Stdin), nil
}

package main

import (
	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Validate the live config file without changing it",
	Long: `Validate the target as it is on disk.

Exit status is 0 on pass, 1 on fail and 2 when no checker exists for the
file type, or when --require-health is set and the health-check tool is
missing.`,
	Args: cobra.NoArgs,
	RunE: runTest,
}

func init() {
	addTargetFlags(testCmd)
	addRequireHealthFlag(testCmd)
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
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
	res, err := wf.Test(cmd.Context(), target)
	if err != nil {
		return err
	}
	if outputFormat == FormatJSON {
		if err := emit(res, func() {}); err != nil {
			return err
		}
	}
	return validationError(res)
}

package main

import (
	"cri/internal/version"

	"github.com/spf13/cobra"
)

var (
	dirFlag      string
	stateDirFlag string
	configFlag   string
	formatFlag   string
	verboseCount int
	quietFlag    bool

	// outputFormat is the parsed --format, set in PersistentPreRunE.
	outputFormat = FormatHuman
)

var rootCmd = &cobra.Command{
	Use:   "cri",
	Short: "cri - safe configuration changes with review, validation and rollback",
	Long: `cri guards edits to configuration files inside a workspace.

Every change is diffed, validated, confirmed and backed up before it is
written, and the live file is validated again afterwards with automatic
rollback on failure. Commands can be traced into a per-workspace audit log,
and a watcher validates files as they change.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		f, err := parseFormat(formatFlag)
		if err != nil {
			return err
		}
		outputFormat = f
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate("cri version {{.Version}}\n")
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&dirFlag, "dir", "", "Workspace root (default: detected from the working directory)")
	flags.StringVar(&stateDirFlag, "state-dir", "", "State directory (default: <workspace>/.meta/cri)")
	flags.StringVar(&configFlag, "config", "", "Config file (default: $XDG_CONFIG_HOME/cri/config.yaml)")
	flags.StringVar(&formatFlag, "format", "human", "Output format: human or json")
	flags.CountVarP(&verboseCount, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	flags.BoolVarP(&quietFlag, "quiet", "q", false, "Suppress log output")
}

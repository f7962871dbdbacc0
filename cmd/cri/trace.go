package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cri/internal/audit"
	"cri/internal/errors"
)

var (
	traceQuery  string
	traceGzip   bool
	traceOutput string
)

var traceCmd = &cobra.Command{
	Use:   "trace [--] <command...> | trace --query <list|search|failed|stats|export|blame> [arg]",
	Short: "Run a command with an audit record, or query the audit log",
	Long: `Run a command and append a record of it to the workspace audit log, or
query that log. The traced command's exit status becomes cri's exit status.

Flags for cri itself go before the traced command. In query mode they may
also follow the query argument.

Examples:
  cri trace -- systemctl --user restart gateway
  cri trace --query list 20
  cri trace --query search restart
  cri trace --query failed
  cri trace --query stats
  cri trace --query export --gzip --output audit.json.gz
  cri trace --query blame gateway.yaml`,
	RunE: runTrace,
}

func init() {
	traceCmd.Flags().SetInterspersed(false)
	traceCmd.Flags().StringVar(&traceQuery, "query", "", "Query the audit log: list, search, failed, stats, export, blame")
	traceCmd.Flags().BoolVar(&traceGzip, "gzip", false, "Compress export output")
	traceCmd.Flags().StringVarP(&traceOutput, "output", "o", "", "Write export to this file instead of stdout")
	rootCmd.AddCommand(traceCmd)
}

func runTrace(cmd *cobra.Command, args []string) error {
	if traceQuery != "" {
		rest, err := parseQueryArgs(cmd, args)
		if err != nil {
			return err
		}
		args = rest
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	layout, err := a.layout()
	if err != nil {
		return err
	}

	if traceQuery != "" {
		return runTraceQuery(a, audit.OpenLog(layout.AuditLogPath()), args)
	}
	if len(args) == 0 {
		return errors.Newf(errors.InvalidArgument, "trace needs a command to run or --query")
	}

	tracer := audit.NewTracer(layout.AuditLogPath(), a.ws.Root, a.env, a.logger)
	code, err := tracer.Wrap(cmd.Context(), a.cwd, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cri: audit record not written: %v\n", err)
	}
	if code != 0 {
		return exitStatus(code)
	}
	return nil
}

// parseQueryArgs parses flags that follow a query argument. Interspersed
// parsing is off so a traced command keeps its own flags; a query has no
// such command, so the remaining args are parsed again with it on.
func parseQueryArgs(cmd *cobra.Command, args []string) ([]string, error) {
	flags := cmd.Flags()
	flags.SetInterspersed(true)
	defer flags.SetInterspersed(false)
	if err := flags.Parse(args); err != nil {
		return nil, errors.New(errors.InvalidArgument, "invalid flags for trace --query", err)
	}
	f, err := parseFormat(formatFlag)
	if err != nil {
		return nil, err
	}
	outputFormat = f
	return flags.Args(), nil
}

func runTraceQuery(a *app, log *audit.Log, args []string) error {
	arg := strings.Join(args, " ")
	switch traceQuery {
	case "list":
		n := 20
		if arg != "" {
			v, err := strconv.Atoi(arg)
			if err != nil || v < 1 {
				return errors.Newf(errors.InvalidArgument, "list count must be a positive number, got %q", arg)
			}
			n = v
		}
		records, err := log.List(n)
		if err != nil {
			return err
		}
		return emitRecords(records)
	case "search":
		if arg == "" {
			return errors.Newf(errors.InvalidArgument, "search needs text")
		}
		records, err := log.Search(arg)
		if err != nil {
			return err
		}
		return emitRecords(records)
	case "failed":
		records, err := log.Failed()
		if err != nil {
			return err
		}
		return emitRecords(records)
	case "blame":
		if arg == "" {
			return errors.Newf(errors.InvalidArgument, "blame needs a file")
		}
		if !filepath.IsAbs(arg) {
			arg = filepath.Join(a.cwd, arg)
		}
		records, err := log.Blame(arg)
		if err != nil {
			return err
		}
		return emitRecords(records)
	case "stats":
		st, err := log.Stats()
		if err != nil {
			return err
		}
		return emit(st, func() {
			fmt.Printf("Commands:     %d\n", st.Total)
			fmt.Printf("Succeeded:    %d\n", st.Succeeded)
			fmt.Printf("Failed:       %d\n", st.Failed)
			fmt.Printf("Success rate: %.1f%%\n", st.SuccessRate*100)
			fmt.Printf("Avg duration: %.2fs\n", st.AverageDuration)
			fmt.Printf("Users:        %d\n", st.UniqueUsers)
			if st.Skipped > 0 {
				fmt.Printf("Unreadable:   %d line(s) skipped\n", st.Skipped)
			}
		})
	case "export":
		return exportTrace(log)
	default:
		return errors.Newf(errors.InvalidArgument, "unknown query %q (list, search, failed, stats, export, blame)", traceQuery)
	}
}

func exportTrace(log *audit.Log) error {
	var w io.Writer = os.Stdout
	if traceOutput != "" {
		f, err := os.OpenFile(traceOutput, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("create %s: %w", traceOutput, err)
		}
		defer f.Close()
		w = f
	} else if traceGzip && isTerminalOut() {
		return errors.Newf(errors.InvalidArgument, "refusing to write gzip data to a terminal; use --output")
	}
	return log.Export(w, traceGzip)
}

func emitRecords(records []audit.Record) error {
	if records == nil {
		records = []audit.Record{}
	}
	return emit(records, func() {
		if len(records) == 0 {
			fmt.Println("No matching records.")
			return
		}
		for _, r := range records {
			mark := "✓"
			if !r.Success {
				mark = "✗"
			}
			fmt.Printf("%s %s  exit=%-3d %6.2fs  %-10s %s\n",
				mark,
				r.TimestampStart.Local().Format(time.DateTime),
				r.ExitCode,
				r.DurationSeconds,
				r.User,
				r.Command)
		}
	})
}

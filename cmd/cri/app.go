package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cri/internal/backup"
	"cri/internal/change"
	"cri/internal/config"
	"cri/internal/paths"
	"cri/internal/slogutil"
	"cri/internal/validate"
	"cri/internal/workspace"
)

// app holds what every command needs: the environment captured once at
// startup, configuration, loggers and the resolved workspace.
type app struct {
	env    config.Environment
	cfg    *config.Config
	logs   *slogutil.LoggerFactory
	logger *slog.Logger
	cwd    string
	ws     *workspace.Workspace
}

func newApp(cmd *cobra.Command) (*app, error) {
	env := config.ProcessEnvironment()

	cfg, err := config.LoadConfig(configFlag, env)
	if err != nil {
		return nil, err
	}

	logs := slogutil.NewLoggerFactory(cfg, cliLevel())
	logger := logs.CLILogger(os.Stderr)

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	ov := workspace.Overrides{Root: dirFlag, StateDir: stateDirFlag}
	if ov.Root == "" {
		ov.Root = env.Dir
	}
	if ov.StateDir == "" {
		ov.StateDir = env.StateDir
	}
	ws, err := workspace.NewResolver(cfg.Workspace, logger).Resolve(cwd, ov)
	if err != nil {
		return nil, err
	}

	return &app{env: env, cfg: cfg, logs: logs, logger: logger, cwd: cwd, ws: ws}, nil
}

// cliLevel maps -v/-q to a level; nil when neither was given.
func cliLevel() *slog.Level {
	if !quietFlag && verboseCount == 0 {
		return nil
	}
	level := slogutil.LevelFromVerbosity(verboseCount, quietFlag)
	return &level
}

func (a *app) close() {
	_ = a.logs.Close()
}

// layout initializes the state directory on first use.
func (a *app) layout() (paths.Layout, error) {
	if _, created, err := workspace.Init(a.ws, time.Now()); err != nil {
		return paths.Layout{}, err
	} else if created {
		a.logger.Info("initialized state directory", "dir", a.ws.CRIDir)
	}
	return a.ws.Layout(), nil
}

func (a *app) validator(opts ...validate.Option) *validate.Validator {
	if requireHealth {
		opts = append(opts, validate.RequireHealthCheck())
	}
	return validate.NewFromConfig(a.cfg.Validation, a.logger, opts...)
}

// workflow builds the change workflow. Review output goes to stdout in human
// mode only; prompts use the controlling terminal.
func (a *app) workflow(yes bool) (*change.Workflow, io.Closer, error) {
	layout, err := a.layout()
	if err != nil {
		return nil, nil, err
	}

	out := io.Writer(os.Stdout)
	if outputFormat == FormatJSON {
		out = io.Discard
	}

	var prompter change.Prompter = change.StaticPrompter(false)
	var closer io.Closer = io.NopCloser(nil)
	if !yes {
		prompter, closer = change.TerminalPrompter(os.Stdin, os.Stderr)
	}

	wf := change.New(change.Deps{
		Workspace: a.ws,
		Store:     backup.NewStore(layout.BackupsDir(), backup.WithRoot(a.ws.Root)),
		Validator: a.validator(),
		Prompter:  prompter,
		Config:    a.cfg.Change,
		Out:       out,
		Color:     change.IsTerminal(os.Stdout),
		Logger:    a.logger,
	})
	return wf, closer, nil
}

// target resolves the file a change command acts on.
func (a *app) target(wf *change.Workflow, explicit string) (string, error) {
	return wf.ResolveTarget(a.cwd, explicit)
}

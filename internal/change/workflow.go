// Package change implements the safe-change pipeline for one target file:
// review, validate, confirm, back up, write, re-validate and, when the live
// file fails validation, roll back automatically.
package change

import (
	"context"
	"io"
	"log/slog"

	"cri/internal/backup"
	"cri/internal/config"
	"cri/internal/diff"
	"cri/internal/slogutil"
	"cri/internal/validate"
	"cri/internal/workspace"
)

// State is a step of the change state machine.
type State string

const (
	StateInit         State = "INIT"
	StateReview       State = "REVIEW"
	StateValidate     State = "VALIDATE"
	StateConfirm      State = "CONFIRM"
	StateBackup       State = "BACKUP"
	StateWrite        State = "WRITE"
	StatePostValidate State = "POSTVALIDATE"
	StateAutoRollback State = "AUTOROLLBACK"
	StateDone         State = "DONE"
	StateDoneFailed   State = "DONE-FAILED"
)

// Validator is the validation capability the workflow needs.
type Validator interface {
	Detect(path string) string
	ValidateReader(ctx context.Context, r io.Reader, fileType string) (validate.Result, error)
	ValidatePath(ctx context.Context, path, fileType string) (validate.Result, error)
}

// Prompter asks the operator a yes/no question.
type Prompter interface {
	Confirm(question string) (bool, error)
}

// Deps are the collaborators of a Workflow.
type Deps struct {
	Workspace *workspace.Workspace
	Store     *backup.Store
	Validator Validator
	Prompter  Prompter
	Config    config.ChangeConfig

	// Out receives the diff and validation report. Nil discards.
	Out    io.Writer
	Color  bool
	Logger *slog.Logger
}

// Workflow runs change operations against files of one workspace.
type Workflow struct {
	ws        *workspace.Workspace
	store     *backup.Store
	validator Validator
	prompter  Prompter
	cfg       config.ChangeConfig
	out       io.Writer
	color     bool
	logger    *slog.Logger
}

// New creates a workflow. A nil prompter declines every question.
func New(d Deps) *Workflow {
	w := &Workflow{
		ws:        d.Workspace,
		store:     d.Store,
		validator: d.Validator,
		prompter:  d.Prompter,
		cfg:       d.Config,
		out:       d.Out,
		color:     d.Color,
		logger:    d.Logger,
	}
	if w.prompter == nil {
		w.prompter = StaticPrompter(false)
	}
	if w.out == nil {
		w.out = io.Discard
	}
	if w.logger == nil {
		w.logger = slogutil.NewDiscardLogger()
	}
	if w.cfg.MaxInputBytes <= 0 {
		w.cfg.MaxInputBytes = config.DefaultConfig().Change.MaxInputBytes
	}
	if len(w.cfg.Candidates) == 0 {
		w.cfg.Candidates = config.DefaultConfig().Change.Candidates
	}
	return w
}

// Store returns the backup store.
func (w *Workflow) Store() *backup.Store { return w.store }

// Result reports the outcome of a mutating operation.
type Result struct {
	Target         string           `json:"target"`
	Trail          []State          `json:"trail"`
	Diff           *diff.Stats      `json:"diff,omitempty"`
	Validation     *validate.Result `json:"validation,omitempty"`
	PostValidation *validate.Result `json:"postValidation,omitempty"`
	Backup         *backup.Backup   `json:"backup,omitempty"`
	Restored       *backup.Backup   `json:"restored,omitempty"`
	NoChanges      bool             `json:"noChanges,omitempty"`
	DryRun         bool             `json:"dryRun,omitempty"`
	Overridden     bool             `json:"overridden,omitempty"`
	RolledBack     bool             `json:"rolledBack,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
}

func (r *Result) enter(s State) {
	r.Trail = append(r.Trail, s)
}

// Final returns the last state reached.
func (r *Result) Final() State {
	if len(r.Trail) == 0 {
		return ""
	}
	return r.Trail[len(r.Trail)-1]
}

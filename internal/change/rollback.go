package change

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"cri/internal/backup"
	"cri/internal/diff"
	"cri/internal/errors"
	"cri/internal/validate"
)

// RollbackOptions control Rollback.
type RollbackOptions struct {
	// ID selects a backup by id or file name. Empty means the newest.
	ID  string
	Yes bool
}

// Rollback restores target from a backup. The current content is backed up
// first so the rollback itself can be undone. A restored file that fails
// validation is reported as a warning and kept.
func (w *Workflow) Rollback(ctx context.Context, target string, opts RollbackOptions) (*Result, error) {
	res := &Result{Target: target}
	res.enter(StateInit)

	b, err := w.selectBackup(target, opts.ID)
	if err != nil {
		return res, err
	}
	res.Restored = b

	current, err := os.ReadFile(target)
	if err != nil {
		return res, errors.New(errors.TargetInvalid, "cannot read "+target, err)
	}
	candidate, err := w.store.Read(b)
	if err != nil {
		return res, errors.New(errors.BackupNotFound, "cannot read backup "+b.ID, err)
	}

	res.enter(StateReview)
	name := filepath.Base(target)
	d := diff.Compute(name, b.Name, current, candidate, w.cfg.DiffContext)
	res.Diff = &d.Stats
	w.showDiff(d)
	if d.Empty() {
		res.NoChanges = true
		res.enter(StateDone)
		return res, nil
	}

	res.enter(StateConfirm)
	if !opts.Yes {
		ok, err := w.prompter.Confirm(fmt.Sprintf("Restore %s from %s?", name, b.ID))
		if err != nil {
			return res, err
		}
		if !ok {
			return res, errors.Newf(errors.Aborted, "rollback of %s aborted; nothing was changed", name)
		}
	}

	res.enter(StateBackup)
	snap, err := w.store.Create(target)
	if err != nil {
		return res, errors.New(errors.WriteFailed, "backup of current "+name+" failed; nothing was changed", err)
	}
	res.Backup = snap

	res.enter(StateWrite)
	if err := w.store.Restore(b, target); err != nil {
		return res, errors.New(errors.WriteFailed, "restore of "+b.ID+" failed", err,
			errors.RestoreFix(snap.ID, snap.Path))
	}
	w.logger.Info("backup restored", "file", target, "backup", b.ID, "snapshot", snap.ID)

	res.enter(StatePostValidate)
	post, err := w.validator.ValidatePath(ctx, target, w.validator.Detect(target))
	if err != nil {
		post.Diagnostics = append(post.Diagnostics, diagFromErr(err))
	}
	res.PostValidation = &post
	w.showValidation("validation", post)
	if post.Failed() || err != nil {
		msg := fmt.Sprintf("restored %s does not pass validation; previous content saved as %s", name, snap.ID)
		res.Warnings = append(res.Warnings, msg)
		w.logger.Warn("restored content failed validation", "file", target, "backup", b.ID)
	}
	res.enter(StateDone)
	return res, nil
}

func (w *Workflow) selectBackup(target, id string) (*backup.Backup, error) {
	if id == "" {
		return w.store.Latest(target)
	}
	return w.store.Get(target, id)
}

func diagFromErr(err error) validate.Diagnostic {
	return validate.Errorf("io", "%v", err)
}

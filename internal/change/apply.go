package change

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cri/internal/backup"
	"cri/internal/diff"
	"cri/internal/errors"
	"cri/internal/validate"
)

// ApplyOptions control Apply.
type ApplyOptions struct {
	// DryRun stops after review and validation.
	DryRun bool
	// Force proceeds past failed pre-write validation.
	Force bool
	// Yes skips the final confirmation. It does not override validation.
	Yes bool
}

// Apply replaces target with the content read from input. The content is
// reviewed and validated before anything is touched. After the write the
// live file is validated again and restored from the fresh backup if it
// fails.
func (w *Workflow) Apply(ctx context.Context, target string, input io.Reader, opts ApplyOptions) (*Result, error) {
	res := &Result{Target: target, DryRun: opts.DryRun}
	res.enter(StateInit)

	info, err := os.Stat(target)
	if err != nil {
		return res, errors.New(errors.TargetNotFound, "cannot stat "+target, err)
	}
	current, err := os.ReadFile(target)
	if err != nil {
		return res, errors.New(errors.TargetInvalid, "cannot read "+target, err)
	}
	proposed, err := ReadBounded(input, w.cfg.MaxInputBytes)
	if err != nil {
		return res, err
	}

	res.enter(StateReview)
	name := filepath.Base(target)
	d := diff.Compute(name, name, current, proposed, w.cfg.DiffContext)
	res.Diff = &d.Stats
	w.showDiff(d)
	if d.Empty() {
		res.NoChanges = true
		res.enter(StateDone)
		return res, nil
	}

	res.enter(StateValidate)
	tag := w.validator.Detect(target)
	pre, err := w.validator.ValidateReader(ctx, bytes.NewReader(proposed), tag)
	if err != nil {
		return res, err
	}
	res.Validation = &pre
	w.showValidation("validation", pre)

	if opts.DryRun {
		res.enter(StateDone)
		if pre.Failed() {
			return res, errors.Newf(errors.ValidationFailed, "proposed content for %s failed validation", name)
		}
		return res, nil
	}

	res.enter(StateConfirm)
	if pre.Failed() {
		if !opts.Force {
			ok, err := w.prompter.Confirm(fmt.Sprintf("Proposed %s failed validation. Apply anyway?", name))
			if err != nil {
				return res, err
			}
			if !ok {
				return res, errors.New(errors.ValidationFailed,
					fmt.Sprintf("proposed content for %s failed validation; nothing was changed", name), nil,
					errors.FixAction{Type: errors.RunCommand, Command: "cri apply --force", Description: "Override the validation gate"})
			}
		}
		res.Overridden = true
		w.logger.Warn("applying content that failed validation", "file", target)
	}
	if !opts.Yes {
		ok, err := w.prompter.Confirm(fmt.Sprintf("Apply changes to %s?", name))
		if err != nil {
			return res, err
		}
		if !ok {
			return res, errors.Newf(errors.Aborted, "apply to %s aborted; nothing was changed", name)
		}
	}

	if err := ctx.Err(); err != nil {
		return res, errors.New(errors.Aborted, "apply interrupted before backup", err)
	}

	res.enter(StateBackup)
	b, err := w.store.Create(target)
	if err != nil {
		return res, errors.New(errors.WriteFailed, "backup of "+name+" failed; nothing was changed", err)
	}
	res.Backup = b
	w.logger.Info("backup created", "file", target, "backup", b.ID)

	res.enter(StateWrite)
	if err := backup.WriteAtomic(target, proposed, info.Mode().Perm()); err != nil {
		return res, errors.New(errors.WriteFailed, "write of "+name+" failed", err,
			errors.RestoreFix(b.ID, b.Path))
	}

	res.enter(StatePostValidate)
	post, err := w.validator.ValidatePath(ctx, target, tag)
	if err != nil {
		post.Status = validate.StatusFail
		post.Diagnostics = append(post.Diagnostics, diagFromErr(err))
	}
	res.PostValidation = &post
	w.showValidation("post-write validation", post)
	if !post.Failed() {
		res.enter(StateDone)
		w.logger.Info("change applied", "file", target, "backup", b.ID, "diff", d.Stats.String())
		return res, nil
	}

	res.enter(StateAutoRollback)
	w.logger.Warn("post-write validation failed, restoring backup", "file", target, "backup", b.ID)
	if err := w.store.Restore(b, target); err != nil {
		res.enter(StateDoneFailed)
		return res, errors.New(errors.PostWriteFailed,
			fmt.Sprintf("%s failed validation after write and automatic restore of %s failed", name, b.ID), err,
			errors.RestoreFix(b.ID, b.Path))
	}
	res.RolledBack = true
	res.enter(StateDoneFailed)
	return res, errors.New(errors.PostWriteFailed,
		fmt.Sprintf("%s failed validation after write; restored backup %s", name, b.ID), nil,
		errors.RestoreFix(b.ID, b.Path)).WithDetails(post)
}

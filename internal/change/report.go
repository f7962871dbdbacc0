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

// Diff compares a backup (the newest when id is empty) with the current
// content of target.
func (w *Workflow) Diff(target, id string) (*diff.Diff, *backup.Backup, error) {
	b, err := w.selectBackup(target, id)
	if err != nil {
		return nil, nil, err
	}
	old, err := w.store.Read(b)
	if err != nil {
		return nil, b, errors.New(errors.BackupNotFound, "cannot read backup "+b.ID, err)
	}
	current, err := os.ReadFile(target)
	if err != nil {
		return nil, b, errors.New(errors.TargetInvalid, "cannot read "+target, err)
	}
	d := diff.Compute(b.Name, filepath.Base(target), old, current, w.cfg.DiffContext)
	w.showDiff(d)
	return d, b, nil
}

// List returns the backups of target, newest first.
func (w *Workflow) List(target string) ([]backup.Backup, error) {
	return w.store.List(target)
}

// Test validates the live target without modifying it.
func (w *Workflow) Test(ctx context.Context, target string) (validate.Result, error) {
	r, err := w.validator.ValidatePath(ctx, target, w.validator.Detect(target))
	if err != nil {
		return r, err
	}
	w.showValidation("validation", r)
	return r, nil
}

// Status summarizes a target: validation, backups and drift since the
// newest backup.
type Status struct {
	Workspace   string          `json:"workspace"`
	Label       string          `json:"label"`
	Unscoped    bool            `json:"unscoped,omitempty"`
	Target      string          `json:"target"`
	FileType    string          `json:"fileType"`
	Validation  validate.Result `json:"validation"`
	Backups     int             `json:"backups"`
	Latest      *backup.Backup  `json:"latest,omitempty"`
	SinceLatest *diff.Stats     `json:"sinceLatest,omitempty"`
}

// Status reports on target. It writes nothing.
func (w *Workflow) Status(ctx context.Context, target string) (*Status, error) {
	st := &Status{Target: target, FileType: w.validator.Detect(target)}
	if w.ws != nil {
		st.Workspace = w.ws.Root
		st.Label = w.ws.Label
		st.Unscoped = w.ws.Unscoped
	}
	r, err := w.validator.ValidatePath(ctx, target, st.FileType)
	if err != nil {
		return nil, err
	}
	st.Validation = r

	backups, err := w.store.List(target)
	if err != nil {
		return nil, err
	}
	st.Backups = len(backups)
	if len(backups) > 0 {
		latest := backups[0]
		st.Latest = &latest
		old, rerr := w.store.Read(&latest)
		current, cerr := os.ReadFile(target)
		if rerr == nil && cerr == nil {
			d := diff.Compute(latest.Name, filepath.Base(target), old, current, 0)
			st.SinceLatest = &d.Stats
		}
	}
	return st, nil
}

// PruneResult reports what a prune kept and removed.
type PruneResult struct {
	Kept    []backup.Backup `json:"kept"`
	Removed []backup.Backup `json:"removed"`
}

// Prune deletes all but the keep newest backups of target after
// confirmation.
func (w *Workflow) Prune(target string, keep int, yes bool) (*PruneResult, error) {
	kept, remove, err := w.store.Plan(target, keep)
	if err != nil {
		return nil, err
	}
	res := &PruneResult{Kept: kept}
	if len(remove) == 0 {
		fmt.Fprintf(w.out, "Nothing to prune: %d backup(s), keeping %d.\n", len(kept), keep)
		return res, nil
	}
	for _, b := range remove {
		fmt.Fprintf(w.out, "  remove %s\n", b.ID)
	}
	if !yes {
		ok, err := w.prompter.Confirm(fmt.Sprintf("Delete %d backup(s) of %s?", len(remove), filepath.Base(target)))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Newf(errors.Aborted, "prune aborted; no backups deleted")
		}
	}
	removed, err := w.store.Prune(target, keep)
	res.Removed = removed
	if err != nil {
		return res, errors.New(errors.WriteFailed, "prune incomplete", err)
	}
	w.logger.Info("backups pruned", "file", target, "removed", len(removed), "kept", len(kept))
	return res, nil
}

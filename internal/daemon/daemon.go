// Package daemon runs the long-lived watcher that validates configuration
// files as they change and records the outcome in the watch log.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cri/internal/notify"
	"cri/internal/slogutil"
	"cri/internal/validate"
	"cri/internal/version"
	"cri/internal/watcher"
)

// Validator checks a file on disk.
type Validator interface {
	Detect(path string) string
	ValidatePath(ctx context.Context, path, fileType string) (validate.Result, error)
}

// Options configure a Daemon.
type Options struct {
	Root      string
	Backend   watcher.Backend
	Validator Validator
	Notifier  notify.Notifier
	// Registry is optional; without it no PID file is written.
	Registry *Registry
	// Logger writes the watch log.
	Logger *slog.Logger
}

// Daemon validates qualifying files whenever the backend reports a change
type Daemon struct {
	root      string
	backend   watcher.Backend
	validator Validator
	notifier  notify.Notifier
	registry  *Registry
	logger    *slog.Logger

	// handle runs from debouncer goroutines; validations are serialized.
	mu        sync.Mutex
	ctx       context.Context
	startedAt time.Time
	checked   int
	failed    int
}

// New creates a daemon.
func New(opts Options) *Daemon {
	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Daemon{
		root:      opts.Root,
		backend:   opts.Backend,
		validator: opts.Validator,
		notifier:  opts.Notifier,
		registry:  opts.Registry,
		logger:    logger,
	}
}

// Run watches until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if d.registry != nil {
		pf, err := d.registry.Acquire(d.root)
		if err != nil {
			return err
		}
		pid := os.Getpid()
		defer func() {
			if err := pf.Release(pid); err != nil {
				d.logger.Warn("failed to release PID file", "error", err)
			}
		}()
	}

	d.mu.Lock()
	d.ctx = ctx
	d.startedAt = time.Now()
	d.mu.Unlock()

	d.logger.Info("watch started",
		"root", d.root,
		"backend", d.backend.Name(),
		"pid", os.Getpid(),
		"version", version.Version)

	err := d.backend.Run(ctx, d.handle)

	d.mu.Lock()
	checked, failed := d.checked, d.failed
	d.mu.Unlock()
	if err != nil {
		d.logger.Error("watch stopped", "error", err, "checked", checked, "failed", failed)
		return fmt.Errorf("watch backend %s: %w", d.backend.Name(), err)
	}
	d.logger.Info("watch stopped", "checked", checked, "failed", failed)
	return nil
}

func (d *Daemon) handle(ev watcher.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx := d.ctx
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if ev.Op == watcher.OpRemove || ev.Op == watcher.OpRename {
		d.logger.Debug("file removed", "file", ev.Path)
		return
	}
	info, err := os.Stat(ev.Path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	fileType := d.validator.Detect(ev.Path)
	res, err := d.validator.ValidatePath(ctx, ev.Path, fileType)
	if err != nil {
		d.logger.Error("validation error", "file", ev.Path, "error", err)
		return
	}
	d.checked++

	switch {
	case res.Failed():
		d.failed++
		first := ""
		if errs := res.Errors(); len(errs) > 0 {
			first = errs[0].String()
		}
		d.logger.Error("validation failed",
			"file", ev.Path,
			"type", fileType,
			"summary", res.Summary(),
			"first", first)
		if d.notifier != nil {
			rel, relErr := filepath.Rel(d.root, ev.Path)
			if relErr != nil {
				rel = ev.Path
			}
			d.notifier.Notify(notify.Notification{
				Title:   "cri: validation failed",
				Message: fmt.Sprintf("%s: %s", rel, first),
				File:    ev.Path,
			})
		}
	case res.Skipped():
		d.logger.Debug("validation skipped", "file", ev.Path)
	default:
		d.logger.Info("validation passed", "file", ev.Path, "type", fileType, "summary", res.Summary())
	}
}

// Counts returns the number of validations run and failed so far.
func (d *Daemon) Counts() (checked, failed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checked, d.failed
}

package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"cri/internal/slogutil"
)

// EventBackend watches the tree with fsnotify. Directories are added
// recursively, including ones created later, and events are debounced per
// path.
type EventBackend struct {
	root     string
	filter   Filter
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// NewEventBackend creates the fsnotify watcher. An error means the platform
// cannot deliver events.
func NewEventBackend(root string, filter Filter, debounce time.Duration, logger *slog.Logger) (*EventBackend, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &EventBackend{
		root:     root,
		filter:   filter,
		debounce: debounce,
		watcher:  w,
		logger:   logger,
	}, nil
}

// Name implements Backend.
func (e *EventBackend) Name() string { return "events" }

// Run implements Backend.
func (e *EventBackend) Run(ctx context.Context, handler Handler) error {
	defer e.watcher.Close()

	if err := e.addRecursive(e.root); err != nil {
		return err
	}

	debouncer := NewDebouncer(e.debounce)
	defer debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-e.watcher.Events:
			if !ok {
				return nil
			}
			e.dispatch(ev, debouncer, handler)
		case err, ok := <-e.watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("watch error", "error", err)
		}
	}
}

func (e *EventBackend) dispatch(ev fsnotify.Event, debouncer *Debouncer, handler Handler) {
	if e.filter.Excluded(e.root, ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := e.addRecursive(ev.Name); err != nil {
				e.logger.Warn("cannot watch new directory", "dir", ev.Name, "error", err)
			}
			return
		}
	}
	if !e.filter.Match(e.root, ev.Name) {
		return
	}
	op := convertOp(ev.Op)
	if op == -1 {
		return
	}
	path := ev.Name
	debouncer.Trigger(path, func() {
		handler(Event{Op: op, Path: path, Time: time.Now()})
	})
}

func (e *EventBackend) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != e.root && e.filter.Excluded(e.root, path) {
			return filepath.SkipDir
		}
		return e.watcher.Add(path)
	})
}

// convertOp maps fsnotify ops. Chmod-only events return -1.
func convertOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Write):
		return OpWrite
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return -1
	}
}

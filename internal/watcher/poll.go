package watcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"
)

// PollBackend scans the tree on an interval and compares modification
// times against a cache keyed by path.
type PollBackend struct {
	root     string
	interval time.Duration
	filter   Filter
	now      func() time.Time

	mtimes map[string]time.Time
	primed bool
}

// NewPollBackend creates a polling backend.
func NewPollBackend(root string, interval time.Duration, filter Filter) *PollBackend {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &PollBackend{
		root:     root,
		interval: interval,
		filter:   filter,
		now:      time.Now,
		mtimes:   make(map[string]time.Time),
	}
}

// Name implements Backend.
func (p *PollBackend) Name() string { return "poll" }

// Run implements Backend. The first scan only fills the cache.
func (p *PollBackend) Run(ctx context.Context, handler Handler) error {
	p.Scan()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, ev := range p.Scan() {
				handler(ev)
			}
		}
	}
}

// Scan runs one polling cycle. A file fires when its mtime is strictly newer
// than the cached one; a file first seen after the initial scan fires once
// as a create. Vanished files are dropped from the cache.
func (p *PollBackend) Scan() []Event {
	seen := make(map[string]bool, len(p.mtimes))
	var events []Event

	_ = filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != p.root && p.filter.Excluded(p.root, path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !p.filter.Match(p.root, path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		seen[path] = true
		mtime := info.ModTime()
		prev, known := p.mtimes[path]
		switch {
		case !known:
			p.mtimes[path] = mtime
			if p.primed {
				events = append(events, Event{Op: OpCreate, Path: path, Time: p.now()})
			}
		case mtime.After(prev):
			p.mtimes[path] = mtime
			events = append(events, Event{Op: OpWrite, Path: path, Time: p.now()})
		}
		return nil
	})

	for path := range p.mtimes {
		if !seen[path] {
			delete(p.mtimes, path)
		}
	}
	p.primed = true
	return events
}

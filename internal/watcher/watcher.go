// Package watcher detects changes to configuration files under a workspace
// root, either from file system events or by polling modification times.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"cri/internal/config"
)

// Op is the kind of change observed.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
	OpRename
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is one qualifying change.
type Event struct {
	Op   Op
	Path string
	Time time.Time
}

// Handler receives events. It may be called from several goroutines.
type Handler func(Event)

// Backend watches a root and reports qualifying changes until ctx ends.
type Backend interface {
	Name() string
	Run(ctx context.Context, handler Handler) error
}

// Filter decides which paths qualify.
type Filter struct {
	// Extensions allowed, with dot. Empty allows every file.
	Extensions []string
	// Exclude holds glob patterns matched against each path element.
	Exclude []string
}

// FilterFrom builds a filter from watch config.
func FilterFrom(cfg config.WatchConfig) Filter {
	return Filter{Extensions: cfg.Extensions, Exclude: cfg.Exclude}
}

// Excluded reports whether any element of path below root matches an
// exclude pattern.
func (f Filter) Excluded(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, pattern := range f.Exclude {
			if part == pattern {
				return true
			}
			if ok, _ := filepath.Match(pattern, part); ok {
				return true
			}
		}
	}
	return false
}

// Match reports whether a file path qualifies.
func (f Filter) Match(root, path string) bool {
	if f.Excluded(root, path) {
		return false
	}
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") && strings.Contains(base, ".tmp-") {
		return false
	}
	if len(f.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, allowed := range f.Extensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

// New selects a backend. Auto prefers events and falls back to polling when
// the event watcher cannot be created.
func New(cfg config.WatchConfig, root string, logger *slog.Logger) (Backend, error) {
	filter := FilterFrom(cfg)
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	debounce := time.Duration(cfg.DebounceMs) * time.Millisecond

	switch cfg.Backend {
	case config.BackendPoll:
		return NewPollBackend(root, interval, filter), nil
	case config.BackendEvents:
		return NewEventBackend(root, filter, debounce, logger)
	case config.BackendAuto, "":
		b, err := NewEventBackend(root, filter, debounce, logger)
		if err == nil {
			return b, nil
		}
		logger.Warn("event watcher unavailable, polling instead", "error", err)
		return NewPollBackend(root, interval, filter), nil
	default:
		return nil, fmt.Errorf("unknown watch backend %q", cfg.Backend)
	}
}

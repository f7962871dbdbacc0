package validate

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// File-type tags.
const (
	TypeJSON    = "json"
	TypeYAML    = "yaml"
	TypeTOML    = "toml"
	TypeShell   = "shell"
	TypePrimary = "primary"
)

// Checker inspects content of one file type.
type Checker interface {
	Check(ctx context.Context, content []byte) []Diagnostic
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, content []byte) []Diagnostic

// Check implements Checker.
func (f CheckerFunc) Check(ctx context.Context, content []byte) []Diagnostic {
	return f(ctx, content)
}

// Registry maps file-type tags to checkers and file names to tags.
type Registry struct {
	mu         sync.RWMutex
	checkers   map[string]Checker
	extensions map[string]string
	names      map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		checkers:   make(map[string]Checker),
		extensions: make(map[string]string),
		names:      make(map[string]string),
	}
}

// Register sets the checker for tag, replacing any previous one.
func (r *Registry) Register(tag string, c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[tag] = c
}

// MapExtension maps a file extension (with dot) to tag.
func (r *Registry) MapExtension(ext, tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extensions[strings.ToLower(ext)] = tag
}

// MapName maps an exact base name to tag. Names win over extensions.
func (r *Registry) MapName(name, tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[name] = tag
}

// Lookup returns the checker registered for tag.
func (r *Registry) Lookup(tag string) (Checker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.checkers[tag]
	return c, ok
}

// Detect returns the tag for path, or "" when the type is unknown.
func (r *Registry) Detect(path string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	base := filepath.Base(path)
	if tag, ok := r.names[base]; ok {
		return tag
	}
	return r.extensions[strings.ToLower(filepath.Ext(base))]
}

// Tags lists registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.checkers))
	for t := range r.checkers {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// DefaultRegistry registers the built-in checkers. primaryFiles are base
// names validated with the primary-config domain rules.
func DefaultRegistry(primaryFiles []string) *Registry {
	r := NewRegistry()

	r.Register(TypeJSON, JSONChecker{})
	r.Register(TypeYAML, YAMLChecker{})
	r.Register(TypeTOML, TOMLChecker{})
	r.Register(TypeShell, NewShellChecker())
	r.Register(TypePrimary, PrimaryChecker{})

	r.MapExtension(".json", TypeJSON)
	r.MapExtension(".yaml", TypeYAML)
	r.MapExtension(".yml", TypeYAML)
	r.MapExtension(".toml", TypeTOML)
	r.MapExtension(".sh", TypeShell)
	r.MapExtension(".bash", TypeShell)

	for _, name := range primaryFiles {
		r.MapName(name, TypePrimary)
	}
	return r
}

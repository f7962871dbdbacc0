// Package workspace locates the enclosing workspace root and its CRI state
// directory.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cri/internal/config"
	"cri/internal/paths"
	"cri/internal/slogutil"
)

// Source records which rule identified the workspace root.
type Source string

const (
	SourceOverride   Source = "override"
	SourceMarker     Source = "marker"
	SourceConvention Source = "convention"
	SourceAgent      Source = "agent"
	SourceSystem     Source = "system"
	SourceManifest   Source = "manifest"
	SourceGit        Source = "git"
	SourceGlobal     Source = "global"
)

// Kind classifies a workspace root for display.
type Kind string

const (
	KindMain     Kind = "main"
	KindAgent    Kind = "agent"
	KindSystem   Kind = "system"
	KindNamed    Kind = "named"
	KindUnscoped Kind = "unscoped"
)

// Workspace is a resolved workspace root and its state directory.
type Workspace struct {
	Root   string `json:"root"`
	Kind   Kind   `json:"kind"`
	Label  string `json:"label"`
	Source Source `json:"source"`
	CRIDir string `json:"criDir"`

	// Unscoped is set when no rule matched and the global fallback root is
	// in use. Isolation between workspaces is lost in that mode.
	Unscoped bool `json:"unscoped"`
}

// Layout returns the state directory layout.
func (w *Workspace) Layout() paths.Layout {
	return paths.NewLayout(w.CRIDir)
}

// Overrides are explicit locations that win over auto-detection.
type Overrides struct {
	Root     string
	StateDir string
}

// Resolver walks up from a directory to find the workspace root.
type Resolver struct {
	cfg    config.WorkspaceConfig
	logger *slog.Logger
}

// NewResolver creates a resolver. A nil logger discards output.
func NewResolver(cfg config.WorkspaceConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = config.DefaultConfig().Workspace.MaxDepth
	}
	return &Resolver{cfg: cfg, logger: logger}
}

// Resolve determines the workspace for cwd. Overrides take precedence; with
// no match the configured global root is used and the result is unscoped.
func (r *Resolver) Resolve(cwd string, ov Overrides) (*Workspace, error) {
	var (
		root   string
		source Source
	)

	if ov.Root != "" {
		abs, err := paths.Abs(ov.Root)
		if err != nil {
			return nil, fmt.Errorf("resolve workspace override %s: %w", ov.Root, err)
		}
		root, source = abs, SourceOverride
	} else {
		abs, err := paths.Abs(cwd)
		if err != nil {
			return nil, fmt.Errorf("resolve working directory %s: %w", cwd, err)
		}
		root, source = r.Find(abs)
	}

	ws := &Workspace{Root: root, Source: source}
	if source == SourceGlobal {
		ws.Unscoped = true
		ws.Kind = KindUnscoped
		ws.Label = "global"
		r.logger.Warn("no workspace found, using global state; workspaces are not isolated",
			"cwd", cwd, "root", root)
	} else {
		ws.Kind, ws.Label = r.Classify(root)
	}

	if ov.StateDir != "" {
		abs, err := filepath.Abs(ov.StateDir)
		if err != nil {
			return nil, fmt.Errorf("resolve state dir override %s: %w", ov.StateDir, err)
		}
		ws.CRIDir = abs
	} else {
		ws.CRIDir = r.CRIDirFor(root)
	}

	r.logger.Debug("resolved workspace", "root", ws.Root, "label", ws.Label, "source", string(ws.Source))
	return ws, nil
}

// Find walks upward from dir and returns the first directory matching a
// workspace rule, or the global root when nothing matches within MaxDepth.
func (r *Resolver) Find(dir string) (string, Source) {
	current := filepath.Clean(dir)
	for depth := 0; depth <= r.cfg.MaxDepth; depth++ {
		if src, ok := r.match(current); ok {
			return current, src
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return filepath.Clean(r.cfg.GlobalRoot), SourceGlobal
}

// match applies the detection rules to one directory, in priority order.
func (r *Resolver) match(dir string) (Source, bool) {
	if r.cfg.MarkerDir != "" && isDir(filepath.Join(dir, r.cfg.MarkerDir)) {
		return SourceMarker, true
	}
	if r.matchesConvention(dir) {
		return SourceConvention, true
	}
	if _, ok := r.agentID(dir); ok {
		return SourceAgent, true
	}
	if r.isSystemRoot(dir) {
		return SourceSystem, true
	}
	if r.cfg.ManifestFile != "" && isRegular(filepath.Join(dir, r.cfg.ManifestFile)) {
		return SourceManifest, true
	}
	if exists(filepath.Join(dir, ".git")) && strings.Contains(strings.ToLower(filepath.ToSlash(dir)), "workspace") {
		return SourceGit, true
	}
	return "", false
}

// Classify derives the display kind and label of a root. Labels are for
// logging only and never used for access decisions.
func (r *Resolver) Classify(root string) (Kind, string) {
	switch {
	case r.isSystemRoot(root):
		return KindSystem, "system"
	case r.matchesConvention(root):
		return KindMain, "main"
	}
	if id, ok := r.agentID(root); ok {
		return KindAgent, "agent:" + id
	}
	return KindNamed, filepath.Base(root)
}

// Label is shorthand for the label half of Classify.
func (r *Resolver) Label(root string) string {
	_, label := r.Classify(root)
	return label
}

// CRIDirFor returns the state directory path for a root without creating it.
func (r *Resolver) CRIDirFor(root string) string {
	return filepath.Join(root, r.cfg.MarkerDir, paths.CRIDirName)
}

func (r *Resolver) matchesConvention(dir string) bool {
	slashed := filepath.ToSlash(dir)
	for _, conv := range r.cfg.RootConventions {
		conv = strings.Trim(filepath.ToSlash(conv), "/")
		if conv != "" && strings.HasSuffix(slashed, "/"+conv) {
			return true
		}
	}
	return false
}

func (r *Resolver) agentID(dir string) (string, bool) {
	if r.cfg.AgentPrefix == "" {
		return "", false
	}
	base := filepath.Base(dir)
	id, ok := strings.CutPrefix(base, r.cfg.AgentPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func (r *Resolver) isSystemRoot(dir string) bool {
	return r.cfg.SystemRoot != "" && filepath.Clean(r.cfg.SystemRoot) == dir
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

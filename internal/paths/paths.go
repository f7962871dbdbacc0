// Package paths holds path canonicalization and the on-disk layout of the
// per-workspace CRI state directory.
package paths

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

const (
	// CRIDirName is the CRI state directory under the workspace marker dir.
	CRIDirName = "cri"
	// ContextFileName records the workspace the state directory belongs to.
	ContextFileName = "config.json"
	// BackupsDirName holds timestamped backups.
	BackupsDirName = "backups"
	// AuditFileName is the append-only audit trace.
	AuditFileName = "audit.jsonl"
	// WatchLogFileName is the watch daemon's validation log.
	WatchLogFileName = "watch.log"
)

// Layout names every path under one CRI state directory.
type Layout struct {
	Dir string
}

// NewLayout returns the layout rooted at criDir.
func NewLayout(criDir string) Layout {
	return Layout{Dir: criDir}
}

// ContextPath returns <cri>/config.json.
func (l Layout) ContextPath() string { return filepath.Join(l.Dir, ContextFileName) }

// BackupsDir returns <cri>/backups.
func (l Layout) BackupsDir() string { return filepath.Join(l.Dir, BackupsDirName) }

// AuditLogPath returns <cri>/audit.jsonl.
func (l Layout) AuditLogPath() string { return filepath.Join(l.Dir, AuditFileName) }

// WatchLogPath returns <cri>/watch.log.
func (l Layout) WatchLogPath() string { return filepath.Join(l.Dir, WatchLogFileName) }

// Ensure creates the state directory and its backups directory, owner-only.
// It is idempotent.
func (l Layout) Ensure() error {
	if err := os.MkdirAll(l.BackupsDir(), 0o700); err != nil {
		return err
	}
	return os.Chmod(l.Dir, 0o700)
}

// PIDFileName returns the daemon PID file name for a workspace root. The name
// is derived from the root so two workspaces never share a record.
func PIDFileName(workspaceRoot string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(workspaceRoot)))
	return "cri-watch-" + hex.EncodeToString(sum[:6]) + ".pid"
}

// CanonicalizePath converts an absolute path to a root-relative path with
// forward slashes. Symlinks are resolved for both arguments when they exist.
func CanonicalizePath(absolutePath string, root string) (string, error) {
	resolved, err := resolve(absolutePath)
	if err != nil {
		return "", err
	}
	rootResolved, err := resolve(root)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(rootResolved, resolved)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// IsWithinRoot reports whether path is root itself or lies beneath it.
func IsWithinRoot(path string, root string) bool {
	rel, err := CanonicalizePath(path, root)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, "../")
}

// Abs returns an absolute, cleaned path with symlinks resolved where possible.
func Abs(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return resolve(abs)
}

// resolve evaluates symlinks. For a path that does not exist yet, the
// nearest existing ancestor is resolved and the remainder re-appended.
func resolve(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}
	base, err := resolve(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, filepath.Base(path)), nil
}

// Package testutil provides workspace fixtures and golden-file helpers for
// tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// MarkerDir is the directory that marks a workspace root.
const MarkerDir = ".meta"

// WriteFiles writes files (relative path -> content) under root, creating
// parent directories.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

// TempWorkspace creates a marked workspace root in a temp dir and populates
// it. Symlinks in the temp path are resolved so paths compare cleanly.
func TempWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("resolve temp dir: %v", err)
	}
	if err := os.Mkdir(filepath.Join(root, MarkerDir), 0o755); err != nil {
		t.Fatalf("create marker: %v", err)
	}
	WriteFiles(t, root, files)
	return root
}

// ReadFile returns the content of root/rel.
func ReadFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

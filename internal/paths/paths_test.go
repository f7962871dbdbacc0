package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCanonicalizePath(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "etc"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"root itself", root, "."},
		{"existing child", filepath.Join(root, "etc"), "etc"},
		{"missing child", filepath.Join(root, "etc", "new.json"), "etc/new.json"},
		{"sibling", filepath.Join(filepath.Dir(root), "other"), "../other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalizePath(tt.path, root)
			if err != nil {
				t.Fatalf("CanonicalizePath: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsWithinRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "ws")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"root", root, true},
		{"inside", filepath.Join(root, "a", "b.json"), true},
		{"parent", parent, false},
		{"sibling sharing prefix", filepath.Join(parent, "ws2", "x.json"), false},
		{"dot-dot name inside", filepath.Join(root, "..hidden"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsWithinRoot(tt.path, root); got != tt.want {
				t.Errorf("IsWithinRoot(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestIsWithinRoot_Symlink(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "ws")
	outside := filepath.Join(parent, "outside")
	for _, d := range []string{root, outside} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if IsWithinRoot(filepath.Join(link, "x.json"), root) {
		t.Error("path through symlink escaping the root must not be inside")
	}
}

func TestLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".meta", "cri")
	l := NewLayout(dir)

	if err := l.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := l.Ensure(); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Errorf("perm = %o, want 700", perm)
	}
	if _, err := os.Stat(l.BackupsDir()); err != nil {
		t.Errorf("backups dir: %v", err)
	}

	if got := filepath.Base(l.AuditLogPath()); got != AuditFileName {
		t.Errorf("audit path = %s", got)
	}
	if got := filepath.Base(l.ContextPath()); got != ContextFileName {
		t.Errorf("context path = %s", got)
	}
	if got := filepath.Base(l.WatchLogPath()); got != WatchLogFileName {
		t.Errorf("watch log path = %s", got)
	}
}

func TestPIDFileName(t *testing.T) {
	a := PIDFileName("/home/u/ws-a")
	b := PIDFileName("/home/u/ws-b")

	if a == b {
		t.Error("distinct roots must get distinct PID files")
	}
	if a != PIDFileName("/home/u/ws-a/") {
		t.Error("trailing slash must not change the name")
	}
	if !strings.HasPrefix(a, "cri-watch-") || !strings.HasSuffix(a, ".pid") {
		t.Errorf("unexpected name %q", a)
	}
}

package slogutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cri/internal/config"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"512", 512},
		{"100B", 100},
		{"10KB", 10 << 10},
		{"5MB", 5 << 20},
		{"5mb", 5 << 20},
		{"1GB", 1 << 30},
		{"1.5KB", 1536},
		{" 2 MB ", 2 << 20},
		{"lots", 0},
		{"-1MB", 0},
	}
	for _, tt := range tests {
		if got := ParseSize(tt.in); got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		12:      "12B",
		2048:    "2.0KB",
		5 << 20: "5.0MB",
		3 << 30: "3.0GB",
	}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestRotatingFile_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.log")
	rf, err := OpenRotatingFile(path, 100, 2)
	if err != nil {
		t.Fatalf("OpenRotatingFile: %v", err)
	}
	defer rf.Close()

	line := strings.Repeat("x", 60) + "\n"
	for i := 0; i < 5; i++ {
		if _, err := rf.Write([]byte(line)); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	for _, p := range []string{path, path + ".1", path + ".2"} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s: %v", p, err)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("expected no third backup, got %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() > 100 {
		t.Errorf("current file is %d bytes, want <= 100", info.Size())
	}
}

func TestRotatingFile_NoBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.log")
	rf, err := OpenRotatingFile(path, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer rf.Close()

	_, _ = rf.Write([]byte("0123456789\n"))
	_, _ = rf.Write([]byte("abc\n"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abc\n" {
		t.Errorf("got %q", data)
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("no backup expected")
	}
}

func TestRotatingFile_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.log")
	if err := os.WriteFile(path, []byte("old\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	rf, err := OpenRotatingFile(path, 1<<20, 1)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = rf.Write([]byte("new\n"))
	_ = rf.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "old\nnew\n" {
		t.Errorf("got %q", data)
	}
}

func TestLoggerFactory_WatchLogger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "watch.log")

	cfg := config.DefaultConfig()
	cfg.Logging.Level = "debug"
	f := NewLoggerFactory(cfg, nil)

	logger, err := f.WatchLogger(path)
	if err != nil {
		t.Fatalf("WatchLogger: %v", err)
	}
	logger.Debug("validation passed", "file", "a.json")
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[debug] validation passed | file=a.json") {
		t.Errorf("got %q", data)
	}
}

func TestLoggerFactory_ForegroundWatchLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.log")
	var console strings.Builder
	f := NewLoggerFactory(nil, nil)

	logger, err := f.ForegroundWatchLogger(path, &console)
	if err != nil {
		t.Fatalf("ForegroundWatchLogger: %v", err)
	}
	logger.Error("validation failed", "file", "b.json")
	logger.Debug("hidden")
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for name, got := range map[string]string{"file": string(data), "console": console.String()} {
		if !strings.Contains(got, "[error] validation failed | file=b.json") || strings.Contains(got, "hidden") {
			t.Errorf("%s got %q", name, got)
		}
	}
}

func TestLoggerFactory_CLILevel(t *testing.T) {
	var sb strings.Builder
	level := slog.LevelInfo
	f := NewLoggerFactory(nil, &level)

	logger := f.CLILogger(&sb)
	logger.Debug("hidden")
	logger.Info("shown")

	if strings.Contains(sb.String(), "hidden") || !strings.Contains(sb.String(), "shown") {
		t.Errorf("got %q", sb.String())
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, int64(10<<20), cfg.Change.MaxInputBytes)
	assert.Equal(t, ".meta", cfg.Workspace.MarkerDir)
	assert.Equal(t, BackendAuto, cfg.Watch.Backend)
	assert.Contains(t, cfg.Watch.Extensions, ".yaml")
	assert.Contains(t, cfg.Watch.Exclude, ".git")
	assert.Equal(t, 10, cfg.Backup.Keep)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_MissingDefaultFile(t *testing.T) {
	env := Environment{Home: t.TempDir()}

	cfg, err := LoadConfig("", env)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.Home, ".cri", "global"), cfg.Workspace.GlobalRoot)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), Environment{})
	require.Error(t, err)
}

func TestLoadConfig_YAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
change:
  max_input_bytes: 1024
  candidates: ["*.conf"]
watch:
  backend: poll
  interval_ms: 50
validation:
  primary_files: ["gateway.json"]
backup:
  keep: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path, Environment{})
	require.NoError(t, err)

	assert.Equal(t, int64(1024), cfg.Change.MaxInputBytes)
	assert.Equal(t, []string{"*.conf"}, cfg.Change.Candidates)
	assert.Equal(t, BackendPoll, cfg.Watch.Backend)
	assert.Equal(t, 50, cfg.Watch.IntervalMs)
	assert.Equal(t, []string{"gateway.json"}, cfg.Validation.PrimaryFiles)
	assert.Equal(t, 4, cfg.Backup.Keep)
	// untouched keys keep their defaults
	assert.Equal(t, 3, cfg.Change.DiffContext)
	assert.Equal(t, 12, cfg.Workspace.MaxDepth)
}

func TestLoadConfig_EnvironmentWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("watch:\n  backend: events\n"), 0o644))

	env := Environment{ConfigFile: path, WatchBackend: "poll", LogLevel: "debug"}
	cfg, err := LoadConfig("", env)
	require.NoError(t, err)

	assert.Equal(t, BackendPoll, cfg.Watch.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_InvalidBackend(t *testing.T) {
	_, err := LoadConfig("", Environment{Home: t.TempDir(), WatchBackend: "inotify"})
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "watch.backend", cfgErr.Field)
}

func TestValidate_BackupKeep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backup.Keep = 0

	var cfgErr *ConfigError
	require.ErrorAs(t, cfg.Validate(), &cfgErr)
	assert.Equal(t, "backup.keep", cfgErr.Field)
}

func TestExpandHome(t *testing.T) {
	tests := []struct {
		in, home, want string
	}{
		{"~/.cri", "/home/u", "/home/u/.cri"},
		{"~", "/home/u", "/home/u"},
		{"/abs", "/home/u", "/abs"},
		{"~/x", "", "~/x"},
		{"", "/home/u", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandHome(tt.in, tt.home), tt.in)
	}
}

func TestEnvironmentFrom(t *testing.T) {
	vars := map[string]string{
		"HOME":           "/home/u",
		"LOGNAME":        "u",
		"SHELL":          "/bin/zsh",
		"TERM":           "xterm",
		"SSH_CONNECTION": "1.2.3.4 5 6.7.8.9 22",
		"CRI_DIR":        "/ws",
	}
	env := EnvironmentFrom(func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	})

	assert.Equal(t, "u", env.User)
	assert.Equal(t, "/bin/zsh", env.Shell)
	assert.Equal(t, "/ws", env.Dir)
	assert.Equal(t, "/tmp", env.TempDir)
	assert.True(t, env.Remote())
}

// Package config loads cri settings and captures the process environment once.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete cri configuration
type Config struct {
	Version    int              `json:"version" mapstructure:"version"`
	Workspace  WorkspaceConfig  `json:"workspace" mapstructure:"workspace"`
	Change     ChangeConfig     `json:"change" mapstructure:"change"`
	Backup     BackupConfig     `json:"backup" mapstructure:"backup"`
	Validation ValidationConfig `json:"validation" mapstructure:"validation"`
	Watch      WatchConfig      `json:"watch" mapstructure:"watch"`
	Notify     NotifyConfig     `json:"notify" mapstructure:"notify"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
}

// WorkspaceConfig controls workspace root detection
type WorkspaceConfig struct {
	MarkerDir       string   `json:"markerDir" mapstructure:"marker_dir"`
	RootConventions []string `json:"rootConventions" mapstructure:"root_conventions"`
	AgentPrefix     string   `json:"agentPrefix" mapstructure:"agent_prefix"`
	SystemRoot      string   `json:"systemRoot" mapstructure:"system_root"`
	ManifestFile    string   `json:"manifestFile" mapstructure:"manifest_file"`
	MaxDepth        int      `json:"maxDepth" mapstructure:"max_depth"`
	GlobalRoot      string   `json:"globalRoot" mapstructure:"global_root"`
}

// ChangeConfig controls the change workflow
type ChangeConfig struct {
	MaxInputBytes int64    `json:"maxInputBytes" mapstructure:"max_input_bytes"`
	Candidates    []string `json:"candidates" mapstructure:"candidates"`
	DiffContext   int      `json:"diffContext" mapstructure:"diff_context"`
}

// BackupConfig controls backup retention
type BackupConfig struct {
	// Keep is how many backups prune keeps when no count is given.
	Keep int `json:"keep" mapstructure:"keep"`
}

// ValidationConfig controls the validator
type ValidationConfig struct {
	PrimaryFiles []string          `json:"primaryFiles" mapstructure:"primary_files"`
	HealthCheck  HealthCheckConfig `json:"healthCheck" mapstructure:"health_check"`
}

// HealthCheckConfig describes the optional external self-check tool
type HealthCheckConfig struct {
	Command        string   `json:"command" mapstructure:"command"`
	Args           []string `json:"args" mapstructure:"args"`
	LivePath       string   `json:"livePath" mapstructure:"live_path"`
	TimeoutSeconds int      `json:"timeoutSeconds" mapstructure:"timeout_seconds"`
	Required       bool     `json:"required" mapstructure:"required"`
}

// WatchConfig controls the watch daemon
type WatchConfig struct {
	Backend    string   `json:"backend" mapstructure:"backend"`
	IntervalMs int      `json:"intervalMs" mapstructure:"interval_ms"`
	DebounceMs int      `json:"debounceMs" mapstructure:"debounce_ms"`
	Extensions []string `json:"extensions" mapstructure:"extensions"`
	Exclude    []string `json:"exclude" mapstructure:"exclude"`
	MaxSize    string   `json:"maxSize" mapstructure:"max_size"`
	MaxBackups int      `json:"maxBackups" mapstructure:"max_backups"`
}

// NotifyConfig controls failure notifications from the watch daemon
type NotifyConfig struct {
	Desktop        bool     `json:"desktop" mapstructure:"desktop"`
	AgentCommand   []string `json:"agentCommand" mapstructure:"agent_command"`
	TimeoutSeconds int      `json:"timeoutSeconds" mapstructure:"timeout_seconds"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
}

// Watch backends.
const (
	BackendAuto   = "auto"
	BackendEvents = "events"
	BackendPoll   = "poll"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Workspace: WorkspaceConfig{
			MarkerDir:       ".meta",
			RootConventions: []string{".openclaw/workspace"},
			AgentPrefix:     "workspace-",
			ManifestFile:    ".cri-workspace",
			MaxDepth:        12,
			GlobalRoot:      "~/.cri/global",
		},
		Change: ChangeConfig{
			MaxInputBytes: 10 << 20,
			Candidates:    []string{"*.json", "*.yaml", "*.yml", "*.toml"},
			DiffContext:   3,
		},
		Backup: BackupConfig{
			Keep: 10,
		},
		Validation: ValidationConfig{
			PrimaryFiles: []string{"openclaw.json"},
			HealthCheck: HealthCheckConfig{
				Command:        "openclaw",
				Args:           []string{"doctor", "--non-interactive"},
				LivePath:       "~/.openclaw/openclaw.json",
				TimeoutSeconds: 30,
			},
		},
		Watch: WatchConfig{
			Backend:    BackendAuto,
			IntervalMs: 2000,
			DebounceMs: 300,
			Extensions: []string{".json", ".yaml", ".yml", ".toml", ".sh"},
			Exclude:    []string{".git", ".meta", "node_modules", "*.log"},
			MaxSize:    "5MB",
			MaxBackups: 3,
		},
		Notify: NotifyConfig{
			Desktop:        true,
			TimeoutSeconds: 10,
		},
		Logging: LoggingConfig{
			Level: "",
		},
	}
}

// DefaultConfigPath returns the user-level config location.
// $XDG_CONFIG_HOME/cri/config.yaml, falling back to ~/.config/cri/config.yaml.
func DefaultConfigPath(env Environment) string {
	if env.XDGConfigHome != "" {
		return filepath.Join(env.XDGConfigHome, "cri", "config.yaml")
	}
	if env.Home == "" {
		return ""
	}
	return filepath.Join(env.Home, ".config", "cri", "config.yaml")
}

// LoadConfig loads configuration from path. An empty path selects the
// environment override, then the user-level default. A missing default file
// yields DefaultConfig; a missing explicit file is an error.
func LoadConfig(path string, env Environment) (*Config, error) {
	explicit := path != ""
	if !explicit && env.ConfigFile != "" {
		path = env.ConfigFile
		explicit = true
	}
	if !explicit {
		path = DefaultConfigPath(env)
	}

	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v := viper.New()
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			if err := v.Unmarshal(cfg); err != nil {
				return nil, fmt.Errorf("decode config %s: %w", path, err)
			}
		} else if explicit {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	cfg.applyEnvironment(env)
	cfg.expandHome(env.Home)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvironment layers CRI_* overrides captured at the process boundary.
func (c *Config) applyEnvironment(env Environment) {
	if env.LogLevel != "" {
		c.Logging.Level = env.LogLevel
	}
	if env.WatchBackend != "" {
		c.Watch.Backend = env.WatchBackend
	}
	if env.GlobalRoot != "" {
		c.Workspace.GlobalRoot = env.GlobalRoot
	}
}

func (c *Config) expandHome(home string) {
	c.Workspace.GlobalRoot = ExpandHome(c.Workspace.GlobalRoot, home)
	c.Workspace.SystemRoot = ExpandHome(c.Workspace.SystemRoot, home)
	c.Validation.HealthCheck.LivePath = ExpandHome(c.Validation.HealthCheck.LivePath, home)
}

// ExpandHome replaces a leading "~" with home.
func ExpandHome(p, home string) string {
	if home == "" || p == "" {
		return p
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Change.MaxInputBytes <= 0 {
		return &ConfigError{Field: "change.max_input_bytes", Message: "must be positive"}
	}
	if c.Workspace.MaxDepth <= 0 {
		return &ConfigError{Field: "workspace.max_depth", Message: "must be positive"}
	}
	if c.Workspace.MarkerDir == "" {
		return &ConfigError{Field: "workspace.marker_dir", Message: "must not be empty"}
	}
	switch c.Watch.Backend {
	case BackendAuto, BackendEvents, BackendPoll:
	default:
		return &ConfigError{Field: "watch.backend", Message: fmt.Sprintf("unknown backend %q", c.Watch.Backend)}
	}
	if c.Watch.IntervalMs <= 0 {
		return &ConfigError{Field: "watch.interval_ms", Message: "must be positive"}
	}
	if c.Backup.Keep < 1 {
		return &ConfigError{Field: "backup.keep", Message: "must keep at least 1 backup"}
	}
	if c.Change.DiffContext < 0 {
		return &ConfigError{Field: "change.diff_context", Message: "must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}

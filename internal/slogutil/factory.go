package slogutil

import (
	"io"
	"log/slog"
	"strconv"

	"cri/internal/config"
)

// LoggerFactory creates loggers for the CLI and the watch daemon.
// Level precedence: CLI flags > logging.level in config > info.
type LoggerFactory struct {
	config   *config.Config
	cliLevel *slog.Level
	closers  []io.Closer
}

// NewLoggerFactory creates a new logger factory. cliLevel is nil when no
// verbosity flag was given.
func NewLoggerFactory(cfg *config.Config, cliLevel *slog.Level) *LoggerFactory {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &LoggerFactory{config: cfg, cliLevel: cliLevel}
}

// CLILogger writes operator diagnostics to w (normally stderr).
func (f *LoggerFactory) CLILogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if f.cliLevel != nil {
		level = *f.cliLevel
	}
	return NewLogger(w, level)
}

// WatchLogger opens the per-workspace watch log at path with the configured
// rotation. On failure it returns a discard logger together with the error
// so callers can report it and continue.
func (f *LoggerFactory) WatchLogger(path string) (*slog.Logger, error) {
	watch := f.config.Watch
	logger, closer, err := NewFileLoggerWithRotation(path, f.effectiveLevel(), watch.MaxSize, watch.MaxBackups)
	if err != nil {
		return NewDiscardLogger(), err
	}
	f.closers = append(f.closers, closer)
	return logger, nil
}

// ForegroundWatchLogger is WatchLogger for a watcher running in a terminal:
// every line also goes to echo.
func (f *LoggerFactory) ForegroundWatchLogger(path string, echo io.Writer) (*slog.Logger, error) {
	file, err := f.WatchLogger(path)
	if err != nil {
		return file, err
	}
	console := NewHandler(echo, &slog.HandlerOptions{Level: f.effectiveLevel()})
	return slog.New(NewTeeHandler(file.Handler(), console)), nil
}

func (f *LoggerFactory) effectiveLevel() slog.Level {
	if f.cliLevel != nil && *f.cliLevel != LevelSilent {
		return *f.cliLevel
	}
	if f.config.Logging.Level != "" {
		return LevelFromString(f.config.Logging.Level)
	}
	return slog.LevelInfo
}

// Close closes every file opened by the factory.
func (f *LoggerFactory) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	return firstErr
}

// FormatBytes renders n as a short human size, the inverse of ParseSize.
func FormatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return strconv.FormatFloat(float64(n)/(1<<30), 'f', 1, 64) + "GB"
	case n >= 1<<20:
		return strconv.FormatFloat(float64(n)/(1<<20), 'f', 1, 64) + "MB"
	case n >= 1<<10:
		return strconv.FormatFloat(float64(n)/(1<<10), 'f', 1, 64) + "KB"
	default:
		return strconv.FormatInt(n, 10) + "B"
	}
}

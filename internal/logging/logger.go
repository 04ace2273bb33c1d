// Package logging builds the process logger from configuration: a console
// sink, an optional rotating file sink, and a separate errors-only file so
// warnings survive main-log rotation.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/usefreetools/toolbox/internal/config"
)

var (
	openFiles   []*lumberjack.Logger
	openFilesMu sync.Mutex
)

// Setup builds the configured logger and installs it as the slog default.
func Setup(cfg config.LoggingConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	slog.SetDefault(logger)

	slog.Info("logging initialized",
		"level", cfg.Level,
		"format", cfg.Format,
		"console", cfg.Console.Enabled,
		"file", cfg.File.Enabled,
	)
	return nil
}

// NewLogger assembles the handler chain for cfg without touching the global
// default.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var handlers []slog.Handler

	if cfg.Console.Enabled {
		handlers = append(handlers, newHandler(os.Stderr,
			cfg.EffectiveConsoleFormat(), config.SlogLevel(cfg.EffectiveConsoleLevel())))
	}

	if cfg.File.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}

		mainFile := newRotatingFile(cfg, "toolbox.log")
		handlers = append(handlers, newHandler(mainFile,
			cfg.EffectiveFileFormat(), config.SlogLevel(cfg.EffectiveFileLevel())))

		// Warnings and errors also land in their own file.
		errorFile := newRotatingFile(cfg, "errors.log")
		errorHandler := newHandler(errorFile, cfg.EffectiveFileFormat(), slog.LevelWarn)
		handlers = append(handlers, NewLevelFilter(errorHandler, slog.LevelWarn))
	}

	if len(handlers) == 0 {
		// Both sinks disabled: keep a logger that drops everything rather
		// than crashing callers.
		return slog.New(NewLevelFilter(slog.NewTextHandler(io.Discard, nil), slog.LevelError+1)), nil
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0]), nil
	}
	return slog.New(NewMultiHandler(handlers...)), nil
}

// Close flushes and closes every open log file. Call it on shutdown.
func Close() error {
	openFilesMu.Lock()
	defer openFilesMu.Unlock()

	for _, file := range openFiles {
		if err := file.Close(); err != nil {
			return fmt.Errorf("close log file %s: %w", file.Filename, err)
		}
	}
	openFiles = nil
	return nil
}

func newRotatingFile(cfg config.LoggingConfig, name string) *lumberjack.Logger {
	file := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, name),
		MaxSize:    cfg.Rotation.MaxSize,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAge,
		Compress:   cfg.Rotation.Compress,
	}
	openFilesMu.Lock()
	openFiles = append(openFiles, file)
	openFilesMu.Unlock()
	return file
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

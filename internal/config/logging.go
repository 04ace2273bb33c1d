package config

import (
	"fmt"
	"log/slog"
)

// LoggingConfig holds logging configuration. The top-level level/format act
// as defaults for the console and file sinks, each of which can override
// them independently.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Dir    string `yaml:"dir"`    // log directory, used by the file sink

	Rotation RotationConfig `yaml:"rotation"`
	Console  ConsoleConfig  `yaml:"console"`
	File     FileConfig     `yaml:"file"`
}

// RotationConfig holds file rotation settings.
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`    // MB
	MaxBackups int  `yaml:"max_backups"` // number of files
	MaxAge     int  `yaml:"max_age"`     // days
	Compress   bool `yaml:"compress"`    // gzip rotated files
}

// ConsoleConfig controls the stderr sink.
type ConsoleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`  // optional override
	Format  string `yaml:"format"` // optional override
}

// FileConfig controls the rotating-file sink.
type FileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`  // optional override
	Format  string `yaml:"format"` // optional override
}

// DefaultLoggingConfig returns default logging configuration: console only.
// The file sink is a deployment opt-in.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
		Dir:    "logs",
		Rotation: RotationConfig{
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		},
		Console: ConsoleConfig{Enabled: true},
	}
}

// EffectiveConsoleLevel resolves the console sink's level against the
// top-level default.
func (c LoggingConfig) EffectiveConsoleLevel() string { return orDefault(c.Console.Level, c.Level) }

// EffectiveConsoleFormat resolves the console sink's format.
func (c LoggingConfig) EffectiveConsoleFormat() string { return orDefault(c.Console.Format, c.Format) }

// EffectiveFileLevel resolves the file sink's level.
func (c LoggingConfig) EffectiveFileLevel() string { return orDefault(c.File.Level, c.Level) }

// EffectiveFileFormat resolves the file sink's format.
func (c LoggingConfig) EffectiveFileFormat() string { return orDefault(c.File.Format, c.Format) }

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

// Validate checks level and format values for every sink.
func (c LoggingConfig) Validate() error {
	if err := validLevel(c.Level); err != nil {
		return err
	}
	if err := validFormat(c.Format); err != nil {
		return err
	}

	if c.Console.Enabled {
		if err := validLevel(c.EffectiveConsoleLevel()); err != nil {
			return fmt.Errorf("logging console: %w", err)
		}
		if err := validFormat(c.EffectiveConsoleFormat()); err != nil {
			return fmt.Errorf("logging console: %w", err)
		}
	}

	if c.File.Enabled {
		if c.Dir == "" {
			return fmt.Errorf("logging: file sink enabled without dir")
		}
		if err := validLevel(c.EffectiveFileLevel()); err != nil {
			return fmt.Errorf("logging file: %w", err)
		}
		if err := validFormat(c.EffectiveFileFormat()); err != nil {
			return fmt.Errorf("logging file: %w", err)
		}
	}

	return nil
}

func validLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging: invalid level %q", level)
	}
}

func validFormat(format string) error {
	switch format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("logging: invalid format %q", format)
	}
}

// SlogLevel maps a level string to a slog.Level. Unknown strings fall back
// to info; Validate catches them before this runs.
func SlogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

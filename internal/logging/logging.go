// Package logging configures the process-wide slog logger: console output,
// optionally mirrored to rotating log files.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration.
type Config struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Dir    string `yaml:"dir"`

	File     FileConfig     `yaml:"file"`
	Rotation RotationConfig `yaml:"rotation"`
}

// FileConfig enables mirroring logs to files under Dir. Async batches file
// writes off the hot path; Dedup collapses repeated records before they are
// written.
type FileConfig struct {
	Enabled bool `yaml:"enabled"`
	Async   bool `yaml:"async"`
	Dedup   bool `yaml:"dedup"`
}

// RotationConfig holds log rotation settings.
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`    // MB
	MaxBackups int  `yaml:"max_backups"` // number of files
	MaxAge     int  `yaml:"max_age"`     // days
	Compress   bool `yaml:"compress"`
}

// DefaultConfig returns default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Dir:    "logs",
		Rotation: RotationConfig{
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// Initialize builds a logger from cfg and installs it as the slog default.
func Initialize(cfg Config) (*slog.Logger, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	slog.SetDefault(logger)
	return logger, nil
}

// NewLogger creates a logger instance with the given configuration.
func NewLogger(cfg Config) (*slog.Logger, error) {
	level := parseLevel(cfg.Level)
	handlers := []slog.Handler{createHandler(os.Stdout, cfg.Format, level)}

	if cfg.File.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		mainFile := fileWriter(cfg, "meshview.log")
		mainHandler := createHandler(mainFile, cfg.Format, level)
		if cfg.File.Dedup {
			mainHandler = NewDedupHandler(mainHandler, DefaultDedupConfig())
		}
		handlers = append(handlers, mainHandler)

		// Warnings and errors additionally go to their own file.
		errorFile := fileWriter(cfg, "errors.log")
		handlers = append(handlers, NewLevelFilter(createHandler(errorFile, cfg.Format, slog.LevelWarn), slog.LevelWarn))
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0]), nil
	}
	return slog.New(NewMultiHandler(handlers...)), nil
}

func fileWriter(cfg Config, name string) io.Writer {
	var w io.Writer = &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, name),
		MaxSize:    cfg.Rotation.MaxSize,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAge,
		Compress:   cfg.Rotation.Compress,
	}
	if cfg.File.Async {
		w = NewAsyncWriter(w, DefaultAsyncWriterConfig())
	}
	return w
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func createHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

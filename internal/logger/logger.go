// Package logger provides the harness's structured run log and its console
// status lines. The run log uses log/slog with optional file rotation via
// lumberjack; console lines are short colored messages for the operator.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration options.
type Config struct {
	// LogDir is the directory where the rotating run log is written.
	// If empty, no file is written.
	LogDir string

	// FileName is the log file name inside LogDir. Defaults to "harness.log".
	FileName string

	// Verbose mirrors debug-level records to Stderr.
	Verbose bool

	// JSON selects the JSON handler instead of text.
	JSON bool

	// Stderr is where verbose records go. Defaults to os.Stderr.
	Stderr io.Writer

	// Component is an optional component name added to all records.
	Component string

	// RunID is added to all records when set.
	RunID string
}

// Init initializes the global slog logger with the given configuration.
// Without LogDir and Verbose, records are discarded.
func Init(cfg Config) error {
	var writers []io.Writer

	if cfg.Verbose {
		stderr := cfg.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		writers = append(writers, stderr)
	}

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
			return err
		}

		name := cfg.FileName
		if name == "" {
			name = "harness.log"
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, name),
			MaxSize:    20, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: slog.LevelDebug}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	logger := slog.New(handler)
	if cfg.Component != "" {
		logger = logger.With("component", cfg.Component)
	}
	if cfg.RunID != "" {
		logger = logger.With("run_id", cfg.RunID)
	}

	slog.SetDefault(logger)
	return nil
}

// WithComponent returns the default logger with a component attribute.
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

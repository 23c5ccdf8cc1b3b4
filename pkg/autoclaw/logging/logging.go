// Package logging configures the slog logger used across AutoClaw.
// Log lines go to stdout and to a rotating plain-text file
// (lumberjack), one line per event, append-only.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger.
type Options struct {
	// Level is "debug", "info", "warn" or "error".
	Level string

	// Format is "text" or "json".
	Format string

	// File is the log file path. Empty disables file output.
	File string

	// MaxSizeMB is the size at which the log file rotates.
	MaxSizeMB int

	// MaxBackups is how many rotated files to keep.
	MaxBackups int
}

// New builds a slog.Logger from the options. The returned closer stops
// the file writer; it is a no-op when no file is configured.
func New(opts Options) (*slog.Logger, io.Closer) {
	level := parseLevel(opts.Level)

	var w io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    max(opts.MaxSizeMB, 1),
			MaxBackups: opts.MaxBackups,
		}
		w = io.MultiWriter(os.Stdout, rotator)
		closer = rotator
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler), closer
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

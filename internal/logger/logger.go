package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings for the daemon log file.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// FileConfig sends daemon logs to a rotated file instead of stderr.
// Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Path       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Config describes the daemon's own logging.
type Config struct {
	Level  string     `mapstructure:"level"`  // debug, info, warn, error
	Format string     `mapstructure:"format"` // text, json, color
	File   FileConfig `mapstructure:",squash"`
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New builds the daemon logger. Output goes to the configured file when one
// is set, otherwise to fallback. The returned closer releases the file.
func New(c Config, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}
	var (
		w      = fallback
		closer io.Closer = nopCloser{}
	)
	if w == nil {
		w = os.Stderr
	}
	if c.File.Path != "" {
		if err := os.MkdirAll(filepath.Dir(c.File.Path), 0o750); err != nil {
			return nil, nil, err
		}
		f := &lj.Logger{
			Filename:   c.File.Path,
			MaxSize:    valOr(c.File.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(c.File.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(c.File.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   c.File.Compress,
		}
		w, closer = f, f
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(c.Format) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "text":
		h = slog.NewTextHandler(w, opts)
	case "", "color":
		if c.File.Path != "" {
			// no escape codes in files
			h = slog.NewTextHandler(w, opts)
		} else {
			h = NewColorTextHandler(w, opts)
		}
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", c.Format)
	}
	return slog.New(h), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

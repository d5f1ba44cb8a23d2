package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/seisnet/cd11streams/config"
)

// setupLogger builds the process logger. When a log directory is
// configured, output also goes to a rotating file. The returned closer
// releases that file; the level can be changed later through the LevelVar.
func setupLogger(cfg config.LogsConfig, stdout io.Writer) (*slog.Logger, *slog.LevelVar, io.Closer, error) {
	format := cfg.Format
	if logFormat != "" {
		format = logFormat
	}

	lvl := new(slog.LevelVar)
	lvl.Set(effectiveLevel(cfg.Level))

	out := stdout
	var closer io.Closer = nopCloser{}
	if dir := cfg.File.Directory; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(dir, appName+".log"),
			MaxSize:    cfg.File.MaxSizeMB,
			MaxAge:     cfg.File.MaxAgeDays,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		}
		out = io.MultiWriter(stdout, rotator)
		closer = rotator
	}

	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl.Level() == slog.LevelDebug}
	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler).With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	), lvl, closer, nil
}

// effectiveLevel resolves the configured level, letting --log-level win.
func effectiveLevel(configured string) slog.Level {
	level := configured
	if logLevel != "" {
		level = logLevel
	}
	switch strings.ToLower(level) {
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

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Package logging sets up structured logging for cpctl: a slog.Logger
// writing JSON lines to a rotating file, with an optional stderr tee
// for interactive debugging. This plays the role the wider codebase's
// own ad hoc debug.Logf("...") calls play there, but grounded on the
// go.mod's gopkg.in/natefinch/lumberjack.v2 dependency, which the
// original only imported but never wired to an actual writer.
package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// FilePath is where rotated JSON log lines are written. Required.
	FilePath string
	// Verbose also tees human-readable logs to stderr at Debug level.
	Verbose bool
	// MaxSizeMB is the rotation threshold; defaults to 10 if zero.
	MaxSizeMB int
	// MaxBackups is how many rotated files to keep; defaults to 5.
	MaxBackups int
}

// New builds a logger writing JSON to a rotating file at
// opts.FilePath, additionally teeing to stderr when opts.Verbose.
func New(opts Options) (*slog.Logger, error) {
	if opts.FilePath == "" {
		return nil, errFilePathRequired
	}
	if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o750); err != nil {
		return nil, err
	}

	maxSize := opts.MaxSizeMB
	if maxSize == 0 {
		maxSize = 10
	}
	maxBackups := opts.MaxBackups
	if maxBackups == 0 {
		maxBackups = 5
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     28,
		Compress:   true,
	}

	level := slog.LevelInfo
	fileHandler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: level})

	if !opts.Verbose {
		return slog.New(fileHandler), nil
	}

	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(teeHandler{fileHandler, stderrHandler}), nil
}

var errFilePathRequired = &configError{"logging: FilePath is required"}

type configError struct{ msg string }

func (e *configError) Error() string { return e.msg }

// teeHandler fans every record out to two handlers at potentially
// different levels (the rotating file always gets Info+, stderr gets
// Debug+ only when verbose logging was requested).
type teeHandler struct {
	file   slog.Handler
	stderr slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.file.Enabled(ctx, level) || t.stderr.Enabled(ctx, level)
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	if t.file.Enabled(ctx, r.Level) {
		if err := t.file.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	if t.stderr.Enabled(ctx, r.Level) {
		if err := t.stderr.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{t.file.WithAttrs(attrs), t.stderr.WithAttrs(attrs)}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{t.file.WithGroup(name), t.stderr.WithGroup(name)}
}

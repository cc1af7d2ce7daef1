// Package log builds the virtpad slog logger and the raw frame logger.
//
// Without a log file, records below Error go to stdout and Error and up
// go to stderr, so redirecting stderr captures failures without the
// normal traffic. With a log file everything goes to the file and
// errors are mirrored to stderr.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace sits one step below Debug. At trace level the raw frame
// dump is enabled as well.
const LevelTrace slog.Level = slog.LevelDebug - 4

// ParseLevel maps a level name from config or VIRTPAD_LOG_LEVEL to its
// slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// splitHandler routes each record to exactly one of two handlers: below
// Error or Error and up.
type splitHandler struct {
	below slog.Handler
	errs  slog.Handler
}

func (s splitHandler) pick(level slog.Level) slog.Handler {
	if level >= slog.LevelError {
		return s.errs
	}
	return s.below
}

func (s splitHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return s.pick(level).Enabled(ctx, level)
}

func (s splitHandler) Handle(ctx context.Context, r slog.Record) error {
	return s.pick(r.Level).Handle(ctx, r)
}

func (s splitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return splitHandler{below: s.below.WithAttrs(attrs), errs: s.errs.WithAttrs(attrs)}
}

func (s splitHandler) WithGroup(name string) slog.Handler {
	return splitHandler{below: s.below.WithGroup(name), errs: s.errs.WithGroup(name)}
}

// teeHandler duplicates records to every handler that accepts them.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}

// SetupLogger builds the virtpad logger. An empty logFile selects the
// stdout/stderr split; otherwise the file receives everything and the
// returned closers own it.
func SetupLogger(logLevel, logFile string) (*slog.Logger, []io.Closer, error) {
	level, err := ParseLevel(logLevel)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if logFile == "" {
		h := splitHandler{
			below: slog.NewTextHandler(os.Stdout, opts),
			errs:  slog.NewTextHandler(os.Stderr, opts),
		}
		return slog.New(h), nil, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	fileHandler := slog.NewTextHandler(f, opts)
	h := splitHandler{
		below: fileHandler,
		errs: teeHandler{
			fileHandler,
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}),
		},
	}
	return slog.New(h), []io.Closer{f}, nil
}

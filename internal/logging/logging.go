package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	File  string
	Level string
	// Quiet disables the stderr sink, used while the TUI owns the terminal.
	Quiet bool
}

// Logger wraps the slog logger together with the rotating file it writes to.
type Logger struct {
	*slog.Logger
	file *lumberjack.Logger
}

func ParseLevel(level string) slog.Level {
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

func Setup(opts Options) (*Logger, error) {
	lvl := ParseLevel(opts.Level)

	if dir := filepath.Dir(opts.File); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}

	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    20, // MB
		MaxBackups: 3,
		MaxAge:     14, // days
	}
	handlers := []slog.Handler{
		tint.NewHandler(file, &tint.Options{
			Level:      lvl,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}),
	}

	if !opts.Quiet {
		handlers = append(handlers, tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: time.TimeOnly,
			NoColor:    !isatty.IsTerminal(os.Stderr.Fd()) || os.Getenv("NO_COLOR") != "",
		}))
	}

	return &Logger{Logger: slog.New(Fanout(handlers...)), file: file}, nil
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Discard returns a logger that drops everything, for tests and one-shot commands.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fanout []slog.Handler

// Fanout sends every record to all handlers that accept its level.
func Fanout(handlers ...slog.Handler) slog.Handler {
	return fanout(handlers)
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// Package logging builds the process logger from configuration.
//
// Output fans out to an optional console handler and optional rotated log
// files. Warnings and errors are additionally copied into their own file so
// they survive rotation of the chattier main log.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/siltdb/silt/internal/config"
)

var (
	closersMu sync.Mutex
	closers   []io.Closer
)

// Initialize builds the logger and installs it as slog's default.
func Initialize(cfg config.LoggingConfig) error {
	logger, err := New(cfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	slog.SetDefault(logger)
	slog.Info("logging initialized",
		"level", cfg.Level,
		"dir", cfg.Dir,
		"console", cfg.Console.Enabled,
		"file", cfg.File.Enabled,
	)
	return nil
}

// New creates a logger according to cfg. Writers opened here are closed by
// Shutdown.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	var handlers []slog.Handler

	if cfg.Console.Enabled {
		handlers = append(handlers,
			newHandler(os.Stdout, cfg.Console.Format, parseLevel(cfg.Console.Level)))
	}

	if cfg.File.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}

		main := fileWriter(cfg, "silt.log")
		handlers = append(handlers,
			newHandler(main, cfg.File.Format, parseLevel(cfg.File.Level)))

		errs := fileWriter(cfg, "errors.log")
		errHandler := newHandler(errs, cfg.File.Format, slog.LevelWarn)
		handlers = append(handlers, NewLevelFilter(errHandler, slog.LevelWarn))
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, nil)
	case 1:
		handler = handlers[0]
	default:
		handler = NewMultiHandler(handlers...)
	}

	if cfg.Dedup {
		dh := NewDedupHandler(handler)
		registerCloser(dh)
		handler = dh
	}

	return slog.New(handler), nil
}

func fileWriter(cfg config.LoggingConfig, name string) io.Writer {
	file := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, name),
		MaxSize:    cfg.Rotation.MaxSize,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAge,
		Compress:   cfg.Rotation.Compress,
	}
	if cfg.File.Async {
		// closing the async writer flushes and closes the file
		aw := NewAsyncWriter(file)
		registerCloser(aw)
		return aw
	}
	registerCloser(file)
	return file
}

func registerCloser(c io.Closer) {
	closersMu.Lock()
	defer closersMu.Unlock()
	closers = append(closers, c)
}

// Shutdown closes every writer opened since the last Shutdown, newest first
// so wrapping handlers flush before the files underneath them close.
func Shutdown() error {
	closersMu.Lock()
	defer closersMu.Unlock()

	var firstErr error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	closers = nil
	return firstErr
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

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "console":
		return NewConsoleHandler(w, opts)
	default:
		return slog.NewTextHandler(w, opts)
	}
}

package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siltdb/silt/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}

func TestNewHandlerFormats(t *testing.T) {
	assert.IsType(t, &slog.JSONHandler{}, newHandler(io.Discard, "json", slog.LevelInfo))
	assert.IsType(t, &slog.TextHandler{}, newHandler(io.Discard, "text", slog.LevelInfo))
	assert.IsType(t, &ConsoleHandler{}, newHandler(io.Discard, "console", slog.LevelInfo))
	assert.IsType(t, &slog.TextHandler{}, newHandler(io.Discard, "", slog.LevelInfo))
}

func TestNewLoggerWritesFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Dir:    dir,
		Console: config.ConsoleConfig{
			Enabled: false,
		},
		File: config.FileConfig{
			Enabled: true,
			Level:   "info",
			Format:  "text",
		},
	}
	cfg.ApplyDefaults()
	cfg.Console.Enabled = false

	logger, err := New(cfg)
	require.NoError(t, err)

	logger.Info("routine message", "collection", "people")
	logger.Error("something broke", "collection", "people")
	require.NoError(t, Shutdown())

	mainLog, err := os.ReadFile(filepath.Join(dir, "silt.log"))
	require.NoError(t, err)
	assert.Contains(t, string(mainLog), "routine message")
	assert.Contains(t, string(mainLog), "something broke")

	errLog, err := os.ReadFile(filepath.Join(dir, "errors.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(errLog), "routine message")
	assert.Contains(t, string(errLog), "something broke")
}

func TestNewLoggerAsyncFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LoggingConfig{
		Level: "info",
		Dir:   dir,
		File: config.FileConfig{
			Enabled: true,
			Async:   true,
		},
	}
	cfg.ApplyDefaults()
	cfg.Console.Enabled = false

	logger, err := New(cfg)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		logger.Info("buffered message", "seq", i)
	}
	require.NoError(t, Shutdown())

	mainLog, err := os.ReadFile(filepath.Join(dir, "silt.log"))
	require.NoError(t, err)
	assert.Equal(t, 50, strings.Count(string(mainLog), "buffered message"))
}

func TestNewLoggerConsoleOnlySkipsDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never-created")
	cfg := config.LoggingConfig{
		Level: "info",
		Dir:   dir,
		Console: config.ConsoleConfig{
			Enabled: true,
			Format:  "text",
		},
	}

	_, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, Shutdown())

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestShutdownTwice(t *testing.T) {
	require.NoError(t, Shutdown())
	require.NoError(t, Shutdown())
}

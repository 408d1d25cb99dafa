package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func consoleRecord(msg string, attrs ...slog.Attr) slog.Record {
	ts := time.Date(2024, 1, 19, 10, 30, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, msg, 0)
	r.AddAttrs(attrs...)
	return r
}

func TestConsoleHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, nil)

	r := consoleRecord("statement executed",
		slog.String("collection", "people"),
		slog.Int("matched", 3),
	)
	require.NoError(t, h.Handle(context.Background(), r))

	assert.Equal(t,
		"2024-01-19T10:30:00Z: [INFO] statement executed collection=people matched=3\n",
		buf.String())
}

func TestConsoleHandlerQuotesStrings(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, nil)

	r := consoleRecord("done", slog.String("name", "two words"))
	require.NoError(t, h.Handle(context.Background(), r))
	assert.Contains(t, buf.String(), `name="two words"`)
}

func TestConsoleHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	var h slog.Handler = NewConsoleHandler(&buf, nil)
	h = h.WithAttrs([]slog.Attr{slog.String("backend", "memory")})
	h = h.WithGroup("run")

	r := consoleRecord("committed", slog.Int("updated", 2))
	require.NoError(t, h.Handle(context.Background(), r))

	out := buf.String()
	assert.Contains(t, out, "run.backend=memory")
	assert.Contains(t, out, "run.updated=2")
}

func TestConsoleHandlerLevel(t *testing.T) {
	h := NewConsoleHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestConsoleHandlerBool(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, nil)
	r := consoleRecord("flags", slog.Bool("dry_run", true), slog.Duration("took", 1500*time.Millisecond))
	require.NoError(t, h.Handle(context.Background(), r))
	assert.Contains(t, buf.String(), "dry_run=true")
	assert.Contains(t, buf.String(), "took=1.5s")
}

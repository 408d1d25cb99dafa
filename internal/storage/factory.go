package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/siltdb/silt/internal/storage/memory"
	"github.com/siltdb/silt/internal/storage/sqlite"
)

// New creates the backend selected by cfg. A nil logger uses slog.Default.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Backend, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case TypeMemory:
		return memory.New(logger)
	case TypeSQLite:
		return sqlite.New(ctx, cfg.Path, logger)
	default:
		return nil, fmt.Errorf("storage: unknown backend type %q", cfg.Type)
	}
}

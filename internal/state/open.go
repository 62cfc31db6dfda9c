package state

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		return NewFileStore(cfg.Dir, cfg.DefaultValue, logger)
	case BackendSQLite:
		return NewSQLiteStore(cfg.Path, cfg.DefaultValue, logger)
	case BackendPostgres:
		return NewPostgresStore(ctx, cfg.URL, cfg.DefaultValue, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

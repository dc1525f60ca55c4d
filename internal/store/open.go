package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nhle/studio-pratiche/internal/model"
)

// Open returns the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg model.StoreConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
		s, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		s.SetLogger(logger)
		return s, nil
	case "firestore":
		return NewFirestoreStore(ctx, cfg.FirestoreProject, cfg.Collection, logger)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

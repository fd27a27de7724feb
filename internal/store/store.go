package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ppiankov/boardharvest/internal/model"
)

// Store loads and saves board collections
type Store interface {
	// Load returns the stored collection, or an empty one if nothing is stored yet
	Load(ctx context.Context, board string) (*Collection, error)
	// Save atomically replaces the stored content of the collection's board.
	// It must complete even when ctx is already cancelled so interrupted runs can flush.
	Save(ctx context.Context, c *Collection) error
	Close() error
}

// BoardLister is implemented by stores that can enumerate stored boards
type BoardLister interface {
	Boards(ctx context.Context) ([]string, error)
}

// Open creates the store backend selected in cfg
func Open(cfg model.StoreConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	switch cfg.Backend {
	case model.BackendJSON, "":
		return NewJSONStore(cfg.Dir, logger)
	case model.BackendSQLite:
		return NewSQLiteStore(cfg.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Status loads board from s and returns its counts
func Status(ctx context.Context, s Store, board string) (model.BoardStatus, error) {
	c, err := s.Load(ctx, board)
	if err != nil {
		return model.BoardStatus{}, fmt.Errorf("load %s: %w", board, err)
	}
	return c.Status(), nil
}

// Boards lists the boards held by s
func Boards(ctx context.Context, s Store) ([]string, error) {
	lister, ok := s.(BoardLister)
	if !ok {
		return nil, errors.New("store cannot list boards")
	}
	return lister.Boards(ctx)
}

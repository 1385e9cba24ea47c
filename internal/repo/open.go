package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xo/dburl"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemon/internal/repo/memory"
	"github.com/hamed0406/uptimemon/internal/repo/postgres"
	"github.com/hamed0406/uptimemon/internal/repo/sqlstore"
)

var ErrUnsupportedScheme = errors.New("unsupported database scheme")

// Open picks a backend from a database URL. An empty URL keeps history in
// memory; postgres, mysql and sqlite URLs persist it.
func Open(ctx context.Context, uri string, limit int, logger *zap.Logger) (OutcomeStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(uri) == "" {
		logger.Info("history_store", zap.String("backend", "memory"), zap.Int("limit", limit))
		return memory.New(limit), nil
	}

	u, err := dburl.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}

	var store OutcomeStore
	switch u.Driver {
	case "postgres", "pgx":
		store, err = postgres.New(ctx, uri, limit, logger)
	case "mysql":
		store, err = sqlstore.Open(ctx, "mysql", u.DSN, limit)
	case "sqlite3", "sqlite", "moderncsqlite":
		store, err = sqlstore.Open(ctx, "sqlite", u.DSN, limit)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s history: %w", u.Driver, err)
	}
	logger.Info("history_store",
		zap.String("backend", u.Driver),
		zap.String("host", u.Host),
		zap.Int("limit", limit),
	)
	return store, nil
}

package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/internal/config"
)

// Open waits for Redis and opens the SQLite progress database.
func Open(ctx context.Context, rdb *redis.Client, cfg *config.Config, log *slog.Logger) (*Store, error) {
	sessions := NewRedisSessions(rdb, cfg.SessionTTL, log)
	if err := sessions.WaitForConnection(ctx); err != nil {
		return nil, err
	}
	progress, err := NewSQLite(cfg.DBPath, cfg.SkipBudget)
	if err != nil {
		return nil, fmt.Errorf("failed to open progress database: %w", err)
	}
	return New(sessions, progress), nil
}

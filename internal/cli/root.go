// Package cli implements the questctl operator commands.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/quest-engine/internal/config"
	"github.com/jwebster45206/quest-engine/internal/services/queue"
)

var (
	catalogPath string
	dbPath      string
	redisURL    string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "questctl",
	Short:         "Operate a quest deployment",
	Long:          "Validate quest catalogs, export participant reports, show statistics and inject test messages.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "Catalog path (default: $CATALOG_PATH)")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Progress database path (default: $DB_PATH)")
	RootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis URL (default: $REDIS_URL)")
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if catalogPath != "" {
		cfg.CatalogPath = catalogPath
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if redisURL != "" {
		cfg.RedisURL = redisURL
	}
	return cfg, nil
}

// quietLogger keeps library logging out of command output.
func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func connectRedis(ctx context.Context, cfg *config.Config) (*queue.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	c, err := queue.NewClient(ctx, cfg.RedisURL, quietLogger())
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return c, nil
}

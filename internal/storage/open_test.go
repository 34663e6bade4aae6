package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/internal/config"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &config.Config{
		DBPath:     filepath.Join(t.TempDir(), "progress.db"),
		SkipBudget: 2,
		SessionTTL: time.Hour,
	}
	ctx := context.Background()

	store, err := Open(ctx, rdb, cfg, slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(ctx))

	p, err := store.GetOrCreate(ctx, quest.Identity{ID: "7"})
	require.NoError(t, err)
	assert.Equal(t, 2, p.SkipBudget)

	require.NoError(t, store.SaveSession(ctx, &quest.Session{UserID: "7", ChatID: "7", State: quest.Finished()}))
	assert.Equal(t, time.Hour, mr.TTL("session:7:7"))
}

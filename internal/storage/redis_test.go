package storage

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/pkg/quest"
)

func setupTestRedis(t *testing.T) (*RedisSessions, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewRedisSessions(client, time.Hour, logger), mr
}

func TestRedisSessions_RoundTrip(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	got, err := store.LoadSession(ctx, "7", "9")
	require.NoError(t, err)
	assert.Nil(t, got)

	s := &quest.Session{
		UserID:        "7",
		ChatID:        "9",
		State:         quest.AtWaypoint("chapel"),
		LastMessageID: "104",
		UpdatedAt:     time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveSession(ctx, s))

	raw, err := mr.Get("session:7:9")
	require.NoError(t, err)
	assert.Contains(t, raw, `"state":"at:chapel"`)
	assert.Equal(t, time.Hour, mr.TTL("session:7:9"))

	got, err = store.LoadSession(ctx, "7", "9")
	require.NoError(t, err)
	assert.Equal(t, s, got)

	require.NoError(t, store.DeleteSession(ctx, "7", "9"))
	got, err = store.LoadSession(ctx, "7", "9")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSessions_Expiry(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, &quest.Session{UserID: "1", ChatID: "1", State: quest.Finished()}))
	mr.FastForward(2 * time.Hour)

	got, err := store.LoadSession(ctx, "1", "1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSessions_CorruptValue(t *testing.T) {
	store, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("session:1:1", `{"state":"bogus"}`))

	got, err := store.LoadSession(context.Background(), "1", "1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSessions_Unavailable(t *testing.T) {
	store, mr := setupTestRedis(t)
	mr.Close()

	_, err := store.LoadSession(context.Background(), "1", "1")
	assert.Error(t, err)
	assert.Error(t, store.Ping(context.Background()))
}

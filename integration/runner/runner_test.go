package runner

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/internal/handlers"
	"github.com/jwebster45206/quest-engine/internal/services/events"
	"github.com/jwebster45206/quest-engine/internal/services/queue"
	"github.com/jwebster45206/quest-engine/internal/storage"
	"github.com/jwebster45206/quest-engine/internal/transport"
	"github.com/jwebster45206/quest-engine/internal/worker"
	"github.com/jwebster45206/quest-engine/pkg/content"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// startStack runs the API router and one worker in process against miniredis.
func startStack(t *testing.T) string {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	catalog, err := content.Load("../../data/quest.yaml")
	require.NoError(t, err)

	sessions := storage.NewRedisSessions(rdb, time.Hour, logger)
	progress, err := storage.NewSQLite(filepath.Join(t.TempDir(), "progress.db"), quest.DefaultSkipBudget)
	require.NoError(t, err)
	t.Cleanup(func() { _ = progress.Close() })
	store := storage.New(sessions, progress)

	broadcaster := events.NewBroadcaster(rdb, logger)
	machine, err := quest.New(quest.Config{
		Catalog:  catalog,
		Sessions: store,
		Progress: store,
		Sender:   transport.Router{quest.ChannelWeb: broadcaster},
		Logger:   logger,
	})
	require.NoError(t, err)

	inbound := queue.NewInboundQueue(queue.NewClientFromRedis(rdb, logger))
	w := worker.New(inbound, machine, broadcaster, rdb, logger, "test-worker")
	go func() { _ = w.Start() }()
	t.Cleanup(w.Stop)

	srv := httptest.NewServer(handlers.NewRouter(handlers.Routes{
		Health:    handlers.NewHealthHandler(nil, logger),
		Messages:  handlers.NewMessagesHandler(inbound, logger),
		WebSocket: handlers.NewWSHandler(rdb, inbound, nil, logger),
	}, logger))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestRunSuite_CemeteryWalk(t *testing.T) {
	baseURL := startStack(t)

	jobs, err := LoadTestSuiteWithExpansion("../cases/all.yaml", "../cases")
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	r := NewRunner(baseURL)
	r.Timeout = 10 * time.Second
	r.Quiet = 300 * time.Millisecond
	r.ErrorHandlingMode = ErrorHandlingExit

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	result, err := r.RunSuite(ctx, jobs[0].Suite)
	require.NoError(t, err)
	for _, step := range result.Results {
		assert.True(t, step.Success, "%s: %v", step.StepName, step.Error)
	}
	assert.Len(t, result.Results, len(jobs[0].Suite.Steps))
}

func TestCheckExpectations(t *testing.T) {
	text := content.Text("Skips left: 3")
	msgs := []events.Event{{
		Type:    events.EventTypeMessage,
		Item:    &text,
		Options: &quest.SendOptions{Keyboard: []string{"Skip question"}},
	}}
	two := 2
	removed := true

	assert.NoError(t, checkExpectations(Expectations{ResponseContains: []string{"skips LEFT"}, Keyboard: []string{"Skip question"}}, msgs))
	assert.NoError(t, checkExpectations(Expectations{ResponseRegex: `left: \d`, Kinds: []string{"text"}}, msgs))
	assert.Error(t, checkExpectations(Expectations{ResponseNotContains: []string{"skips"}}, msgs))
	assert.Error(t, checkExpectations(Expectations{MinMessages: &two}, msgs))
	assert.Error(t, checkExpectations(Expectations{KeyboardRemoved: &removed}, msgs))
	assert.Error(t, checkExpectations(Expectations{Kinds: []string{"photo"}}, msgs))
}

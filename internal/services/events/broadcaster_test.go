package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/pkg/content"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

func TestBroadcaster_Send(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	b := NewBroadcaster(client, logger)
	ctx := context.Background()

	sub := client.Subscribe(ctx, Channel("chat-1"))
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	err = b.Send(ctx, quest.Chat{Channel: quest.ChannelWeb, ID: "chat-1"},
		content.Photo("chapel.jpg", "Look up"), quest.SendOptions{Keyboard: []string{"Skip question"}})
	require.NoError(t, err)

	select {
	case msg := <-sub.Channel():
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, EventTypeMessage, ev.Type)
		assert.Equal(t, "chat-1", ev.ChatID)
		require.NotNil(t, ev.Item)
		assert.Equal(t, content.KindPhoto, ev.Item.Kind)
		assert.Equal(t, "chapel.jpg", ev.Item.FileID)
		assert.Equal(t, []string{"Skip question"}, ev.Options.Keyboard)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

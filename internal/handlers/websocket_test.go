package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/internal/services/events"
	"github.com/jwebster45206/quest-engine/internal/services/queue"
	"github.com/jwebster45206/quest-engine/pkg/content"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

func setupWS(t *testing.T, origins []string) (*httptest.Server, *redis.Client, *queue.InboundQueue) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	q := queue.NewInboundQueue(queue.NewClientFromRedis(rdb, testLogger()))

	srv := httptest.NewServer(NewWSHandler(rdb, q, origins, testLogger()))
	t.Cleanup(srv.Close)
	return srv, rdb, q
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
}

func TestWSHandler_RoundTrip(t *testing.T) {
	srv, rdb, q := setupWS(t, nil)
	ctx := context.Background()
	sessionID := "5f0c6a8e-1d2b-4c3a-9e8f-7a6b5c4d3e2f"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?session_id="+sessionID), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var status WSStatus
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "connected", status.Type)
	assert.Equal(t, sessionID, status.SessionID)

	require.NoError(t, conn.WriteJSON(WSIncoming{Text: "lion", FirstName: "Ann"}))

	req, err := q.BlockingDequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, quest.ChannelWeb, req.Message.Channel)
	assert.Equal(t, sessionID, req.Message.UserID)
	assert.Equal(t, sessionID, req.Message.ChatID)
	assert.Equal(t, "lion", req.Message.Text)
	assert.Equal(t, "Ann", req.Message.User.FirstName)
	assert.NotEmpty(t, req.Message.MessageID)

	b := events.NewBroadcaster(rdb, testLogger())
	require.NoError(t, b.Send(ctx, quest.Chat{Channel: quest.ChannelWeb, ID: sessionID}, content.Text("Correct!"), quest.SendOptions{}))

	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.EventTypeMessage, ev.Type)
	require.NotNil(t, ev.Item)
	assert.Equal(t, "Correct!", ev.Item.Text)
}

func TestWSHandler_GeneratesSessionAndRejectsBadJSON(t *testing.T) {
	srv, _, q := setupWS(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?session_id=not-a-uuid"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var status WSStatus
	require.NoError(t, conn.ReadJSON(&status))
	assert.NotEqual(t, "not-a-uuid", status.SessionID)
	assert.Len(t, status.SessionID, 36)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{bad")))
	var reply WSStatus
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)

	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestWSHandler_CheckOrigin(t *testing.T) {
	srv, _, _ := setupWS(t, []string{"https://quest.example"})

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://quest.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.NoError(t, err)
	defer conn.Close()

	var status WSStatus
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "connected", status.Type)
}

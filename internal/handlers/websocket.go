package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/internal/services/events"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// WSIncoming is a message typed by a web chat user.
type WSIncoming struct {
	Text      string `json:"text"`
	FirstName string `json:"first_name,omitempty"`
}

// WSStatus is written by the handler itself, next to forwarded chat events.
type WSStatus struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
}

// WSHandler is the web chat transport. Each connection is one user whose id
// is the session id; outbound events arrive over Redis pub/sub.
type WSHandler struct {
	rdb            *redis.Client
	queue          Enqueuer
	allowedOrigins map[string]bool
	logger         *slog.Logger
	upgrader       websocket.Upgrader
}

func NewWSHandler(rdb *redis.Client, q Enqueuer, allowedOrigins []string, logger *slog.Logger) *WSHandler {
	origins := make(map[string]bool)
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	h := &WSHandler{rdb: rdb, queue: q, allowedOrigins: origins, logger: logger}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // allow non-browser clients
	}
	return h.allowedOrigins[origin]
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sessionID := r.URL.Query().Get("session_id")
	if _, err := uuid.Parse(sessionID); err != nil {
		sessionID = uuid.New().String()
	}
	log := h.logger.With("session_id", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	pubsub := h.rdb.Subscribe(ctx, events.Channel(sessionID))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Error("Failed to subscribe to chat events", "error", err)
		return
	}

	writes := make(chan []byte, 16)
	writes <- mustJSON(WSStatus{Type: "connected", SessionID: sessionID})

	// Single writer goroutine; gorilla connections allow one concurrent writer.
	go func() {
		ch := pubsub.Channel()
		for {
			var payload []byte
			select {
			case <-ctx.Done():
				return
			case payload = <-writes:
			case msg, ok := <-ch:
				if !ok {
					return
				}
				payload = []byte(msg.Payload)
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug("Failed to write to WebSocket", "error", err)
				cancel()
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("WebSocket closed unexpectedly", "error", err)
			}
			return
		}

		var incoming WSIncoming
		if err := json.Unmarshal(data, &incoming); err != nil {
			h.reply(ctx, writes, WSStatus{Type: "error", Text: "Invalid message format. Send JSON with a 'text' field."})
			continue
		}

		_, err = h.queue.Enqueue(ctx, quest.Inbound{
			Channel:   quest.ChannelWeb,
			UserID:    sessionID,
			ChatID:    sessionID,
			MessageID: ulid.Make().String(),
			Text:      incoming.Text,
			User:      quest.Identity{ID: sessionID, FirstName: incoming.FirstName},
		})
		if err != nil {
			log.Error("Failed to enqueue message", "error", err)
			h.reply(ctx, writes, WSStatus{Type: "error", Text: "Sorry, your message could not be delivered. Please try again."})
		}
	}
}

func (h *WSHandler) reply(ctx context.Context, writes chan<- []byte, s WSStatus) {
	select {
	case writes <- mustJSON(s):
	case <-ctx.Done():
	}
}

func mustJSON(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}

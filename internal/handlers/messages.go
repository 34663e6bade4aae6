package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/quest-engine/pkg/queue"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// Enqueuer accepts inbound messages for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg quest.Inbound) (*queue.Request, error)
}

// MessageRequest is the body of POST /v1/messages.
type MessageRequest struct {
	Channel   quest.Channel  `json:"channel,omitempty"`
	UserID    string         `json:"user_id"`
	ChatID    string         `json:"chat_id,omitempty"`
	MessageID string         `json:"message_id,omitempty"`
	Text      string         `json:"text"`
	User      quest.Identity `json:"user,omitempty"`
}

type MessageResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MessagesHandler queues messages from external transports.
type MessagesHandler struct {
	queue  Enqueuer
	logger *slog.Logger
}

func NewMessagesHandler(q Enqueuer, logger *slog.Logger) *MessagesHandler {
	return &MessagesHandler{queue: q, logger: logger}
}

func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		writeJSON(w, http.StatusBadRequest, MessageResponse{Error: "Invalid request body. Expected JSON with 'user_id' and 'text' fields."})
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Error: "user_id is required."})
		return
	}
	if req.Channel == "" {
		req.Channel = quest.ChannelWeb
	}
	if req.ChatID == "" {
		req.ChatID = req.UserID
	}
	req.User.ID = req.UserID

	queued, err := h.queue.Enqueue(r.Context(), quest.Inbound{
		Channel:   req.Channel,
		UserID:    req.UserID,
		ChatID:    req.ChatID,
		MessageID: req.MessageID,
		Text:      req.Text,
		User:      req.User,
	})
	if err != nil {
		h.logger.Error("Failed to enqueue message", "user_id", req.UserID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, MessageResponse{Error: "Message could not be queued. Please retry."})
		return
	}

	h.logger.Debug("Message queued", "request_id", queued.RequestID, "user_id", req.UserID)
	writeJSON(w, http.StatusAccepted, MessageResponse{RequestID: queued.RequestID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

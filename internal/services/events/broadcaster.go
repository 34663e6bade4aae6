package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/pkg/content"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeRequestQueued EventType = "request.queued"
	EventTypeMessage       EventType = "chat.message"
	EventTypeRequestFailed EventType = "request.failed"
)

// Event is what web chat clients receive over the websocket.
type Event struct {
	Type      EventType          `json:"type"`
	ChatID    string             `json:"chat_id"`
	RequestID string             `json:"request_id,omitempty"`
	Item      *content.Item      `json:"item,omitempty"`
	Options   *quest.SendOptions `json:"options,omitempty"`
	Error     string             `json:"error,omitempty"`
	SentAt    time.Time          `json:"sent_at"`
}

// Channel returns the pub/sub channel for a chat.
func Channel(chatID string) string {
	return "chat-events:" + chatID
}

// Broadcaster publishes chat events to Redis Pub/Sub. It is the outbound
// transport of the web channel.
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

var _ quest.Sender = (*Broadcaster)(nil)

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Send publishes one content item to the chat's channel.
func (b *Broadcaster) Send(ctx context.Context, chat quest.Chat, item content.Item, opts quest.SendOptions) error {
	return b.publish(ctx, Event{
		Type:    EventTypeMessage,
		ChatID:  chat.ID,
		Item:    &item,
		Options: &opts,
	})
}

// PublishRequestQueued tells the client its message was accepted.
func (b *Broadcaster) PublishRequestQueued(ctx context.Context, chatID, requestID string) error {
	return b.publish(ctx, Event{Type: EventTypeRequestQueued, ChatID: chatID, RequestID: requestID})
}

// PublishRequestFailed tells the client its message could not be processed.
func (b *Broadcaster) PublishRequestFailed(ctx context.Context, chatID, requestID, errorMsg string) error {
	return b.publish(ctx, Event{Type: EventTypeRequestFailed, ChatID: chatID, RequestID: requestID, Error: errorMsg})
}

func (b *Broadcaster) publish(ctx context.Context, event Event) error {
	event.SentAt = time.Now().UTC()
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := Channel(event.ChatID)
	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "channel", channel, "type", event.Type, "error", err)
		return fmt.Errorf("failed to publish event: %w", err)
	}
	b.logger.Debug("Published event", "channel", channel, "type", event.Type)
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// RedisSessions keeps conversation sessions in Redis as JSON values under
// "session:{user}:{chat}". Every save refreshes the TTL.
type RedisSessions struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewRedisSessions wraps an existing client. A zero ttl keeps sessions forever.
func NewRedisSessions(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisSessions {
	return &RedisSessions{client: client, logger: logger, ttl: ttl}
}

func sessionKey(userID, chatID string) string {
	return "session:" + userID + ":" + chatID
}

func (r *RedisSessions) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisSessions) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisSessions) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

func (r *RedisSessions) LoadSession(ctx context.Context, userID, chatID string) (*quest.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(userID, chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to load session", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s quest.Session
	if err := json.Unmarshal(data, &s); err != nil {
		// An unreadable session is treated like a missing one so the user is reset.
		r.logger.Warn("Discarding unreadable session", "user_id", userID, "error", err)
		return nil, nil
	}
	return &s, nil
}

func (r *RedisSessions) SaveSession(ctx context.Context, s *quest.Session) error {
	if s == nil {
		return errors.New("session cannot be nil")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(s.UserID, s.ChatID), data, r.ttl).Err(); err != nil {
		r.logger.Error("Failed to save session", "user_id", s.UserID, "error", err)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisSessions) DeleteSession(ctx context.Context, userID, chatID string) error {
	if err := r.client.Del(ctx, sessionKey(userID, chatID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

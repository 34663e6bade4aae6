package storage

import (
	"context"

	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// Storage combines the session and progress stores the quest machine needs
// with health and lifecycle operations.
type Storage interface {
	Ping(ctx context.Context) error
	Close() error

	quest.SessionStore
	quest.ProgressStore
	quest.StatsProvider

	// List returns every progress record, most recently started first.
	List(ctx context.Context) ([]*quest.UserProgress, error)
}

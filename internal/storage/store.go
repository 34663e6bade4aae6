package storage

import (
	"context"
	"errors"

	"github.com/jwebster45206/quest-engine/pkg/quest"
	pkgstorage "github.com/jwebster45206/quest-engine/pkg/storage"
)

// Store pairs Redis sessions with SQLite progress.
type Store struct {
	*RedisSessions
	*SQLiteProgress
}

var _ pkgstorage.Storage = (*Store)(nil)

// New combines the two backends into one Storage.
func New(sessions *RedisSessions, progress *SQLiteProgress) *Store {
	return &Store{RedisSessions: sessions, SQLiteProgress: progress}
}

func (s *Store) Ping(ctx context.Context) error {
	return errors.Join(s.RedisSessions.Ping(ctx), s.SQLiteProgress.Ping(ctx))
}

func (s *Store) Close() error {
	return errors.Join(s.RedisSessions.Close(), s.SQLiteProgress.Close())
}

func (s *Store) List(ctx context.Context) ([]*quest.UserProgress, error) {
	return s.SQLiteProgress.List(ctx)
}

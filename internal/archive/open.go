package archive

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/internal/config"
)

// Open builds the backend selected by cfg. rdb is only used by the redis
// backend and may be nil otherwise.
func Open(ctx context.Context, cfg config.ArchiveConfig, rdb *redis.Client) (Store, error) {
	switch cfg.Backend {
	case config.ArchiveFS:
		return NewFSStore(cfg.Dir)
	case config.ArchiveRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis archive backend needs a redis client")
		}
		return NewRedisStore(rdb), nil
	case config.ArchiveS3:
		s, err := NewS3Store(S3Config{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx, cfg.Region); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}

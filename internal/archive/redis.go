package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "archive:"

// RedisStore keeps objects as JSON envelopes under "archive:{key}".
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

var _ Store = (*RedisStore)(nil)

type envelope struct {
	Body       []byte    `json:"body"`
	ModifiedAt time.Time `json:"modified_at"`
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) encode(body []byte) ([]byte, error) {
	return json.Marshal(envelope{Body: body, ModifiedAt: s.now().UTC()})
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, key string, body []byte) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	data, err := s.encode(body)
	if err != nil {
		return false, err
	}
	created, err := s.client.SetNX(ctx, redisPrefix+key, data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return created, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, body []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	data, err := s.encode(body)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, key string) (*envelope, error) {
	data, err := s.client.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &env, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	env, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	return env.Body, nil
}

func (s *RedisStore) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	iter := s.client.Scan(ctx, 0, redisPrefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), redisPrefix)
		env, err := s.load(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Object{Key: key, ModifiedAt: env.ModifiedAt, Size: int64(len(env.Body))})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", prefix, err)
	}
	return out, nil
}

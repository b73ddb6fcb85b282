package sharing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "share:"

// RedisStore keeps share tokens as Redis keys with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Create(ctx context.Context, userID int64) (Share, error) {
	share := Share{Token: newToken(), UserID: userID, ExpiresAt: time.Now().Add(s.ttl).UTC()}
	value, err := json.Marshal(share)
	if err != nil {
		return Share{}, fmt.Errorf("failed to encode share: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+share.Token, value, s.ttl).Err(); err != nil {
		return Share{}, fmt.Errorf("failed to store share token: %w", err)
	}
	return share, nil
}

func (s *RedisStore) Resolve(ctx context.Context, token string) (Share, error) {
	value, err := s.client.Get(ctx, keyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return Share{}, ErrTokenNotFound
	}
	if err != nil {
		return Share{}, fmt.Errorf("failed to read share token: %w", err)
	}
	var share Share
	if err := json.Unmarshal(value, &share); err != nil {
		return Share{}, fmt.Errorf("failed to decode share token: %w", err)
	}
	return share, nil
}

func (s *RedisStore) Revoke(ctx context.Context, token string) error {
	n, err := s.client.Del(ctx, keyPrefix+token).Result()
	if err != nil {
		return fmt.Errorf("failed to delete share token: %w", err)
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

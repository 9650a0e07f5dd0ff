package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrEmailCacheMiss    = errors.New("email cache miss")
	ErrEmailCacheBackend = errors.New("email cache backend unavailable")
)

// EmailCacheStore keeps the last email a sign-in or enrollment used. It never
// stores a session handle.
type EmailCacheStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewEmailCacheStore(redisClient redis.UniversalClient, prefix string) *EmailCacheStore {
	if prefix == "" {
		prefix = "sae"
	}
	return &EmailCacheStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *EmailCacheStore) key() string {
	return s.prefix + ":last_email"
}

func (s *EmailCacheStore) Remember(ctx context.Context, email string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(), email, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrEmailCacheBackend, err)
	}
	return nil
}

func (s *EmailCacheStore) Recall(ctx context.Context) (string, error) {
	email, err := s.redis.Get(ctx, s.key()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrEmailCacheMiss
		}
		return "", fmt.Errorf("%w: %v", ErrEmailCacheBackend, err)
	}
	return email, nil
}

func (s *EmailCacheStore) Forget(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrEmailCacheBackend, err)
	}
	return nil
}

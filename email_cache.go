package stepAuth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/stepAuth/internal/stores"
	"github.com/redis/go-redis/v9"
)

// ErrEmailNotCached is returned by EmailCache.Recall when nothing is cached.
var ErrEmailNotCached = errors.New("email not cached")

// EmailCache is the best-effort store of the last email used. It is never
// authoritative and never holds a session handle. The engine logs its
// failures and carries on.
type EmailCache interface {
	Remember(ctx context.Context, email string) error
	Recall(ctx context.Context) (string, error)
	Forget(ctx context.Context) error
}

type redisEmailCache struct {
	store *stores.EmailCacheStore
	ttl   time.Duration
}

// NewRedisEmailCache stores the last email under <prefix>:last_email.
func NewRedisEmailCache(client redis.UniversalClient, prefix string, ttl time.Duration) EmailCache {
	return &redisEmailCache{
		store: stores.NewEmailCacheStore(client, prefix),
		ttl:   ttl,
	}
}

func (c *redisEmailCache) Remember(ctx context.Context, email string) error {
	return c.store.Remember(ctx, email, c.ttl)
}

func (c *redisEmailCache) Recall(ctx context.Context) (string, error) {
	email, err := c.store.Recall(ctx)
	if errors.Is(err, stores.ErrEmailCacheMiss) {
		return "", ErrEmailNotCached
	}
	return email, err
}

func (c *redisEmailCache) Forget(ctx context.Context) error {
	return c.store.Forget(ctx)
}

// MemoryEmailCache keeps the last email in process memory.
type MemoryEmailCache struct {
	mu    sync.Mutex
	email string
}

func NewMemoryEmailCache() *MemoryEmailCache {
	return &MemoryEmailCache{}
}

func (c *MemoryEmailCache) Remember(_ context.Context, email string) error {
	c.mu.Lock()
	c.email = email
	c.mu.Unlock()
	return nil
}

func (c *MemoryEmailCache) Recall(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.email == "" {
		return "", ErrEmailNotCached
	}
	return c.email, nil
}

func (c *MemoryEmailCache) Forget(context.Context) error {
	c.mu.Lock()
	c.email = ""
	c.mu.Unlock()
	return nil
}

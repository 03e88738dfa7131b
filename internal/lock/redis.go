package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisTTL bounds how long a crashed runner can hold the lock.
const DefaultRedisTTL = 10 * time.Minute

// DefaultRedisKey is the key automation runs contend on.
const DefaultRedisKey = "shoppipe:automation:lock"

// redisStore is the command surface RedisLock needs.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock is a Locker shared by every runner pointed at the same Redis.
type RedisLock struct {
	mu     sync.Mutex
	client redisStore
	key    string
	ttl    time.Duration
	owner  string
}

// NewRedisLock constructs a Redis-backed lock. A zero ttl uses DefaultRedisTTL.
func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

// NewRedisLockFromURL dials redisURL and returns a lock on DefaultRedisKey.
func NewRedisLockFromURL(ctx context.Context, redisURL string) (*RedisLock, *redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis url: %w", err)
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		raw.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	l, err := NewRedisLock(goRedisStore{raw}, DefaultRedisKey, DefaultRedisTTL)
	if err != nil {
		raw.Close()
		return nil, nil, err
	}
	return l, raw, nil
}

// Acquire tries to own the key for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release deletes the key only while this lock still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == "" {
		return nil
	}
	value, err := l.client.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			l.owner = ""
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != l.owner {
		l.owner = ""
		return nil
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	l.owner = ""
	return nil
}

// goRedisStore adapts *redis.Client to redisStore.
type goRedisStore struct {
	c *redis.Client
}

func (s goRedisStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	return s.c.SetNX(ctx, key, value, ttl).Result()
}

func (s goRedisStore) Get(ctx context.Context, key string) (string, error) {
	return s.c.Get(ctx, key).Result()
}

func (s goRedisStore) Del(ctx context.Context, keys ...string) error {
	return s.c.Del(ctx, keys...).Err()
}

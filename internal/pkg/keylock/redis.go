package keylock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefix for attendance locks
	redisKeyPrefix = "attendance:lock:"

	defaultRetryInterval = 50 * time.Millisecond
)

// releaseScript deletes the key only if it still carries our token, so an
// expired lease taken over by another holder is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by SET NX PX leases, shared by every replica
// pointing at the same Redis.
type Redis struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithRetryInterval sets how often Lock polls a held key.
func WithRetryInterval(d time.Duration) RedisOption {
	return func(r *Redis) {
		r.retryInterval = d
	}
}

// NewRedis builds a Redis locker. ttl bounds how long a crashed holder can
// keep a key.
func NewRedis(client *redis.Client, ttl time.Duration, opts ...RedisOption) *Redis {
	r := &Redis{
		client:        client,
		ttl:           ttl,
		retryInterval: defaultRetryInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) acquire(ctx context.Context, key, token string) (bool, error) {
	ok, err := r.client.SetNX(ctx, redisKeyPrefix+key, token, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock %s: %w", key, err)
	}
	return ok, nil
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ticker := time.NewTicker(r.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := r.acquire(ctx, key, token)
		if err != nil {
			return nil, err
		}
		if ok {
			return r.unlocker(key, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Redis) TryLock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ok, err := r.acquire(ctx, key, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return r.unlocker(key, token), nil
}

func (r *Redis) unlocker(key, token string) func() {
	return func() {
		// Release must outlive a cancelled request context.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := releaseScript.Run(ctx, r.client, []string{redisKeyPrefix + key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			slog.Warn("Failed to release redis lock", "key", key, "error", err)
		}
	}
}

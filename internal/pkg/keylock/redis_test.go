package keylock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestRedis_TryLockExclusive(t *testing.T) {
	client := newTestRedis(t)
	locker := NewRedis(client, 5*time.Second)
	ctx := context.Background()
	key := "test-" + uuid.NewString()

	unlock, err := locker.TryLock(ctx, key)
	require.NoError(t, err)

	_, err = locker.TryLock(ctx, key)
	assert.ErrorIs(t, err, ErrNotAcquired)

	unlock()

	unlock, err = locker.TryLock(ctx, key)
	require.NoError(t, err)
	unlock()
}

func TestRedis_LockWaitsForRelease(t *testing.T) {
	client := newTestRedis(t)
	locker := NewRedis(client, 5*time.Second, WithRetryInterval(5*time.Millisecond))
	ctx := context.Background()
	key := "test-" + uuid.NewString()

	unlock, err := locker.Lock(ctx, key)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		unlock()
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	unlock2, err := locker.Lock(waitCtx, key)
	require.NoError(t, err)
	unlock2()
}

func TestRedis_ReleaseDoesNotDropForeignLease(t *testing.T) {
	client := newTestRedis(t)
	locker := NewRedis(client, 50*time.Millisecond)
	ctx := context.Background()
	key := "test-" + uuid.NewString()

	unlock, err := locker.TryLock(ctx, key)
	require.NoError(t, err)

	// Let the lease expire and a second holder take it.
	time.Sleep(100 * time.Millisecond)
	other := NewRedis(client, 5*time.Second)
	unlockOther, err := other.TryLock(ctx, key)
	require.NoError(t, err)
	defer unlockOther()

	unlock()

	_, err = locker.TryLock(ctx, key)
	assert.ErrorIs(t, err, ErrNotAcquired)
}

package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "sweep", "someone-else"))
	assert.True(t, mr.Exists("sweep"), "foreign token must not release the lock")

	require.NoError(t, locker.Release(ctx, "sweep", token))
	assert.False(t, mr.Exists("sweep"))
}

func TestLockerExpires(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok, err = locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWithLock(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	ran := false
	err := locker.WithLock(ctx, "sweep", time.Minute, func(ctx context.Context) error {
		ran = true
		if !mr.Exists("sweep") {
			t.Fatalf("lock should be held while fn runs")
		}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("sweep"))

	_, ok, err := locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = locker.WithLock(ctx, "sweep", time.Minute, func(context.Context) error {
		t.Fatalf("fn must not run while another holder owns the lock")
		return nil
	})
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
}

func TestNewLockerNilClient(t *testing.T) {
	if NewLocker(nil) != nil {
		t.Fatalf("expected nil locker without a client")
	}
}

func TestTokenBucketBurstThenDeny(t *testing.T) {
	_, client := newRedis(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := bucket.Allow(ctx, "bucket", 1.0/60.0, 3)
		require.NoError(t, err)
		require.Truef(t, res.Allowed, "request %d should be allowed", i+1)
	}

	res, err := bucket.Allow(ctx, "bucket", 1.0/60.0, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.Limit)
	assert.Greater(t, res.RetryAfter, 50*time.Second)
}

func TestTokenBucketRejectsBadInput(t *testing.T) {
	_, client := newRedis(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()

	_, err := bucket.Allow(ctx, "", 1, 1)
	assert.Error(t, err)
	_, err = bucket.Allow(ctx, "bucket", 0, 1)
	assert.Error(t, err)
	_, err = bucket.Allow(ctx, "bucket", 1, 0)
	assert.Error(t, err)
}

func TestTriggerLimiter(t *testing.T) {
	_, client := newRedis(t)
	limiter := NewTriggerLimiter(client, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < triggerBurst; i++ {
		ok, _ := limiter.Allow(ctx)
		require.True(t, ok)
	}
	ok, retryAfter := limiter.Allow(ctx)
	assert.False(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestTriggerLimiterWithoutRedisAllows(t *testing.T) {
	limiter := NewTriggerLimiter(nil, zap.NewNop())
	for i := 0; i < 10; i++ {
		ok, _ := limiter.Allow(context.Background())
		require.True(t, ok)
	}
}

package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client backed by miniredis.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestGuard_SingleOwner(t *testing.T) {
	client, _ := setupTestRedis(t)
	guard := NewGuard(client, time.Minute)
	ctx := context.Background()

	token, ok, err := guard.Acquire(ctx, "1001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = guard.Acquire(ctx, "1001")
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	_, ok, err = guard.Acquire(ctx, "1002")
	require.NoError(t, err)
	assert.True(t, ok, "locks are per order number")

	require.NoError(t, guard.Release(ctx, "1001", token))

	_, ok, err = guard.Acquire(ctx, "1001")
	require.NoError(t, err)
	assert.True(t, ok, "lock is reusable after release")
}

func TestGuard_ReleaseOnlyByOwner(t *testing.T) {
	client, mr := setupTestRedis(t)
	guard := NewGuard(client, time.Minute)
	ctx := context.Background()

	_, ok, err := guard.Acquire(ctx, "1001")
	require.NoError(t, err)
	require.True(t, ok)

	err = guard.Release(ctx, "1001", "someone-else")
	assert.ErrorIs(t, err, ErrLockNotHeld)

	assert.True(t, mr.Exists("webhook_lock:1001"), "foreign release must leave the lock in place")
}

func TestGuard_ExpiresAfterTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	guard := NewGuard(client, 5*time.Second)
	ctx := context.Background()

	token, ok, err := guard.Acquire(ctx, "1001")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	_, ok, err = guard.Acquire(ctx, "1001")
	require.NoError(t, err)
	assert.True(t, ok, "expired lock can be taken by a new owner")
	assert.ErrorIs(t, guard.Release(ctx, "1001", token), ErrLockNotHeld, "stale owner cannot release")
}

func TestGuard_ConcurrentAcquire(t *testing.T) {
	client, _ := setupTestRedis(t)
	guard := NewGuard(client, time.Minute)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := guard.Acquire(ctx, "1001")
			if err == nil && ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

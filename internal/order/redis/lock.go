package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const webhookLockPrefix = "webhook_lock:"

// ErrLockNotHeld is returned by Release when the key expired or was taken
// over by another owner.
var ErrLockNotHeld = errors.New("lock not held")

// releaseScript deletes the key only when it still carries the caller's
// owner token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Guard is a single-owner lock per order number, used to process each
// payment notification at most once at a time.
type Guard struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewGuard(client *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Guard{Client: client, TTL: ttl}
}

// Acquire tries to take the lock for orderNumber. ok is false when another
// owner holds it. The returned token must be passed to Release.
func (g *Guard) Acquire(ctx context.Context, orderNumber string) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = g.Client.SetNX(ctx, webhookLockPrefix+orderNumber, token, g.TTL).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock for %s: %w", orderNumber, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release removes the lock if token still owns it.
func (g *Guard) Release(ctx context.Context, orderNumber, token string) error {
	n, err := releaseScript.Run(ctx, g.Client, []string{webhookLockPrefix + orderNumber}, token).Int()
	if err != nil {
		return fmt.Errorf("release lock for %s: %w", orderNumber, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

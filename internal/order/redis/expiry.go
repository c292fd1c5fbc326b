package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

// EnableExpiryEvents turns on keyspace notifications for expired keys.
// Managed Redis offerings often reject CONFIG SET; callers treat the error
// as a warning.
func EnableExpiryEvents(ctx context.Context, client *redis.Client) error {
	return client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
}

// PendingOrderNumber extracts the order number from a pending-order key.
func PendingOrderNumber(key string) (string, bool) {
	if !strings.HasPrefix(key, pendingOrderPrefix) {
		return "", false
	}
	n := strings.TrimPrefix(key, pendingOrderPrefix)
	return n, n != ""
}

// WatchExpiredPending calls onExpire for every pending order whose payment
// window closed without a notification. It blocks until ctx is done.
func WatchExpiredPending(ctx context.Context, client *redis.Client, onExpire func(orderNumber string)) error {
	channel := fmt.Sprintf("__keyevent@%d__:expired", client.Options().DB)
	pubsub := client.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if orderNumber, ok := PendingOrderNumber(msg.Payload); ok {
				onExpire(orderNumber)
			}
		}
	}
}

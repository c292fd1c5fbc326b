package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-storefront/internal/models"
	"ms-storefront/internal/order/ordererr"
)

const pendingOrderPrefix = "pending_order:"

// ErrPendingExists is returned by Save when the order number is already held
// by another pending order.
var ErrPendingExists = ordererr.ErrOrderNumberTaken

// PendingStore keeps unconfirmed online orders until the payment provider
// reports back or the entry expires.
type PendingStore struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewPendingStore(client *redis.Client, ttl time.Duration) *PendingStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &PendingStore{Client: client, TTL: ttl}
}

// Save claims the order number for the snapshot. An existing entry is never
// replaced; Save returns ErrPendingExists instead.
func (p *PendingStore) Save(ctx context.Context, order *models.PendingOrder) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode pending order %s: %w", order.OrderNumber, err)
	}
	ok, err := p.Client.SetNX(ctx, pendingOrderPrefix+order.OrderNumber, payload, p.TTL).Result()
	if err != nil {
		return fmt.Errorf("save pending order %s: %w", order.OrderNumber, err)
	}
	if !ok {
		return fmt.Errorf("save pending order %s: %w", order.OrderNumber, ErrPendingExists)
	}
	return nil
}

// Get returns nil, nil when the entry is absent or expired.
func (p *PendingStore) Get(ctx context.Context, orderNumber string) (*models.PendingOrder, error) {
	payload, err := p.Client.Get(ctx, pendingOrderPrefix+orderNumber).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pending order %s: %w", orderNumber, err)
	}

	var order models.PendingOrder
	if err := json.Unmarshal(payload, &order); err != nil {
		return nil, fmt.Errorf("decode pending order %s: %w", orderNumber, err)
	}
	return &order, nil
}

// Delete is idempotent.
func (p *PendingStore) Delete(ctx context.Context, orderNumber string) error {
	if err := p.Client.Del(ctx, pendingOrderPrefix+orderNumber).Err(); err != nil {
		return fmt.Errorf("delete pending order %s: %w", orderNumber, err)
	}
	return nil
}

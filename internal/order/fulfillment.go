package order

import (
	"context"
	"fmt"
	"strings"

	"ms-storefront/internal/models"
	"ms-storefront/internal/order/db"
	"ms-storefront/internal/order/ordererr"
)

var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:    {models.OrderStatusConfirmed, models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusConfirmed:  {models.OrderStatusProcessing, models.OrderStatusCancelled, models.OrderStatusRefunded},
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled, models.OrderStatusRefunded},
	models.OrderStatusShipped:    {models.OrderStatusDelivered, models.OrderStatusReturned},
	models.OrderStatusDelivered:  {models.OrderStatusReturned, models.OrderStatusRefunded},
}

// CanTransition reports whether an order paid with method may move from
// one status to another. Refunds only apply to online payments.
func CanTransition(from, to models.OrderStatus, method models.PaymentMethod) bool {
	if to == models.OrderStatusRefunded && method != models.PaymentMethodPayHere {
		return false
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s models.OrderStatus) bool {
	return len(transitions[s]) == 0
}

func restocks(s models.OrderStatus) bool {
	return s == models.OrderStatusCancelled || s == models.OrderStatusReturned || s == models.OrderStatusRefunded
}

func knownStatus(s models.OrderStatus) bool {
	switch s {
	case models.OrderStatusPending, models.OrderStatusConfirmed, models.OrderStatusProcessing,
		models.OrderStatusShipped, models.OrderStatusDelivered, models.OrderStatusCancelled,
		models.OrderStatusReturned, models.OrderStatusRefunded:
		return true
	}
	return false
}

// UpdateOrderStatus applies an admin status change. Entering CANCELLED,
// RETURNED or REFUNDED puts the stock back exactly once.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, req models.StatusUpdateRequest) (*models.Order, error) {
	target := models.OrderStatus(strings.ToUpper(string(req.Status)))
	if !knownStatus(target) {
		return nil, ordererr.Invalid("status", "unknown status %q", req.Status)
	}

	var updated *models.Order
	changed := false
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		updated = order
		if order.Status == target {
			return nil
		}
		if !CanTransition(order.Status, target, order.PaymentMethod) {
			return fmt.Errorf("%s -> %s for %s order %s: %w", order.Status, target, order.PaymentMethod, order.OrderNumber, ordererr.ErrInvalidStatusTransition)
		}

		if target == models.OrderStatusShipped {
			tracking := strings.TrimSpace(req.TrackingNumber)
			if tracking == "" {
				return ordererr.Invalid("trackingNumber", "is required to ship an order")
			}
			order.TrackingNumber = tracking
		}

		from := order.Status
		order.Status = target
		if restocks(target) && !order.StockRestored {
			if err := tx.RestoreStock(ctx, order.Items); err != nil {
				return fmt.Errorf("restore stock for order %s: %w", order.OrderNumber, err)
			}
			order.StockRestored = true
		}
		if err := tx.TransitionOrder(ctx, order, from); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		s.logger.Warn("ORDER", fmt.Sprintf("status update for %s to %s failed: %v", orderID, target, err))
		return nil, err
	}

	if changed {
		s.logger.LogOrder("STATUS", updated.OrderNumber, fmt.Sprintf("now %s", updated.Status))
		s.Notifier.StatusChanged(updated)
	}
	return updated, nil
}

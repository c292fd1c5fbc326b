package order

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ms-storefront/internal/models"
	"ms-storefront/internal/order/db"
	"ms-storefront/internal/order/ordererr"
	"ms-storefront/internal/order/payhere"
)

// WebhookError represents an error that occurred during webhook processing
type WebhookError struct {
	Category      string // "configuration", "validation", "expired", "processing"
	StatusCode    int    // HTTP status code
	PublicError   string // Safe to expose to clients
	InternalError string // Detailed error for logs only
	OriginalErr   error  // Underlying error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

// HandlePayHereNotification reconciles one PayHere server callback. A nil
// return means the provider should get 200 and stop retrying.
func (s *OrderService) HandlePayHereNotification(ctx context.Context, form url.Values) error {
	if s.PayHere == nil {
		s.logger.Error("WEBHOOK", "PayHere is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "PayHere merchant credentials are not configured",
		}
	}

	n := payhere.ParseNotification(form)
	if n.OrderID == "" {
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid notification",
			InternalError: "notification without order_id",
		}
	}

	if err := s.PayHere.Verify(n); err != nil {
		s.logger.LogSecurity("INVALID_SIGNATURE", fmt.Sprintf("PayHere notification for order %s rejected: %v", n.OrderID, err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid signature",
			InternalError: err.Error(),
			OriginalErr:   err,
		}
	}

	token, acquired, err := s.Guard.Acquire(ctx, n.OrderID)
	if err != nil {
		return processingError(n.OrderID, "acquire idempotency lock", err)
	}
	if !acquired {
		s.logger.LogPayment("DUPLICATE_IN_FLIGHT", n.OrderID, "another delivery is being processed")
		return nil
	}
	defer func() {
		if err := s.Guard.Release(context.WithoutCancel(ctx), n.OrderID, token); err != nil {
			s.logger.Warn("WEBHOOK", fmt.Sprintf("release lock for %s: %v", n.OrderID, err))
		}
	}()

	exists, err := s.DB.OrderExists(ctx, n.OrderID)
	if err != nil {
		return processingError(n.OrderID, "check existing order", err)
	}
	if exists {
		s.discardPending(ctx, n.OrderID)
		s.logger.LogPayment("DUPLICATE", n.OrderID, "order already committed")
		return nil
	}

	pending, err := s.Pending.Get(ctx, n.OrderID)
	if err != nil {
		return processingError(n.OrderID, "load pending order", err)
	}
	if pending == nil {
		s.logger.Warn("WEBHOOK", fmt.Sprintf("no pending order for %s (status %s); expired or unknown", n.OrderID, n.StatusCode))
		return &WebhookError{
			Category:      "expired",
			StatusCode:    http.StatusNotFound,
			PublicError:   "Order not found",
			InternalError: fmt.Sprintf("pending order %s not found", n.OrderID),
			OriginalErr:   ordererr.ErrOrderNotFound,
		}
	}

	switch n.StatusCode {
	case models.PayHereStatusSuccess:
		return s.promotePending(ctx, n, pending)
	case models.PayHereStatusPending:
		s.logger.LogPayment("PENDING", n.OrderID, "payment not final yet")
		return nil
	case models.PayHereStatusCancelled, models.PayHereStatusFailed, models.PayHereStatusChargedBack:
		s.discardPending(ctx, n.OrderID)
		s.logger.LogPayment("NOT_PAID", n.OrderID, fmt.Sprintf("status %s (%s); pending order discarded", n.StatusCode, n.StatusMessage))
		return nil
	default:
		s.logger.Warn("WEBHOOK", fmt.Sprintf("unknown status %q for order %s ignored", n.StatusCode, n.OrderID))
		return nil
	}
}

func (s *OrderService) promotePending(ctx context.Context, n models.PayHereNotification, pending *models.PendingOrder) error {
	if reason := amountMismatch(n, pending); reason != "" {
		s.recordAnomaly(ctx, n, pending, reason)
		return nil
	}

	now := s.now().UTC()
	order := pending.ToOrder(uuid.NewString(), n.PaymentID, now)

	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.Tx) error {
		if err := tx.DeductStock(ctx, order.Items); err != nil {
			return err
		}
		if order.CouponCode != "" {
			s.redeemPaidCoupon(ctx, tx, &order)
		}
		if err := tx.CreateOrder(ctx, &order); err != nil {
			return err
		}
		return tx.ClearCart(ctx, order.UserID)
	})
	if errors.Is(err, ordererr.ErrInsufficientStock) {
		s.recordAnomaly(ctx, n, pending, err.Error())
		return nil
	}
	if err != nil {
		return processingError(n.OrderID, "commit paid order", err)
	}

	s.discardPending(ctx, n.OrderID)
	s.logger.LogPayment("CONFIRMED", order.OrderNumber, fmt.Sprintf("paid %s %s, payment %s", n.Amount, n.Currency, n.PaymentID))
	s.Notifier.OrderPlaced(&order)
	return nil
}

// redeemPaidCoupon records usage without enforcing caps. The customer has
// already paid the discounted amount.
func (s *OrderService) redeemPaidCoupon(ctx context.Context, tx *db.Tx, order *models.Order) {
	c, err := tx.RecordRedemption(ctx, order.CouponCode, order.UserID, false)
	if err != nil {
		s.logger.Warn("COUPON", fmt.Sprintf("order %s: redemption of %s not recorded: %v", order.OrderNumber, order.CouponCode, err))
		return
	}
	if c.MaxUses != nil && c.UsedCount > *c.MaxUses {
		s.logger.Warn("COUPON", fmt.Sprintf("coupon %s overshot its cap (%d/%d) via paid order %s", c.Code, c.UsedCount, *c.MaxUses, order.OrderNumber))
	}
}

func (s *OrderService) recordAnomaly(ctx context.Context, n models.PayHereNotification, pending *models.PendingOrder, reason string) {
	anomaly := &models.ReconciliationAnomaly{
		ID:            uuid.NewString(),
		OrderNumber:   pending.OrderNumber,
		TransactionID: n.PaymentID,
		Reason:        reason,
		Snapshot:      *pending,
		CreatedAt:     s.now().UTC(),
	}
	s.logger.Error("RECONCILE", fmt.Sprintf("%v: order %s payment %s: %s", ordererr.ErrStockReconciliationAnomaly, pending.OrderNumber, n.PaymentID, reason))
	if err := s.DB.CreateAnomaly(ctx, anomaly); err != nil {
		s.logger.Error("RECONCILE", fmt.Sprintf("persist anomaly for %s: %v", pending.OrderNumber, err))
	}
	s.Notifier.ReconciliationAnomaly(anomaly)
	s.discardPending(ctx, pending.OrderNumber)
}

func (s *OrderService) discardPending(ctx context.Context, orderNumber string) {
	if err := s.Pending.Delete(ctx, orderNumber); err != nil {
		s.logger.Warn("WEBHOOK", fmt.Sprintf("delete pending order %s: %v", orderNumber, err))
	}
}

func amountMismatch(n models.PayHereNotification, pending *models.PendingOrder) string {
	paid, err := decimal.NewFromString(n.Amount)
	if err != nil {
		return fmt.Sprintf("unparseable paid amount %q", n.Amount)
	}
	if !paid.Round(2).Equal(pending.TotalAmount.Round(2)) {
		return fmt.Sprintf("paid amount %s does not match order total %s", n.Amount, pending.TotalAmount.StringFixed(2))
	}
	if pending.Currency != "" && n.Currency != pending.Currency {
		return fmt.Sprintf("paid currency %s does not match order currency %s", n.Currency, pending.Currency)
	}
	return ""
}

func processingError(orderNumber, step string, err error) *WebhookError {
	return &WebhookError{
		Category:      "processing",
		StatusCode:    http.StatusInternalServerError,
		PublicError:   "Webhook processing error",
		InternalError: fmt.Sprintf("order %s: %s: %v", orderNumber, step, err),
		OriginalErr:   err,
	}
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

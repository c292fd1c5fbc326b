package order

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order/coupon"
	"ms-storefront/internal/order/db"
	"ms-storefront/internal/order/ordererr"
	"ms-storefront/internal/order/payhere"
	"ms-storefront/internal/order/pricing"
	"ms-storefront/internal/utils"
)

// Store is the durable side of the service. *db.DB implements it.
type Store interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	GetUserAddress(ctx context.Context, userID, addressID string) (*models.UserAddress, error)
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	OrderExists(ctx context.Context, orderNumber string) (bool, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	CreateAnomaly(ctx context.Context, anomaly *models.ReconciliationAnomaly) error
	ListAnomalies(ctx context.Context, includeResolved bool) ([]models.ReconciliationAnomaly, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx *db.Tx) error) error
}

type PendingCache interface {
	Save(ctx context.Context, order *models.PendingOrder) error
	Get(ctx context.Context, orderNumber string) (*models.PendingOrder, error)
	Delete(ctx context.Context, orderNumber string) error
}

type IdempotencyGuard interface {
	Acquire(ctx context.Context, key string) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Notifier must not block; implementations queue and return.
type Notifier interface {
	OrderPlaced(order *models.Order)
	StatusChanged(order *models.Order)
	ReconciliationAnomaly(anomaly *models.ReconciliationAnomaly)
}

type OrderService struct {
	DB       Store
	Pending  PendingCache
	Guard    IdempotencyGuard
	PayHere  *payhere.Signer
	Notifier Notifier

	pricing *pricing.Resolver
	coupons *coupon.Validator
	logger  *logger.Logger
	now     func() time.Time

	orderNumbers func(time.Time) string
}

const orderNumberAttempts = 5

func NewOrderService(store Store, pending PendingCache, guard IdempotencyGuard, signer *payhere.Signer, notifier Notifier, log *logger.Logger) *OrderService {
	return &OrderService{
		DB:       store,
		Pending:  pending,
		Guard:    guard,
		PayHere:  signer,
		Notifier: notifier,
		pricing:  pricing.NewResolver(store),
		coupons:  coupon.NewValidator(store),
		logger:   log,
		now:      time.Now,

		orderNumbers: utils.GenerateOrderNumber,
	}
}

// WithClock overrides the service clock, including coupon expiry checks.
func (s *OrderService) WithClock(now func() time.Time) *OrderService {
	s.now = now
	s.coupons.WithClock(now)
	return s
}

// WithOrderNumbers replaces the order number generator.
func (s *OrderService) WithOrderNumbers(gen func(time.Time) string) *OrderService {
	s.orderNumbers = gen
	return s
}

// ---------------- CHECKOUT ----------------

type quote struct {
	priced   *pricing.Priced
	discount decimal.Decimal
	code     string
	total    decimal.Decimal
}

func (s *OrderService) quote(ctx context.Context, userID string, items []models.CartLine, code string) (*quote, error) {
	priced, err := s.pricing.Resolve(ctx, items)
	if err != nil {
		return nil, err
	}
	q := &quote{priced: priced, discount: decimal.Zero}
	if strings.TrimSpace(code) != "" {
		result, err := s.coupons.Validate(ctx, code, userID, priced.Subtotal)
		if err != nil {
			return nil, err
		}
		q.discount = result.Discount
		q.code = result.Code
	}
	q.total = models.GrandTotal(priced.Subtotal, q.discount)
	return q, nil
}

// PreviewCheckout prices the cart without writing anything. A rejected
// coupon is reported in the preview instead of failing it.
func (s *OrderService) PreviewCheckout(ctx context.Context, userID string, items []models.CartLine, code string) (*models.CheckoutPreview, error) {
	q, err := s.quote(ctx, userID, items, code)
	var rejected *ordererr.CouponRejectedError
	if errors.As(err, &rejected) {
		q, err = s.quote(ctx, userID, items, "")
		if err != nil {
			return nil, err
		}
		preview := previewFrom(q)
		preview.CouponError = rejected.Reason
		return preview, nil
	}
	if err != nil {
		return nil, err
	}
	return previewFrom(q), nil
}

func previewFrom(q *quote) *models.CheckoutPreview {
	return &models.CheckoutPreview{
		Items:          q.priced.Items,
		Subtotal:       q.priced.Subtotal,
		DiscountAmount: q.discount,
		TotalAmount:    q.total,
		CouponCode:     q.code,
	}
}

// ValidateCoupon checks a code against a subtotal for the coupon widget.
func (s *OrderService) ValidateCoupon(ctx context.Context, userID string, req models.CouponValidationRequest) (*models.CouponValidationResponse, error) {
	if req.Subtotal.IsNegative() {
		return nil, ordererr.Invalid("subtotal", "must not be negative")
	}
	result, err := s.coupons.Validate(ctx, req.Code, userID, req.Subtotal)
	if err != nil {
		return nil, err
	}
	return &models.CouponValidationResponse{Code: result.Code, Discount: result.Discount}, nil
}

// ---------------- ORDERS ----------------

// PlaceOrder prices the cart and either commits a COD order or parks an
// online order in the pending cache and returns a signed checkout form.
func (s *OrderService) PlaceOrder(ctx context.Context, userID string, req models.OrderRequest) (*models.OrderResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if req.PaymentMethod != models.PaymentMethodCOD && req.PaymentMethod != models.PaymentMethodPayHere {
		return nil, ordererr.Invalid("paymentMethod", "must be COD or PAYHERE")
	}
	if req.PaymentMethod == models.PaymentMethodPayHere && s.PayHere == nil {
		return nil, ordererr.Invalid("paymentMethod", "online payment is not available")
	}
	address, err := s.resolveAddress(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	q, err := s.quote(ctx, userID, req.Items, req.CouponCode)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	guestToken := uuid.NewString()

	var lastErr error
	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		orderNumber := s.orderNumbers(now)
		taken, err := s.orderNumberTaken(ctx, orderNumber, req.PaymentMethod)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ordererr.ErrOrderCreationFailed, err)
		}
		if taken {
			lastErr = fmt.Errorf("order %s: %w", orderNumber, ordererr.ErrOrderNumberTaken)
			s.logger.Warn("ORDER", fmt.Sprintf("order number %s already in use, attempt %d", orderNumber, attempt))
			continue
		}

		var resp *models.OrderResponse
		if req.PaymentMethod == models.PaymentMethodCOD {
			resp, err = s.placeCOD(ctx, &models.Order{
				ID:              uuid.NewString(),
				OrderNumber:     orderNumber,
				GuestToken:      guestToken,
				UserID:          userID,
				Email:           email,
				ShippingAddress: *address,
				Items:           q.priced.Items,
				Subtotal:        q.priced.Subtotal,
				DiscountAmount:  q.discount,
				TotalAmount:     q.total,
				CouponCode:      q.code,
				Status:          models.OrderStatusPending,
				PaymentMethod:   models.PaymentMethodCOD,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
		} else {
			resp, err = s.placeOnline(ctx, &models.PendingOrder{
				OrderNumber:     orderNumber,
				GuestToken:      guestToken,
				UserID:          userID,
				Email:           email,
				ShippingAddress: *address,
				Items:           q.priced.Items,
				Subtotal:        q.priced.Subtotal,
				DiscountAmount:  q.discount,
				TotalAmount:     q.total,
				CouponCode:      q.code,
				Currency:        s.PayHere.Currency(),
				CreatedAt:       now,
			})
		}
		if !errors.Is(err, ordererr.ErrOrderNumberTaken) {
			return resp, err
		}
		lastErr = err
		s.logger.Warn("ORDER", fmt.Sprintf("order number %s already in use, attempt %d", orderNumber, attempt))
	}

	s.logger.Error("ORDER", fmt.Sprintf("no free order number after %d attempts: %v", orderNumberAttempts, lastErr))
	return nil, fmt.Errorf("%w: %v", ordererr.ErrOrderCreationFailed, lastErr)
}

// orderNumberTaken checks durable orders, and for COD also the pending cache
// so a COD order never reuses the number of an unpaid online order. Online
// orders claim their number atomically in Pending.Save.
func (s *OrderService) orderNumberTaken(ctx context.Context, orderNumber string, method models.PaymentMethod) (bool, error) {
	exists, err := s.DB.OrderExists(ctx, orderNumber)
	if err != nil || exists {
		return exists, err
	}
	if method != models.PaymentMethodCOD {
		return false, nil
	}
	pending, err := s.Pending.Get(ctx, orderNumber)
	if err != nil {
		return false, err
	}
	return pending != nil, nil
}

func (s *OrderService) placeCOD(ctx context.Context, order *models.Order) (*models.OrderResponse, error) {
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx *db.Tx) error {
		if err := tx.DeductStock(ctx, order.Items); err != nil {
			return err
		}
		if order.CouponCode != "" {
			if _, err := tx.RecordRedemption(ctx, order.CouponCode, order.UserID, true); err != nil {
				return err
			}
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		return tx.ClearCart(ctx, order.UserID)
	})
	if err != nil {
		if errors.Is(err, ordererr.ErrInsufficientStock) || errors.Is(err, ordererr.ErrCouponRejected) || ordererr.IsValidation(err) {
			s.logger.Warn("ORDER", fmt.Sprintf("COD order %s rejected: %v", order.OrderNumber, err))
			return nil, err
		}
		s.logger.Error("ORDER", fmt.Sprintf("COD order %s failed: %v", order.OrderNumber, err))
		return nil, fmt.Errorf("%w: %v", ordererr.ErrOrderCreationFailed, err)
	}

	s.logger.LogOrder("CREATED", order.OrderNumber, fmt.Sprintf("COD order committed, total %s", order.TotalAmount.StringFixed(2)))
	s.Notifier.OrderPlaced(order)

	return &models.OrderResponse{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		GuestToken:  order.GuestToken,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
	}, nil
}

func (s *OrderService) placeOnline(ctx context.Context, pending *models.PendingOrder) (*models.OrderResponse, error) {
	if err := s.Pending.Save(ctx, pending); err != nil {
		if errors.Is(err, ordererr.ErrOrderNumberTaken) {
			return nil, err
		}
		s.logger.Error("ORDER", fmt.Sprintf("cache pending order %s: %v", pending.OrderNumber, err))
		return nil, fmt.Errorf("%w: %v", ordererr.ErrOrderCreationFailed, err)
	}
	s.logger.LogOrder("PENDING_PAYMENT", pending.OrderNumber, fmt.Sprintf("awaiting PayHere payment of %s %s", pending.TotalAmount.StringFixed(2), pending.Currency))

	return &models.OrderResponse{
		OrderNumber: pending.OrderNumber,
		GuestToken:  pending.GuestToken,
		TotalAmount: pending.TotalAmount,
		Payment:     s.PayHere.Checkout(pending),
	}, nil
}

func (s *OrderService) resolveAddress(ctx context.Context, userID string, req models.OrderRequest) (*models.Address, error) {
	if req.AddressID != "" {
		if userID == "" {
			return nil, ordererr.Invalid("addressId", "saved addresses require sign in")
		}
		saved, err := s.DB.GetUserAddress(ctx, userID, req.AddressID)
		if err != nil {
			return nil, err
		}
		snapshot := saved.Address
		return &snapshot, nil
	}
	if req.ShippingAddress == nil {
		return nil, ordererr.Invalid("shippingAddress", "is required")
	}
	a := *req.ShippingAddress
	required := []struct{ field, value string }{
		{"shippingAddress.firstName", a.FirstName},
		{"shippingAddress.line1", a.Line1},
		{"shippingAddress.city", a.City},
		{"shippingAddress.country", a.Country},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, ordererr.Invalid(r.field, "is required")
		}
	}
	return &a, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", ordererr.Invalid("email", "is required")
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil {
		return "", ordererr.Invalid("email", "is not a valid address")
	}
	return strings.ToLower(parsed.Address), nil
}

// ---------------- READS ----------------

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.DB.GetOrderByID(ctx, id)
}

func (s *OrderService) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return s.DB.GetOrderByNumber(ctx, orderNumber)
}

// TrackGuestOrder returns the order when token matches its guest token, or
// when userID owns it. Any mismatch reads as not found.
func (s *OrderService) TrackGuestOrder(ctx context.Context, orderNumber, token, userID string) (*models.Order, error) {
	order, err := s.DB.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if userID != "" && order.UserID == userID {
		return order, nil
	}
	if token == "" || !constantTimeEqual(token, order.GuestToken) {
		return nil, ordererr.ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	return s.DB.ListOrdersByUser(ctx, userID)
}

func (s *OrderService) ListAnomalies(ctx context.Context, includeResolved bool) ([]models.ReconciliationAnomaly, error) {
	return s.DB.ListAnomalies(ctx, includeResolved)
}

// Package coupon evaluates coupon rules against a cart subtotal. Validation
// never writes; redemptions are recorded by the commit transaction.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ms-storefront/internal/models"
	"ms-storefront/internal/order/ordererr"
)

var hundred = decimal.NewFromInt(100)

type CouponReader interface {
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
}

// Result is an accepted coupon and the discount it grants.
type Result struct {
	Code     string
	Discount decimal.Decimal
}

type Validator struct {
	coupons CouponReader
	now     func() time.Time
}

func NewValidator(coupons CouponReader) *Validator {
	return &Validator{coupons: coupons, now: time.Now}
}

// WithClock overrides the time source used for expiry checks.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Normalize trims and upper-cases a coupon code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate runs the coupon rules in order and stops at the first failure.
// userID is empty for guests.
func (v *Validator) Validate(ctx context.Context, code, userID string, subtotal decimal.Decimal) (*Result, error) {
	code = Normalize(code)
	if code == "" {
		return nil, ordererr.Invalid("couponCode", "coupon code is required")
	}

	c, err := v.coupons.GetCouponByCode(ctx, code)
	if errors.Is(err, ordererr.ErrCouponNotFound) {
		return nil, reject(code, "coupon does not exist")
	}
	if err != nil {
		return nil, fmt.Errorf("load coupon %s: %w", code, err)
	}

	if !c.IsActive {
		return nil, reject(code, "coupon is not active")
	}
	if c.ExpiresAt != nil && !v.now().Before(*c.ExpiresAt) {
		return nil, reject(code, "coupon has expired")
	}
	if c.MaxUses != nil && c.UsedCount >= *c.MaxUses {
		return nil, reject(code, "coupon usage limit has been reached")
	}
	if c.MinOrderAmount != nil && subtotal.LessThan(*c.MinOrderAmount) {
		return nil, reject(code, fmt.Sprintf("minimum order amount is %s", c.MinOrderAmount.StringFixed(2)))
	}
	if userID != "" && c.LimitPerUser != nil && c.UsesBy(userID) >= *c.LimitPerUser {
		return nil, reject(code, "you have already used this coupon")
	}
	if userID == "" && (c.LimitPerUser != nil || !c.IsPublic) {
		return nil, reject(code, "sign in to use this coupon")
	}

	return &Result{Code: c.Code, Discount: Discount(c, subtotal)}, nil
}

// Discount computes the amount c takes off subtotal, never more than the
// subtotal itself.
func Discount(c *models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch c.Type {
	case models.CouponPercentage:
		discount = subtotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscount != nil && discount.GreaterThan(*c.MaxDiscount) {
			discount = *c.MaxDiscount
		}
	case models.CouponFixed:
		discount = c.Value
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount.Round(2)
}

func reject(code, reason string) error {
	return &ordererr.CouponRejectedError{Code: code, Reason: reason}
}

package coupon_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-storefront/internal/models"
	"ms-storefront/internal/order/coupon"
	"ms-storefront/internal/order/ordererr"
)

type stubCoupons map[string]*models.Coupon

func (s stubCoupons) GetCouponByCode(_ context.Context, code string) (*models.Coupon, error) {
	if c, ok := s[code]; ok {
		return c, nil
	}
	return nil, ordererr.ErrCouponNotFound
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func intPtr(n int) *int { return &n }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func baseCoupon(code string) *models.Coupon {
	return &models.Coupon{Code: code, Type: models.CouponPercentage, Value: dec("10"), IsActive: true, IsPublic: true}
}

func rejectionReason(t *testing.T, err error) string {
	t.Helper()
	var rejected *ordererr.CouponRejectedError
	require.True(t, errors.As(err, &rejected), "expected coupon rejection, got %v", err)
	return rejected.Reason
}

func TestValidate_PercentageScenario(t *testing.T) {
	v := coupon.NewValidator(stubCoupons{"SAVE10": baseCoupon("SAVE10")})

	result, err := v.Validate(context.Background(), " save10 ", "user-1", dec("5000"))
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", result.Code)
	assert.True(t, dec("500").Equal(result.Discount))
	assert.True(t, dec("4500").Equal(models.GrandTotal(dec("5000"), result.Discount)))
}

func TestValidate_RuleOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	inactive := baseCoupon("INACTIVE")
	inactive.IsActive = false
	inactive.ExpiresAt = &past

	expired := baseCoupon("EXPIRED")
	expired.ExpiresAt = &past
	expired.MaxUses = intPtr(1)
	expired.UsedCount = 1

	exhausted := baseCoupon("EXHAUSTED")
	exhausted.MaxUses = intPtr(5)
	exhausted.UsedCount = 5
	exhausted.MinOrderAmount = decPtr("100000")

	minimum := baseCoupon("MINIMUM")
	minimum.MinOrderAmount = decPtr("3000")

	perUser := baseCoupon("ONCE")
	perUser.LimitPerUser = intPtr(1)
	perUser.UsedByUserIDs = []string{"user-1"}

	private := baseCoupon("PRIVATE")
	private.IsPublic = false

	v := coupon.NewValidator(stubCoupons{
		"INACTIVE": inactive, "EXPIRED": expired, "EXHAUSTED": exhausted,
		"MINIMUM": minimum, "ONCE": perUser, "PRIVATE": private,
	}).WithClock(func() time.Time { return now })
	ctx := context.Background()

	tests := []struct {
		code   string
		userID string
		reason string
	}{
		{"MISSING", "user-1", "coupon does not exist"},
		{"INACTIVE", "user-1", "coupon is not active"},
		{"EXPIRED", "user-1", "coupon has expired"},
		{"EXHAUSTED", "user-1", "coupon usage limit has been reached"},
		{"MINIMUM", "user-1", "minimum order amount is 3000.00"},
		{"ONCE", "user-1", "you have already used this coupon"},
		{"ONCE", "", "sign in to use this coupon"},
		{"PRIVATE", "", "sign in to use this coupon"},
	}
	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.userID, func(t *testing.T) {
			_, err := v.Validate(ctx, tt.code, tt.userID, dec("2000"))
			assert.ErrorIs(t, err, ordererr.ErrCouponRejected)
			assert.Equal(t, tt.reason, rejectionReason(t, err))
		})
	}

	result, err := v.Validate(ctx, "ONCE", "user-2", dec("2000"))
	require.NoError(t, err)
	assert.True(t, dec("200").Equal(result.Discount))
}

func TestValidate_EmptyCode(t *testing.T) {
	_, err := coupon.NewValidator(stubCoupons{}).Validate(context.Background(), "  ", "", dec("10"))
	assert.True(t, ordererr.IsValidation(err))
}

func TestDiscount_Clamping(t *testing.T) {
	capped := &models.Coupon{Type: models.CouponPercentage, Value: dec("50"), MaxDiscount: decPtr("300")}
	assert.True(t, dec("300").Equal(coupon.Discount(capped, dec("1000"))))

	fixed := &models.Coupon{Type: models.CouponFixed, Value: dec("750")}
	assert.True(t, dec("500").Equal(coupon.Discount(fixed, dec("500"))), "never exceeds subtotal")
	assert.True(t, dec("750").Equal(coupon.Discount(fixed, dec("900"))))

	rounding := &models.Coupon{Type: models.CouponPercentage, Value: dec("12.5")}
	assert.True(t, dec("12.35").Equal(coupon.Discount(rounding, dec("98.79"))))
}

func TestValidate_IsRepeatable(t *testing.T) {
	c := baseCoupon("SAVE10")
	c.MaxUses = intPtr(1)
	v := coupon.NewValidator(stubCoupons{"SAVE10": c})

	for i := 0; i < 3; i++ {
		_, err := v.Validate(context.Background(), "SAVE10", "user-1", dec("100"))
		require.NoError(t, err)
	}
	assert.Zero(t, c.UsedCount)
}

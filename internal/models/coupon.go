package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type CouponType string

const (
	CouponPercentage CouponType = "PERCENTAGE"
	CouponFixed      CouponType = "FIXED"
)

type Coupon struct {
	bun.BaseModel `bun:"table:coupons"`

	ID             string           `bun:"id,pk" json:"id"`
	Code           string           `bun:"code,unique,notnull" json:"code"`
	Type           CouponType       `bun:"type,notnull" json:"type"`
	Value          decimal.Decimal  `bun:"value,type:decimal(12,2)" json:"value"`
	MinOrderAmount *decimal.Decimal `bun:"min_order_amount,type:decimal(12,2)" json:"minOrderAmount,omitempty"`
	MaxDiscount    *decimal.Decimal `bun:"max_discount,type:decimal(12,2)" json:"maxDiscount,omitempty"`
	ExpiresAt      *time.Time       `bun:"expires_at" json:"expiresAt,omitempty"`
	MaxUses        *int             `bun:"max_uses" json:"maxUses,omitempty"`
	LimitPerUser   *int             `bun:"limit_per_user" json:"limitPerUser,omitempty"`
	UsedCount      int              `bun:"used_count,notnull,default:0" json:"usedCount"`
	UsedByUserIDs  []string         `bun:"used_by_user_ids" json:"usedByUserIds"`
	IsActive       bool             `bun:"is_active,notnull,default:true" json:"isActive"`
	IsPublic       bool             `bun:"is_public,notnull,default:true" json:"isPublic"`
	CreatedAt      time.Time        `bun:"created_at,notnull" json:"createdAt"`
}

// UsesBy counts how many redemptions userID already has.
func (c *Coupon) UsesBy(userID string) int {
	if userID == "" {
		return 0
	}
	n := 0
	for _, id := range c.UsedByUserIDs {
		if id == userID {
			n++
		}
	}
	return n
}

type CouponValidationRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type CouponValidationResponse struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-storefront/internal/models"
)

var schemaModels = []interface{}{
	(*models.Product)(nil),
	(*models.ProductVariant)(nil),
	(*models.Coupon)(nil),
	(*models.CartItem)(nil),
	(*models.UserAddress)(nil),
	(*models.Order)(nil),
	(*models.ReconciliationAnomaly)(nil),
}

// CreateSchema creates every table from the bun models. Used against SQLite
// in tests and local runs; Postgres goes through the SQL migrations.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	db.RegisterModel((*models.ProductVariant)(nil))
	for _, model := range schemaModels {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}

// Seed inserts a small demo catalog and a welcome coupon.
func Seed(ctx context.Context, db *bun.DB) error {
	now := time.Now().UTC()
	products := []models.Product{
		{
			ID:           "prod-tee",
			SKU:          "TEE-001",
			Name:         "Classic Tee",
			Price:        decimal.RequireFromString("2500.00"),
			DiscountType: models.DiscountNone,
			IsActive:     true,
			CreatedAt:    now,
		},
		{
			ID:            "prod-mug",
			SKU:           "MUG-001",
			Name:          "Enamel Mug",
			Price:         decimal.RequireFromString("1200.00"),
			DiscountType:  models.DiscountPercentage,
			DiscountValue: decimal.NewFromInt(10),
			Stock:         40,
			IsActive:      true,
			CreatedAt:     now,
		},
	}
	variants := []models.ProductVariant{
		{ProductID: "prod-tee", Size: "S", Stock: 10},
		{ProductID: "prod-tee", Size: "M", Stock: 15},
		{ProductID: "prod-tee", Size: "L", Stock: 5},
	}
	maxUses := 100
	perUser := 1
	coupon := models.Coupon{
		ID:           "coupon-welcome",
		Code:         "WELCOME10",
		Type:         models.CouponPercentage,
		Value:        decimal.NewFromInt(10),
		MaxUses:      &maxUses,
		LimitPerUser: &perUser,
		IsActive:     true,
		IsPublic:     true,
		CreatedAt:    now,
	}

	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&products).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("seed products: %w", err)
		}
		if _, err := tx.NewInsert().Model(&variants).On("CONFLICT (product_id, size) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("seed variants: %w", err)
		}
		if _, err := tx.NewInsert().Model(&coupon).On("CONFLICT (code) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("seed coupon: %w", err)
		}
		return nil
	})
}

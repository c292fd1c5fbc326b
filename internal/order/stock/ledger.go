// Package stock implements atomic deduct/restore of unit stock for scalar
// and per-size (variant) stock records. Every call is expected to run inside
// the caller's transaction.
package stock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-storefront/internal/models"
	"ms-storefront/internal/order/ordererr"
)

// Deduct decrements stock for every item. A line that would drive stock
// negative aborts with an *ordererr.OutOfStockError; the caller must roll
// back the transaction so earlier lines are undone.
func Deduct(ctx context.Context, db bun.IDB, items []models.OrderItem) error {
	for _, item := range items {
		if item.Quantity <= 0 {
			return ordererr.Invalid("quantity", "must be positive for %s", item.ProductID)
		}
		variant, err := hasVariants(ctx, db, item.ProductID)
		if err != nil {
			return err
		}

		var res sql.Result
		if variant {
			res, err = db.NewUpdate().
				Model((*models.ProductVariant)(nil)).
				Set("stock = stock - ?", item.Quantity).
				Where("product_id = ?", item.ProductID).
				Where("size = ?", item.Size).
				Where("stock >= ?", item.Quantity).
				Exec(ctx)
		} else {
			res, err = db.NewUpdate().
				Model((*models.Product)(nil)).
				Set("stock = stock - ?", item.Quantity).
				Where("id = ?", item.ProductID).
				Where("stock >= ?", item.Quantity).
				Exec(ctx)
		}
		if err != nil {
			return fmt.Errorf("deduct stock for %s: %w", item.ProductID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("deduct stock for %s: %w", item.ProductID, err)
		} else if n == 0 {
			available, err := Available(ctx, db, item.ProductID, item.Size)
			if err != nil {
				return fmt.Errorf("read stock for %s after rejected deduction: %w", item.ProductID, err)
			}
			return &ordererr.OutOfStockError{
				ProductID: item.ProductID,
				Name:      item.Name,
				Size:      item.Size,
				Requested: item.Quantity,
				Available: available,
			}
		}
	}
	return nil
}

// Restore re-increments stock by each item's original quantity.
func Restore(ctx context.Context, db bun.IDB, items []models.OrderItem) error {
	for _, item := range items {
		variant, err := hasVariants(ctx, db, item.ProductID)
		if err != nil {
			return err
		}

		var res sql.Result
		if variant {
			res, err = db.NewUpdate().
				Model((*models.ProductVariant)(nil)).
				Set("stock = stock + ?", item.Quantity).
				Where("product_id = ?", item.ProductID).
				Where("size = ?", item.Size).
				Exec(ctx)
		} else {
			res, err = db.NewUpdate().
				Model((*models.Product)(nil)).
				Set("stock = stock + ?", item.Quantity).
				Where("id = ?", item.ProductID).
				Exec(ctx)
		}
		if err != nil {
			return fmt.Errorf("restore stock for %s: %w", item.ProductID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("restore stock for %s size %q: %w", item.ProductID, item.Size, ordererr.ErrProductNotFound)
		}
	}
	return nil
}

// Available returns the current stock for a product, or for one of its
// sizes when the product tracks stock per size.
func Available(ctx context.Context, db bun.IDB, productID, size string) (int, error) {
	variant, err := hasVariants(ctx, db, productID)
	if err != nil {
		return 0, err
	}

	var stock int
	if variant {
		err = db.NewSelect().
			Model((*models.ProductVariant)(nil)).
			Column("stock").
			Where("product_id = ?", productID).
			Where("size = ?", size).
			Limit(1).
			Scan(ctx, &stock)
	} else {
		err = db.NewSelect().
			Model((*models.Product)(nil)).
			Column("stock").
			Where("id = ?", productID).
			Limit(1).
			Scan(ctx, &stock)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return stock, err
}

func hasVariants(ctx context.Context, db bun.IDB, productID string) (bool, error) {
	exists, err := db.NewSelect().
		Model((*models.ProductVariant)(nil)).
		Where("product_id = ?", productID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check variants for %s: %w", productID, err)
	}
	return exists, nil
}

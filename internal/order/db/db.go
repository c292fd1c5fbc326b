package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-storefront/internal/models"
	"ms-storefront/internal/order/ordererr"
	"ms-storefront/internal/order/stock"
)

// maxRedemptionAttempts bounds the optimistic retry loop on coupon counters.
const maxRedemptionAttempts = 3

type DB struct {
	Bun *bun.DB
}

// ---------------- CATALOG ----------------

// GetProductByID → fetch one product with its size variants
func (d *DB) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := d.Bun.NewSelect().
		Model(&product).
		Relation("Variants").
		Where("product.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ordererr.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetCouponByCode → fetch a coupon by its normalized code
func (d *DB) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := d.Bun.NewSelect().
		Model(&coupon).
		Where("code = ?", code).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ordererr.ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// GetUserAddress → fetch a saved address owned by userID
func (d *DB) GetUserAddress(ctx context.Context, userID, addressID string) (*models.UserAddress, error) {
	var address models.UserAddress
	err := d.Bun.NewSelect().
		Model(&address).
		Where("id = ?", addressID).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ordererr.Invalid("addressId", "address %s not found", addressID)
	}
	if err != nil {
		return nil, err
	}
	return &address, nil
}

// ---------------- ORDERS ----------------

// GetOrderByID → fetch one order by its internal id
func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	return d.getOrder(ctx, "id = ?", id)
}

// GetOrderByNumber → fetch one order by its provider-visible number
func (d *DB) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return d.getOrder(ctx, "order_number = ?", orderNumber)
}

func (d *DB) getOrder(ctx context.Context, where string, arg string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ordererr.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// OrderExists reports whether a durable order carries orderNumber.
func (d *DB) OrderExists(ctx context.Context, orderNumber string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Where("order_number = ?", orderNumber).
		Exists(ctx)
}

// ListOrdersByUser → newest first
func (d *DB) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	orders := []models.Order{}
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ---------------- ANOMALIES ----------------

func (d *DB) CreateAnomaly(ctx context.Context, anomaly *models.ReconciliationAnomaly) error {
	_, err := d.Bun.NewInsert().Model(anomaly).Exec(ctx)
	return err
}

func (d *DB) ListAnomalies(ctx context.Context, includeResolved bool) ([]models.ReconciliationAnomaly, error) {
	anomalies := []models.ReconciliationAnomaly{}
	q := d.Bun.NewSelect().Model(&anomalies).Order("created_at DESC")
	if !includeResolved {
		q = q.Where("resolved = ?", false)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return anomalies, nil
}

// ---------------- TRANSACTIONS ----------------

// RunInTx runs fn in one database transaction. Any error returned by fn
// rolls back every write made through the Tx.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Tx{tx: tx})
	})
}

// Tx exposes the writes allowed inside an order transaction.
type Tx struct {
	tx bun.Tx
}

func (t *Tx) DeductStock(ctx context.Context, items []models.OrderItem) error {
	return stock.Deduct(ctx, t.tx, items)
}

func (t *Tx) RestoreStock(ctx context.Context, items []models.OrderItem) error {
	return stock.Restore(ctx, t.tx, items)
}

func (t *Tx) CreateOrder(ctx context.Context, order *models.Order) error {
	if _, err := t.tx.NewInsert().Model(order).Exec(ctx); err != nil {
		return fmt.Errorf("insert order %s: %w", order.OrderNumber, err)
	}
	return nil
}

func (t *Tx) ClearCart(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	_, err := t.tx.NewDelete().
		Model((*models.CartItem)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

// RecordRedemption increments usedCount and appends userID to the
// redemption multiset. With enforceCap the global and per-user limits are
// re-checked against the committed counters.
func (t *Tx) RecordRedemption(ctx context.Context, code, userID string, enforceCap bool) (*models.Coupon, error) {
	for attempt := 0; attempt < maxRedemptionAttempts; attempt++ {
		var coupon models.Coupon
		err := t.tx.NewSelect().
			Model(&coupon).
			Where("code = ?", code).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ordererr.CouponRejectedError{Code: code, Reason: "coupon no longer exists"}
		}
		if err != nil {
			return nil, err
		}

		if enforceCap {
			if coupon.MaxUses != nil && coupon.UsedCount >= *coupon.MaxUses {
				return nil, &ordererr.CouponRejectedError{Code: code, Reason: "usage limit reached"}
			}
			if coupon.LimitPerUser != nil && userID != "" && coupon.UsesBy(userID) >= *coupon.LimitPerUser {
				return nil, &ordererr.CouponRejectedError{Code: code, Reason: "per-user usage limit reached"}
			}
		}

		previous := coupon.UsedCount
		coupon.UsedCount++
		used := make([]string, 0, len(coupon.UsedByUserIDs)+1)
		used = append(used, coupon.UsedByUserIDs...)
		if userID != "" {
			used = append(used, userID)
		}
		coupon.UsedByUserIDs = used

		res, err := t.tx.NewUpdate().
			Model(&coupon).
			Column("used_count", "used_by_user_ids").
			WherePK().
			Where("used_count = ?", previous).
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("record redemption for %s: %w", code, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			return &coupon, nil
		}
	}
	return nil, fmt.Errorf("record redemption for %s: concurrent updates exhausted retries", code)
}

// TransitionOrder persists status, tracking number and the restock flag,
// only if the row still has status from.
func (t *Tx) TransitionOrder(ctx context.Context, order *models.Order, from models.OrderStatus) error {
	order.UpdatedAt = time.Now().UTC()
	res, err := t.tx.NewUpdate().
		Model(order).
		Column("status", "tracking_number", "stock_restored", "updated_at").
		WherePK().
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update order %s: %w", order.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("order %s is no longer %s: %w", order.ID, from, ordererr.ErrInvalidStatusTransition)
	}
	return nil
}

// LockOrder re-reads an order inside the transaction.
func (t *Tx) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := t.tx.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ordererr.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

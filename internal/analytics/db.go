package analytics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-storefront/internal/models"
)

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

// NewDB creates a new analytics DB handler
func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// StatusCountData is one row of the per-status breakdown
type StatusCountData struct {
	Status     models.OrderStatus `bun:"status"`
	OrderCount int                `bun:"order_count"`
	Amount     decimal.Decimal    `bun:"amount"`
}

// GetStatusCounts groups every order created in [from, to) by status.
func (db *DB) GetStatusCounts(ctx context.Context, from, to time.Time) ([]StatusCountData, error) {
	var rows []StatusCountData
	err := db.bun.NewSelect().
		ColumnExpr("orders.status").
		ColumnExpr("COUNT(*) AS order_count").
		ColumnExpr("COALESCE(SUM(orders.total_amount), 0) AS amount").
		TableExpr("orders").
		Where("orders.created_at >= ? AND orders.created_at < ?", from, to).
		GroupExpr("orders.status").
		OrderExpr("orders.status").
		Scan(ctx, &rows)

	return rows, err
}

// MethodSalesData is one row of the revenue split by payment method
type MethodSalesData struct {
	PaymentMethod models.PaymentMethod `bun:"payment_method"`
	OrderCount    int                  `bun:"order_count"`
	Revenue       decimal.Decimal      `bun:"revenue"`
}

// GetSalesByPaymentMethod sums revenue-bearing orders per payment method
func (db *DB) GetSalesByPaymentMethod(ctx context.Context, from, to time.Time) ([]MethodSalesData, error) {
	var rows []MethodSalesData
	err := db.bun.NewSelect().
		ColumnExpr("orders.payment_method").
		ColumnExpr("COUNT(*) AS order_count").
		ColumnExpr("COALESCE(SUM(orders.total_amount), 0) AS revenue").
		TableExpr("orders").
		Where("orders.created_at >= ? AND orders.created_at < ?", from, to).
		Where("orders.status NOT IN (?)", bun.In(nonRevenueStatuses)).
		GroupExpr("orders.payment_method").
		OrderExpr("orders.payment_method").
		Scan(ctx, &rows)

	return rows, err
}

// DailySalesData represents raw daily sales metrics from the database
type DailySalesData struct {
	SalesDate     string          `bun:"sales_date"`
	DailyRevenue  decimal.Decimal `bun:"daily_revenue"`
	DailyDiscount decimal.Decimal `bun:"daily_discount"`
	DailyOrders   int             `bun:"daily_orders"`
}

// GetDailySales retrieves per-day revenue for revenue-bearing orders
func (db *DB) GetDailySales(ctx context.Context, from, to time.Time) ([]DailySalesData, error) {
	var rows []DailySalesData
	err := db.bun.NewSelect().
		ColumnExpr("CAST(DATE(orders.created_at) AS TEXT) AS sales_date").
		ColumnExpr("COALESCE(SUM(orders.total_amount), 0) AS daily_revenue").
		ColumnExpr("COALESCE(SUM(orders.discount_amount), 0) AS daily_discount").
		ColumnExpr("COUNT(*) AS daily_orders").
		TableExpr("orders").
		Where("orders.created_at >= ? AND orders.created_at < ?", from, to).
		Where("orders.status NOT IN (?)", bun.In(nonRevenueStatuses)).
		GroupExpr("DATE(orders.created_at)").
		OrderExpr("DATE(orders.created_at)").
		Scan(ctx, &rows)

	return rows, err
}

// CouponUsageData represents raw coupon usage metrics from the database
type CouponUsageData struct {
	CouponCode        string          `bun:"coupon_code"`
	CodeUsageCount    int             `bun:"code_usage_count"`
	DiscountAmountSum decimal.Decimal `bun:"discount_amount_sum"`
}

// GetCouponUsage retrieves discount totals per coupon code
func (db *DB) GetCouponUsage(ctx context.Context, from, to time.Time) ([]CouponUsageData, error) {
	var rows []CouponUsageData
	err := db.bun.NewSelect().
		ColumnExpr("orders.coupon_code").
		ColumnExpr("COUNT(*) AS code_usage_count").
		ColumnExpr("COALESCE(SUM(orders.discount_amount), 0) AS discount_amount_sum").
		TableExpr("orders").
		Where("orders.created_at >= ? AND orders.created_at < ?", from, to).
		Where("orders.coupon_code IS NOT NULL AND orders.coupon_code != ''").
		Where("orders.status NOT IN (?)", bun.In(nonRevenueStatuses)).
		GroupExpr("orders.coupon_code").
		OrderExpr("orders.coupon_code").
		Scan(ctx, &rows)

	return rows, err
}

// GetRevenueOrderItems loads the line items of revenue-bearing orders.
// Items are stored as a JSON document, so per-product totals are summed by
// the caller.
func (db *DB) GetRevenueOrderItems(ctx context.Context, from, to time.Time) ([][]models.OrderItem, error) {
	var orders []models.Order
	err := db.bun.NewSelect().
		Model(&orders).
		Column("items").
		Where("created_at >= ? AND created_at < ?", from, to).
		Where("status NOT IN (?)", bun.In(nonRevenueStatuses)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	items := make([][]models.OrderItem, 0, len(orders))
	for _, o := range orders {
		items = append(items, o.Items)
	}
	return items, nil
}

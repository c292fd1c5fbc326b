package analytics_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-storefront/internal/analytics"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order/db"
)

var day1 = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func setupAnalytics(t *testing.T) (*analytics.Service, *bun.DB) {
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, db.CreateSchema(context.Background(), bunDB))
	t.Cleanup(func() { _ = bunDB.Close() })

	return analytics.NewService(bunDB), bunDB
}

type orderFixture struct {
	at       time.Time
	status   models.OrderStatus
	method   models.PaymentMethod
	coupon   string
	discount int64
	items    []models.OrderItem
}

func insertOrder(t *testing.T, bunDB *bun.DB, f orderFixture) {
	t.Helper()
	subtotal := models.ItemsTotal(f.items)
	discount := decimal.NewFromInt(f.discount)
	o := models.Order{
		ID:             uuid.NewString(),
		OrderNumber:    uuid.NewString(),
		GuestToken:     uuid.NewString(),
		Email:          "buyer@example.com",
		Items:          f.items,
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TotalAmount:    models.GrandTotal(subtotal, discount),
		CouponCode:     f.coupon,
		Status:         f.status,
		PaymentMethod:  f.method,
		CreatedAt:      f.at,
		UpdatedAt:      f.at,
	}
	_, err := bunDB.NewInsert().Model(&o).Exec(context.Background())
	require.NoError(t, err)
}

func line(productID, size string, price int64, qty int) models.OrderItem {
	return models.OrderItem{
		ProductID: productID,
		Name:      "Product " + productID,
		Size:      size,
		Price:     decimal.NewFromInt(price),
		Quantity:  qty,
	}
}

func seedSales(t *testing.T, bunDB *bun.DB) {
	// day 1: one COD with a coupon, one paid online
	insertOrder(t, bunDB, orderFixture{
		at: day1, status: models.OrderStatusDelivered, method: models.PaymentMethodCOD,
		coupon: "WELCOME10", discount: 200,
		items: []models.OrderItem{line("tee", "M", 1000, 2)},
	})
	insertOrder(t, bunDB, orderFixture{
		at: day1.Add(2 * time.Hour), status: models.OrderStatusConfirmed, method: models.PaymentMethodPayHere,
		items: []models.OrderItem{line("cap", "", 1500, 1), line("tee", "L", 1000, 1)},
	})
	// day 2: one shipped, one cancelled that must not count as revenue
	insertOrder(t, bunDB, orderFixture{
		at: day1.AddDate(0, 0, 1), status: models.OrderStatusShipped, method: models.PaymentMethodPayHere,
		coupon: "WELCOME10", discount: 100,
		items: []models.OrderItem{line("tee", "M", 1000, 1)},
	})
	insertOrder(t, bunDB, orderFixture{
		at: day1.AddDate(0, 0, 1).Add(time.Hour), status: models.OrderStatusCancelled, method: models.PaymentMethodCOD,
		coupon: "WELCOME10", discount: 100,
		items: []models.OrderItem{line("cap", "", 1500, 4)},
	})
	// outside the queried range
	insertOrder(t, bunDB, orderFixture{
		at: day1.AddDate(0, 0, 10), status: models.OrderStatusDelivered, method: models.PaymentMethodCOD,
		items: []models.OrderItem{line("cap", "", 1500, 9)},
	})
}

func TestGetSalesSummary(t *testing.T) {
	svc, bunDB := setupAnalytics(t)
	seedSales(t, bunDB)

	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	summary, err := svc.GetSalesSummary(context.Background(), from, from.AddDate(0, 0, 2))
	require.NoError(t, err)

	// 1800 + 2500 + 900
	assert.Equal(t, 3, summary.OrderCount)
	assert.True(t, summary.Revenue.Equal(decimal.NewFromInt(5200)), "revenue %s", summary.Revenue)
	assert.True(t, summary.DiscountTotal.Equal(decimal.NewFromInt(300)), "discount %s", summary.DiscountTotal)
	assert.True(t, summary.AverageOrderValue.Equal(decimal.RequireFromString("1733.33")), "aov %s", summary.AverageOrderValue)

	require.Len(t, summary.DailySales, 2)
	assert.Equal(t, "2026-10-01", summary.DailySales[0].Date)
	assert.Equal(t, 2, summary.DailySales[0].OrderCount)
	assert.True(t, summary.DailySales[0].Revenue.Equal(decimal.NewFromInt(4300)))
	assert.Equal(t, "2026-10-02", summary.DailySales[1].Date)
	assert.Equal(t, 1, summary.DailySales[1].OrderCount)

	byStatus := map[models.OrderStatus]int{}
	for _, st := range summary.ByStatus {
		byStatus[st.Status] = st.OrderCount
	}
	assert.Equal(t, map[models.OrderStatus]int{
		models.OrderStatusDelivered: 1,
		models.OrderStatusConfirmed: 1,
		models.OrderStatusShipped:   1,
		models.OrderStatusCancelled: 1,
	}, byStatus)

	require.Len(t, summary.ByPaymentMethod, 2)
	assert.Equal(t, models.PaymentMethodCOD, summary.ByPaymentMethod[0].PaymentMethod)
	assert.Equal(t, 1, summary.ByPaymentMethod[0].OrderCount)
	assert.Equal(t, models.PaymentMethodPayHere, summary.ByPaymentMethod[1].PaymentMethod)
	assert.True(t, summary.ByPaymentMethod[1].Revenue.Equal(decimal.NewFromInt(3400)))
}

func TestGetSalesSummary_EmptyRange(t *testing.T) {
	svc, _ := setupAnalytics(t)

	_, err := svc.GetSalesSummary(context.Background(), day1, day1)
	assert.Error(t, err)

	summary, err := svc.GetSalesSummary(context.Background(), day1, day1.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, summary.OrderCount)
	assert.True(t, summary.Revenue.IsZero())
	assert.True(t, summary.AverageOrderValue.IsZero())
	assert.Empty(t, summary.DailySales)
}

func TestGetCouponUsage(t *testing.T) {
	svc, bunDB := setupAnalytics(t)
	seedSales(t, bunDB)

	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	usage, err := svc.GetCouponUsage(context.Background(), from, from.AddDate(0, 0, 2))
	require.NoError(t, err)

	require.Len(t, usage, 1)
	assert.Equal(t, "WELCOME10", usage[0].CouponCode)
	assert.Equal(t, 2, usage[0].UsageCount, "cancelled redemption is excluded")
	assert.True(t, usage[0].TotalDiscount.Equal(decimal.NewFromInt(300)))
}

func TestGetTopProducts(t *testing.T) {
	svc, bunDB := setupAnalytics(t)
	seedSales(t, bunDB)

	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	products, err := svc.GetTopProducts(context.Background(), from, from.AddDate(0, 0, 2), 0)
	require.NoError(t, err)

	require.Len(t, products, 3)
	assert.Equal(t, "tee", products[0].ProductID)
	assert.Equal(t, "M", products[0].Size)
	assert.Equal(t, 3, products[0].UnitsSold)
	assert.True(t, products[0].Revenue.Equal(decimal.NewFromInt(3000)))
	// cap and tee/L both sold one unit; cap earned more
	assert.Equal(t, "cap", products[1].ProductID)
	assert.Equal(t, "tee", products[2].ProductID)
	assert.Equal(t, "L", products[2].Size)

	top, err := svc.GetTopProducts(context.Background(), from, from.AddDate(0, 0, 2), 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

package db_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-storefront/internal/models"
	"ms-storefront/internal/order/db"
	"ms-storefront/internal/order/ordererr"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	// Connect to an in-memory SQLite DB; a single connection keeps every
	// query on the same database.
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, db.CreateSchema(context.Background(), bunDB))
	t.Cleanup(func() { _ = bunDB.Close() })

	return &db.DB{Bun: bunDB}, bunDB
}

func insertProduct(t *testing.T, bunDB *bun.DB, id string, stock int, sizes map[string]int) {
	product := models.Product{
		ID:           id,
		SKU:          "SKU-" + id,
		Name:         "Product " + id,
		Price:        decimal.NewFromInt(1000),
		DiscountType: models.DiscountNone,
		Stock:        stock,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&product).Exec(context.Background())
	require.NoError(t, err)
	for size, n := range sizes {
		variant := models.ProductVariant{ProductID: id, Size: size, Stock: n}
		_, err := bunDB.NewInsert().Model(&variant).Exec(context.Background())
		require.NoError(t, err)
	}
}

func newOrder(number string, status models.OrderStatus, items []models.OrderItem) *models.Order {
	now := time.Now().UTC()
	return &models.Order{
		ID:            uuid.NewString(),
		OrderNumber:   number,
		GuestToken:    uuid.NewString(),
		Email:         "buyer@example.com",
		Items:         items,
		Subtotal:      models.ItemsTotal(items),
		TotalAmount:   models.ItemsTotal(items),
		Status:        status,
		PaymentMethod: models.PaymentMethodCOD,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestGetProductByID_LoadsVariants(t *testing.T) {
	store, bunDB := setupTestDB(t)
	insertProduct(t, bunDB, "p1", 0, map[string]int{"M": 3, "L": 1})

	product, err := store.GetProductByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, product.HasVariants())
	require.NotNil(t, product.Variant("M"))
	assert.Equal(t, 3, product.Variant("M").Stock)
	assert.Nil(t, product.Variant("XL"))

	_, err = store.GetProductByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ordererr.ErrProductNotFound)
}

func TestGetCouponByCode_NotFound(t *testing.T) {
	store, _ := setupTestDB(t)

	coupon, err := store.GetCouponByCode(context.Background(), "NOPE")
	assert.Nil(t, coupon)
	assert.ErrorIs(t, err, ordererr.ErrCouponNotFound)
}

func TestGetUserAddress_OwnedByUser(t *testing.T) {
	store, bunDB := setupTestDB(t)
	address := models.UserAddress{
		ID:        "addr-1",
		UserID:    "user-1",
		Address:   models.Address{FirstName: "Ana", Line1: "1 Main St", City: "Colombo", Country: "Sri Lanka"},
		CreatedAt: time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&address).Exec(context.Background())
	require.NoError(t, err)

	got, err := store.GetUserAddress(context.Background(), "user-1", "addr-1")
	require.NoError(t, err)
	assert.Equal(t, "Colombo", got.Address.City)

	_, err = store.GetUserAddress(context.Background(), "user-2", "addr-1")
	assert.True(t, ordererr.IsValidation(err))
}

func TestCreateOrderInTx_CommitsAndReads(t *testing.T) {
	store, bunDB := setupTestDB(t)
	insertProduct(t, bunDB, "p1", 5, nil)
	ctx := context.Background()

	items := []models.OrderItem{{ProductID: "p1", Name: "Product p1", Price: decimal.NewFromInt(1000), Quantity: 2}}
	order := newOrder("1001", models.OrderStatusPending, items)
	order.UserID = "user-1"

	_, err := bunDB.NewInsert().Model(&models.CartItem{UserID: "user-1", ProductID: "p1", Quantity: 2, CreatedAt: time.Now()}).Exec(ctx)
	require.NoError(t, err)

	err = store.RunInTx(ctx, func(ctx context.Context, tx *db.Tx) error {
		if err := tx.DeductStock(ctx, order.Items); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		return tx.ClearCart(ctx, order.UserID)
	})
	require.NoError(t, err)

	got, err := store.GetOrderByNumber(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(2000).Equal(got.TotalAmount))

	exists, err := store.OrderExists(ctx, "1001")
	require.NoError(t, err)
	assert.True(t, exists)

	product, err := store.GetProductByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, product.Stock)

	count, err := bunDB.NewSelect().Model((*models.CartItem)(nil)).Where("user_id = ?", "user-1").Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	orders, err := store.ListOrdersByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	store, bunDB := setupTestDB(t)
	insertProduct(t, bunDB, "p1", 5, nil)
	insertProduct(t, bunDB, "p2", 1, nil)
	ctx := context.Background()

	items := []models.OrderItem{
		{ProductID: "p1", Price: decimal.NewFromInt(1000), Quantity: 2},
		{ProductID: "p2", Price: decimal.NewFromInt(1000), Quantity: 3},
	}
	err := store.RunInTx(ctx, func(ctx context.Context, tx *db.Tx) error {
		return tx.DeductStock(ctx, items)
	})
	var oos *ordererr.OutOfStockError
	require.True(t, errors.As(err, &oos))
	assert.Equal(t, "p2", oos.ProductID)
	assert.Equal(t, 1, oos.Available)

	product, err := store.GetProductByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock, "first line must be rolled back")
}

func TestRecordRedemption(t *testing.T) {
	store, bunDB := setupTestDB(t)
	ctx := context.Background()
	maxUses := 2
	perUser := 1
	coupon := models.Coupon{
		ID:           "c1",
		Code:         "SAVE",
		Type:         models.CouponFixed,
		Value:        decimal.NewFromInt(100),
		MaxUses:      &maxUses,
		LimitPerUser: &perUser,
		IsActive:     true,
		IsPublic:     true,
		CreatedAt:    time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&coupon).Exec(ctx)
	require.NoError(t, err)

	redeem := func(userID string, enforce bool) error {
		return store.RunInTx(ctx, func(ctx context.Context, tx *db.Tx) error {
			_, err := tx.RecordRedemption(ctx, "SAVE", userID, enforce)
			return err
		})
	}

	require.NoError(t, redeem("user-1", true))
	assert.ErrorIs(t, redeem("user-1", true), ordererr.ErrCouponRejected, "per-user cap")
	require.NoError(t, redeem("", true), "guests append nothing")
	assert.ErrorIs(t, redeem("user-2", true), ordererr.ErrCouponRejected, "global cap")
	require.NoError(t, redeem("user-2", false), "paid orders may overshoot")

	got, err := store.GetCouponByCode(ctx, "SAVE")
	require.NoError(t, err)
	assert.Equal(t, 3, got.UsedCount)
	assert.Equal(t, []string{"user-1", "user-2"}, got.UsedByUserIDs)
}

func TestTransitionOrder_OptimisticGuard(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()
	order := newOrder("2001", models.OrderStatusPending, nil)
	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, tx *db.Tx) error {
		return tx.CreateOrder(ctx, order)
	}))

	order.Status = models.OrderStatusCancelled
	order.StockRestored = true
	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, tx *db.Tx) error {
		return tx.TransitionOrder(ctx, order, models.OrderStatusPending)
	}))

	stale := *order
	stale.Status = models.OrderStatusProcessing
	err := store.RunInTx(ctx, func(ctx context.Context, tx *db.Tx) error {
		return tx.TransitionOrder(ctx, &stale, models.OrderStatusPending)
	})
	assert.ErrorIs(t, err, ordererr.ErrInvalidStatusTransition)

	got, err := store.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)
	assert.True(t, got.StockRestored)
}

func TestAnomalies(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()
	anomaly := &models.ReconciliationAnomaly{
		ID:            uuid.NewString(),
		OrderNumber:   "3001",
		TransactionID: "320025",
		Reason:        "insufficient stock",
		Snapshot:      models.PendingOrder{OrderNumber: "3001", Email: "buyer@example.com"},
		CreatedAt:     time.Now(),
	}
	require.NoError(t, store.CreateAnomaly(ctx, anomaly))

	anomalies, err := store.ListAnomalies(ctx, false)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "buyer@example.com", anomalies[0].Snapshot.Email)
}

func TestConcurrentDeduct_NeverOversells(t *testing.T) {
	store, bunDB := setupTestDB(t)
	insertProduct(t, bunDB, "p1", 0, map[string]int{"M": 2})
	ctx := context.Background()

	items := []models.OrderItem{{ProductID: "p1", Size: "M", Price: decimal.NewFromInt(1000), Quantity: 2}}
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.RunInTx(ctx, func(ctx context.Context, tx *db.Tx) error {
				return tx.DeductStock(ctx, items)
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ordererr.ErrInsufficientStock)
		}
	}
	assert.Equal(t, 1, succeeded)

	product, err := store.GetProductByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, product.Variant("M").Stock)
}

package stock_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-storefront/internal/models"
	"ms-storefront/internal/order/ordererr"
	"ms-storefront/internal/order/stock"
)

func setupLedgerDB(t *testing.T) *bun.DB {
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = bunDB.Close() })

	ctx := context.Background()
	for _, model := range []interface{}{(*models.Product)(nil), (*models.ProductVariant)(nil)} {
		_, err := bunDB.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}

	products := []models.Product{
		{ID: "scalar", SKU: "S-1", Name: "Scalar", Price: decimal.NewFromInt(500), DiscountType: models.DiscountNone, Stock: 3, IsActive: true, CreatedAt: time.Now()},
		{ID: "sized", SKU: "V-1", Name: "Sized", Price: decimal.NewFromInt(900), DiscountType: models.DiscountNone, IsActive: true, CreatedAt: time.Now()},
	}
	_, err = bunDB.NewInsert().Model(&products).Exec(ctx)
	require.NoError(t, err)
	variants := []models.ProductVariant{
		{ProductID: "sized", Size: "M", Stock: 2},
		{ProductID: "sized", Size: "L", Stock: 0},
	}
	_, err = bunDB.NewInsert().Model(&variants).Exec(ctx)
	require.NoError(t, err)
	return bunDB
}

func TestDeduct_ScalarAndVariant(t *testing.T) {
	db := setupLedgerDB(t)
	ctx := context.Background()

	err := stock.Deduct(ctx, db, []models.OrderItem{
		{ProductID: "scalar", Quantity: 2},
		{ProductID: "sized", Size: "M", Quantity: 1},
	})
	require.NoError(t, err)

	n, err := stock.Available(ctx, db, "scalar", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = stock.Available(ctx, db, "sized", "M")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeduct_ExactStockReachesZero(t *testing.T) {
	db := setupLedgerDB(t)
	ctx := context.Background()

	require.NoError(t, stock.Deduct(ctx, db, []models.OrderItem{{ProductID: "scalar", Quantity: 3}}))

	n, err := stock.Available(ctx, db, "scalar", "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeduct_OutOfStockNamesItem(t *testing.T) {
	db := setupLedgerDB(t)

	err := stock.Deduct(context.Background(), db, []models.OrderItem{
		{ProductID: "sized", Name: "Sized", Size: "L", Quantity: 1},
	})
	var oos *ordererr.OutOfStockError
	require.True(t, errors.As(err, &oos))
	assert.Equal(t, "L", oos.Size)
	assert.Equal(t, 0, oos.Available)
	assert.ErrorIs(t, err, ordererr.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Sized (size L)")
}

// failReadsAfterUpdate cancels every SELECT issued after the first UPDATE.
type failReadsAfterUpdate struct {
	updated atomic.Bool
}

func (h *failReadsAfterUpdate) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	if strings.HasPrefix(event.Query, "UPDATE") {
		h.updated.Store(true)
		return ctx
	}
	if h.updated.Load() && strings.HasPrefix(event.Query, "SELECT") {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		return cancelled
	}
	return ctx
}

func (h *failReadsAfterUpdate) AfterQuery(context.Context, *bun.QueryEvent) {}

func TestDeduct_StockReadFailureIsNotOutOfStock(t *testing.T) {
	db := setupLedgerDB(t)
	db.AddQueryHook(&failReadsAfterUpdate{})

	err := stock.Deduct(context.Background(), db, []models.OrderItem{
		{ProductID: "scalar", Name: "Scalar", Quantity: 5},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ordererr.ErrInsufficientStock)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "scalar")
}

func TestDeduct_RejectsNonPositiveQuantity(t *testing.T) {
	db := setupLedgerDB(t)

	err := stock.Deduct(context.Background(), db, []models.OrderItem{{ProductID: "scalar", Quantity: 0}})
	assert.True(t, ordererr.IsValidation(err))
}

func TestRestore_ReturnsOriginalQuantity(t *testing.T) {
	db := setupLedgerDB(t)
	ctx := context.Background()
	items := []models.OrderItem{
		{ProductID: "scalar", Quantity: 3},
		{ProductID: "sized", Size: "M", Quantity: 2},
	}

	require.NoError(t, stock.Deduct(ctx, db, items))
	require.NoError(t, stock.Restore(ctx, db, items))

	n, _ := stock.Available(ctx, db, "scalar", "")
	assert.Equal(t, 3, n)
	n, _ = stock.Available(ctx, db, "sized", "M")
	assert.Equal(t, 2, n)
}

func TestRestore_UnknownSize(t *testing.T) {
	db := setupLedgerDB(t)

	err := stock.Restore(context.Background(), db, []models.OrderItem{{ProductID: "sized", Size: "XXL", Quantity: 1}})
	assert.ErrorIs(t, err, ordererr.ErrProductNotFound)
}

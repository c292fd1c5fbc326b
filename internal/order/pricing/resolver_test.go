package pricing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-storefront/internal/models"
	"ms-storefront/internal/order/ordererr"
	"ms-storefront/internal/order/pricing"
)

type MockProductReader struct {
	mock.Mock
}

func (m *MockProductReader) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestResolve_DiscountsAndSubtotal(t *testing.T) {
	products := new(MockProductReader)
	products.On("GetProductByID", "pct").Return(&models.Product{
		ID: "pct", SKU: "PCT", Name: "Percent", Price: dec("1000"), DiscountType: models.DiscountPercentage,
		DiscountValue: dec("15"), Stock: 10, IsActive: true,
	}, nil)
	products.On("GetProductByID", "fixed").Return(&models.Product{
		ID: "fixed", SKU: "FIX", Name: "Fixed", Price: dec("99.99"), DiscountType: models.DiscountFixed,
		DiscountValue: dec("10"), Stock: 10, IsActive: true,
	}, nil)

	priced, err := pricing.NewResolver(products).Resolve(context.Background(), []models.CartLine{
		{ProductID: "pct", Quantity: 2, Color: "red"},
		{ProductID: "fixed", Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, priced.Items, 2)
	assert.True(t, dec("850").Equal(priced.Items[0].Price))
	assert.Equal(t, "red", priced.Items[0].Color)
	assert.True(t, dec("89.99").Equal(priced.Items[1].Price))
	assert.True(t, dec("1789.99").Equal(priced.Subtotal))
	products.AssertExpectations(t)
}

func TestUnitPrice_FloorsAtZeroAndRounds(t *testing.T) {
	assert.True(t, decimal.Zero.Equal(pricing.UnitPrice(&models.Product{
		Price: dec("50"), DiscountType: models.DiscountFixed, DiscountValue: dec("80"),
	})))
	assert.True(t, dec("6.67").Equal(pricing.UnitPrice(&models.Product{
		Price: dec("10"), DiscountType: models.DiscountPercentage, DiscountValue: dec("33.333"),
	})))
	assert.True(t, dec("10").Equal(pricing.UnitPrice(&models.Product{
		Price: dec("10"), DiscountType: models.DiscountNone,
	})))
}

func TestResolve_VariantSelection(t *testing.T) {
	products := new(MockProductReader)
	products.On("GetProductByID", "tee").Return(&models.Product{
		ID: "tee", Name: "Tee", Price: dec("2500"), DiscountType: models.DiscountNone, IsActive: true,
		Variants: []models.ProductVariant{{Size: "M", Stock: 1}, {Size: "L", Stock: 4}},
	}, nil)
	resolver := pricing.NewResolver(products)

	priced, err := resolver.Resolve(context.Background(), []models.CartLine{{ProductID: "tee", Size: "L", Quantity: 4}})
	require.NoError(t, err)
	assert.Equal(t, "L", priced.Items[0].Size)

	_, err = resolver.Resolve(context.Background(), []models.CartLine{{ProductID: "tee", Size: "XL", Quantity: 1}})
	assert.True(t, ordererr.IsValidation(err))

	_, err = resolver.Resolve(context.Background(), []models.CartLine{{ProductID: "tee", Size: "M", Quantity: 2}})
	var oos *ordererr.OutOfStockError
	require.True(t, errors.As(err, &oos))
	assert.Equal(t, "Tee", oos.Name)
	assert.Equal(t, 1, oos.Available)
}

func TestResolve_Rejections(t *testing.T) {
	products := new(MockProductReader)
	products.On("GetProductByID", "gone").Return(nil, ordererr.ErrProductNotFound)
	products.On("GetProductByID", "off").Return(&models.Product{ID: "off", Name: "Off", IsActive: false, Stock: 5}, nil)
	resolver := pricing.NewResolver(products)

	_, err := resolver.Resolve(context.Background(), []models.CartLine{{ProductID: "gone", Quantity: 1}})
	assert.ErrorIs(t, err, ordererr.ErrProductUnavailable)

	_, err = resolver.Resolve(context.Background(), []models.CartLine{{ProductID: "off", Quantity: 1}})
	assert.ErrorIs(t, err, ordererr.ErrProductUnavailable)

	_, err = resolver.Resolve(context.Background(), []models.CartLine{{ProductID: "off", Quantity: 0}})
	assert.True(t, ordererr.IsValidation(err))

	_, err = resolver.Resolve(context.Background(), nil)
	assert.True(t, ordererr.IsValidation(err))
}

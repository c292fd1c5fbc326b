// Package pricing turns cart lines into priced, immutable order line items.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"ms-storefront/internal/models"
	"ms-storefront/internal/order/ordererr"
)

var hundred = decimal.NewFromInt(100)

type ProductReader interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
}

// Priced is the resolver output. Items are snapshots; later catalog changes
// never reach them.
type Priced struct {
	Items    []models.OrderItem
	Subtotal decimal.Decimal
}

type Resolver struct {
	products ProductReader
}

func NewResolver(products ProductReader) *Resolver {
	return &Resolver{products: products}
}

// Resolve validates every line against the catalog and prices it. It does
// not write anything.
func (r *Resolver) Resolve(ctx context.Context, lines []models.CartLine) (*Priced, error) {
	if len(lines) == 0 {
		return nil, ordererr.Invalid("items", "cart is empty")
	}

	priced := &Priced{Items: make([]models.OrderItem, 0, len(lines)), Subtotal: decimal.Zero}
	for _, line := range lines {
		item, err := r.resolveLine(ctx, line)
		if err != nil {
			return nil, err
		}
		priced.Items = append(priced.Items, item)
		priced.Subtotal = priced.Subtotal.Add(item.LineTotal())
	}
	return priced, nil
}

func (r *Resolver) resolveLine(ctx context.Context, line models.CartLine) (models.OrderItem, error) {
	if line.Quantity < 1 {
		return models.OrderItem{}, ordererr.Invalid("quantity", "must be at least 1 for product %s", line.ProductID)
	}

	product, err := r.products.GetProductByID(ctx, line.ProductID)
	if errors.Is(err, ordererr.ErrProductNotFound) {
		return models.OrderItem{}, fmt.Errorf("product %s: %w", line.ProductID, ordererr.ErrProductUnavailable)
	}
	if err != nil {
		return models.OrderItem{}, fmt.Errorf("load product %s: %w", line.ProductID, err)
	}
	if !product.IsActive {
		return models.OrderItem{}, fmt.Errorf("%s: %w", product.Name, ordererr.ErrProductUnavailable)
	}

	available := product.Stock
	size := ""
	if product.HasVariants() {
		variant := product.Variant(line.Size)
		if variant == nil {
			return models.OrderItem{}, ordererr.Invalid("size", "%s is not available in size %q", product.Name, line.Size)
		}
		available = variant.Stock
		size = variant.Size
	}
	if available < line.Quantity {
		return models.OrderItem{}, &ordererr.OutOfStockError{
			ProductID: product.ID,
			Name:      product.Name,
			Size:      size,
			Requested: line.Quantity,
			Available: available,
		}
	}

	return models.OrderItem{
		ProductID: product.ID,
		SKU:       product.SKU,
		Name:      product.Name,
		Price:     UnitPrice(product),
		Quantity:  line.Quantity,
		Size:      size,
		Color:     line.Color,
		Image:     product.Image,
	}, nil
}

// UnitPrice applies the product's own discount, floored at zero and rounded
// to 2 decimals.
func UnitPrice(p *models.Product) decimal.Decimal {
	price := p.Price
	switch p.DiscountType {
	case models.DiscountPercentage:
		price = price.Mul(hundred.Sub(p.DiscountValue)).Div(hundred)
	case models.DiscountFixed:
		price = price.Sub(p.DiscountValue)
	}
	if price.IsNegative() {
		price = decimal.Zero
	}
	return price.Round(2)
}

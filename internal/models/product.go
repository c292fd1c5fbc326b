package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type DiscountType string

const (
	DiscountNone       DiscountType = "NONE"
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID            string           `bun:"id,pk" json:"id"`
	SKU           string           `bun:"sku,notnull" json:"sku"`
	Name          string           `bun:"name,notnull" json:"name"`
	Price         decimal.Decimal  `bun:"price,type:decimal(12,2)" json:"price"`
	DiscountType  DiscountType     `bun:"discount_type,notnull,default:'NONE'" json:"discountType"`
	DiscountValue decimal.Decimal  `bun:"discount_value,type:decimal(12,2)" json:"discountValue"`
	Stock         int              `bun:"stock,notnull,default:0" json:"stock"`
	IsActive      bool             `bun:"is_active,notnull,default:true" json:"isActive"`
	Image         string           `bun:"image,nullzero" json:"image,omitempty"`
	Variants      []ProductVariant `bun:"rel:has-many,join:id=product_id" json:"variants,omitempty"`
	CreatedAt     time.Time        `bun:"created_at,notnull" json:"createdAt"`
}

// HasVariants reports whether stock is tracked per size.
func (p *Product) HasVariants() bool {
	return len(p.Variants) > 0
}

// Variant returns the variant for size, or nil.
func (p *Product) Variant(size string) *ProductVariant {
	for i := range p.Variants {
		if p.Variants[i].Size == size {
			return &p.Variants[i]
		}
	}
	return nil
}

type ProductVariant struct {
	bun.BaseModel `bun:"table:product_variants"`

	ID        int64  `bun:"id,pk,autoincrement" json:"-"`
	ProductID string `bun:"product_id,notnull,unique:product_size" json:"-"`
	Size      string `bun:"size,notnull,unique:product_size" json:"size"`
	Stock     int    `bun:"stock,notnull,default:0" json:"stock"`
}

type CartItem struct {
	bun.BaseModel `bun:"table:cart_items"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID    string    `bun:"user_id,notnull" json:"userId"`
	ProductID string    `bun:"product_id,notnull" json:"productId"`
	Quantity  int       `bun:"quantity,notnull" json:"quantity"`
	Size      string    `bun:"size,nullzero" json:"size,omitempty"`
	Color     string    `bun:"color,nullzero" json:"color,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
}

// UserAddress is a saved address from the customer's address book.
type UserAddress struct {
	bun.BaseModel `bun:"table:user_addresses"`

	ID        string    `bun:"id,pk" json:"id"`
	UserID    string    `bun:"user_id,notnull" json:"userId"`
	Address   Address   `bun:"address" json:"address"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
}

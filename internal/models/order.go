package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusReturned   OrderStatus = "RETURNED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

type PaymentMethod string

const (
	PaymentMethodCOD     PaymentMethod = "COD"
	PaymentMethodPayHere PaymentMethod = "PAYHERE"
)

// Address is an immutable snapshot once attached to an order.
type Address struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country"`
}

// OrderItem is a line item priced at order time.
type OrderItem struct {
	ProductID string          `json:"productId"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	Image     string          `json:"image,omitempty"`
}

// LineTotal is price * quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID              string          `bun:"id,pk" json:"id"`
	OrderNumber     string          `bun:"order_number,unique,notnull" json:"orderNumber"`
	GuestToken      string          `bun:"guest_token,unique,notnull" json:"guestToken,omitempty"`
	UserID          string          `bun:"user_id,nullzero" json:"userId,omitempty"`
	Email           string          `bun:"email,notnull" json:"email"`
	ShippingAddress Address         `bun:"shipping_address" json:"shippingAddress"`
	Items           []OrderItem     `bun:"items" json:"items"`
	Subtotal        decimal.Decimal `bun:"subtotal,type:decimal(12,2)" json:"subtotal"`
	DiscountAmount  decimal.Decimal `bun:"discount_amount,type:decimal(12,2)" json:"discountAmount"`
	TotalAmount     decimal.Decimal `bun:"total_amount,type:decimal(12,2)" json:"totalAmount"`
	CouponCode      string          `bun:"coupon_code,nullzero" json:"couponCode,omitempty"`
	Status          OrderStatus     `bun:"status,notnull" json:"status"`
	PaymentMethod   PaymentMethod   `bun:"payment_method,notnull" json:"paymentMethod"`
	TrackingNumber  string          `bun:"tracking_number,nullzero" json:"trackingNumber,omitempty"`
	StockRestored   bool            `bun:"stock_restored,notnull,default:false" json:"-"`
	CreatedAt       time.Time       `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt       time.Time       `bun:"updated_at,notnull" json:"updatedAt"`
}

// ItemsTotal sums price*quantity across all line items.
func ItemsTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// GrandTotal is subtotal minus discount, never negative.
func GrandTotal(subtotal, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// PendingOrder is the unconfirmed order snapshot kept in the cache while an
// online payment is outstanding. It has no durable id.
type PendingOrder struct {
	OrderNumber     string          `json:"orderNumber"`
	GuestToken      string          `json:"guestToken"`
	UserID          string          `json:"userId,omitempty"`
	Email           string          `json:"email"`
	ShippingAddress Address         `json:"shippingAddress"`
	Items           []OrderItem     `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	CouponCode      string          `json:"couponCode,omitempty"`
	Currency        string          `json:"currency"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// ToOrder builds the durable order promoted from this pending snapshot.
func (p PendingOrder) ToOrder(id string, transactionID string, now time.Time) Order {
	return Order{
		ID:              id,
		OrderNumber:     p.OrderNumber,
		GuestToken:      p.GuestToken,
		UserID:          p.UserID,
		Email:           p.Email,
		ShippingAddress: p.ShippingAddress,
		Items:           p.Items,
		Subtotal:        p.Subtotal,
		DiscountAmount:  p.DiscountAmount,
		TotalAmount:     p.TotalAmount,
		CouponCode:      p.CouponCode,
		Status:          OrderStatusConfirmed,
		PaymentMethod:   PaymentMethodPayHere,
		TrackingNumber:  transactionID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

type CartLine struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku,omitempty"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

type OrderRequest struct {
	Email           string        `json:"email"`
	ShippingAddress *Address      `json:"shippingAddress,omitempty"`
	AddressID       string        `json:"addressId,omitempty"`
	Items           []CartLine    `json:"items"`
	CouponCode      string        `json:"couponCode,omitempty"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`
}

type OrderResponse struct {
	OrderID     string           `json:"orderId,omitempty"`
	OrderNumber string           `json:"orderNumber"`
	GuestToken  string           `json:"guestToken"`
	Status      OrderStatus      `json:"status,omitempty"`
	TotalAmount decimal.Decimal  `json:"totalAmount"`
	Payment     *PayHereCheckout `json:"payment,omitempty"`
}

type StatusUpdateRequest struct {
	Status         OrderStatus `json:"status"`
	TrackingNumber string      `json:"trackingNumber,omitempty"`
}

// ReconciliationAnomaly records a paid online order that could not be
// committed and needs operator follow-up.
type ReconciliationAnomaly struct {
	bun.BaseModel `bun:"table:reconciliation_anomalies"`

	ID            string       `bun:"id,pk" json:"id"`
	OrderNumber   string       `bun:"order_number,notnull" json:"orderNumber"`
	TransactionID string       `bun:"transaction_id,nullzero" json:"transactionId,omitempty"`
	Reason        string       `bun:"reason,notnull" json:"reason"`
	Snapshot      PendingOrder `bun:"snapshot" json:"snapshot"`
	Resolved      bool         `bun:"resolved,notnull,default:false" json:"resolved"`
	CreatedAt     time.Time    `bun:"created_at,notnull" json:"createdAt"`
}

// CheckoutPreview is the priced cart shown before the customer commits.
type CheckoutPreview struct {
	Items          []OrderItem     `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	CouponCode     string          `json:"couponCode,omitempty"`
	CouponError    string          `json:"couponError,omitempty"`
}

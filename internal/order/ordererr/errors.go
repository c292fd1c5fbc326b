// Package ordererr holds the error taxonomy shared by the order intake,
// payment reconciliation and fulfillment paths.
package ordererr

import (
	"errors"
	"fmt"
)

var (
	// ErrProductUnavailable indicates the product is missing or not sellable.
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrInsufficientStock indicates stock ran out, either at pricing time or
	// by concurrent depletion before commit.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrCouponRejected is the parent of every coupon rule failure.
	ErrCouponRejected = errors.New("coupon rejected")
	// ErrInvalidSignature marks a webhook whose signature did not verify.
	ErrInvalidSignature = errors.New("invalid payment signature")
	// ErrInvalidStatusTransition marks a transition outside the workflow.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	// ErrStockReconciliationAnomaly marks a paid order whose stock was gone.
	ErrStockReconciliationAnomaly = errors.New("stock reconciliation anomaly")
	// ErrOrderCreationFailed wraps unexpected failures while committing an order.
	ErrOrderCreationFailed = errors.New("order creation failed")
	// ErrOrderNotFound indicates no durable order matched.
	ErrOrderNotFound = errors.New("order not found")
	// ErrCouponNotFound indicates no coupon matched the code.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrProductNotFound indicates no product matched the id.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNumberTaken indicates a generated order number is already in use
	// by a durable or pending order.
	ErrOrderNumberTaken = errors.New("order number already taken")
)

// ValidationError is a user-correctable input problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// OutOfStockError names the line item that cannot be fulfilled.
type OutOfStockError struct {
	ProductID string
	Name      string
	Size      string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	if e.Size != "" {
		name = fmt.Sprintf("%s (size %s)", name, e.Size)
	}
	return fmt.Sprintf("%s is out of stock: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *OutOfStockError) Unwrap() error {
	return ErrInsufficientStock
}

// CouponRejectedError carries the specific rule that failed.
type CouponRejectedError struct {
	Code   string
	Reason string
}

func (e *CouponRejectedError) Error() string {
	return fmt.Sprintf("coupon %s rejected: %s", e.Code, e.Reason)
}

func (e *CouponRejectedError) Unwrap() error {
	return ErrCouponRejected
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

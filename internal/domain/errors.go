package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error kinds. Every error returned by the cart and order services matches
// exactly one of these with errors.Is.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrStockExceeded    = errors.New("stock exceeded")
	ErrOutOfStock       = errors.New("out of stock")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnauthenticated  = errors.New("unauthenticated")
)

// ValidationError describes malformed or out-of-range input for one field
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError names the missing resource
type NotFoundError struct {
	Resource string
}

func NewNotFoundError(resource string) *NotFoundError {
	return &NotFoundError{Resource: resource}
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// StockError reports a requested quantity the catalog cannot supply.
// Kind is ErrStockExceeded for cart mutations and ErrOutOfStock for checkout.
type StockError struct {
	Kind        error
	ProductID   uuid.UUID
	ProductName string
	Available   int
	Requested   int
}

func (e *StockError) Error() string {
	if e.Kind == ErrOutOfStock {
		return fmt.Sprintf("%s is out of stock", e.ProductName)
	}
	return fmt.Sprintf("Only %d items available", e.Available)
}

func (e *StockError) Unwrap() error {
	return e.Kind
}

// StockExceeded builds the cart-side stock error
func StockExceeded(p *Product, requested int) *StockError {
	return &StockError{
		Kind:        ErrStockExceeded,
		ProductID:   p.ID,
		ProductName: p.Name,
		Available:   p.Stock,
		Requested:   requested,
	}
}

// OutOfStock builds the checkout-side stock error
func OutOfStock(productID uuid.UUID, name string, available, requested int) *StockError {
	return &StockError{
		Kind:        ErrOutOfStock,
		ProductID:   productID,
		ProductName: name,
		Available:   available,
		Requested:   requested,
	}
}

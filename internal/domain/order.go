package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
)

// OrderStatuses lists every accepted status
var OrderStatuses = []OrderStatus{OrderStatusPending, OrderStatusShipped, OrderStatusDelivered}

// ParseOrderStatus accepts exactly one of the known statuses
func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, status := range OrderStatuses {
		if string(status) == s {
			return status, nil
		}
	}
	return "", NewValidationError("status", "Invalid status. Must be: pending, shipped, or delivered")
}

// MinShippingAddressLength is the minimum trimmed length of a shipping address
const MinShippingAddressLength = 10

// ValidateShippingAddress checks the trimmed address length
func ValidateShippingAddress(address string) error {
	if len(strings.TrimSpace(address)) < MinShippingAddressLength {
		return NewValidationError("shipping_address", "Please provide a complete shipping address")
	}
	return nil
}

// Order is created atomically from a cart snapshot. Only Status and
// UpdatedAt change after creation.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	UserName        string          `json:"user_name"`
	Status          OrderStatus     `json:"status"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	ShippingAddress string          `json:"shipping_address"`
	PhoneNumber     string          `json:"phone_number"`
	Items           []OrderItem     `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderItem freezes the product price at the time the order was placed
type OrderItem struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// Subtotal is quantity times the frozen price
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CalculateTotal recomputes TotalPrice from the items and returns it
func (o *Order) CalculateTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	o.TotalPrice = total
	return total
}

// OwnedBy reports whether userID placed the order
func (o *Order) OwnedBy(userID uuid.UUID) bool {
	return o.UserID == userID
}

// StatusMessage is the human-readable notification text for the current status
func (o *Order) StatusMessage() string {
	return fmt.Sprintf("Your order #%s is now %s", o.ID, o.Status)
}
